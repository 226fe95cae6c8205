package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProofRef(t *testing.T) {
	ref, err := ProofRef("  TX-123  ")
	require.NoError(t, err)
	assert.Equal(t, "TX-123", ref)

	_, err = ProofRef("   ")
	assert.Error(t, err)

	_, err = ProofRef(strings.Repeat("x", MaxProofRefLength+1))
	assert.Error(t, err)
}

func TestRejectReason(t *testing.T) {
	reason, err := RejectReason(" wrong amount ")
	require.NoError(t, err)
	assert.Equal(t, "wrong amount", reason)

	_, err = RejectReason("")
	assert.Error(t, err)

	_, err = RejectReason(strings.Repeat("r", MaxRejectReasonLength+1))
	assert.Error(t, err)
}

func TestIsReferralCode(t *testing.T) {
	assert.True(t, IsReferralCode("ref_z"))
	assert.True(t, IsReferralCode("ref_1a2b3c"))
	assert.False(t, IsReferralCode(""))
	assert.False(t, IsReferralCode("ref_"))
	assert.False(t, IsReferralCode("REF_abc"))
	assert.False(t, IsReferralCode("ref_abc; DROP"))
}

func TestUsername(t *testing.T) {
	assert.Equal(t, "alice_01", Username("@alice_01"))
	assert.Equal(t, "", Username("bob"))
	assert.Equal(t, "", Username("bad name"))
}

func TestFirstName(t *testing.T) {
	assert.Equal(t, "Abebe", FirstName("  Abebe "))
	assert.Len(t, []rune(FirstName(strings.Repeat("ж", 100))), MaxFirstNameLength)
}
