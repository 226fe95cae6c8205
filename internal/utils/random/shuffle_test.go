package random

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShuffleKeepsElements(t *testing.T) {
	in := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	out := slices.Clone(in)
	require.NoError(t, Shuffle(out))

	slices.Sort(out)
	assert.Equal(t, in, out)
}

func TestSeededSourceIsDeterministic(t *testing.T) {
	a := []int{1, 2, 3, 4, 5, 6, 7, 8}
	b := slices.Clone(a)

	require.NoError(t, ShuffleWith(NewSeeded(42), a))
	require.NoError(t, ShuffleWith(NewSeeded(42), b))
	assert.Equal(t, a, b)
}

func TestPick(t *testing.T) {
	_, ok, err := Pick[int](Crypto(), nil)
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := Pick(NewSeeded(1), []string{"only"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "only", v)
}

func TestIntNRejectsEmptyRange(t *testing.T) {
	_, err := Crypto().IntN(0)
	assert.Error(t, err)
	_, err = NewSeeded(7).IntN(-1)
	assert.Error(t, err)
}
