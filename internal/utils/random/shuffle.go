package random

import (
	"crypto/rand"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"sync"
)

// Source yields uniform integers in [0, n).
type Source interface {
	IntN(n int) (int, error)
}

type cryptoSource struct{}

// Crypto returns the production source backed by crypto/rand.
func Crypto() Source {
	return cryptoSource{}
}

func (cryptoSource) IntN(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("invalid range %d", n)
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to generate random number: %w", err)
	}
	return int(v.Int64()), nil
}

type seededSource struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded returns a deterministic source for reproducible draws in tests.
func NewSeeded(seed uint64) Source {
	return &seededSource{rng: mrand.New(mrand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *seededSource) IntN(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("invalid range %d", n)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n), nil
}

// Shuffle performs a cryptographically secure shuffle of the slice.
func Shuffle[T any](slice []T) error {
	return ShuffleWith(Crypto(), slice)
}

// ShuffleWith performs a Fisher-Yates shuffle driven by src.
func ShuffleWith[T any](src Source, slice []T) error {
	for i := len(slice) - 1; i > 0; i-- {
		j, err := src.IntN(i + 1)
		if err != nil {
			return err
		}
		slice[i], slice[j] = slice[j], slice[i]
	}
	return nil
}

// Pick returns a uniformly chosen element. ok is false for an empty slice.
func Pick[T any](src Source, slice []T) (v T, ok bool, err error) {
	if len(slice) == 0 {
		return v, false, nil
	}
	i, err := src.IntN(len(slice))
	if err != nil {
		return v, false, err
	}
	return slice[i], true, nil
}
