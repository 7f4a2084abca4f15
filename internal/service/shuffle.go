package service

import (
	crand "crypto/rand"
	"math/rand/v2"

	"github.com/pkg/errors"
)

// newRand returns a ChaCha8 generator seeded from the operating system's
// CSPRNG. One generator serves a whole selection pass.
func newRand() (*rand.Rand, error) {
	var seed [32]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, errors.Wrap(err, "seed selection rng")
	}
	return rand.New(rand.NewChaCha8(seed)), nil
}

// shuffle permutes s uniformly in place (Fisher-Yates).
func shuffle[T any](r *rand.Rand, s []T) {
	for i := len(s) - 1; i > 0; i-- {
		j := r.IntN(i + 1)
		s[i], s[j] = s[j], s[i]
	}
}
