// Package kdf implements the key derivation unit: HKDF for expanding high-entropy
// input keying material and PBKDF2 for stretching passwords. Both are pure functions
// of their inputs; the Deriver only carries the configured PBKDF2 iteration minimum.
package kdf

import (
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/primitive"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

const (
	FunctionHKDF   = "hkdf"
	FunctionPBKDF2 = "pbkdf2"

	// DefaultHash is used by HKDF and PBKDF2 when no hash is named.
	DefaultHash = constants.HashSHA256
)

// Deriver derives key material. It is safe for concurrent use.
type Deriver struct {
	minIterations int
}

// NewDeriver creates a Deriver enforcing minIterations for PBKDF2. A minimum below
// the 10,000 floor is a configuration error, not something to round up.
func NewDeriver(minIterations int) (*Deriver, error) {
	if minIterations < constants.PBKDF2IterationFloor {
		return nil, errors.WeakParameters(fmt.Sprintf("configured PBKDF2 minimum %d is below the floor of %d", minIterations, constants.PBKDF2IterationFloor))
	}
	return &Deriver{minIterations: minIterations}, nil
}

// MinIterations returns the enforced PBKDF2 minimum.
func (d *Deriver) MinIterations() int {
	return d.minIterations
}

// HKDF derives length bytes from ikm with HKDF-SHA256.
func (d *Deriver) HKDF(ikm, salt, info []byte, length int) (*models.DerivedKey, error) {
	return d.HKDFWithHash(DefaultHash, ikm, salt, info, length)
}

// HKDFWithHash derives length bytes from ikm with HKDF over alg. length must lie in
// [1, 255*digestSize].
func (d *Deriver) HKDFWithHash(alg constants.HashAlgorithm, ikm, salt, info []byte, length int) (*models.DerivedKey, error) {
	h, err := primitive.HashFunc(alg)
	if err != nil {
		return nil, err
	}
	size, _ := primitive.DigestSize(alg)
	if max := 255 * size; length < 1 || length > max {
		return nil, errors.InvalidLength(length, 1, max)
	}

	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(h, ikm, salt, info), out); err != nil {
		return nil, errors.Internal("hkdf expansion failed", err)
	}
	return &models.DerivedKey{
		KeyMaterial: out,
		Length:      length,
		Params: models.DerivationParams{
			Function:   FunctionHKDF,
			Hash:       alg,
			SaltLength: len(salt),
			Info:       string(info),
		},
	}, nil
}

// PBKDF2 derives length bytes from password with PBKDF2-HMAC-SHA256.
func (d *Deriver) PBKDF2(password, salt []byte, iterations, length int) (*models.DerivedKey, error) {
	return d.PBKDF2WithHash(DefaultHash, password, salt, iterations, length)
}

// PBKDF2WithHash derives length bytes from password with PBKDF2-HMAC over alg.
// Requests below the iteration minimum or with a short salt fail with
// WeakParameters; they are never silently strengthened or weakened.
func (d *Deriver) PBKDF2WithHash(alg constants.HashAlgorithm, password, salt []byte, iterations, length int) (*models.DerivedKey, error) {
	h, err := primitive.HashFunc(alg)
	if err != nil {
		return nil, err
	}
	if iterations < d.minIterations {
		return nil, errors.WeakParameters(fmt.Sprintf("%d iterations requested, minimum is %d", iterations, d.minIterations))
	}
	if len(salt) < constants.MinSaltLength {
		return nil, errors.WeakParameters(fmt.Sprintf("salt of %d bytes is shorter than %d", len(salt), constants.MinSaltLength))
	}
	size, _ := primitive.DigestSize(alg)
	// PBKDF2 itself allows (2^32-1)*hLen; cap at the same bound as HKDF to keep one rule.
	if max := 255 * size; length < 1 || length > max {
		return nil, errors.InvalidLength(length, 1, max)
	}

	return &models.DerivedKey{
		KeyMaterial: pbkdf2.Key(password, salt, iterations, length, h),
		Length:      length,
		Params: models.DerivationParams{
			Function:   FunctionPBKDF2,
			Hash:       alg,
			Iterations: iterations,
			SaltLength: len(salt),
		},
	}, nil
}
