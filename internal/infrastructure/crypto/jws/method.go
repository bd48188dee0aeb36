// Package jws binds the signature engine to JSON Web Tokens. Each supported
// algorithm is registered with golang-jwt as a signing method whose Sign delegates
// to the engine (the private key never leaves the key store) and whose Verify is
// the engine's pure verification function.
package jws

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/signature"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// JWS "alg" header values.
const (
	AlgEd25519   = "CC-ED25519"
	AlgSecp256k1 = "CC-SECP256K1"
	AlgECDSA     = "CC-ECDSA"
)

// Signer produces signatures with a stored key. *signature.Engine satisfies it.
type Signer interface {
	Sign(ctx context.Context, cfg models.CryptoConfig, keyID string, message []byte) (*models.Signature, error)
}

// SigningKey is the key value passed to jwt.Token.SignedString.
type SigningKey struct {
	Ctx    context.Context
	Signer Signer
	Config models.CryptoConfig
	KeyID  string
}

// VerifyingKey is the key value returned from a jwt.Keyfunc.
type VerifyingKey struct {
	Algorithm     constants.Algorithm
	HashAlgorithm constants.HashAlgorithm
	PublicKey     []byte
}

// SigningMethod implements jwt.SigningMethod for one engine algorithm.
type SigningMethod struct {
	name      string
	algorithm constants.Algorithm
}

var (
	SigningMethodEd25519   = &SigningMethod{name: AlgEd25519, algorithm: constants.AlgorithmEd25519}
	SigningMethodSecp256k1 = &SigningMethod{name: AlgSecp256k1, algorithm: constants.AlgorithmSecp256k1}
	SigningMethodECDSA     = &SigningMethod{name: AlgECDSA, algorithm: constants.AlgorithmECDSA}

	methods = []*SigningMethod{SigningMethodEd25519, SigningMethodSecp256k1, SigningMethodECDSA}
)

func init() {
	for _, m := range methods {
		m := m
		jwt.RegisterSigningMethod(m.name, func() jwt.SigningMethod { return m })
	}
}

// MethodFor returns the signing method of an engine algorithm.
func MethodFor(alg constants.Algorithm) (*SigningMethod, error) {
	for _, m := range methods {
		if m.algorithm == alg {
			return m, nil
		}
	}
	return nil, errors.UnsupportedAlgorithm(string(alg))
}

// ValidMethods lists every registered alg name, for jwt.WithValidMethods.
func ValidMethods() []string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = m.name
	}
	return names
}

// Alg implements jwt.SigningMethod.
func (m *SigningMethod) Alg() string {
	return m.name
}

// Algorithm returns the engine algorithm behind this method.
func (m *SigningMethod) Algorithm() constants.Algorithm {
	return m.algorithm
}

// Sign implements jwt.SigningMethod.
func (m *SigningMethod) Sign(signingString string, key interface{}) ([]byte, error) {
	k, ok := key.(*SigningKey)
	if !ok || k.Signer == nil {
		return nil, jwt.ErrInvalidKeyType
	}
	if k.Config.Algorithm != m.algorithm {
		return nil, fmt.Errorf("%w: key algorithm %s does not match %s", jwt.ErrInvalidKeyType, k.Config.Algorithm, m.name)
	}
	ctx := k.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	sig, err := k.Signer.Sign(ctx, k.Config, k.KeyID, []byte(signingString))
	if err != nil {
		return nil, err
	}
	return sig.Bytes, nil
}

// Verify implements jwt.SigningMethod.
func (m *SigningMethod) Verify(signingString string, sig []byte, key interface{}) error {
	k, ok := key.(*VerifyingKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if k.Algorithm != m.algorithm {
		return fmt.Errorf("%w: key algorithm %s does not match %s", jwt.ErrInvalidKeyType, k.Algorithm, m.name)
	}
	err := signature.Check(&models.Signature{
		Algorithm:     k.Algorithm,
		HashAlgorithm: k.HashAlgorithm,
		Bytes:         sig,
	}, []byte(signingString), k.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %w", jwt.ErrSignatureInvalid, err)
	}
	return nil
}
