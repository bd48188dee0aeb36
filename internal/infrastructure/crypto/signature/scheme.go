package signature

import (
	"io"

	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// materialFunc returns n deterministic bytes for the given resampling counter.
type materialFunc func(counter byte, n int) ([]byte, error)

// maxResample bounds rejection sampling. For every supported curve a single draw is
// rejected with probability below 2^-32, so exhausting this means the source is broken.
const maxResample = 64

// scheme is the per-algorithm half of the engine. Private and public keys are passed
// in their encoded form.
type scheme interface {
	generate(rand io.Reader, keySize int) (priv, pub []byte, err error)
	derive(material materialFunc, keySize int) (priv, pub []byte, err error)
	publicKey(priv []byte) ([]byte, error)
	sign(rand io.Reader, priv, digest []byte) ([]byte, error)
	verify(pub, digest, sig []byte) error
}

func schemeFor(alg constants.Algorithm) (scheme, error) {
	switch alg {
	case constants.AlgorithmEd25519:
		return ed25519Scheme{}, nil
	case constants.AlgorithmSecp256k1:
		return secp256k1Scheme{}, nil
	case constants.AlgorithmECDSA:
		return ecdsaScheme{}, nil
	default:
		return nil, errors.UnsupportedAlgorithm(string(alg))
	}
}

func readRandom(rand io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand, b); err != nil {
		if errors.HasCode(err, errors.CodeInsufficientEntropy) {
			return nil, err
		}
		return nil, errors.InsufficientEntropy(n, err)
	}
	return b, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
