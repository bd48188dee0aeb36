package signature

import (
	"crypto/ed25519"
	"io"

	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// ed25519Scheme stores the 32-byte seed as the private key.
type ed25519Scheme struct{}

func (ed25519Scheme) generate(rand io.Reader, keySize int) ([]byte, []byte, error) {
	if keySize != 256 {
		return nil, nil, errors.UnsupportedKeySize(string(constants.AlgorithmEd25519), keySize)
	}
	seed, err := readRandom(rand, ed25519.SeedSize)
	if err != nil {
		return nil, nil, err
	}
	return ed25519Keys(seed)
}

func (ed25519Scheme) derive(material materialFunc, keySize int) ([]byte, []byte, error) {
	if keySize != 256 {
		return nil, nil, errors.UnsupportedKeySize(string(constants.AlgorithmEd25519), keySize)
	}
	seed, err := material(0, ed25519.SeedSize)
	if err != nil {
		return nil, nil, err
	}
	return ed25519Keys(seed)
}

func ed25519Keys(seed []byte) ([]byte, []byte, error) {
	priv := ed25519.NewKeyFromSeed(seed)
	defer wipe(priv)
	pub := make([]byte, ed25519.PublicKeySize)
	copy(pub, priv.Public().(ed25519.PublicKey))
	return seed, pub, nil
}

func (ed25519Scheme) publicKey(priv []byte) ([]byte, error) {
	if len(priv) != ed25519.SeedSize {
		return nil, errors.MalformedInput("ed25519 private key must be a 32-byte seed")
	}
	_, pub, err := ed25519Keys(append([]byte(nil), priv...))
	return pub, err
}

func (ed25519Scheme) sign(_ io.Reader, priv, digest []byte) ([]byte, error) {
	if len(priv) != ed25519.SeedSize {
		return nil, errors.MalformedInput("ed25519 private key must be a 32-byte seed")
	}
	key := ed25519.NewKeyFromSeed(priv)
	defer wipe(key)
	return ed25519.Sign(key, digest), nil
}

func (ed25519Scheme) verify(pub, digest, sig []byte) error {
	if len(pub) != ed25519.PublicKeySize {
		return errors.MalformedInput("ed25519 public key must be 32 bytes")
	}
	if len(sig) != ed25519.SignatureSize {
		return errors.MalformedInput("ed25519 signature must be 64 bytes")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), digest, sig) {
		return errors.SignatureMismatch("ed25519 verification failed")
	}
	return nil
}
