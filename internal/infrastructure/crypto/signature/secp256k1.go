package signature

import (
	"io"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	secpecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// secp256k1Scheme stores a 32-byte big-endian scalar and a 33-byte compressed public
// key. Signatures are DER encoded with RFC 6979 nonces.
type secp256k1Scheme struct{}

const secp256k1ScalarSize = 32

// scalarFrom accepts b only if it encodes a value in [1, n-1].
func scalarFrom(b []byte) (*secp256k1.PrivateKey, bool) {
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(b); overflow || s.IsZero() {
		s.Zero()
		return nil, false
	}
	return secp256k1.NewPrivateKey(&s), true
}

func secp256k1Keys(key *secp256k1.PrivateKey) ([]byte, []byte) {
	return key.Serialize(), key.PubKey().SerializeCompressed()
}

func (secp256k1Scheme) generate(rand io.Reader, keySize int) ([]byte, []byte, error) {
	if keySize != 256 {
		return nil, nil, errors.UnsupportedKeySize(string(constants.AlgorithmSecp256k1), keySize)
	}
	for i := 0; i < maxResample; i++ {
		b, err := readRandom(rand, secp256k1ScalarSize)
		if err != nil {
			return nil, nil, err
		}
		key, ok := scalarFrom(b)
		wipe(b)
		if !ok {
			continue
		}
		priv, pub := secp256k1Keys(key)
		key.Zero()
		return priv, pub, nil
	}
	return nil, nil, errors.InsufficientEntropy(secp256k1ScalarSize, nil)
}

func (secp256k1Scheme) derive(material materialFunc, keySize int) ([]byte, []byte, error) {
	if keySize != 256 {
		return nil, nil, errors.UnsupportedKeySize(string(constants.AlgorithmSecp256k1), keySize)
	}
	for i := 0; i < maxResample; i++ {
		b, err := material(byte(i), secp256k1ScalarSize)
		if err != nil {
			return nil, nil, err
		}
		key, ok := scalarFrom(b)
		wipe(b)
		if !ok {
			continue
		}
		priv, pub := secp256k1Keys(key)
		key.Zero()
		return priv, pub, nil
	}
	return nil, nil, errors.Internal("secp256k1 derivation exhausted resampling", nil)
}

func (secp256k1Scheme) publicKey(priv []byte) ([]byte, error) {
	if len(priv) != secp256k1ScalarSize {
		return nil, errors.MalformedInput("secp256k1 private key must be 32 bytes")
	}
	key, ok := scalarFrom(priv)
	if !ok {
		return nil, errors.MalformedInput("secp256k1 private key is out of range")
	}
	defer key.Zero()
	return key.PubKey().SerializeCompressed(), nil
}

func (s secp256k1Scheme) sign(_ io.Reader, priv, digest []byte) ([]byte, error) {
	if len(priv) != secp256k1ScalarSize {
		return nil, errors.MalformedInput("secp256k1 private key must be 32 bytes")
	}
	key, ok := scalarFrom(priv)
	if !ok {
		return nil, errors.MalformedInput("secp256k1 private key is out of range")
	}
	defer key.Zero()
	return secpecdsa.Sign(key, digest).Serialize(), nil
}

func (secp256k1Scheme) verify(pub, digest, sig []byte) error {
	key, err := secp256k1.ParsePubKey(pub)
	if err != nil {
		return errors.MalformedInput("secp256k1 public key: " + err.Error())
	}
	parsed, err := secpecdsa.ParseDERSignature(sig)
	if err != nil {
		return errors.MalformedInput("secp256k1 signature: " + err.Error())
	}
	if !parsed.Verify(digest, key) {
		return errors.SignatureMismatch("secp256k1 verification failed")
	}
	return nil
}
