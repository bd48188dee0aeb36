package signature

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"io"
	"math/big"

	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// ecdsaScheme covers the NIST curves. Private keys are SEC 1 DER, public keys PKIX
// DER and signatures ASN.1 DER.
type ecdsaScheme struct{}

func curveForSize(keySize int) (elliptic.Curve, error) {
	switch keySize {
	case 256:
		return elliptic.P256(), nil
	case 384:
		return elliptic.P384(), nil
	case 521:
		return elliptic.P521(), nil
	default:
		return nil, errors.UnsupportedKeySize(string(constants.AlgorithmECDSA), keySize)
	}
}

func encodeECDSA(key *ecdsa.PrivateKey) ([]byte, []byte, error) {
	priv, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, nil, errors.Internal("failed to encode ecdsa private key", err)
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, nil, errors.Internal("failed to encode ecdsa public key", err)
	}
	return priv, pub, nil
}

func (ecdsaScheme) generate(rand io.Reader, keySize int) ([]byte, []byte, error) {
	curve, err := curveForSize(keySize)
	if err != nil {
		return nil, nil, err
	}
	key, err := ecdsa.GenerateKey(curve, rand)
	if err != nil {
		if errors.HasCode(err, errors.CodeInsufficientEntropy) {
			return nil, nil, err
		}
		return nil, nil, errors.InsufficientEntropy((keySize+7)/8, err)
	}
	return encodeECDSA(key)
}

// derive rejection-samples a scalar in [1, n-1] from the material stream, masking the
// excess high bits of the first byte so P-521 draws are not almost always rejected.
func (ecdsaScheme) derive(material materialFunc, keySize int) ([]byte, []byte, error) {
	curve, err := curveForSize(keySize)
	if err != nil {
		return nil, nil, err
	}
	params := curve.Params()
	byteLen := (params.BitSize + 7) / 8
	excess := uint(byteLen*8 - params.BitSize)

	for i := 0; i < maxResample; i++ {
		b, err := material(byte(i), byteLen)
		if err != nil {
			return nil, nil, err
		}
		b[0] &= 0xFF >> excess
		d := new(big.Int).SetBytes(b)
		wipe(b)
		if d.Sign() == 0 || d.Cmp(params.N) >= 0 {
			continue
		}
		key := &ecdsa.PrivateKey{PublicKey: ecdsa.PublicKey{Curve: curve}, D: d}
		key.PublicKey.X, key.PublicKey.Y = curve.ScalarBaseMult(d.FillBytes(make([]byte, byteLen)))
		return encodeECDSA(key)
	}
	return nil, nil, errors.Internal("ecdsa derivation exhausted resampling", nil)
}

func parseECDSAPrivate(priv []byte) (*ecdsa.PrivateKey, error) {
	key, err := x509.ParseECPrivateKey(priv)
	if err != nil {
		return nil, errors.MalformedInput("ecdsa private key: " + err.Error())
	}
	return key, nil
}

func (ecdsaScheme) publicKey(priv []byte) ([]byte, error) {
	key, err := parseECDSAPrivate(priv)
	if err != nil {
		return nil, err
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, errors.Internal("failed to encode ecdsa public key", err)
	}
	return pub, nil
}

func (ecdsaScheme) sign(rand io.Reader, priv, digest []byte) ([]byte, error) {
	key, err := parseECDSAPrivate(priv)
	if err != nil {
		return nil, err
	}
	sig, err := ecdsa.SignASN1(rand, key, digest)
	if err != nil {
		return nil, errors.InsufficientEntropy(0, err)
	}
	return sig, nil
}

func (ecdsaScheme) verify(pub, digest, sig []byte) error {
	parsed, err := x509.ParsePKIXPublicKey(pub)
	if err != nil {
		return errors.MalformedInput("ecdsa public key: " + err.Error())
	}
	key, ok := parsed.(*ecdsa.PublicKey)
	if !ok {
		return errors.MalformedInput("public key is not an ecdsa key")
	}
	if len(sig) == 0 {
		return errors.MalformedInput("empty ecdsa signature")
	}
	if !ecdsa.VerifyASN1(key, digest, sig) {
		return errors.SignatureMismatch("ecdsa verification failed")
	}
	return nil
}
