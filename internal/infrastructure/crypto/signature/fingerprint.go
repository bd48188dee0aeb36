package signature

import (
	"github.com/mr-tron/base58/base58"
	"github.com/zeebo/blake3"
)

// fingerprintSize is the number of BLAKE3 output bytes kept in a fingerprint.
const fingerprintSize = 20

// Fingerprint returns a short, stable, human-comparable identifier for an encoded
// public key: base58 of the first 20 bytes of its BLAKE3-256 hash.
// Fingerprint 返回公钥的简短稳定标识。
func Fingerprint(publicKey []byte) string {
	sum := blake3.Sum256(publicKey)
	return base58.Encode(sum[:fingerprintSize])
}
