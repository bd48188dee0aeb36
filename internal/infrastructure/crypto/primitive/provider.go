// Package primitive wraps the secure random source and the hash functions used by
// every other cryptographic component. Hashing is stateless; random generation
// serializes access to its reader because arbitrary readers are not required to be
// safe for concurrent use.
package primitive

import (
	"crypto/rand"
	"crypto/sha512"
	"hash"
	"io"
	"sync"

	sha256 "github.com/minio/sha256-simd"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// Provider supplies hashing and cryptographically secure random bytes.
type Provider struct {
	mu  sync.Mutex
	src io.Reader
}

// NewProvider creates a Provider reading from crypto/rand.
func NewProvider() *Provider {
	return &Provider{src: rand.Reader}
}

// NewProviderWithReader creates a Provider over an explicit entropy source. The
// reader must itself be cryptographically secure; it exists for HSM-backed sources
// and for tests that simulate a failing source.
func NewProviderWithReader(src io.Reader) *Provider {
	return &Provider{src: src}
}

// HashFunc returns the constructor for alg.
func HashFunc(alg constants.HashAlgorithm) (func() hash.Hash, error) {
	switch alg {
	case constants.HashSHA256:
		return sha256.New, nil
	case constants.HashSHA512:
		return sha512.New, nil
	default:
		return nil, errors.UnsupportedAlgorithm(string(alg))
	}
}

// DigestSize returns the output size of alg in bytes.
func DigestSize(alg constants.HashAlgorithm) (int, error) {
	switch alg {
	case constants.HashSHA256:
		return sha256.Size, nil
	case constants.HashSHA512:
		return sha512.Size, nil
	default:
		return 0, errors.UnsupportedAlgorithm(string(alg))
	}
}

// Hash returns the digest of data under alg.
func Hash(alg constants.HashAlgorithm, data []byte) ([]byte, error) {
	switch alg {
	case constants.HashSHA256:
		sum := sha256.Sum256(data)
		return sum[:], nil
	case constants.HashSHA512:
		sum := sha512.Sum512(data)
		return sum[:], nil
	default:
		return nil, errors.UnsupportedAlgorithm(string(alg))
	}
}

// Hash is the method form of the package-level Hash.
func (p *Provider) Hash(alg constants.HashAlgorithm, data []byte) ([]byte, error) {
	return Hash(alg, data)
}

// RandomBytes returns n bytes from the secure source. It never substitutes a weaker
// source: a short read or reader failure is reported as InsufficientEntropy.
func (p *Provider) RandomBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.InvalidLength(n, 0, int(^uint(0)>>1))
	}
	buf := make([]byte, n)
	if _, err := p.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Read fills b entirely from the secure source, making Provider usable wherever an
// io.Reader of randomness is expected (key generation, signing nonces).
func (p *Provider) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n, err := io.ReadFull(p.src, b)
	if err != nil {
		for i := range b {
			b[i] = 0
		}
		return 0, errors.InsufficientEntropy(len(b), err)
	}
	return n, nil
}
