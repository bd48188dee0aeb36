package primitive_test

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"math/bits"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/primitive"
	"github.com/turtacn/credcore/pkg/constants"
	credErrors "github.com/turtacn/credcore/pkg/errors"
)

func TestHash_KnownVectors(t *testing.T) {
	digest, err := primitive.Hash(constants.HashSHA256, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", hex.EncodeToString(digest))

	digest, err = primitive.Hash(constants.HashSHA512, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t,
		"ddaf35a193617abacc417349ae20413112e6fa4e89a97ea20a9eeee64b55d39a2192992a274fc1a836ba3c23a3feebbd454d4423643ce80e2a9ac94fa54ca49f",
		hex.EncodeToString(digest))
}

func TestHash_Deterministic(t *testing.T) {
	input := []byte("credential payload")
	for _, alg := range []constants.HashAlgorithm{constants.HashSHA256, constants.HashSHA512} {
		first, err := primitive.Hash(alg, input)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := primitive.Hash(alg, input)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	}
}

func TestHash_Avalanche(t *testing.T) {
	// Flipping one input byte should flip roughly half the output bits on average.
	for _, alg := range []constants.HashAlgorithm{constants.HashSHA256, constants.HashSHA512} {
		base := bytes.Repeat([]byte{0x5a}, 64)
		baseDigest, err := primitive.Hash(alg, base)
		require.NoError(t, err)

		totalBits := 0
		flipped := 0
		for i := range base {
			mutated := append([]byte(nil), base...)
			mutated[i] ^= 0x01
			d, err := primitive.Hash(alg, mutated)
			require.NoError(t, err)
			assert.NotEqual(t, baseDigest, d)
			for j := range d {
				flipped += bits.OnesCount8(d[j] ^ baseDigest[j])
			}
			totalBits += len(d) * 8
		}
		ratio := float64(flipped) / float64(totalBits)
		assert.InDelta(t, 0.5, ratio, 0.05, "alg %s", alg)
	}
}

func TestHash_Unsupported(t *testing.T) {
	_, err := primitive.Hash("MD5", []byte("x"))
	assert.ErrorIs(t, err, credErrors.ErrUnsupportedAlgorithm)

	_, err = primitive.HashFunc("SHA1")
	assert.ErrorIs(t, err, credErrors.ErrUnsupportedAlgorithm)
}

func TestRandomBytes_LengthAndUniqueness(t *testing.T) {
	p := primitive.NewProvider()

	a, err := p.RandomBytes(32)
	require.NoError(t, err)
	b, err := p.RandomBytes(32)
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.Len(t, b, 32)
	assert.NotEqual(t, a, b)

	empty, err := p.RandomBytes(0)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRandomBytes_NegativeLength(t *testing.T) {
	_, err := primitive.NewProvider().RandomBytes(-1)
	assert.ErrorIs(t, err, credErrors.ErrInvalidLength)
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestRandomBytes_FailingSource(t *testing.T) {
	p := primitive.NewProviderWithReader(failingReader{err: errors.New("device unavailable")})

	out, err := p.RandomBytes(32)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, credErrors.ErrInsufficientEntropy)
}

func TestRandomBytes_ShortSource(t *testing.T) {
	p := primitive.NewProviderWithReader(io.LimitReader(bytes.NewReader(bytes.Repeat([]byte{1}, 64)), 16))

	_, err := p.RandomBytes(32)
	assert.ErrorIs(t, err, credErrors.ErrInsufficientEntropy)
}

func TestRandomBytes_ConcurrentCallers(t *testing.T) {
	p := primitive.NewProvider()
	seen := sync.Map{}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := p.RandomBytes(16)
			assert.NoError(t, err)
			_, dup := seen.LoadOrStore(hex.EncodeToString(b), struct{}{})
			assert.False(t, dup)
		}()
	}
	wg.Wait()
}
