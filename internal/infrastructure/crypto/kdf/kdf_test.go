package kdf_test

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/kdf"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

func newDeriver(t *testing.T) *kdf.Deriver {
	t.Helper()
	d, err := kdf.NewDeriver(constants.PBKDF2IterationFloor)
	require.NoError(t, err)
	return d
}

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestHKDF_RFC5869Case1(t *testing.T) {
	d := newDeriver(t)
	ikm := mustHex(t, "0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b0b")
	salt := mustHex(t, "000102030405060708090a0b0c")
	info := mustHex(t, "f0f1f2f3f4f5f6f7f8f9")

	dk, err := d.HKDF(ikm, salt, info, 42)
	require.NoError(t, err)
	assert.Equal(t,
		"3cb25f25faacd57a90434f64d0362f2a2d2d0a90cf1a5a4c5db02d56ecc4c5bf34007208d5b887185865",
		hex.EncodeToString(dk.KeyMaterial))
	assert.Equal(t, 42, dk.Length)
	assert.Equal(t, kdf.FunctionHKDF, dk.Params.Function)
	assert.Equal(t, constants.HashSHA256, dk.Params.Hash)
}

func TestHKDF_ExactLengthAndDeterminism(t *testing.T) {
	d := newDeriver(t)
	for _, length := range []int{1, 16, 32, 64, 255 * 32} {
		a, err := d.HKDF([]byte("ikm"), []byte("salt"), []byte("info"), length)
		require.NoError(t, err)
		b, err := d.HKDF([]byte("ikm"), []byte("salt"), []byte("info"), length)
		require.NoError(t, err)
		assert.Len(t, a.KeyMaterial, length)
		assert.Equal(t, a.KeyMaterial, b.KeyMaterial)
	}
}

func TestHKDF_InfoSeparatesOutputs(t *testing.T) {
	d := newDeriver(t)
	a, err := d.HKDF([]byte("ikm"), nil, []byte("signing"), 32)
	require.NoError(t, err)
	b, err := d.HKDF([]byte("ikm"), nil, []byte("encryption"), 32)
	require.NoError(t, err)
	assert.NotEqual(t, a.KeyMaterial, b.KeyMaterial)
}

func TestHKDF_LengthBounds(t *testing.T) {
	d := newDeriver(t)

	_, err := d.HKDF([]byte("ikm"), nil, nil, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidLength)

	_, err = d.HKDF([]byte("ikm"), nil, nil, 255*32+1)
	assert.ErrorIs(t, err, errors.ErrInvalidLength)

	dk, err := d.HKDFWithHash(constants.HashSHA512, []byte("ikm"), nil, nil, 255*64)
	require.NoError(t, err)
	assert.Len(t, dk.KeyMaterial, 255*64)

	_, err = d.HKDFWithHash(constants.HashSHA512, []byte("ikm"), nil, nil, 255*64+1)
	assert.ErrorIs(t, err, errors.ErrInvalidLength)
}

func TestHKDF_UnsupportedHash(t *testing.T) {
	_, err := newDeriver(t).HKDFWithHash("SHA3", []byte("ikm"), nil, nil, 32)
	assert.ErrorIs(t, err, errors.ErrUnsupportedAlgorithm)
}

func TestPBKDF2_RejectsWeakIterations(t *testing.T) {
	d := newDeriver(t)
	salt := []byte("0123456789abcdef")

	for _, iterations := range []int{0, 1, 1000, 9999} {
		dk, err := d.PBKDF2([]byte("password"), salt, iterations, 32)
		assert.Nil(t, dk)
		assert.ErrorIs(t, err, errors.ErrWeakParameters, "iterations=%d", iterations)
	}

	dk, err := d.PBKDF2([]byte("password"), salt, 10000, 32)
	require.NoError(t, err)
	assert.Len(t, dk.KeyMaterial, 32)
	assert.Equal(t, 10000, dk.Params.Iterations)
}

func TestPBKDF2_RejectsShortSalt(t *testing.T) {
	_, err := newDeriver(t).PBKDF2([]byte("password"), []byte("short"), 10000, 32)
	assert.ErrorIs(t, err, errors.ErrWeakParameters)
}

func TestPBKDF2_Deterministic(t *testing.T) {
	d := newDeriver(t)
	salt := []byte("0123456789abcdef")

	a, err := d.PBKDF2WithHash(constants.HashSHA512, []byte("pw"), salt, 10000, 48)
	require.NoError(t, err)
	b, err := d.PBKDF2WithHash(constants.HashSHA512, []byte("pw"), salt, 10000, 48)
	require.NoError(t, err)
	assert.Equal(t, a.KeyMaterial, b.KeyMaterial)

	c, err := d.PBKDF2WithHash(constants.HashSHA512, []byte("pw2"), salt, 10000, 48)
	require.NoError(t, err)
	assert.NotEqual(t, a.KeyMaterial, c.KeyMaterial)
}

func TestPBKDF2_LengthBounds(t *testing.T) {
	_, err := newDeriver(t).PBKDF2([]byte("pw"), []byte("0123456789abcdef"), 10000, 0)
	assert.ErrorIs(t, err, errors.ErrInvalidLength)
}

func TestNewDeriver_Floor(t *testing.T) {
	_, err := kdf.NewDeriver(5000)
	assert.ErrorIs(t, err, errors.ErrWeakParameters)

	d, err := kdf.NewDeriver(50000)
	require.NoError(t, err)
	assert.Equal(t, 50000, d.MinIterations())

	_, err = d.PBKDF2([]byte("pw"), []byte("0123456789abcdef"), 20000, 32)
	assert.ErrorIs(t, err, errors.ErrWeakParameters)
}

func TestDerivedKey_Wipe(t *testing.T) {
	dk, err := newDeriver(t).HKDF([]byte("ikm"), nil, nil, 32)
	require.NoError(t, err)
	dk.Wipe()
	assert.Equal(t, make([]byte, 32), dk.KeyMaterial)
}
