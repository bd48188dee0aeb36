package keystore_test

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/kdf"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/primitive"
	"github.com/turtacn/credcore/internal/infrastructure/keystore"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

func testKeyPair(id string) *models.KeyPair {
	return &models.KeyPair{
		ID:         id,
		Algorithm:  constants.AlgorithmEd25519,
		PublicKey:  bytes.Repeat([]byte{0xAA}, 32),
		PrivateKey: bytes.Repeat([]byte{0x55}, 32),
		State:      models.KeyStateActive,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestStorageKey(t *testing.T) {
	k, err := keystore.StorageKey("ns-a", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "ns-a/key-1", k)

	ns, id, ok := keystore.SplitStorageKey(k)
	require.True(t, ok)
	assert.Equal(t, "ns-a", ns)
	assert.Equal(t, "key-1", id)

	_, err = keystore.StorageKey("", "key-1")
	assert.ErrorIs(t, err, errors.ErrMalformedInput)
	_, err = keystore.StorageKey("a/b", "key-1")
	assert.ErrorIs(t, err, errors.ErrMalformedInput)
	_, err = keystore.StorageKey("ns", "")
	assert.ErrorIs(t, err, errors.ErrMalformedInput)

	_, _, ok = keystore.SplitStorageKey("no-separator")
	assert.False(t, ok)
}

func TestStorageKey_RejectsPathSegments(t *testing.T) {
	for _, id := range []string{".", "..", "../ns-b/k", "a/b", `a\b`, "k\n", "k\x7f"} {
		_, err := keystore.StorageKey("ns-a", id)
		assert.ErrorIs(t, err, errors.ErrMalformedInput, "key id %q", id)
	}
	for _, ns := range []string{".", "..", `a\b`} {
		_, err := keystore.StorageKey(ns, "k")
		assert.ErrorIs(t, err, errors.ErrMalformedInput, "namespace %q", ns)
	}

	_, err := keystore.StorageKey("ns-a", "rec-0f.key_1")
	assert.NoError(t, err)

	assert.NoError(t, keystore.CheckStorageKey("ns-a/k"))
	assert.ErrorIs(t, keystore.CheckStorageKey("ns-a/../ns-b/k"), errors.ErrMalformedInput)
	assert.ErrorIs(t, keystore.CheckStorageKey("ns-a/.."), errors.ErrMalformedInput)
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := keystore.NewMemoryStore()

	_, err := s.Get(ctx, "ns/missing")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)

	kp := testKeyPair("k1")
	require.NoError(t, s.Put(ctx, "ns/k1", kp))

	// Mutating the caller's copy must not leak into the store.
	kp.Wipe()
	got, err := s.Get(ctx, "ns/k1")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x55}, 32), got.PrivateKey)

	require.NoError(t, s.Delete(ctx, "ns/k1"))
	assert.ErrorIs(t, s.Delete(ctx, "ns/k1"), errors.ErrKeyNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStore_NamespacesAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := keystore.NewMemoryStore()
	require.NoError(t, s.Put(ctx, "ns-a/k", testKeyPair("k")))

	_, err := s.Get(ctx, "ns-b/k")
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, keystore.NewMemoryStore().Put(ctx, "ns/k", testKeyPair("k")), context.Canceled)
}

func TestKeyedMutex_ExclusivePerKey(t *testing.T) {
	m := keystore.NewKeyedMutex()
	var inside, maxInside int32

	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			unlock, err := m.Lock(ctx, "ns/k")
			if err != nil {
				return err
			}
			defer unlock()
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), maxInside)
	assert.Equal(t, 0, m.Len())
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	m := keystore.NewKeyedMutex()
	unlockA, err := m.Lock(context.Background(), "ns/a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := m.Lock(ctx, "ns/b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_WaitHonoursContext(t *testing.T) {
	m := keystore.NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "ns/k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "ns/k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Equal(t, 0, m.Len())
}

func newSealed(t *testing.T, inner *keystore.MemoryStore, secret []byte) *keystore.SealedStore {
	t.Helper()
	d, err := kdf.NewDeriver(constants.PBKDF2IterationFloor)
	require.NoError(t, err)
	s, err := keystore.NewSealedStore(inner, secret, d, primitive.NewProvider())
	require.NoError(t, err)
	return s
}

func TestSealedStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	inner := keystore.NewMemoryStore()
	s := newSealed(t, inner, bytes.Repeat([]byte{1}, 32))

	kp := testKeyPair("k1")
	require.NoError(t, s.Put(ctx, "ns/k1", kp))

	raw, err := inner.Get(ctx, "ns/k1")
	require.NoError(t, err)
	assert.NotEqual(t, kp.PrivateKey, raw.PrivateKey)
	assert.Equal(t, kp.PublicKey, raw.PublicKey)

	got, err := s.Get(ctx, "ns/k1")
	require.NoError(t, err)
	assert.Equal(t, kp.PrivateKey, got.PrivateKey)
	assert.Equal(t, kp.State, got.State)
}

func TestSealedStore_BindsStorageKey(t *testing.T) {
	ctx := context.Background()
	inner := keystore.NewMemoryStore()
	s := newSealed(t, inner, bytes.Repeat([]byte{1}, 32))
	require.NoError(t, s.Put(ctx, "ns-a/k", testKeyPair("k")))

	// Copy the sealed record to another namespace.
	raw, err := inner.Get(ctx, "ns-a/k")
	require.NoError(t, err)
	require.NoError(t, inner.Put(ctx, "ns-b/k", raw))

	_, err = s.Get(ctx, "ns-b/k")
	assert.ErrorIs(t, err, errors.ErrCorruptKeyMaterial)
}

func TestSealedStore_WrongSecret(t *testing.T) {
	ctx := context.Background()
	inner := keystore.NewMemoryStore()
	require.NoError(t, newSealed(t, inner, bytes.Repeat([]byte{1}, 32)).Put(ctx, "ns/k", testKeyPair("k")))

	_, err := newSealed(t, inner, bytes.Repeat([]byte{2}, 32)).Get(ctx, "ns/k")
	assert.ErrorIs(t, err, errors.ErrCorruptKeyMaterial)
}

func TestSealedStore_Truncated(t *testing.T) {
	ctx := context.Background()
	inner := keystore.NewMemoryStore()
	kp := testKeyPair("k")
	kp.PrivateKey = []byte{1, 2, 3}
	require.NoError(t, inner.Put(ctx, "ns/k", kp))

	_, err := newSealed(t, inner, bytes.Repeat([]byte{1}, 32)).Get(ctx, "ns/k")
	assert.ErrorIs(t, err, errors.ErrCorruptKeyMaterial)
}

func TestSealedStore_ShortSecret(t *testing.T) {
	d, err := kdf.NewDeriver(constants.PBKDF2IterationFloor)
	require.NoError(t, err)
	_, err = keystore.NewSealedStore(keystore.NewMemoryStore(), []byte("short"), d, primitive.NewProvider())
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

type recordingMetrics struct {
	mu  sync.Mutex
	ops []string
}

func (r *recordingMetrics) RecordKeyGeneration(string, bool, time.Duration) {}
func (r *recordingMetrics) RecordSign(string, bool, time.Duration, string) {}
func (r *recordingMetrics) RecordVerify(string, bool) {}
func (r *recordingMetrics) RecordAppRegistration(bool, string) {}
func (r *recordingMetrics) RecordRateLimitHit(string, string) {}
func (r *recordingMetrics) RecordCacheAccess(string, bool) {}
func (r *recordingMetrics) RecordKeyStoreOp(backend, op string, _ time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := "ok"
	if err != nil {
		result = string(errors.CodeOf(err))
	}
	r.ops = append(r.ops, backend+":"+op+":"+result)
}

func TestInstrumentedStore(t *testing.T) {
	ctx := context.Background()
	m := &recordingMetrics{}
	s := keystore.NewInstrumentedStore(keystore.NewMemoryStore(), "memory", m)

	require.NoError(t, s.Put(ctx, "ns/k", testKeyPair("k")))
	_, err := s.Get(ctx, "ns/k")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Delete(ctx, "ns/other"), errors.ErrKeyNotFound)

	assert.Equal(t, []string{"memory:put:ok", "memory:get:ok", "memory:delete:key_not_found"}, m.ops)
}
