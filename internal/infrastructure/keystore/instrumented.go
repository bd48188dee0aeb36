package keystore

import (
	"context"
	"time"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
)

// InstrumentedStore reports latency and errors of every call to the wrapped store.
type InstrumentedStore struct {
	inner   service.KeyStore
	backend string
	metrics service.Metrics
}

// NewInstrumentedStore wraps inner; backend labels the observations.
func NewInstrumentedStore(inner service.KeyStore, backend string, metrics service.Metrics) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, backend: backend, metrics: metrics}
}

func (s *InstrumentedStore) Get(ctx context.Context, storageKey string) (*models.KeyPair, error) {
	start := time.Now()
	kp, err := s.inner.Get(ctx, storageKey)
	s.metrics.RecordKeyStoreOp(s.backend, "get", time.Since(start), err)
	return kp, err
}

func (s *InstrumentedStore) Put(ctx context.Context, storageKey string, keyPair *models.KeyPair) error {
	start := time.Now()
	err := s.inner.Put(ctx, storageKey, keyPair)
	s.metrics.RecordKeyStoreOp(s.backend, "put", time.Since(start), err)
	return err
}

func (s *InstrumentedStore) Delete(ctx context.Context, storageKey string) error {
	start := time.Now()
	err := s.inner.Delete(ctx, storageKey)
	s.metrics.RecordKeyStoreOp(s.backend, "delete", time.Since(start), err)
	return err
}
