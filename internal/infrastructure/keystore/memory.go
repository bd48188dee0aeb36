package keystore

import (
	"context"
	"sync"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/errors"
)

// MemoryStore keeps key pairs in process memory. Values are cloned on the way in and
// out so callers can wipe their copies without affecting the store.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*models.KeyPair
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*models.KeyPair)}
}

// Get implements service.KeyStore.
func (s *MemoryStore) Get(ctx context.Context, storageKey string) (*models.KeyPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	kp, ok := s.keys[storageKey]
	if !ok {
		return nil, errors.KeyNotFound(storageKey)
	}
	return kp.Clone(), nil
}

// Put implements service.KeyStore.
func (s *MemoryStore) Put(ctx context.Context, storageKey string, keyPair *models.KeyPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if keyPair == nil {
		return errors.MalformedInput("nil key pair")
	}
	c := keyPair.Clone()
	s.mu.Lock()
	s.keys[storageKey] = c
	s.mu.Unlock()
	return nil
}

// Delete implements service.KeyStore.
func (s *MemoryStore) Delete(ctx context.Context, storageKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kp, ok := s.keys[storageKey]
	if !ok {
		return errors.KeyNotFound(storageKey)
	}
	kp.Wipe()
	delete(s.keys, storageKey)
	return nil
}

// Len returns the number of stored key pairs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
