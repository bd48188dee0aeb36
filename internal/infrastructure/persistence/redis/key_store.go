package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/errors"
)

// KeyStore persists key pairs as JSON values. Each Put is a single SET, so readers
// see either the previous or the new record.
type KeyStore struct {
	conn   *RedisConnection
	prefix string
}

// NewKeyStore creates a Redis-backed key store. prefix is prepended to every storage key.
func NewKeyStore(conn *RedisConnection, prefix string) *KeyStore {
	return &KeyStore{conn: conn, prefix: prefix}
}

func (s *KeyStore) redisKey(storageKey string) string {
	return s.prefix + storageKey
}

// Get implements service.KeyStore.
func (s *KeyStore) Get(ctx context.Context, storageKey string) (*models.KeyPair, error) {
	data, err := s.conn.GetClient().Get(ctx, s.redisKey(storageKey)).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return nil, errors.KeyNotFound(storageKey)
	}
	if err != nil {
		return nil, errors.Internal("redis get failed", err)
	}
	var kp models.KeyPair
	if err := json.Unmarshal(data, &kp); err != nil {
		return nil, errors.CorruptKeyMaterial(storageKey, "stored record is not valid JSON")
	}
	return &kp, nil
}

// Put implements service.KeyStore.
func (s *KeyStore) Put(ctx context.Context, storageKey string, keyPair *models.KeyPair) error {
	if keyPair == nil {
		return errors.MalformedInput("nil key pair")
	}
	data, err := json.Marshal(keyPair)
	if err != nil {
		return errors.Internal("failed to encode key pair", err)
	}
	if err := s.conn.GetClient().Set(ctx, s.redisKey(storageKey), data, 0).Err(); err != nil {
		return errors.Internal("redis set failed", err)
	}
	return nil
}

// Delete implements service.KeyStore.
func (s *KeyStore) Delete(ctx context.Context, storageKey string) error {
	n, err := s.conn.GetClient().Del(ctx, s.redisKey(storageKey)).Result()
	if err != nil {
		return errors.Internal("redis del failed", err)
	}
	if n == 0 {
		return errors.KeyNotFound(storageKey)
	}
	return nil
}
