// Package kms implements the key store adapter on HashiCorp Vault's KV version 2
// secrets engine.
package kms

import (
	"context"
	"encoding/base64"
	stderrors "errors"
	"path"
	"time"

	vault "github.com/hashicorp/vault/api"

	"github.com/turtacn/credcore/internal/config"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/infrastructure/keystore"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// NewVaultClient creates a Vault API client from configuration.
func NewVaultClient(cfg config.VaultConfig) (*vault.Client, error) {
	vc := vault.DefaultConfig()
	vc.Address = cfg.Address
	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, errors.InvalidConfig("failed to create vault client").WithCause(err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}
	return client, nil
}

// VaultKeyStore stores each key pair as one KV v2 secret under
// <mount>/data/<prefix>/<namespace>/<keyID>. Every Put is a single secret write.
type VaultKeyStore struct {
	kv     *vault.KVv2
	prefix string
	logger logger.Logger
}

// NewVaultKeyStore creates a new VaultKeyStore.
func NewVaultKeyStore(cfg config.VaultConfig, client *vault.Client, log logger.Logger) *VaultKeyStore {
	mount := cfg.MountPath
	if mount == "" {
		mount = constants.DefaultVaultMountPath
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = constants.DefaultVaultKeyPrefix
	}
	return &VaultKeyStore{
		kv:     client.KVv2(mount),
		prefix: prefix,
		logger: log.WithComponent("VaultKeyStore"),
	}
}

// secretPath maps a storage key onto its KV path. The key is checked first because
// path.Join would otherwise clean ".." segments into another namespace.
func (s *VaultKeyStore) secretPath(storageKey string) (string, error) {
	if err := keystore.CheckStorageKey(storageKey); err != nil {
		return "", err
	}
	return path.Join(s.prefix, storageKey), nil
}

// Get implements service.KeyStore.
func (s *VaultKeyStore) Get(ctx context.Context, storageKey string) (*models.KeyPair, error) {
	p, err := s.secretPath(storageKey)
	if err != nil {
		return nil, err
	}
	secret, err := s.kv.Get(ctx, p)
	if stderrors.Is(err, vault.ErrSecretNotFound) {
		return nil, errors.KeyNotFound(storageKey)
	}
	if err != nil {
		s.logger.Error(ctx, "failed to read key pair from Vault", err, logger.String("storage_key", storageKey))
		return nil, errors.Internal("vault read failed", err)
	}
	kp, err := decodeSecret(secret.Data)
	if err != nil {
		return nil, errors.CorruptKeyMaterial(storageKey, err.Error())
	}
	return kp, nil
}

// Put implements service.KeyStore.
func (s *VaultKeyStore) Put(ctx context.Context, storageKey string, keyPair *models.KeyPair) error {
	if keyPair == nil {
		return errors.MalformedInput("nil key pair")
	}
	p, err := s.secretPath(storageKey)
	if err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, p, encodeSecret(keyPair)); err != nil {
		s.logger.Error(ctx, "failed to write key pair to Vault", err, logger.String("storage_key", storageKey))
		return errors.Internal("vault write failed", err)
	}
	return nil
}

// Delete removes every version of the secret.
func (s *VaultKeyStore) Delete(ctx context.Context, storageKey string) error {
	p, err := s.secretPath(storageKey)
	if err != nil {
		return err
	}
	if _, err := s.kv.Get(ctx, p); err != nil {
		if stderrors.Is(err, vault.ErrSecretNotFound) {
			return errors.KeyNotFound(storageKey)
		}
		return errors.Internal("vault read failed", err)
	}
	if err := s.kv.DeleteMetadata(ctx, p); err != nil {
		return errors.Internal("vault delete failed", err)
	}
	return nil
}

func encodeSecret(kp *models.KeyPair) map[string]interface{} {
	return map[string]interface{}{
		"key_id":      kp.ID,
		"algorithm":   string(kp.Algorithm),
		"public_key":  base64.StdEncoding.EncodeToString(kp.PublicKey),
		"private_key": base64.StdEncoding.EncodeToString(kp.PrivateKey),
		"state":       string(kp.State),
		"created_at":  kp.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeSecret(data map[string]interface{}) (*models.KeyPair, error) {
	str := func(k string) (string, error) {
		v, ok := data[k].(string)
		if !ok {
			return "", stderrors.New(k + " missing or not a string in vault secret")
		}
		return v, nil
	}
	fields := make(map[string]string, 6)
	for _, k := range []string{"key_id", "algorithm", "public_key", "private_key", "state", "created_at"} {
		v, err := str(k)
		if err != nil {
			return nil, err
		}
		fields[k] = v
	}
	pub, err := base64.StdEncoding.DecodeString(fields["public_key"])
	if err != nil {
		return nil, stderrors.New("public_key is not base64")
	}
	priv, err := base64.StdEncoding.DecodeString(fields["private_key"])
	if err != nil {
		return nil, stderrors.New("private_key is not base64")
	}
	created, err := time.Parse(time.RFC3339Nano, fields["created_at"])
	if err != nil {
		return nil, stderrors.New("created_at is not RFC 3339")
	}
	return &models.KeyPair{
		ID:         fields["key_id"],
		Algorithm:  constants.Algorithm(fields["algorithm"]),
		PublicKey:  pub,
		PrivateKey: priv,
		State:      models.KeyState(fields["state"]),
		CreatedAt:  created,
	}, nil
}
