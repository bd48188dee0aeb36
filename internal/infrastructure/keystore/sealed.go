package keystore

import (
	"context"
	"crypto/cipher"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/kdf"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/primitive"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// MinMasterSecretLength is the smallest master secret accepted by NewSealedStore.
const MinMasterSecretLength = 32

// SealedStore encrypts private keys with XChaCha20-Poly1305 before handing them to
// the wrapped store. The sealing key is derived from a master secret with HKDF and
// the storage key is bound as associated data, so a ciphertext copied to another
// address fails to open.
type SealedStore struct {
	inner service.KeyStore
	aead  cipher.AEAD
	rand  *primitive.Provider
}

// NewSealedStore wraps inner. masterSecret must be at least MinMasterSecretLength bytes.
func NewSealedStore(inner service.KeyStore, masterSecret []byte, deriver *kdf.Deriver, rnd *primitive.Provider) (*SealedStore, error) {
	if len(masterSecret) < MinMasterSecretLength {
		return nil, errors.InvalidConfig("keystore master secret must be at least 32 bytes")
	}
	dk, err := deriver.HKDF(masterSecret, nil, []byte(constants.SealingKeyInfo), chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	defer dk.Wipe()

	aead, err := chacha20poly1305.NewX(dk.KeyMaterial)
	if err != nil {
		return nil, errors.Internal("failed to initialise sealing cipher", err)
	}
	return &SealedStore{inner: inner, aead: aead, rand: rnd}, nil
}

// Get opens the stored private key.
func (s *SealedStore) Get(ctx context.Context, storageKey string) (*models.KeyPair, error) {
	kp, err := s.inner.Get(ctx, storageKey)
	if err != nil {
		return nil, err
	}
	ns := s.aead.NonceSize()
	if len(kp.PrivateKey) < ns+s.aead.Overhead() {
		return nil, errors.CorruptKeyMaterial(storageKey, "sealed private key is truncated")
	}
	nonce, sealed := kp.PrivateKey[:ns], kp.PrivateKey[ns:]
	plain, err := s.aead.Open(nil, nonce, sealed, []byte(storageKey))
	if err != nil {
		return nil, errors.CorruptKeyMaterial(storageKey, "sealed private key failed authentication")
	}
	kp.Wipe()
	kp.PrivateKey = plain
	return kp, nil
}

// Put seals the private key and stores the result.
func (s *SealedStore) Put(ctx context.Context, storageKey string, keyPair *models.KeyPair) error {
	if keyPair == nil {
		return errors.MalformedInput("nil key pair")
	}
	nonce, err := s.rand.RandomBytes(s.aead.NonceSize())
	if err != nil {
		return err
	}
	sealed := *keyPair
	sealed.PublicKey = append([]byte(nil), keyPair.PublicKey...)
	sealed.PrivateKey = s.aead.Seal(nonce, nonce, keyPair.PrivateKey, []byte(storageKey))
	return s.inner.Put(ctx, storageKey, &sealed)
}

// Delete implements service.KeyStore.
func (s *SealedStore) Delete(ctx context.Context, storageKey string) error {
	return s.inner.Delete(ctx, storageKey)
}
