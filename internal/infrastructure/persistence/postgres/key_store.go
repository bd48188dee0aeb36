package postgres

import (
	"context"
	stderrors "errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

// KeyRecord is the row form of a key pair.
type KeyRecord struct {
	StorageKey string    `gorm:"primaryKey;size:512"`
	KeyID      string    `gorm:"size:255;not null"`
	Algorithm  string    `gorm:"size:32;not null"`
	PublicKey  []byte    `gorm:"not null"`
	PrivateKey []byte
	State      string    `gorm:"size:32;not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time
}

// TableName overrides the GORM default.
func (KeyRecord) TableName() string {
	return "key_pairs"
}

func toRecord(storageKey string, kp *models.KeyPair) *KeyRecord {
	return &KeyRecord{
		StorageKey: storageKey,
		KeyID:      kp.ID,
		Algorithm:  string(kp.Algorithm),
		PublicKey:  kp.PublicKey,
		PrivateKey: kp.PrivateKey,
		State:      string(kp.State),
		CreatedAt:  kp.CreatedAt,
	}
}

func (r *KeyRecord) toModel() *models.KeyPair {
	return &models.KeyPair{
		ID:         r.KeyID,
		Algorithm:  constants.Algorithm(r.Algorithm),
		PublicKey:  r.PublicKey,
		PrivateKey: r.PrivateKey,
		State:      models.KeyState(r.State),
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

// KeyStore is the GORM implementation of service.KeyStore. Put is a single upsert.
type KeyStore struct {
	db *gorm.DB
}

// NewKeyStore creates a new KeyStore.
func NewKeyStore(db *gorm.DB) *KeyStore {
	return &KeyStore{db: db}
}

// Get implements service.KeyStore.
func (s *KeyStore) Get(ctx context.Context, storageKey string) (*models.KeyPair, error) {
	var rec KeyRecord
	err := s.db.WithContext(ctx).Where("storage_key = ?", storageKey).First(&rec).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.KeyNotFound(storageKey)
	}
	if err != nil {
		return nil, errors.Internal("failed to read key pair", err)
	}
	return rec.toModel(), nil
}

// Put implements service.KeyStore.
func (s *KeyStore) Put(ctx context.Context, storageKey string, keyPair *models.KeyPair) error {
	if keyPair == nil {
		return errors.MalformedInput("nil key pair")
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "storage_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"key_id", "algorithm", "public_key", "private_key", "state", "updated_at"}),
		}).
		Create(toRecord(storageKey, keyPair)).Error
	if err != nil {
		return errors.Internal("failed to write key pair", err)
	}
	return nil
}

// Delete implements service.KeyStore.
func (s *KeyStore) Delete(ctx context.Context, storageKey string) error {
	res := s.db.WithContext(ctx).Where("storage_key = ?", storageKey).Delete(&KeyRecord{})
	if res.Error != nil {
		return errors.Internal("failed to delete key pair", res.Error)
	}
	if res.RowsAffected == 0 {
		return errors.KeyNotFound(storageKey)
	}
	return nil
}
