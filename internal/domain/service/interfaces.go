package service

import (
	"context"

	"github.com/turtacn/credcore/internal/domain/models"
)

//go:generate mockery --name KeyStore --output mocks --outpkg mocks
// KeyStore is the Key Store Adapter boundary: persistence for key material addressed
// by a namespace-qualified storage key. Implementations must make Put atomic so a
// reader never observes a partially written key pair.
// KeyStore 是密钥存储适配器边界：按命名空间限定的存储键持久化密钥材料。
type KeyStore interface {
	// Get returns the key pair stored under storageKey, or an error matching errors.ErrKeyNotFound.
	// Get 返回存储在 storageKey 下的密钥对。
	Get(ctx context.Context, storageKey string) (*models.KeyPair, error)

	// Put stores (or replaces) the key pair under storageKey.
	// Put 在 storageKey 下存储（或替换）密钥对。
	Put(ctx context.Context, storageKey string, keyPair *models.KeyPair) error

	// Delete removes the key pair; deleting an absent key returns errors.ErrKeyNotFound.
	// Delete 删除密钥对。
	Delete(ctx context.Context, storageKey string) error
}

//go:generate mockery --name AuditService --output mocks --outpkg mocks
// AuditService defines the interface for logging security-sensitive audit events.
// AuditService 定义了用于记录安全敏感审计事件的接口。
type AuditService interface {
	// LogEvent records an audit event.
	// LogEvent 记录审计事件。
	LogEvent(ctx context.Context, event models.AuditEvent) error
}
