// Package constants defines system-wide constants for the credcore service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Algorithm Constants
// ================================================================================

// Algorithm identifies a signature algorithm family.
type Algorithm string

const (
	// AlgorithmECDSA represents NIST-curve ECDSA (P-256, P-384, P-521 selected by key size)
	AlgorithmECDSA Algorithm = "ECDSA"

	// AlgorithmEd25519 represents the Ed25519 Edwards-curve signature scheme
	AlgorithmEd25519 Algorithm = "Ed25519"

	// AlgorithmSecp256k1 represents ECDSA over the secp256k1 Koblitz curve
	AlgorithmSecp256k1 Algorithm = "secp256k1"
)

// HashAlgorithm identifies a digest function.
type HashAlgorithm string

const (
	// HashSHA256 represents SHA-256 (32-byte digest)
	HashSHA256 HashAlgorithm = "SHA256"

	// HashSHA512 represents SHA-512 (64-byte digest)
	HashSHA512 HashAlgorithm = "SHA512"
)

// ================================================================================
// Key Derivation Constants
// ================================================================================

const (
	// PBKDF2IterationFloor is the lowest iteration count any deployment may configure
	PBKDF2IterationFloor = 10000

	// MinSaltLength is the minimum salt size (in bytes) accepted by the derivation unit
	MinSaltLength = 16

	// SealingKeyInfo is the HKDF info label for the at-rest sealing key
	SealingKeyInfo = "credcore/keystore/sealing/v1"

	// RecoverySaltPrefix prefixes the per-namespace PBKDF2 salt for recovery identities
	RecoverySaltPrefix = "credcore/recovery/v1/"

	// RecoveryKeyInfo is the HKDF info label for recovery key pair derivation
	RecoveryKeyInfo = "credcore/recovery/keypair/v1"

	// RecoveryEntropyBits is the mnemonic entropy size for recoverable identities
	RecoveryEntropyBits = 256
)

// ================================================================================
// Key Store Constants
// ================================================================================

const (
	// StorageKeySeparator joins a storage namespace and a key id
	StorageKeySeparator = "/"

	// RedisKeyPrefix prefixes every key-pair entry written to Redis
	RedisKeyPrefix = "credcore:keys:"

	// RateLimitKeyPrefix prefixes the Redis token buckets of the signing limit
	RateLimitKeyPrefix = "credcore:ratelimit:"

	// DefaultVaultMountPath is the KV v2 mount used when none is configured
	DefaultVaultMountPath = "secret"

	// DefaultVaultKeyPrefix is the path prefix under the KV mount for key pairs
	DefaultVaultKeyPrefix = "credcore/keys"

	// RecoveryKeyIDPrefix prefixes key ids derived from recovery mnemonics
	RecoveryKeyIDPrefix = "rec-"

	// PublicKeyCacheTTL is the lifetime of cached public keys in the identity service
	PublicKeyCacheTTL = 10 * time.Minute

	// PublicKeyCacheCleanup is the eviction interval of the public key cache
	PublicKeyCacheCleanup = 20 * time.Minute

	// MaxTokenTTLSeconds bounds the lifetime a caller may request for a credential token (30 days)
	MaxTokenTTLSeconds = 30 * 24 * 60 * 60

	// RateLimitIdleTTL is how long an unused in-process rate limit bucket is kept
	RateLimitIdleTTL = 10 * time.Minute
)

// ================================================================================
// Audit Event Constants
// ================================================================================

// AuditEventType represents the type of audit event
type AuditEventType string

const (
	AuditEventAppRegistered     AuditEventType = "app.registered"
	AuditEventIdentityCreated   AuditEventType = "identity.created"
	AuditEventIdentityRecovered AuditEventType = "identity.recovered"
	AuditEventIdentityRevoked   AuditEventType = "identity.revoked"
	AuditEventIdentityDeleted   AuditEventType = "identity.deleted"
	AuditEventCredentialSigned  AuditEventType = "credential.signed"
	AuditEventTokenIssued       AuditEventType = "credential.token_issued"
)

const (
	// AuditResultSuccess marks a completed operation
	AuditResultSuccess = "success"

	// AuditResultFailure marks a failed operation
	AuditResultFailure = "failure"
)

// ================================================================================
// Logging Constants
// ================================================================================

// LogLevel represents the severity of a log entry
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelFatal
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type for values stored in context.Context by this service
type ContextKey string

const (
	// ContextKeyRequestID carries the per-request correlation id
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyAppID carries the calling application id
	ContextKeyAppID ContextKey = "app_id"
)

// ================================================================================
// HTTP Constants
// ================================================================================

const (
	// HeaderRequestID is the header used to propagate request ids
	HeaderRequestID = "X-Request-ID"

	// APIVersionPrefix is the prefix of all versioned routes
	APIVersionPrefix = "/api/v1"

	// ServiceName is used for tracing and metrics namespaces
	ServiceName = "credcore"
)
