// Package application provides the application-facing identity service consumed by
// client applications and by the HTTP transport.
package application

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/tyler-smith/go-bip39"

	"github.com/turtacn/credcore/internal/application/dto"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/jws"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/kdf"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/primitive"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/signature"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// DefaultTokenTTL is the lifetime of credential tokens issued without an explicit TTL.
const DefaultTokenTTL = time.Hour

// IdentityService is the application-facing API: applications register their
// CryptoConfig once, then create identities and sign credentials by app id only.
// Algorithm choice and storage isolation come from the registry, never from callers.
// IdentityService 是面向应用程序的 API：应用程序注册一次 CryptoConfig，之后仅通过应用 ID
// 创建身份和签署凭证。
type IdentityService struct {
	registry *service.ConfigRegistry
	engine   *signature.Engine
	deriver  *kdf.Deriver
	random   *primitive.Provider
	issuer   *jws.Issuer
	audit    service.AuditService
	metrics  service.Metrics
	logger   logger.Logger
	keys     *cache.Cache
	tokenTTL time.Duration
	// removals counts successful revocations and deletions. A public key loaded
	// while it moved is returned but not cached.
	removals atomic.Uint64
}

// Option configures an IdentityService.
type Option func(*IdentityService)

// WithAudit sets the audit sink.
func WithAudit(a service.AuditService) Option {
	return func(s *IdentityService) { s.audit = a }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m service.Metrics) Option {
	return func(s *IdentityService) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *IdentityService) { s.logger = l }
}

// WithTokenTTL sets the default credential token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(s *IdentityService) { s.tokenTTL = ttl }
}

// NewIdentityService creates the identity service.
// NewIdentityService 创建身份服务。
func NewIdentityService(registry *service.ConfigRegistry, engine *signature.Engine, deriver *kdf.Deriver, random *primitive.Provider, opts ...Option) *IdentityService {
	s := &IdentityService{
		registry: registry,
		engine:   engine,
		deriver:  deriver,
		random:   random,
		issuer:   jws.NewIssuer(engine, constants.ServiceName),
		metrics:  service.NoopMetrics{},
		logger:   logger.NewNoopLogger(),
		keys:     cache.New(constants.PublicKeyCacheTTL, constants.PublicKeyCacheCleanup),
		tokenTTL: DefaultTokenTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("identity_service")
	return s
}

// RegisterApp registers the configuration of a new appID. An application that is
// already registered keeps its configuration and the call fails with AppExists;
// changing the algorithm or namespace under existing keys would orphan them.
// RegisterApp 注册新应用的配置，已注册的应用不会被替换。
func (s *IdentityService) RegisterApp(ctx context.Context, appID string, cfg models.CryptoConfig) error {
	err := s.registry.Insert(appID, cfg)
	if err != nil {
		s.metrics.RecordAppRegistration(false, string(errors.CodeOf(err)))
		s.logger.Warn(ctx, "Application registration rejected",
			logger.String("app_id", appID),
			logger.String("error_code", string(errors.CodeOf(err))),
		)
		return err
	}
	s.metrics.RecordAppRegistration(true, "")
	ev := models.NewAuditEvent(appID, "", constants.AuditEventAppRegistered, constants.AuditResultSuccess)
	ev.Algorithm = cfg.Algorithm
	s.record(ctx, ev)
	s.logger.Info(ctx, "Application registered",
		logger.String("app_id", appID),
		logger.String("algorithm", string(cfg.Algorithm)),
		logger.String("namespace", cfg.StorageNamespace),
	)
	return nil
}

// Apps returns a sorted snapshot of the registered applications.
func (s *IdentityService) Apps() []service.AppRegistration {
	return s.registry.Apps()
}

// CreateIdentity generates and stores a new key pair for appID and returns its
// public view.
// CreateIdentity 为 appID 生成并存储新的密钥对，并返回其公开视图。
func (s *IdentityService) CreateIdentity(ctx context.Context, appID string) (*dto.Identity, error) {
	cfg, err := s.registry.Resolve(appID)
	if err != nil {
		return nil, err
	}
	keyID := uuid.NewString()
	kp, err := s.engine.CreateKeyPair(ctx, cfg, keyID)
	if err != nil {
		s.recordFailure(ctx, appID, keyID, constants.AuditEventIdentityCreated, err)
		return nil, err
	}
	ev := models.NewAuditEvent(appID, keyID, constants.AuditEventIdentityCreated, constants.AuditResultSuccess)
	ev.Algorithm = cfg.Algorithm
	s.record(ctx, ev)
	return toIdentity(appID, kp), nil
}

// CreateRecoverableIdentity creates an identity whose key pair is derived from a
// fresh BIP-39 mnemonic. The mnemonic is returned once and never stored; passing
// it to RecoverIdentity yields the same identity.
// CreateRecoverableIdentity 创建由新 BIP-39 助记词派生密钥对的身份。
func (s *IdentityService) CreateRecoverableIdentity(ctx context.Context, appID string) (*dto.RecoverableIdentity, error) {
	cfg, err := s.registry.Resolve(appID)
	if err != nil {
		return nil, err
	}
	entropy, err := s.random.RandomBytes(constants.RecoveryEntropyBits / 8)
	if err != nil {
		return nil, err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	wipe(entropy)
	if err != nil {
		return nil, errors.Internal("failed to encode recovery phrase", err)
	}

	id, err := s.recover(ctx, appID, cfg, mnemonic, constants.AuditEventIdentityCreated)
	if err != nil {
		return nil, err
	}
	return &dto.RecoverableIdentity{Identity: *id, Mnemonic: mnemonic}, nil
}

// RecoverIdentity re-derives the identity of mnemonic in appID's namespace and
// makes sure it is stored. Recovering the same phrase twice returns the same key id.
// RecoverIdentity 在 appID 的命名空间中重新派生助记词对应的身份。
func (s *IdentityService) RecoverIdentity(ctx context.Context, appID, mnemonic string) (*dto.Identity, error) {
	cfg, err := s.registry.Resolve(appID)
	if err != nil {
		return nil, err
	}
	mnemonic = normalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		err := errors.InvalidMnemonic()
		s.recordFailure(ctx, appID, "", constants.AuditEventIdentityRecovered, err)
		return nil, err
	}
	return s.recover(ctx, appID, cfg, mnemonic, constants.AuditEventIdentityRecovered)
}

func (s *IdentityService) recover(ctx context.Context, appID string, cfg models.CryptoConfig, mnemonic string, event constants.AuditEventType) (*dto.Identity, error) {
	salt := []byte(constants.RecoverySaltPrefix + cfg.StorageNamespace)
	seed, err := s.deriver.PBKDF2([]byte(mnemonic), salt, s.deriver.MinIterations(), 32)
	if err != nil {
		return nil, err
	}
	defer seed.Wipe()

	kp, err := s.engine.DeriveKeyPair(cfg, seed.KeyMaterial, []byte(constants.RecoveryKeyInfo))
	if err != nil {
		return nil, err
	}
	kp.ID = constants.RecoveryKeyIDPrefix + signature.Fingerprint(kp.PublicKey)

	stored, err := s.engine.StoreKeyPair(ctx, cfg, kp)
	if err != nil {
		s.recordFailure(ctx, appID, kp.ID, event, err)
		return nil, err
	}
	ev := models.NewAuditEvent(appID, stored.ID, event, constants.AuditResultSuccess)
	ev.Algorithm = cfg.Algorithm
	s.record(ctx, ev)
	return toIdentity(appID, stored), nil
}

// SignCredential signs payload with the key keyID of appID.
// SignCredential 使用 appID 的密钥 keyID 对 payload 签名。
func (s *IdentityService) SignCredential(ctx context.Context, appID, keyID string, payload []byte) (*models.Signature, error) {
	cfg, err := s.registry.Resolve(appID)
	if err != nil {
		return nil, err
	}
	sig, err := s.engine.Sign(ctx, cfg, keyID, payload)
	if err != nil {
		s.recordFailure(ctx, appID, keyID, constants.AuditEventCredentialSigned, err)
		return nil, err
	}
	ev := models.NewAuditEvent(appID, keyID, constants.AuditEventCredentialSigned, constants.AuditResultSuccess)
	ev.Algorithm = cfg.Algorithm
	s.record(ctx, ev)
	return sig, nil
}

// VerifyCredential reports whether sig is a valid signature of payload under
// publicKey. It depends only on its arguments; no registration is consulted.
// VerifyCredential 报告 sig 是否为 payload 在 publicKey 下的有效签名。
func (s *IdentityService) VerifyCredential(_ context.Context, sig *models.Signature, payload, publicKey []byte) bool {
	return s.engine.Verify(sig, payload, publicKey)
}

// PublicKey returns the public view of a stored identity. Results are cached per
// process for constants.PublicKeyCacheTTL; other replicas' revocations become
// visible here only after expiry. Token verification does not use this cache.
func (s *IdentityService) PublicKey(ctx context.Context, appID, keyID string) (*dto.Identity, error) {
	cfg, err := s.registry.Resolve(appID)
	if err != nil {
		return nil, err
	}
	cacheKey := cfg.StorageNamespace + constants.StorageKeySeparator + keyID
	if v, ok := s.keys.Get(cacheKey); ok {
		if id, ok := v.(*dto.Identity); ok && id.AppID == appID && id.Algorithm == cfg.Algorithm {
			s.metrics.RecordCacheAccess("public_key", true)
			out := *id
			return &out, nil
		}
	}
	s.metrics.RecordCacheAccess("public_key", false)

	before := s.removals.Load()
	kp, err := s.engine.PublicKey(ctx, cfg, keyID)
	if err != nil {
		return nil, err
	}
	id := toIdentity(appID, kp)
	if s.removals.Load() == before {
		s.keys.SetDefault(cacheKey, id)
	}
	out := *id
	return &out, nil
}

// RevokeIdentity revokes the key; it can no longer sign but its signatures still verify.
// RevokeIdentity 吊销密钥。
func (s *IdentityService) RevokeIdentity(ctx context.Context, appID, keyID string) error {
	cfg, err := s.registry.Resolve(appID)
	if err != nil {
		return err
	}
	if err := s.engine.Revoke(ctx, cfg, keyID); err != nil {
		s.recordFailure(ctx, appID, keyID, constants.AuditEventIdentityRevoked, err)
		return err
	}
	s.forget(cfg, keyID)
	s.record(ctx, models.NewAuditEvent(appID, keyID, constants.AuditEventIdentityRevoked, constants.AuditResultSuccess))
	return nil
}

// DeleteIdentity removes the key material.
// DeleteIdentity 删除密钥材料。
func (s *IdentityService) DeleteIdentity(ctx context.Context, appID, keyID string) error {
	cfg, err := s.registry.Resolve(appID)
	if err != nil {
		return err
	}
	if err := s.engine.Delete(ctx, cfg, keyID); err != nil {
		s.recordFailure(ctx, appID, keyID, constants.AuditEventIdentityDeleted, err)
		return err
	}
	s.forget(cfg, keyID)
	s.record(ctx, models.NewAuditEvent(appID, keyID, constants.AuditEventIdentityDeleted, constants.AuditResultSuccess))
	return nil
}

// forget drops the cached public view after the store has changed.
func (s *IdentityService) forget(cfg models.CryptoConfig, keyID string) {
	s.removals.Add(1)
	s.keys.Delete(cfg.StorageNamespace + constants.StorageKeySeparator + keyID)
}

// IssueCredentialToken mints a JWS credential token signed by keyID of appID.
// IssueCredentialToken 签发由 appID 的 keyID 签名的 JWS 凭证令牌。
func (s *IdentityService) IssueCredentialToken(ctx context.Context, appID, keyID string, req *dto.IssueTokenRequest) (string, error) {
	cfg, err := s.registry.Resolve(appID)
	if err != nil {
		return "", err
	}
	if req == nil {
		req = &dto.IssueTokenRequest{}
	}
	if req.TTLSeconds < 0 || req.TTLSeconds > constants.MaxTokenTTLSeconds {
		return "", errors.MalformedInput(fmt.Sprintf("ttlSeconds must be between 0 and %d", constants.MaxTokenTTLSeconds))
	}
	ttl := s.tokenTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	claims := &jws.CredentialClaims{Credential: req.Credential}
	claims.Subject = req.Subject
	claims.Audience = req.Audience

	token, err := s.issuer.Issue(ctx, appID, cfg, keyID, claims, ttl)
	if err != nil {
		s.recordFailure(ctx, appID, keyID, constants.AuditEventTokenIssued, err)
		return "", err
	}
	ev := models.NewAuditEvent(appID, keyID, constants.AuditEventTokenIssued, constants.AuditResultSuccess)
	ev.Algorithm = cfg.Algorithm
	s.record(ctx, ev)
	return token, nil
}

// VerifyCredentialToken verifies a credential token against the stored public key
// named by its kid and app headers.
// VerifyCredentialToken 根据令牌头中的 kid 与 app 验证凭证令牌。
func (s *IdentityService) VerifyCredentialToken(ctx context.Context, token string) (*dto.VerifyTokenResponse, error) {
	v, err := jws.Parse(ctx, token, s.resolveVerifyingKey)
	if err != nil {
		return nil, err
	}
	resp := &dto.VerifyTokenResponse{
		Valid:      true,
		AppID:      v.AppID,
		KeyID:      v.KeyID,
		Subject:    v.Claims.Subject,
		Issuer:     v.Claims.Issuer,
		Credential: v.Claims.Credential,
	}
	if v.Claims.ExpiresAt != nil {
		exp := v.Claims.ExpiresAt.Time
		resp.ExpiresAt = &exp
	}
	return resp, nil
}

func (s *IdentityService) resolveVerifyingKey(ctx context.Context, appID, keyID string) (*jws.VerifyingKey, error) {
	cfg, err := s.registry.Resolve(appID)
	if err != nil {
		return nil, err
	}
	// Read the store every time so that a key deleted on any replica stops
	// verifying at once.
	kp, err := s.engine.PublicKey(ctx, cfg, keyID)
	if err != nil {
		return nil, err
	}
	return &jws.VerifyingKey{
		Algorithm:     cfg.Algorithm,
		HashAlgorithm: cfg.HashAlgorithm,
		PublicKey:     kp.PublicKey,
	}, nil
}

// record forwards ev to the audit sink. Sink failures are logged, never returned.
func (s *IdentityService) record(ctx context.Context, ev models.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, ev); err != nil {
		s.logger.Error(ctx, "Failed to record audit event", err,
			logger.String("event_type", string(ev.EventType)),
			logger.String("app_id", ev.AppID),
		)
	}
}

func (s *IdentityService) recordFailure(ctx context.Context, appID, keyID string, event constants.AuditEventType, err error) {
	ev := models.NewAuditEvent(appID, keyID, event, constants.AuditResultFailure)
	ev.Message = string(errors.CodeOf(err))
	s.record(ctx, ev)
}

func toIdentity(appID string, kp *models.KeyPair) *dto.Identity {
	return &dto.Identity{
		AppID:       appID,
		KeyID:       kp.ID,
		Algorithm:   kp.Algorithm,
		PublicKey:   kp.PublicKey,
		Fingerprint: signature.Fingerprint(kp.PublicKey),
		State:       kp.State,
		CreatedAt:   kp.CreatedAt,
	}
}

func normalizeMnemonic(m string) string {
	return strings.Join(strings.Fields(strings.ToLower(m)), " ")
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
