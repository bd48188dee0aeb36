// Package signature implements the signature engine: key pair generation and
// deterministic derivation for Ed25519, secp256k1 and NIST ECDSA, the key lifecycle
// on top of a service.KeyStore, and digest-then-sign signing and verification.
package signature

import (
	"bytes"
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/kdf"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/primitive"
	"github.com/turtacn/credcore/internal/infrastructure/keystore"
	"github.com/turtacn/credcore/pkg/errors"
	"github.com/turtacn/credcore/pkg/logger"
)

// Engine performs key lifecycle and signing operations. All operations that touch a
// stored key hold that key's lock for their whole duration, so a revoke can never
// interleave with a sign of the same key.
// Engine 执行密钥生命周期和签名操作。
type Engine struct {
	store   service.KeyStore
	rand    *primitive.Provider
	kdf     *kdf.Deriver
	locks   *keystore.KeyedMutex
	logger  logger.Logger
	metrics service.Metrics
	tracer  trace.Tracer
	now     func() time.Time
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.logger = l.WithComponent("signature-engine") }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m service.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithTracer sets the tracer used for generate and sign spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithClock overrides the clock used for CreatedAt timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine over store.
func NewEngine(store service.KeyStore, rnd *primitive.Provider, deriver *kdf.Deriver, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		rand:    rnd,
		kdf:     deriver,
		locks:   keystore.NewKeyedMutex(),
		logger:  logger.NewNoopLogger(),
		metrics: service.NoopMetrics{},
		tracer:  otel.Tracer("credcore/signature"),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func advance(kp *models.KeyPair, next models.KeyState) error {
	if !kp.State.CanTransition(next) {
		return errors.Internal("illegal key state transition "+string(kp.State)+" -> "+string(next), nil)
	}
	kp.State = next
	return nil
}

// GenerateKeyPair creates a fresh key pair for cfg in state generated. Nothing is
// persisted.
// GenerateKeyPair 为 cfg 生成新的密钥对（不持久化）。
func (e *Engine) GenerateKeyPair(cfg models.CryptoConfig) (*models.KeyPair, error) {
	start := time.Now()
	kp, err := e.generate(cfg)
	e.metrics.RecordKeyGeneration(string(cfg.Algorithm), err == nil, time.Since(start))
	return kp, err
}

func (e *Engine) generate(cfg models.CryptoConfig) (*models.KeyPair, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s, err := schemeFor(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	priv, pub, err := s.generate(e.rand, cfg.KeySize)
	if err != nil {
		return nil, err
	}
	return e.newKeyPair(cfg, priv, pub)
}

// DeriveKeyPair deterministically derives a key pair for cfg from seed. Equal seed,
// info and cfg always give the same key pair. The scheme input is expanded from the
// seed with HKDF; info separates independent derivations from the same seed.
// DeriveKeyPair 从种子确定性地派生密钥对。
func (e *Engine) DeriveKeyPair(cfg models.CryptoConfig, seed, info []byte) (*models.KeyPair, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(seed) < 16 {
		return nil, errors.WeakParameters("derivation seed must be at least 16 bytes")
	}
	s, err := schemeFor(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	material := func(counter byte, n int) ([]byte, error) {
		label := make([]byte, 0, len(info)+len(cfg.Algorithm)+2)
		label = append(label, info...)
		label = append(label, 0)
		label = append(label, cfg.Algorithm...)
		label = append(label, counter)
		dk, err := e.kdf.HKDF(seed, nil, label, n)
		if err != nil {
			return nil, err
		}
		return dk.KeyMaterial, nil
	}
	priv, pub, err := s.derive(material, cfg.KeySize)
	if err != nil {
		return nil, err
	}
	return e.newKeyPair(cfg, priv, pub)
}

func (e *Engine) newKeyPair(cfg models.CryptoConfig, priv, pub []byte) (*models.KeyPair, error) {
	kp := &models.KeyPair{
		Algorithm:  cfg.Algorithm,
		PublicKey:  pub,
		PrivateKey: priv,
		State:      models.KeyStateUninitialized,
		CreatedAt:  e.now(),
	}
	if err := advance(kp, models.KeyStateGenerated); err != nil {
		return nil, err
	}
	return kp, nil
}

// CreateKeyPair generates a key pair and persists it under keyID in the namespace
// of cfg. Either the complete key pair is stored in state active, or nothing is.
// CreateKeyPair 生成并原子地持久化密钥对。
func (e *Engine) CreateKeyPair(ctx context.Context, cfg models.CryptoConfig, keyID string) (*models.KeyPair, error) {
	ctx, span := e.tracer.Start(ctx, "signature.CreateKeyPair", trace.WithAttributes(
		attribute.String("algorithm", string(cfg.Algorithm)),
		attribute.Int("key_size", cfg.KeySize),
		attribute.String("namespace", cfg.StorageNamespace),
	))
	defer span.End()

	kp, err := e.GenerateKeyPair(cfg)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	kp.ID = keyID
	stored, err := e.persist(ctx, cfg, kp, false)
	if err != nil {
		recordSpanError(span, err)
		e.logger.Error(ctx, "Failed to create key pair", err,
			logger.String("namespace", cfg.StorageNamespace),
			logger.String("key_id", keyID),
		)
		return nil, err
	}
	e.logger.Info(ctx, "Key pair created",
		logger.String("namespace", cfg.StorageNamespace),
		logger.String("key_id", keyID),
		logger.String("algorithm", string(cfg.Algorithm)),
	)
	return stored, nil
}

// StoreKeyPair persists an externally produced key pair in state generated, such as
// one returned by DeriveKeyPair. Storing the same public key under the same id again
// is a no-op that returns the stored pair; a different key under that id fails with
// KeyExists.
// StoreKeyPair 持久化外部生成的密钥对（幂等）。
func (e *Engine) StoreKeyPair(ctx context.Context, cfg models.CryptoConfig, kp *models.KeyPair) (*models.KeyPair, error) {
	if kp == nil {
		return nil, errors.MalformedInput("nil key pair")
	}
	if kp.Algorithm != cfg.Algorithm {
		return nil, errors.MalformedInput("key pair algorithm does not match the application configuration")
	}
	if kp.State != models.KeyStateGenerated {
		return nil, errors.MalformedInput("only freshly generated key pairs can be stored")
	}
	return e.persist(ctx, cfg, kp, true)
}

// persist stores kp under its id. The returned pair has no private key.
func (e *Engine) persist(ctx context.Context, cfg models.CryptoConfig, kp *models.KeyPair, idempotent bool) (*models.KeyPair, error) {
	defer kp.Wipe()

	key, err := keystore.StorageKey(cfg.StorageNamespace, kp.ID)
	if err != nil {
		return nil, err
	}
	unlock, err := e.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := e.store.Get(ctx, key)
	switch {
	case err == nil:
		existing.Wipe()
		if idempotent && bytes.Equal(existing.PublicKey, kp.PublicKey) {
			return publicView(existing), nil
		}
		return nil, errors.KeyExists(kp.ID)
	case !errors.Is(err, errors.ErrKeyNotFound):
		return nil, err
	}

	if err := advance(kp, models.KeyStatePersisted); err != nil {
		return nil, err
	}
	if err := advance(kp, models.KeyStateActive); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, key, kp); err != nil {
		return nil, err
	}
	return publicView(kp), nil
}

// publicView returns a copy of kp without private material.
func publicView(kp *models.KeyPair) *models.KeyPair {
	c := kp.Clone()
	c.Wipe()
	c.PrivateKey = nil
	return c
}

// load reads and checks a key under an already held lock. The caller must wipe it.
func (e *Engine) load(ctx context.Context, cfg models.CryptoConfig, key, keyID string) (*models.KeyPair, error) {
	kp, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if kp.Algorithm != cfg.Algorithm {
		kp.Wipe()
		return nil, errors.CorruptKeyMaterial(keyID, "stored algorithm "+string(kp.Algorithm)+" does not match configuration")
	}
	return kp, nil
}

// Sign hashes message with cfg.HashAlgorithm and signs the digest with the key
// stored under keyID.
// Sign 使用 keyID 对应的密钥对消息摘要进行签名。
func (e *Engine) Sign(ctx context.Context, cfg models.CryptoConfig, keyID string, message []byte) (*models.Signature, error) {
	ctx, span := e.tracer.Start(ctx, "signature.Sign", trace.WithAttributes(
		attribute.String("algorithm", string(cfg.Algorithm)),
		attribute.String("namespace", cfg.StorageNamespace),
		attribute.String("key_id", keyID),
	))
	defer span.End()

	start := time.Now()
	sig, err := e.sign(ctx, cfg, keyID, message)
	if err != nil {
		recordSpanError(span, err)
		e.metrics.RecordSign(string(cfg.Algorithm), false, time.Since(start), string(errors.CodeOf(err)))
		return nil, err
	}
	e.metrics.RecordSign(string(cfg.Algorithm), true, time.Since(start), "")
	return sig, nil
}

func (e *Engine) sign(ctx context.Context, cfg models.CryptoConfig, keyID string, message []byte) (*models.Signature, error) {
	s, err := schemeFor(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	digest, err := primitive.Hash(cfg.HashAlgorithm, message)
	if err != nil {
		return nil, err
	}
	key, err := keystore.StorageKey(cfg.StorageNamespace, keyID)
	if err != nil {
		return nil, err
	}
	unlock, err := e.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	kp, err := e.load(ctx, cfg, key, keyID)
	if err != nil {
		return nil, err
	}
	defer kp.Wipe()

	if kp.State == models.KeyStateRevoked {
		return nil, errors.KeyRevoked(keyID)
	}
	if !kp.State.Usable() {
		return nil, errors.CorruptKeyMaterial(keyID, "key is in state "+string(kp.State))
	}
	pub, err := s.publicKey(kp.PrivateKey)
	if err != nil {
		return nil, errors.CorruptKeyMaterial(keyID, "private key cannot be decoded").WithCause(err)
	}
	if !bytes.Equal(pub, kp.PublicKey) {
		return nil, errors.CorruptKeyMaterial(keyID, "public key does not match private key")
	}

	raw, err := s.sign(e.rand, kp.PrivateKey, digest)
	if err != nil {
		return nil, err
	}
	return &models.Signature{
		Algorithm:     cfg.Algorithm,
		HashAlgorithm: cfg.HashAlgorithm,
		SignerKeyID:   keyID,
		Digest:        digest,
		Bytes:         raw,
	}, nil
}

// Verify is the instrumented form of the package level Verify.
func (e *Engine) Verify(sig *models.Signature, message, publicKey []byte) bool {
	ok := Verify(sig, message, publicKey)
	if sig != nil {
		e.metrics.RecordVerify(string(sig.Algorithm), ok)
	}
	return ok
}

// Revoke moves the key to state revoked and discards its private key. Revoking a
// revoked key succeeds without change.
// Revoke 吊销密钥并丢弃其私钥。
func (e *Engine) Revoke(ctx context.Context, cfg models.CryptoConfig, keyID string) error {
	key, err := keystore.StorageKey(cfg.StorageNamespace, keyID)
	if err != nil {
		return err
	}
	unlock, err := e.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()

	kp, err := e.load(ctx, cfg, key, keyID)
	if err != nil {
		return err
	}
	defer kp.Wipe()
	if kp.State == models.KeyStateRevoked {
		return nil
	}
	if err := advance(kp, models.KeyStateRevoked); err != nil {
		return errors.CorruptKeyMaterial(keyID, "key in state "+string(kp.State)+" cannot be revoked")
	}
	kp.Wipe()
	kp.PrivateKey = nil
	if err := e.store.Put(ctx, key, kp); err != nil {
		return err
	}
	e.logger.Info(ctx, "Key pair revoked",
		logger.String("namespace", cfg.StorageNamespace),
		logger.String("key_id", keyID),
	)
	return nil
}

// Delete removes the key pair from the store.
func (e *Engine) Delete(ctx context.Context, cfg models.CryptoConfig, keyID string) error {
	key, err := keystore.StorageKey(cfg.StorageNamespace, keyID)
	if err != nil {
		return err
	}
	unlock, err := e.locks.Lock(ctx, key)
	if err != nil {
		return err
	}
	defer unlock()
	return e.store.Delete(ctx, key)
}

// PublicKey returns the stored key pair without its private key. The read takes the
// key lock, so it never observes a revocation or deletion half way.
func (e *Engine) PublicKey(ctx context.Context, cfg models.CryptoConfig, keyID string) (*models.KeyPair, error) {
	key, err := keystore.StorageKey(cfg.StorageNamespace, keyID)
	if err != nil {
		return nil, err
	}
	unlock, err := e.locks.Lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()
	kp, err := e.load(ctx, cfg, key, keyID)
	if err != nil {
		return nil, err
	}
	defer kp.Wipe()
	return publicView(kp), nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
