package application_test

import (
	"bytes"
	"context"
	stderrors "errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/credcore/internal/application"
	"github.com/turtacn/credcore/internal/application/dto"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/internal/domain/service/mocks"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/kdf"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/primitive"
	"github.com/turtacn/credcore/internal/infrastructure/crypto/signature"
	"github.com/turtacn/credcore/internal/infrastructure/keystore"
	"github.com/turtacn/credcore/pkg/constants"
	"github.com/turtacn/credcore/pkg/errors"
)

var (
	identityApp = models.CryptoConfig{KeySize: 256, Algorithm: constants.AlgorithmEd25519, HashAlgorithm: constants.HashSHA256, StorageNamespace: "ns-a"}
	tradeApp    = models.CryptoConfig{KeySize: 256, Algorithm: constants.AlgorithmSecp256k1, HashAlgorithm: constants.HashSHA256, StorageNamespace: "ns-b"}
)

type IdentityServiceTestSuite struct {
	suite.Suite
	ctx     context.Context
	store   *keystore.MemoryStore
	random  *primitive.Provider
	audit   *mocks.MockAuditService
	service *application.IdentityService
}

func (s *IdentityServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	deriver, err := kdf.NewDeriver(constants.PBKDF2IterationFloor)
	s.Require().NoError(err)
	s.store = keystore.NewMemoryStore()
	s.random = primitive.NewProvider()
	engine := signature.NewEngine(s.store, s.random, deriver)

	s.audit = new(mocks.MockAuditService)
	s.audit.On("LogEvent", mock.Anything, mock.Anything).Return(nil).Maybe()

	s.service = application.NewIdentityService(service.NewConfigRegistry(), engine, deriver, s.random,
		application.WithAudit(s.audit),
	)
	s.Require().NoError(s.service.RegisterApp(s.ctx, "identity-app", identityApp))
	s.Require().NoError(s.service.RegisterApp(s.ctx, "trade-app", tradeApp))
}

func TestIdentityServiceTestSuite(t *testing.T) {
	suite.Run(t, new(IdentityServiceTestSuite))
}

func (s *IdentityServiceTestSuite) TestCreateSignVerify() {
	id, err := s.service.CreateIdentity(s.ctx, "identity-app")
	s.Require().NoError(err)
	s.Equal("identity-app", id.AppID)
	s.Equal(constants.AlgorithmEd25519, id.Algorithm)
	s.Len(id.PublicKey, 32)
	s.Equal(models.KeyStateActive, id.State)
	s.Equal(signature.Fingerprint(id.PublicKey), id.Fingerprint)

	sig, err := s.service.SignCredential(s.ctx, "identity-app", id.KeyID, []byte("hello"))
	s.Require().NoError(err)
	s.True(s.service.VerifyCredential(s.ctx, sig, []byte("hello"), id.PublicKey))
	s.False(s.service.VerifyCredential(s.ctx, sig, []byte("hello!"), id.PublicKey))
}

func (s *IdentityServiceTestSuite) TestRandomBytesAreIndependent() {
	a, err := s.random.RandomBytes(32)
	s.Require().NoError(err)
	b, err := s.random.RandomBytes(32)
	s.Require().NoError(err)
	s.Len(a, 32)
	s.False(bytes.Equal(a, b))
}

func (s *IdentityServiceTestSuite) TestDuplicateNamespace() {
	cfg := tradeApp
	cfg.StorageNamespace = identityApp.StorageNamespace
	err := s.service.RegisterApp(s.ctx, "other-app", cfg)
	s.ErrorIs(err, errors.ErrDuplicateNamespace)

	apps := s.service.Apps()
	s.Require().Len(apps, 2)
	s.Equal("identity-app", apps[0].AppID)
	s.Equal("trade-app", apps[1].AppID)
}

func (s *IdentityServiceTestSuite) TestRegisterAppKeepsExisting() {
	id, err := s.service.CreateIdentity(s.ctx, "identity-app")
	s.Require().NoError(err)

	moved := tradeApp
	moved.StorageNamespace = "ns-moved"
	s.ErrorIs(s.service.RegisterApp(s.ctx, "identity-app", moved), errors.ErrAppExists)

	_, err = s.service.SignCredential(s.ctx, "identity-app", id.KeyID, []byte("still mine"))
	s.NoError(err)
}

func (s *IdentityServiceTestSuite) TestUnknownApplication() {
	_, err := s.service.CreateIdentity(s.ctx, "ghost-app")
	s.ErrorIs(err, errors.ErrUnknownApplication)
	_, err = s.service.SignCredential(s.ctx, "ghost-app", "k", []byte("x"))
	s.ErrorIs(err, errors.ErrUnknownApplication)
}

func (s *IdentityServiceTestSuite) TestAppsAreIsolated() {
	id, err := s.service.CreateIdentity(s.ctx, "identity-app")
	s.Require().NoError(err)

	_, err = s.service.SignCredential(s.ctx, "trade-app", id.KeyID, []byte("hello"))
	s.ErrorIs(err, errors.ErrKeyNotFound)
}

func (s *IdentityServiceTestSuite) TestRecoverableIdentity() {
	created, err := s.service.CreateRecoverableIdentity(s.ctx, "trade-app")
	s.Require().NoError(err)
	s.Len(strings.Fields(created.Mnemonic), 24)
	s.True(strings.HasPrefix(created.KeyID, constants.RecoveryKeyIDPrefix))
	s.Len(created.PublicKey, 33)

	messy := "  " + strings.ToUpper(strings.ReplaceAll(created.Mnemonic, " ", "   ")) + "\n"
	recovered, err := s.service.RecoverIdentity(s.ctx, "trade-app", messy)
	s.Require().NoError(err)
	s.Equal(created.KeyID, recovered.KeyID)
	s.Equal(created.PublicKey, recovered.PublicKey)

	sig, err := s.service.SignCredential(s.ctx, "trade-app", recovered.KeyID, []byte("order#1"))
	s.Require().NoError(err)
	s.True(s.service.VerifyCredential(s.ctx, sig, []byte("order#1"), created.PublicKey))

	other, err := s.service.RecoverIdentity(s.ctx, "identity-app", created.Mnemonic)
	s.Require().NoError(err)
	s.NotEqual(created.PublicKey, other.PublicKey, "namespaces salt the derivation")
}

func (s *IdentityServiceTestSuite) TestRecoverInvalidMnemonic() {
	_, err := s.service.RecoverIdentity(s.ctx, "trade-app", "abandon abandon abandon")
	s.ErrorIs(err, errors.ErrInvalidMnemonic)
}

func (s *IdentityServiceTestSuite) TestRevokeIdentity() {
	id, err := s.service.CreateIdentity(s.ctx, "identity-app")
	s.Require().NoError(err)
	sig, err := s.service.SignCredential(s.ctx, "identity-app", id.KeyID, []byte("before"))
	s.Require().NoError(err)

	// prime the cache so revoke has to invalidate it
	_, err = s.service.PublicKey(s.ctx, "identity-app", id.KeyID)
	s.Require().NoError(err)

	s.Require().NoError(s.service.RevokeIdentity(s.ctx, "identity-app", id.KeyID))
	s.Require().NoError(s.service.RevokeIdentity(s.ctx, "identity-app", id.KeyID))

	_, err = s.service.SignCredential(s.ctx, "identity-app", id.KeyID, []byte("after"))
	s.ErrorIs(err, errors.ErrKeyRevoked)
	s.True(s.service.VerifyCredential(s.ctx, sig, []byte("before"), id.PublicKey))

	pub, err := s.service.PublicKey(s.ctx, "identity-app", id.KeyID)
	s.Require().NoError(err)
	s.Equal(models.KeyStateRevoked, pub.State)
}

func (s *IdentityServiceTestSuite) TestDeleteIdentity() {
	id, err := s.service.CreateIdentity(s.ctx, "identity-app")
	s.Require().NoError(err)
	_, err = s.service.PublicKey(s.ctx, "identity-app", id.KeyID)
	s.Require().NoError(err)

	s.Require().NoError(s.service.DeleteIdentity(s.ctx, "identity-app", id.KeyID))
	_, err = s.service.PublicKey(s.ctx, "identity-app", id.KeyID)
	s.ErrorIs(err, errors.ErrKeyNotFound)
	s.ErrorIs(s.service.DeleteIdentity(s.ctx, "identity-app", id.KeyID), errors.ErrKeyNotFound)
	s.Zero(s.store.Len())
}

func (s *IdentityServiceTestSuite) TestCredentialToken() {
	id, err := s.service.CreateIdentity(s.ctx, "trade-app")
	s.Require().NoError(err)

	token, err := s.service.IssueCredentialToken(s.ctx, "trade-app", id.KeyID, &dto.IssueTokenRequest{
		Subject:    "user-7",
		Credential: map[string]interface{}{"kyc": "verified"},
		TTLSeconds: 60,
	})
	s.Require().NoError(err)

	v, err := s.service.VerifyCredentialToken(s.ctx, token)
	s.Require().NoError(err)
	s.True(v.Valid)
	s.Equal("trade-app", v.AppID)
	s.Equal(id.KeyID, v.KeyID)
	s.Equal("user-7", v.Subject)
	s.Equal(constants.ServiceName, v.Issuer)
	s.Equal("verified", v.Credential["kyc"])
	s.NotNil(v.ExpiresAt)

	_, err = s.service.IssueCredentialToken(s.ctx, "trade-app", id.KeyID, &dto.IssueTokenRequest{TTLSeconds: -1})
	s.ErrorIs(err, errors.ErrMalformedInput)

	s.Require().NoError(s.service.DeleteIdentity(s.ctx, "trade-app", id.KeyID))
	_, err = s.service.VerifyCredentialToken(s.ctx, token)
	s.ErrorIs(err, errors.ErrKeyNotFound)

	_, err = s.service.VerifyCredentialToken(s.ctx, "not.a.token")
	s.ErrorIs(err, errors.ErrInvalidToken)
}

func (s *IdentityServiceTestSuite) TestCredentialTokenTTLBounds() {
	id, err := s.service.CreateIdentity(s.ctx, "identity-app")
	s.Require().NoError(err)

	for _, ttl := range []int{constants.MaxTokenTTLSeconds + 1, 9300000000, math.MaxInt} {
		_, err = s.service.IssueCredentialToken(s.ctx, "identity-app", id.KeyID, &dto.IssueTokenRequest{TTLSeconds: ttl})
		s.ErrorIs(err, errors.ErrMalformedInput, ttl)
	}

	token, err := s.service.IssueCredentialToken(s.ctx, "identity-app", id.KeyID, &dto.IssueTokenRequest{TTLSeconds: constants.MaxTokenTTLSeconds})
	s.Require().NoError(err)
	v, err := s.service.VerifyCredentialToken(s.ctx, token)
	s.Require().NoError(err)
	s.Require().NotNil(v.ExpiresAt)
	s.WithinDuration(time.Now().Add(constants.MaxTokenTTLSeconds*time.Second), *v.ExpiresAt, time.Minute)
}

func TestIdentityService_DeleteSeenByOtherInstances(t *testing.T) {
	ctx := context.Background()
	deriver, err := kdf.NewDeriver(constants.PBKDF2IterationFloor)
	require.NoError(t, err)
	random := primitive.NewProvider()
	store := keystore.NewMemoryStore()

	// two replicas sharing one key store, each with its own cache
	replica := func() *application.IdentityService {
		svc := application.NewIdentityService(service.NewConfigRegistry(), signature.NewEngine(store, random, deriver), deriver, random)
		require.NoError(t, svc.RegisterApp(ctx, "identity-app", identityApp))
		return svc
	}
	a, b := replica(), replica()

	id, err := a.CreateIdentity(ctx, "identity-app")
	require.NoError(t, err)
	token, err := a.IssueCredentialToken(ctx, "identity-app", id.KeyID, nil)
	require.NoError(t, err)
	_, err = a.PublicKey(ctx, "identity-app", id.KeyID)
	require.NoError(t, err)
	_, err = a.VerifyCredentialToken(ctx, token)
	require.NoError(t, err)

	require.NoError(t, b.DeleteIdentity(ctx, "identity-app", id.KeyID))

	_, err = a.VerifyCredentialToken(ctx, token)
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)
}

func TestIdentityService_FailedDeleteKeepsCache(t *testing.T) {
	ctx := context.Background()
	deriver, err := kdf.NewDeriver(constants.PBKDF2IterationFloor)
	require.NoError(t, err)
	random := primitive.NewProvider()

	store := new(mocks.MockKeyStore)
	store.On("Get", mock.Anything, mock.Anything).Return(nil, errors.KeyNotFound("ns-a/k")).Once()
	store.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	store.On("Delete", mock.Anything, mock.Anything).Return(errors.Internal("store down", nil)).Once()

	svc := application.NewIdentityService(service.NewConfigRegistry(), signature.NewEngine(store, random, deriver), deriver, random)
	require.NoError(t, svc.RegisterApp(ctx, "identity-app", identityApp))
	id, err := svc.CreateIdentity(ctx, "identity-app")
	require.NoError(t, err)

	store.On("Get", mock.Anything, mock.Anything).Return(&models.KeyPair{
		ID: id.KeyID, Algorithm: id.Algorithm, PublicKey: id.PublicKey, State: models.KeyStateActive, CreatedAt: id.CreatedAt,
	}, nil).Once()
	_, err = svc.PublicKey(ctx, "identity-app", id.KeyID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteIdentity(ctx, "identity-app", id.KeyID), errors.ErrInternal)

	// served from cache: no further store reads are expected
	got, err := svc.PublicKey(ctx, "identity-app", id.KeyID)
	require.NoError(t, err)
	assert.Equal(t, id.PublicKey, got.PublicKey)
	store.AssertExpectations(t)
}

func TestIdentityService_AuditEvents(t *testing.T) {
	ctx := context.Background()
	deriver, err := kdf.NewDeriver(constants.PBKDF2IterationFloor)
	require.NoError(t, err)
	random := primitive.NewProvider()
	engine := signature.NewEngine(keystore.NewMemoryStore(), random, deriver)

	audit := new(mocks.MockAuditService)
	audit.On("LogEvent", mock.Anything, mock.MatchedBy(func(ev models.AuditEvent) bool {
		return ev.EventType == constants.AuditEventAppRegistered && ev.AppID == "identity-app"
	})).Return(nil).Once()
	audit.On("LogEvent", mock.Anything, mock.MatchedBy(func(ev models.AuditEvent) bool {
		return ev.EventType == constants.AuditEventIdentityCreated && ev.Result == constants.AuditResultSuccess
	})).Return(stderrors.New("kafka unavailable")).Once()
	audit.On("LogEvent", mock.Anything, mock.MatchedBy(func(ev models.AuditEvent) bool {
		return ev.EventType == constants.AuditEventCredentialSigned && ev.Result == constants.AuditResultFailure &&
			ev.Message == string(errors.CodeKeyNotFound)
	})).Return(nil).Once()

	svc := application.NewIdentityService(service.NewConfigRegistry(), engine, deriver, random, application.WithAudit(audit))
	require.NoError(t, svc.RegisterApp(ctx, "identity-app", identityApp))

	// an audit sink failure never fails the operation
	id, err := svc.CreateIdentity(ctx, "identity-app")
	require.NoError(t, err)
	assert.NotEmpty(t, id.KeyID)

	_, err = svc.SignCredential(ctx, "identity-app", "missing", []byte("x"))
	assert.ErrorIs(t, err, errors.ErrKeyNotFound)

	audit.AssertExpectations(t)
}

func TestIdentityService_KeyStoreFailure(t *testing.T) {
	ctx := context.Background()
	deriver, err := kdf.NewDeriver(constants.PBKDF2IterationFloor)
	require.NoError(t, err)
	random := primitive.NewProvider()

	store := new(mocks.MockKeyStore)
	store.On("Get", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "ns-a/")
	})).Return(nil, errors.KeyNotFound("new"))
	store.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(stderrors.New("disk full"))

	audit := new(mocks.MockAuditService)
	audit.On("LogEvent", mock.Anything, mock.MatchedBy(func(ev models.AuditEvent) bool {
		return ev.EventType == constants.AuditEventAppRegistered
	})).Return(nil)
	audit.On("LogEvent", mock.Anything, mock.MatchedBy(func(ev models.AuditEvent) bool {
		return ev.EventType == constants.AuditEventIdentityCreated && ev.Result == constants.AuditResultFailure &&
			ev.Message == string(errors.CodeInternal)
	})).Return(nil).Once()

	engine := signature.NewEngine(store, random, deriver)
	svc := application.NewIdentityService(service.NewConfigRegistry(), engine, deriver, random, application.WithAudit(audit))
	require.NoError(t, svc.RegisterApp(ctx, "identity-app", identityApp))

	_, err = svc.CreateIdentity(ctx, "identity-app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	store.AssertExpectations(t)
	audit.AssertExpectations(t)
}
