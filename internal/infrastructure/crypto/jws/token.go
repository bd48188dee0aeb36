package jws

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/errors"
)

// Header names carried by every credential token.
const (
	HeaderKeyID = "kid"
	HeaderApp   = "app"
)

// CredentialClaims is the payload of a credential token: the registered claims
// plus an arbitrary credential document.
type CredentialClaims struct {
	jwt.RegisteredClaims
	Credential map[string]interface{} `json:"cred,omitempty"`
}

// Issuer mints credential tokens signed by stored keys.
type Issuer struct {
	signer Signer
	issuer string
	now    func() time.Time
}

// NewIssuer creates an Issuer; issuer becomes the "iss" claim.
func NewIssuer(signer Signer, issuer string) *Issuer {
	return &Issuer{signer: signer, issuer: issuer, now: time.Now}
}

// Issue signs claims with the key keyID of application appID. Zero-valued
// registered claims (jti, iss, iat, nbf) are filled in; ttl > 0 sets exp.
func (i *Issuer) Issue(ctx context.Context, appID string, cfg models.CryptoConfig, keyID string, claims *CredentialClaims, ttl time.Duration) (string, error) {
	method, err := MethodFor(cfg.Algorithm)
	if err != nil {
		return "", err
	}
	if claims == nil {
		claims = &CredentialClaims{}
	}

	now := i.now().UTC()
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	if claims.Issuer == "" {
		claims.Issuer = i.issuer
	}
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.NotBefore == nil {
		claims.NotBefore = jwt.NewNumericDate(now)
	}
	if ttl > 0 && claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(method, claims)
	token.Header[HeaderKeyID] = keyID
	token.Header[HeaderApp] = appID

	signed, err := token.SignedString(&SigningKey{Ctx: ctx, Signer: i.signer, Config: cfg, KeyID: keyID})
	if err != nil {
		if ce, ok := errors.AsCredError(err); ok {
			return "", ce
		}
		return "", errors.Internal("failed to sign credential token", err)
	}
	return signed, nil
}

// KeyResolver returns the verification key of (appID, keyID).
type KeyResolver func(ctx context.Context, appID, keyID string) (*VerifyingKey, error)

// Verified is the outcome of a successful token verification.
type Verified struct {
	AppID  string
	KeyID  string
	Claims *CredentialClaims
}

// Parse verifies tokenString and its registered claims. Key resolution errors
// (unknown application, missing key) are returned as-is; everything else is an
// invalid_token error.
func Parse(ctx context.Context, tokenString string, resolve KeyResolver, opts ...jwt.ParserOption) (*Verified, error) {
	out := &Verified{}
	opts = append([]jwt.ParserOption{jwt.WithValidMethods(ValidMethods()), jwt.WithIssuedAt()}, opts...)

	token, err := jwt.ParseWithClaims(tokenString, &CredentialClaims{}, func(t *jwt.Token) (interface{}, error) {
		method, ok := t.Method.(*SigningMethod)
		if !ok {
			return nil, errors.InvalidToken("unexpected signing method", nil)
		}
		kid, _ := t.Header[HeaderKeyID].(string)
		app, _ := t.Header[HeaderApp].(string)
		if kid == "" || app == "" {
			return nil, errors.InvalidToken("token header lacks kid or app", nil)
		}
		key, err := resolve(ctx, app, kid)
		if err != nil {
			return nil, err
		}
		if key.Algorithm != method.Algorithm() {
			return nil, errors.InvalidToken("token algorithm does not match the key", nil)
		}
		out.AppID, out.KeyID = app, kid
		return key, nil
	}, opts...)
	if err != nil {
		if ce, ok := errors.AsCredError(err); ok && !errors.HasCode(ce, errors.CodeSignatureMismatch) && !errors.HasCode(ce, errors.CodeMalformedInput) {
			return nil, ce
		}
		return nil, errors.InvalidToken(err.Error(), err)
	}

	claims, ok := token.Claims.(*CredentialClaims)
	if !ok || !token.Valid {
		return nil, errors.InvalidToken("token is not valid", nil)
	}
	out.Claims = claims
	return out, nil
}
