package dto

import (
	"time"

	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/pkg/constants"
)

// Identity is the public view of a key pair; the private key never leaves the core.
// Identity 是密钥对的公开视图，私钥永远不会离开核心。
type Identity struct {
	AppID       string              `json:"appId"`
	KeyID       string              `json:"keyId"`
	Algorithm   constants.Algorithm `json:"algorithm"`
	PublicKey   []byte              `json:"publicKey"`
	Fingerprint string              `json:"fingerprint"`
	State       models.KeyState     `json:"state"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// RecoverableIdentity is returned once, at creation; the mnemonic is not stored.
// RecoverableIdentity 仅在创建时返回一次，助记词不会被存储。
type RecoverableIdentity struct {
	Identity
	Mnemonic string `json:"mnemonic"`
}

// RegisterAppRequest registers a new application configuration.
type RegisterAppRequest struct {
	AppID  string              `json:"appId" validate:"required,identifier"`
	Config models.CryptoConfig `json:"config"`
}

// RecoverIdentityRequest carries a BIP-39 recovery phrase.
type RecoverIdentityRequest struct {
	Mnemonic string `json:"mnemonic" validate:"required"`
}

// SignRequest carries the payload to sign. Payload is base64 in JSON.
type SignRequest struct {
	Payload []byte `json:"payload"`
}

// VerifyRequest asks whether Signature is valid for Payload under PublicKey.
type VerifyRequest struct {
	Signature models.Signature `json:"signature"`
	Payload   []byte           `json:"payload"`
	PublicKey []byte           `json:"publicKey"`
}

// VerifyResponse reports the verification outcome.
type VerifyResponse struct {
	Valid bool `json:"valid"`
}

// IssueTokenRequest describes a credential token to mint.
type IssueTokenRequest struct {
	Subject    string                 `json:"subject" validate:"max=256"`
	Audience   []string               `json:"audience,omitempty" validate:"dive,required"`
	Credential map[string]interface{} `json:"credential,omitempty"`
	// TTLSeconds overrides the service default lifetime when positive. At most 30 days.
	TTLSeconds int `json:"ttlSeconds,omitempty" validate:"gte=0,lte=2592000"`
}

// TokenResponse carries a compact JWS credential token.
type TokenResponse struct {
	Token string `json:"token"`
}

// VerifyTokenRequest carries a credential token to verify.
type VerifyTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// VerifyTokenResponse is the verified content of a credential token.
type VerifyTokenResponse struct {
	Valid      bool                   `json:"valid"`
	AppID      string                 `json:"appId"`
	KeyID      string                 `json:"keyId"`
	Subject    string                 `json:"subject,omitempty"`
	Issuer     string                 `json:"issuer,omitempty"`
	ExpiresAt  *time.Time             `json:"expiresAt,omitempty"`
	Credential map[string]interface{} `json:"credential,omitempty"`
}
