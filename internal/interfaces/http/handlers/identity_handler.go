package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/credcore/internal/application/dto"
	"github.com/turtacn/credcore/internal/domain/models"
	"github.com/turtacn/credcore/internal/domain/service"
	"github.com/turtacn/credcore/pkg/logger"
)

// IdentityAPI is the application-facing API served over HTTP.
// *application.IdentityService implements it.
type IdentityAPI interface {
	RegisterApp(ctx context.Context, appID string, cfg models.CryptoConfig) error
	Apps() []service.AppRegistration
	CreateIdentity(ctx context.Context, appID string) (*dto.Identity, error)
	CreateRecoverableIdentity(ctx context.Context, appID string) (*dto.RecoverableIdentity, error)
	RecoverIdentity(ctx context.Context, appID, mnemonic string) (*dto.Identity, error)
	SignCredential(ctx context.Context, appID, keyID string, payload []byte) (*models.Signature, error)
	VerifyCredential(ctx context.Context, sig *models.Signature, payload, publicKey []byte) bool
	PublicKey(ctx context.Context, appID, keyID string) (*dto.Identity, error)
	RevokeIdentity(ctx context.Context, appID, keyID string) error
	DeleteIdentity(ctx context.Context, appID, keyID string) error
	IssueCredentialToken(ctx context.Context, appID, keyID string, req *dto.IssueTokenRequest) (string, error)
	VerifyCredentialToken(ctx context.Context, token string) (*dto.VerifyTokenResponse, error)
}

// IdentityHandler serves applications, identities and credentials.
type IdentityHandler struct {
	svc IdentityAPI
	log logger.Logger
}

// NewIdentityHandler creates a new IdentityHandler.
func NewIdentityHandler(svc IdentityAPI, log logger.Logger) *IdentityHandler {
	return &IdentityHandler{svc: svc, log: log.WithComponent("identity_handler")}
}

// RegisterApp handles POST /api/v1/apps.
func (h *IdentityHandler) RegisterApp(c *gin.Context) {
	var req dto.RegisterAppRequest
	if err := bindStrictJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if err := h.svc.RegisterApp(c.Request.Context(), req.AppID, req.Config); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, service.AppRegistration{AppID: req.AppID, Config: req.Config})
}

// ListApps handles GET /api/v1/apps.
func (h *IdentityHandler) ListApps(c *gin.Context) {
	respond(c, http.StatusOK, h.svc.Apps())
}

// CreateIdentity handles POST /api/v1/apps/:app_id/identities.
func (h *IdentityHandler) CreateIdentity(c *gin.Context) {
	id, err := h.svc.CreateIdentity(c.Request.Context(), c.Param("app_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusCreated, id)
}

// CreateRecoverableIdentity handles POST /api/v1/apps/:app_id/identities/recoverable.
func (h *IdentityHandler) CreateRecoverableIdentity(c *gin.Context) {
	id, err := h.svc.CreateRecoverableIdentity(c.Request.Context(), c.Param("app_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	respond(c, http.StatusCreated, id)
}

// RecoverIdentity handles POST /api/v1/apps/:app_id/identities/recover.
func (h *IdentityHandler) RecoverIdentity(c *gin.Context) {
	var req dto.RecoverIdentityRequest
	if err := bindStrictJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	id, err := h.svc.RecoverIdentity(c.Request.Context(), c.Param("app_id"), req.Mnemonic)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, id)
}

// GetIdentity handles GET /api/v1/apps/:app_id/identities/:key_id.
func (h *IdentityHandler) GetIdentity(c *gin.Context) {
	id, err := h.svc.PublicKey(c.Request.Context(), c.Param("app_id"), c.Param("key_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, id)
}

// DeleteIdentity handles DELETE /api/v1/apps/:app_id/identities/:key_id.
func (h *IdentityHandler) DeleteIdentity(c *gin.Context) {
	if err := h.svc.DeleteIdentity(c.Request.Context(), c.Param("app_id"), c.Param("key_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RevokeIdentity handles POST /api/v1/apps/:app_id/identities/:key_id/revoke.
func (h *IdentityHandler) RevokeIdentity(c *gin.Context) {
	if err := h.svc.RevokeIdentity(c.Request.Context(), c.Param("app_id"), c.Param("key_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Sign handles POST /api/v1/apps/:app_id/identities/:key_id/sign.
func (h *IdentityHandler) Sign(c *gin.Context) {
	var req dto.SignRequest
	if err := bindStrictJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	sig, err := h.svc.SignCredential(c.Request.Context(), c.Param("app_id"), c.Param("key_id"), req.Payload)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, sig)
}

// IssueToken handles POST /api/v1/apps/:app_id/identities/:key_id/tokens.
func (h *IdentityHandler) IssueToken(c *gin.Context) {
	var req dto.IssueTokenRequest
	if err := bindStrictJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	token, err := h.svc.IssueCredentialToken(c.Request.Context(), c.Param("app_id"), c.Param("key_id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	respond(c, http.StatusCreated, dto.TokenResponse{Token: token})
}

// Verify handles POST /api/v1/credentials/verify. An invalid signature is a
// successful request answering valid=false.
func (h *IdentityHandler) Verify(c *gin.Context) {
	var req dto.VerifyRequest
	if err := bindStrictJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	valid := h.svc.VerifyCredential(c.Request.Context(), &req.Signature, req.Payload, req.PublicKey)
	respond(c, http.StatusOK, dto.VerifyResponse{Valid: valid})
}

// VerifyToken handles POST /api/v1/credentials/tokens/verify.
func (h *IdentityHandler) VerifyToken(c *gin.Context) {
	var req dto.VerifyTokenRequest
	if err := bindStrictJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	resp, err := h.svc.VerifyCredentialToken(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, resp)
}
