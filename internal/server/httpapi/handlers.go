package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
)

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	SessionID        string    `json:"session_id"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type accountResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type sessionResponse struct {
	ID         string    `json:"id"`
	IssuedAt   time.Time `json:"issued_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Current    bool      `json:"current"`
}

func newTokenResponse(p *services.TokenPair) tokenResponse {
	return tokenResponse{
		SessionID:        p.SessionID,
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "Bearer",
		AccessExpiresAt:  p.AccessExpiresAt.UTC(),
		RefreshExpiresAt: p.RefreshExpiresAt.UTC(),
	}
}

func newAccountResponse(a *models.Account) accountResponse {
	return accountResponse{ID: a.ID, Email: a.Email, Role: a.Role, CreatedAt: a.CreatedAt.UTC()}
}

func clientMeta(c *gin.Context) models.ClientMeta {
	return models.ClientMeta{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

func badRequest(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
}

// respondError maps service errors that have no route-specific meaning.
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, common.ErrStoreUnavailable):
		h.log.Error(c.Request.Context(), "store unavailable", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	case errors.Is(err, common.ErrInvalidSession), errors.Is(err, common.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": common.ErrInvalidSession.Error()})
	default:
		h.log.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c)
		return
	}

	account, pair, err := h.auth.Register(c.Request.Context(), req.Email, req.Password, clientMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, common.ErrorValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email or password"})
		case errors.Is(err, common.ErrAccountExists):
			c.JSON(http.StatusConflict, gin.H{"error": "account already exists"})
		default:
			h.respondError(c, err)
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"account": newAccountResponse(account),
		"tokens":  newTokenResponse(pair),
	})
}

func (h *Handler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c)
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), req.Email, req.Password, clientMeta(c))
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		h.respondError(c, err)
		return
	}

	if key := c.GetString(attemptKeyKey); key != "" {
		if err := h.limiter.Clear(c.Request.Context(), key); err != nil {
			h.log.Warn(c.Request.Context(), "rate limit reset failed", "error", err)
		}
	}

	c.JSON(http.StatusOK, newTokenResponse(pair))
}

func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c)
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTokenResponse(pair))
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), c.GetString(accessTokenKey)); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) LogoutAll(c *gin.Context) {
	id, _ := IdentityFrom(c)
	n, err := h.auth.LogoutAll(c.Request.Context(), id.AccountID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"revoked": n})
}

func (h *Handler) Me(c *gin.Context) {
	id, _ := IdentityFrom(c)
	account, err := h.auth.Account(c.Request.Context(), id.AccountID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			abortUnauthorized(c)
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, newAccountResponse(account))
}

// Sessions lists live sessions. Token handles are never part of the response.
func (h *Handler) Sessions(c *gin.Context) {
	id, _ := IdentityFrom(c)
	list, err := h.auth.Sessions(c.Request.Context(), id.AccountID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	out := make([]sessionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, sessionResponse{
			ID:         s.ID,
			IssuedAt:   s.IssuedAt.UTC(),
			ExpiresAt:  s.ExpiresAt.UTC(),
			LastUsedAt: s.LastUsedAt.UTC(),
			IP:         s.IP,
			UserAgent:  s.UserAgent,
			Current:    s.ID == id.SessionID,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// Forgot always answers 202 so callers cannot enumerate accounts.
func (h *Handler) Forgot(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c)
		return
	}

	if err := h.reset.RequestReset(c.Request.Context(), req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "if the account exists, a reset link has been sent"})
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c)
		return
	}

	err := h.reset.ConsumeReset(c.Request.Context(), req.Token, req.NewPassword)
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, common.ErrInvalidResetToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ErrInvalidResetToken.Error()})
	case errors.Is(err, common.ErrorValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "password does not meet requirements"})
	default:
		h.respondError(c, err)
	}
}

func (h *Handler) PutCredential(c *gin.Context) {
	var req struct {
		Credential string `json:"credential" binding:"required"`
	}
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c)
		return
	}

	id, _ := IdentityFrom(c)
	plaintext := []byte(req.Credential)
	defer common.WipeByteArray(plaintext)

	if err := h.vault.Store(c.Request.Context(), id.AccountID, c.Param("provider"), plaintext); err != nil {
		if errors.Is(err, common.ErrorValidation) {
			badRequest(c)
			return
		}
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteCredential(c *gin.Context) {
	id, _ := IdentityFrom(c)
	if err := h.vault.Delete(c.Request.Context(), id.AccountID, c.Param("provider")); err != nil {
		if errors.Is(err, common.ErrorValidation) {
			badRequest(c)
			return
		}
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PaymentWebhook runs after signature verification.
func (h *Handler) PaymentWebhook(c *gin.Context) {
	var event struct {
		ID   string `json:"id" binding:"required"`
		Type string `json:"type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&event); err != nil {
		badRequest(c)
		return
	}

	h.log.Info(c.Request.Context(), "payment webhook accepted", "event_id", event.ID, "event_type", event.Type)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}
