// Package webhook authenticates inbound webhook deliveries by HMAC-SHA256
// over the exact raw request body.
package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/gin-gonic/gin"
)

// SignaturePrefix is the optional scheme prefix of the signature header.
const SignaturePrefix = "sha256="

// MaxBodyBytes bounds the body read before verification.
const MaxBodyBytes = 1 << 20

var ErrNoSecret = errors.New("webhook secret is not configured")

type Verifier struct {
	secret []byte
}

// NewVerifier refuses an empty secret; there is no unauthenticated mode.
func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &Verifier{secret: s}, nil
}

func (v *Verifier) mac(body []byte) []byte {
	m := hmac.New(sha256.New, v.secret)
	m.Write(body)
	return m.Sum(nil)
}

// Sign returns the header value for body, "sha256=<hex>".
func (v *Verifier) Sign(body []byte) string {
	return SignaturePrefix + hex.EncodeToString(v.mac(body))
}

// Verify reports whether header carries a valid signature of body. The
// header may be "sha256=<hex>" or bare hex. Malformed headers fail.
func (v *Verifier) Verify(header string, body []byte) bool {
	header = strings.TrimSpace(header)
	if len(header) >= len(SignaturePrefix) && strings.EqualFold(header[:len(SignaturePrefix)], SignaturePrefix) {
		header = header[len(SignaturePrefix):]
	}
	if header == "" {
		return false
	}
	got, err := hex.DecodeString(header)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	return hmac.Equal(got, v.mac(body))
}

// Middleware rejects requests whose signature does not match the raw body
// before any handler parses it. The body is restored for the next handler.
func (v *Verifier) Middleware(log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, MaxBodyBytes+1))
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge), err == nil && len(body) > MaxBodyBytes:
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}

		if !v.Verify(c.GetHeader(common.WebhookSignatureHeaderName), body) {
			log.Warn(c.Request.Context(), "webhook signature rejected", "path", c.FullPath(), "client_ip", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		c.Next()
	}
}
