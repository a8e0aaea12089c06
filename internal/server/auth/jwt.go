// Package auth issues and verifies the signed bearer tokens used by authcore.
//
// Every token carries a type discriminator and a schema version. Verify
// checks both, so a refresh token can never be accepted where an access
// token is expected and tokens minted before the discriminator existed are
// rejected in one place instead of being sniffed by callers.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType discriminates what a token may be used for.
type TokenType string

const (
	TypeAccess  TokenType = "access"
	TypeRefresh TokenType = "refresh"
	TypeReset   TokenType = "reset"
)

// CurrentVersion is the token schema version written by Issue. Tokens with a
// lower version (including the untyped v1 format, which has none) fail Verify.
const CurrentVersion = 2

// Verification failures. All wrap common.ErrInvalidToken; callers must not
// tell them apart in responses.
var (
	ErrMalformed     = fmt.Errorf("%w: malformed", common.ErrInvalidToken)
	ErrBadSignature  = fmt.Errorf("%w: bad signature", common.ErrInvalidToken)
	ErrExpired       = fmt.Errorf("%w: expired", common.ErrInvalidToken)
	ErrTypeMismatch  = fmt.Errorf("%w: type mismatch", common.ErrInvalidToken)
	ErrStaleVersion  = fmt.Errorf("%w: stale version", common.ErrInvalidToken)
	ErrInvalidClaims = fmt.Errorf("%w: invalid claims", common.ErrInvalidToken)
)

// Claims is the payload of every authcore token.
type Claims struct {
	AccountID string    `json:"account_id"`
	Role      string    `json:"role,omitempty"`
	Type      TokenType `json:"typ"`
	Version   int       `json:"ver"`
	jwt.RegisteredClaims
}

// Options configures a TokenService.
type Options struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Audience      string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// TokenService signs tokens with HS256. Access tokens use the access secret;
// refresh and reset tokens use the refresh secret. It holds no mutable state
// and is safe for concurrent use.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	audience      string
	now           func() time.Time
}

func NewTokenService(o Options) (*TokenService, error) {
	if len(o.AccessSecret) == 0 || len(o.RefreshSecret) == 0 {
		return nil, errors.New("token signing secrets are required")
	}
	if o.Issuer == "" || o.Audience == "" {
		return nil, errors.New("token issuer and audience are required")
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return &TokenService{
		accessSecret:  o.AccessSecret,
		refreshSecret: o.RefreshSecret,
		issuer:        o.Issuer,
		audience:      o.Audience,
		now:           o.Now,
	}, nil
}

func (s *TokenService) secretFor(t TokenType) ([]byte, bool) {
	switch t {
	case TypeAccess:
		return s.accessSecret, true
	case TypeRefresh, TypeReset:
		return s.refreshSecret, true
	default:
		return nil, false
	}
}

// Issue signs a token of type typ for accountID valid for ttl. Each token
// gets a random jti, so two tokens are never byte-identical.
func (s *TokenService) Issue(accountID, role string, typ TokenType, ttl time.Duration) (string, error) {
	secret, ok := s.secretFor(typ)
	if !ok {
		return "", fmt.Errorf("unknown token type %q", typ)
	}
	if accountID == "" || ttl <= 0 {
		return "", errors.New("account id and positive ttl are required")
	}

	now := s.now()
	claims := Claims{
		AccountID: accountID,
		Role:      role,
		Type:      typ,
		Version:   CurrentVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks signature, issuer, audience, expiry, schema version and that
// the embedded type equals expected. The signing key is selected by the
// token's own type claim, so a correctly signed token of the wrong type
// reports ErrTypeMismatch rather than ErrBadSignature.
func (s *TokenService) Verify(tokenString string, expected TokenType) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		c, ok := t.Claims.(*Claims)
		if !ok {
			return nil, ErrMalformed
		}
		if c.Version < CurrentVersion {
			return nil, ErrStaleVersion
		}
		secret, ok := s.secretFor(c.Type)
		if !ok {
			return nil, ErrMalformed
		}
		return secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrMalformed
	}

	if claims.Type != expected {
		return nil, ErrTypeMismatch
	}
	if claims.AccountID == "" {
		return nil, ErrInvalidClaims
	}

	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrStaleVersion):
		return ErrStaleVersion
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued),
		errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrInvalidClaims
	default:
		return ErrMalformed
	}
}
