package models

import "time"

// Session links an account to its current access/refresh token pair.
//
// The token fields hold handles (SHA-256 of the raw token), each unique
// across all sessions. A session is valid iff now < ExpiresAt.
type Session struct {
	ID               string    `db:"id"`
	AccountID        string    `db:"account_id"`
	AccessTokenHash  string    `db:"access_token_hash"`
	RefreshTokenHash string    `db:"refresh_token_hash"`
	IssuedAt         time.Time `db:"issued_at"`
	ExpiresAt        time.Time `db:"expires_at"`
	LastUsedAt       time.Time `db:"last_used_at"`
	IP               string    `db:"ip"`
	UserAgent        string    `db:"user_agent"`
}

// Valid reports whether the session is unexpired at now.
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// ClientMeta describes the client a session was opened from.
type ClientMeta struct {
	IP        string
	UserAgent string
}
