package models

import "time"

// ResetToken is a single-use password reset grant. Used only ever moves
// from false to true.
type ResetToken struct {
	TokenHash string     `db:"token_hash"`
	AccountID string     `db:"account_id"`
	ExpiresAt time.Time  `db:"expires_at"`
	Used      bool       `db:"used"`
	UsedAt    *time.Time `db:"used_at"`
	CreatedAt time.Time  `db:"created_at"`
}
