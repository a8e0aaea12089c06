package models

import "time"

// LinkedSecret is a third-party credential (for example a linked
// institution's access handle) stored as SecretCipher output. Ciphertext
// must never appear in a response or a log line.
type LinkedSecret struct {
	AccountID  string    `db:"account_id"`
	Provider   string    `db:"provider"`
	Ciphertext string    `db:"ciphertext"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
