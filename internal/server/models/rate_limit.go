package models

import "time"

// RateLimitRecord is one fixed-window counter. It lives only as long as the
// window, inside the limiter's store.
type RateLimitRecord struct {
	Identifier  string
	WindowStart time.Time
	Count       int
}
