package authctl

import "errors"

var (
	ErrUnavailable   = errors.New("server unavailable")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrUsage         = errors.New("usage error")
	ErrPasswordEmpty = errors.New("empty password")
)
