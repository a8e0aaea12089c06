package common

const (
	// AuthorizationHeaderName carries "Bearer <access token>" on HTTP requests
	// and gRPC metadata.
	AuthorizationHeaderName = "authorization"

	// BearerPrefix is the scheme prefix expected in AuthorizationHeaderName.
	BearerPrefix = "Bearer "

	// WebhookSignatureHeaderName carries the HMAC-SHA256 signature of an
	// inbound webhook body.
	WebhookSignatureHeaderName = "X-Webhook-Signature"

	// RequestIDHeaderName is echoed back on every HTTP response.
	RequestIDHeaderName = "X-Request-ID"
)
