package common

const (
	// AuthorizationHeaderName carries the bearer access token on API requests.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the access token inside the Authorization header.
	BearerPrefix = "Bearer "

	// RequestIDHeaderName correlates a request with its log lines.
	RequestIDHeaderName = "X-Request-ID"
)
