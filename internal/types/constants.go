package types

const (
	ContextUserKey = "user"
	ContextRoleKey = "role"

	RequestIDHeader = "X-Request-ID"
	TokenCookieName = "token"
)
