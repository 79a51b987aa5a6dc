package model

import "time"

// Session maps an opaque token to its owning user. Tokens are generated
// server-side from a CSPRNG and never derived from request data.
type Session struct {
	Token     string    `json:"-"`
	UserID    int       `json:"user_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PasswordReset is a single-use, short-lived reset request. Only the SHA-256
// of the token is persisted; the raw token leaves the process exactly once,
// via the mailer.
type PasswordReset struct {
	TokenHash string
	UserID    int
	ExpiresAt time.Time
}
