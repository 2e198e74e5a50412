package domain

import (
	"log/slog"
	"math"
	"strings"
	"time"
)

// Session is the unit of "being logged in": a bearer token plus the
// absolute instant it stops being accepted.
type Session struct {
	// Token is the opaque bearer token returned by the backend.
	Token string `json:"token"`

	// ExpiresAt is the absolute expiration timestamp (Unix milliseconds).
	// It is computed once, when the login response is received.
	ExpiresAt int64 `json:"expires_at"`
}

// MaxExpiresAt is the latest expiry a Session records: the last
// millisecond of year 9999 UTC, the end of the range JSON and YAML
// timestamps can represent. Longer lifetimes are clamped to it.
var MaxExpiresAt = time.Date(9999, 12, 31, 23, 59, 59, 999_000_000, time.UTC).UnixMilli()

// NewSession builds a Session from a relative lifetime. The relative
// value is converted to an absolute timestamp here and never again.
// The arithmetic saturates: a positive lifetime always yields an expiry
// after now, a negative one an expiry at or before it.
func NewSession(token string, expiresIn int64, now time.Time) *Session {
	return &Session{
		Token:     token,
		ExpiresAt: expiryMillis(now.UnixMilli(), expiresIn),
	}
}

func expiryMillis(nowMs, expiresIn int64) int64 {
	switch {
	case expiresIn > (MaxExpiresAt-nowMs)/1000:
		return MaxExpiresAt
	case expiresIn < -math.MaxInt64/1000:
		return nowMs
	}
	return nowMs + expiresIn*1000
}

// IsValidAt reports whether the session is usable at the given instant.
// A session is valid iff the token is non-empty and now < ExpiresAt.
func (s *Session) IsValidAt(now time.Time) bool {
	if s == nil || s.Token == "" {
		return false
	}
	return now.UnixMilli() < s.ExpiresAt
}

// ExpiresAtTime returns ExpiresAt as a time.Time.
func (s *Session) ExpiresAtTime() time.Time {
	return time.UnixMilli(s.ExpiresAt)
}

// Remaining returns the lifetime left at now, floored at zero.
func (s *Session) Remaining(now time.Time) time.Duration {
	d := s.ExpiresAtTime().Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// LogValue keeps the token out of structured logs.
func (s *Session) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("has_token", s.Token != ""),
		slog.Int64("expires_at", s.ExpiresAt),
	)
}

// SessionChange is delivered to session store subscribers after every
// successful write.
type SessionChange struct {
	// Valid is the validity of the session right after the change.
	Valid bool

	// ExpiresAt is the new absolute expiry, zero when cleared.
	ExpiresAt int64

	// Cleared is true when the change was a logout/clear.
	Cleared bool
}

// ============================================================================
// Login exchange
// ============================================================================

// Credentials is the username/password pair for one login call.
// It is never persisted.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate performs the non-blank checks the login form performs.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Username) == "" {
		return ErrMissingArgument.WithDetails("username cannot be empty")
	}
	if strings.TrimSpace(c.Password) == "" {
		return ErrMissingArgument.WithDetails("password cannot be empty")
	}
	return nil
}

// LogValue never exposes the password.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(slog.String("username", c.Username))
}

// LoginResult is the decoded body of a successful login response.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// LogValue keeps the access token out of structured logs.
func (r *LoginResult) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("token_type", r.TokenType),
		slog.Int64("expires_in", r.ExpiresIn),
	)
}

// Identity is the authenticated user as returned by GET /user/me.
// It is replaced wholesale on refresh and cleared on logout.
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ============================================================================
// Gate views
// ============================================================================

// View is the destination chosen by the session gate.
type View string

const (
	// ViewLogin is the unauthenticated entry view.
	ViewLogin View = "login"

	// ViewAuthenticated is the main view behind the gate.
	ViewAuthenticated View = "home"
)

// String implements fmt.Stringer.
func (v View) String() string {
	return string(v)
}
