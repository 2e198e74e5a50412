package service

import (
	"context"
	"strings"

	"github.com/mmsocial/mmclient/internal/core/domain"
	"github.com/mmsocial/mmclient/internal/telemetry/logger"
)

// Route paths used by Guard.
const (
	HomePath      = "/"
	LoginRoute    = "/login"
	RegisterRoute = "/register"
)

// PublicPaths are reachable without a session.
var PublicPaths = []string{LoginRoute, RegisterRoute}

// SessionChecker reports session validity.
type SessionChecker interface {
	IsValid(ctx context.Context) bool
}

// IdentityFetcher confirms who the session belongs to.
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context) (*domain.Identity, error)
}

// Gate decides between the login view and the authenticated view. It
// keeps no state of its own; every call consults the SessionChecker.
type Gate struct {
	sessions SessionChecker
	logger   logger.Logger
}

// NewGate creates a gate over sessions.
func NewGate(sessions SessionChecker, l logger.Logger) *Gate {
	if l == nil {
		l = logger.Discard()
	}
	return &Gate{sessions: sessions, logger: l}
}

// Decide returns the view for the current session.
func (g *Gate) Decide(ctx context.Context) domain.View {
	if g.sessions.IsValid(ctx) {
		return domain.ViewAuthenticated
	}
	return domain.ViewLogin
}

// Enter navigates to the decided view and drops all history below it.
// Back can then reach neither the login view from the authenticated one
// nor a stale authenticated view from the login one.
func (g *Gate) Enter(ctx context.Context, nav *Navigator) domain.View {
	v := g.Decide(ctx)
	nav.ResetTo(v)
	return v
}

// Back pops nav and re-checks the session against the view it lands on.
// Landing on the authenticated view without a valid session resets nav
// to the login view instead.
func (g *Gate) Back(ctx context.Context, nav *Navigator) (domain.View, bool) {
	v, ok := nav.Back()
	if ok && v == domain.ViewAuthenticated && g.Decide(ctx) != domain.ViewAuthenticated {
		g.logger.Debug("back blocked, session no longer valid")
		nav.ResetTo(domain.ViewLogin)
		return domain.ViewLogin, false
	}
	return v, ok
}

// Guard checks a route. It returns ok=true when path may be shown as is,
// otherwise the path to redirect to.
func (g *Gate) Guard(ctx context.Context, path string) (redirect string, ok bool) {
	public := IsPublicPath(path)
	valid := g.sessions.IsValid(ctx)

	switch {
	case public && valid:
		return HomePath, false
	case !public && !valid:
		return LoginRoute, false
	default:
		return "", true
	}
}

// Confirm fetches the identity behind a valid session. Any failure,
// including an expired or missing session, yields the login view.
func (g *Gate) Confirm(ctx context.Context, auth IdentityFetcher) (*domain.Identity, domain.View) {
	if g.Decide(ctx) != domain.ViewAuthenticated {
		return nil, domain.ViewLogin
	}
	id, err := auth.FetchIdentity(ctx)
	if err != nil {
		g.logger.Info("identity not confirmed", "error", err)
		return nil, domain.ViewLogin
	}
	return id, domain.ViewAuthenticated
}

// IsPublicPath reports whether path, ignoring query and fragment, is
// reachable without a session.
func IsPublicPath(path string) bool {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, p := range PublicPaths {
		if path == p {
			return true
		}
	}
	return false
}
