package service

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/mmsocial/mmclient/internal/cli/connection"
	"github.com/mmsocial/mmclient/internal/core/domain"
	"github.com/mmsocial/mmclient/internal/telemetry/logger"
	"github.com/mmsocial/mmclient/internal/telemetry/metric"
)

// Backend endpoints, relative to the API base URL.
const (
	LoginPath    = "/auth/login"
	IdentityPath = "/user/me"
	UsersPath    = "/user"
)

// Transport sends requests to the backend. A non-nil error means no
// response was received.
type Transport interface {
	Get(ctx context.Context, path, bearer string) (*http.Response, error)
	Post(ctx context.Context, path string, body any) (*http.Response, error)
}

// AuthService performs the login exchange and identity lookups.
//
// Login never retries. A second Login while one is in flight, or one that
// arrives faster than the limiter allows, is rejected without a request.
type AuthService struct {
	transport Transport
	store     *SessionStore
	limiter   *rate.Limiter
	metrics   *metric.Registry
	logger    logger.Logger

	inFlight atomic.Bool
}

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	// LoginRate is the sustained number of login attempts per second.
	LoginRate rate.Limit

	// LoginBurst is the number of attempts allowed back to back.
	LoginBurst int

	Metrics *metric.Registry
	Logger  logger.Logger
}

// DefaultAuthServiceConfig returns default configuration.
func DefaultAuthServiceConfig() *AuthServiceConfig {
	return &AuthServiceConfig{
		LoginRate:  rate.Limit(1),
		LoginBurst: 1,
	}
}

// NewAuthService creates a new AuthService.
func NewAuthService(transport Transport, store *SessionStore, config *AuthServiceConfig) *AuthService {
	if config == nil {
		config = DefaultAuthServiceConfig()
	}
	if config.LoginBurst <= 0 {
		config.LoginBurst = 1
	}
	l := config.Logger
	if l == nil {
		l = logger.Discard()
	}

	return &AuthService{
		transport: transport,
		store:     store,
		limiter:   rate.NewLimiter(config.LoginRate, config.LoginBurst),
		metrics:   config.Metrics,
		logger:    l,
	}
}

// Login exchanges credentials for a session. On success the token is
// saved before Login returns. On any failure the store is untouched.
func (s *AuthService) Login(ctx context.Context, creds domain.Credentials) (result *domain.LoginResult, err error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.ObserveLogin(domain.ErrLoginInFlight)
		return nil, domain.ErrLoginInFlight
	}
	defer s.inFlight.Store(false)

	if !s.limiter.Allow() {
		s.metrics.ObserveLogin(domain.ErrRateLimited)
		return nil, domain.ErrRateLimited
	}

	ctx, reqID := logger.EnsureRequestID(ctx)
	log := s.logger.With("username", creds.Username, "request_id", reqID)
	defer func() {
		s.metrics.ObserveLogin(err)
	}()

	resp, err := s.transport.Post(ctx, LoginPath, creds)
	if err != nil {
		log.Warn("login transport failure", "error", err)
		return nil, domain.ErrTransportFailure.WithCause(err)
	}

	if err := classifyStatus(resp); err != nil {
		connection.Drain(resp)
		log.Info("login rejected", "status", resp.StatusCode)
		return nil, err
	}

	var res domain.LoginResult
	if err := connection.DecodeJSON(resp, &res); err != nil {
		log.Warn("login response unreadable", "error", err)
		return nil, domain.ErrServerFailure.WithStatus(resp.StatusCode).WithCause(err)
	}
	if res.AccessToken == "" {
		return nil, domain.ErrServerFailure.WithStatus(resp.StatusCode).
			WithCause(errors.New("login response has no access_token"))
	}

	if err := s.store.Save(ctx, res.AccessToken, res.ExpiresIn); err != nil {
		return nil, err
	}

	log.Info("login succeeded", "result", &res)
	return &res, nil
}

// FetchIdentity asks the backend who the stored token belongs to.
func (s *AuthService) FetchIdentity(ctx context.Context) (*domain.Identity, error) {
	token, ok := s.store.Read(ctx)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	var id domain.Identity
	if err := s.getJSON(ctx, IdentityPath, token, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// ListUsers returns every account the backend knows about, as seen by
// the stored session.
func (s *AuthService) ListUsers(ctx context.Context) ([]domain.Identity, error) {
	token, ok := s.store.Read(ctx)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	var users []domain.Identity
	if err := s.getJSON(ctx, UsersPath, token, &users); err != nil {
		return nil, err
	}
	s.logger.Debug("users listed", "count", len(users))
	return users, nil
}

func (s *AuthService) getJSON(ctx context.Context, path, token string, target any) error {
	resp, err := s.transport.Get(ctx, path, token)
	if err != nil {
		return domain.ErrTransportFailure.WithCause(err)
	}

	if err := classifyStatus(resp); err != nil {
		connection.Drain(resp)
		return err
	}

	if err := connection.DecodeJSON(resp, target); err != nil {
		return domain.ErrServerFailure.WithStatus(resp.StatusCode).WithCause(err)
	}
	return nil
}

// Logout clears the stored session. It makes no network call.
func (s *AuthService) Logout(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.logger.Info("logged out")
	return nil
}

// classifyStatus maps a non-2xx response to the client error taxonomy.
func classifyStatus(resp *http.Response) error {
	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.ErrInvalidCredentials.WithStatus(code)
	default:
		return domain.ErrServerFailure.WithStatus(code)
	}
}
