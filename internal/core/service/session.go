package service

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mmsocial/mmclient/internal/core/domain"
	"github.com/mmsocial/mmclient/internal/infra/sealer"
	"github.com/mmsocial/mmclient/internal/storage"
	"github.com/mmsocial/mmclient/internal/telemetry/logger"
)

// Storage layout. Both keys are always written and deleted together.
const (
	SessionNamespace = "auth_prefs/"

	tokenKey  = SessionNamespace + "access_token"
	expiryKey = SessionNamespace + "expiry_time"
)

// SessionStore owns the bearer token and its absolute expiry.
//
// Save and Clear are the only writers. Reads go through an in-memory copy
// that is loaded lazily from the engine and replaced after every commit.
type SessionStore struct {
	kv     storage.KVEngine
	cipher sealer.Cipher
	now    func() time.Time
	logger logger.Logger

	mu     sync.RWMutex
	cached *domain.Session // nil means "no session"
	loaded bool

	subMu   sync.Mutex
	subs    map[int]func(domain.SessionChange)
	nextSub int
}

// SessionStoreOption configures a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithClock overrides the wall clock used for expiry.
func WithClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		s.now = now
	}
}

// WithCipher seals the token at rest.
func WithCipher(c sealer.Cipher) SessionStoreOption {
	return func(s *SessionStore) {
		s.cipher = c
	}
}

// WithSessionLogger sets the store's logger.
func WithSessionLogger(l logger.Logger) SessionStoreOption {
	return func(s *SessionStore) {
		s.logger = l
	}
}

// NewSessionStore creates a store on top of kv.
func NewSessionStore(kv storage.KVEngine, opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{
		kv:     kv,
		now:    time.Now,
		logger: logger.Discard(),
		subs:   make(map[int]func(domain.SessionChange)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores token with an expiry of now + expiresIn seconds. The
// absolute expiry is computed here, once.
func (s *SessionStore) Save(ctx context.Context, token string, expiresIn int64) error {
	sess := domain.NewSession(token, expiresIn, s.now())

	tokenBytes := []byte(token)
	if s.cipher != nil {
		sealed, err := s.cipher.Seal(tokenBytes, []byte(tokenKey))
		if err != nil {
			return domain.ErrStorageError.WithCause(err)
		}
		tokenBytes = sealed
	}

	expiry := make([]byte, 8)
	binary.BigEndian.PutUint64(expiry, uint64(sess.ExpiresAt))

	s.mu.Lock()
	err := s.kv.Update(ctx, func(w storage.Writer) error {
		if err := w.Set([]byte(tokenKey), tokenBytes); err != nil {
			return err
		}
		return w.Set([]byte(expiryKey), expiry)
	})
	if err != nil {
		s.mu.Unlock()
		return domain.ErrStorageError.WithCause(err)
	}
	s.cached = sess
	s.loaded = true
	s.mu.Unlock()

	s.logger.Debug("session saved", "session", sess)
	s.notify(domain.SessionChange{
		Valid:     sess.IsValidAt(s.now()),
		ExpiresAt: sess.ExpiresAt,
	})
	return nil
}

// Read returns the stored token, if any. It does not check expiry.
func (s *SessionStore) Read(ctx context.Context) (string, bool) {
	sess := s.current(ctx)
	if sess == nil || sess.Token == "" {
		return "", false
	}
	return sess.Token, true
}

// IsValid reports whether a token is present and now < expiresAt.
func (s *SessionStore) IsValid(ctx context.Context) bool {
	return s.current(ctx).IsValidAt(s.now())
}

// Current returns a copy of the stored session. It returns
// ErrSessionNotFound when nothing is stored and ErrSessionExpired, along
// with the session, when it is past its expiry.
func (s *SessionStore) Current(ctx context.Context) (*domain.Session, error) {
	sess := s.current(ctx)
	if sess == nil || sess.Token == "" {
		return nil, domain.ErrSessionNotFound
	}
	out := *sess
	if !out.IsValidAt(s.now()) {
		return &out, domain.ErrSessionExpired
	}
	return &out, nil
}

// Clear erases both fields.
func (s *SessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	err := s.kv.Update(ctx, func(w storage.Writer) error {
		if err := w.Delete([]byte(tokenKey)); err != nil {
			return err
		}
		return w.Delete([]byte(expiryKey))
	})
	if err != nil {
		s.mu.Unlock()
		return domain.ErrStorageError.WithCause(err)
	}
	s.cached = nil
	s.loaded = true
	s.mu.Unlock()

	s.logger.Debug("session cleared")
	s.notify(domain.SessionChange{Cleared: true})
	return nil
}

// Subscribe registers fn to be called after every successful Save or
// Clear. Calls happen synchronously on the writer's goroutine. The
// returned function removes the subscription.
func (s *SessionStore) Subscribe(fn func(domain.SessionChange)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

// SessionStatus reports validity and remaining lifetime in seconds. It
// satisfies metric.SessionSource.
func (s *SessionStore) SessionStatus() (bool, float64) {
	sess := s.current(context.Background())
	now := s.now()
	if !sess.IsValidAt(now) {
		return false, 0
	}
	return true, sess.Remaining(now).Seconds()
}

func (s *SessionStore) notify(change domain.SessionChange) {
	s.subMu.Lock()
	fns := make([]func(domain.SessionChange), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// current returns the cached session, loading it on first use.
func (s *SessionStore) current(ctx context.Context) *domain.Session {
	s.mu.RLock()
	if s.loaded {
		sess := s.cached
		s.mu.RUnlock()
		return sess
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.cached
	}

	sess, err := s.load(ctx)
	if err != nil {
		// A store that cannot be read behaves as logged out. The failure is
		// not cached so the next read retries.
		s.logger.Warn("session load failed", "error", err)
		return nil
	}
	s.cached = sess
	s.loaded = true
	return sess
}

func (s *SessionStore) load(ctx context.Context) (*domain.Session, error) {
	var tokenBytes, expiry []byte
	err := s.kv.View(ctx, func(r storage.Reader) error {
		var err error
		if tokenBytes, err = r.Get([]byte(tokenKey)); err != nil {
			return err
		}
		expiry, err = r.Get([]byte(expiryKey))
		return err
	})
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(expiry) != 8 {
		return nil, fmt.Errorf("corrupt %s: %d bytes", expiryKey, len(expiry))
	}

	if s.cipher != nil {
		plain, err := s.cipher.Open(tokenBytes, []byte(tokenKey))
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", tokenKey, err)
		}
		tokenBytes = plain
	}

	return &domain.Session{
		Token:     string(tokenBytes),
		ExpiresAt: int64(binary.BigEndian.Uint64(expiry)),
	}, nil
}
