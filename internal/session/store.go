package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/jask/flowbit/internal/metrics"
	"github.com/jask/flowbit/internal/secrets"
)

// TokenKey is the fixed local storage key holding the bearer token.
const TokenKey = "access_token"

// storage timeout for every local storage call made by the store
const storageTimeout = 2 * time.Second

// Teardown reasons.
const (
	ReasonLogout       = "logout"
	ReasonUnauthorized = "unauthorized"
)

// Storage is the persistent key/value area backing the store.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, keys ...string) error
}

// Claims are the display-only fields of the bearer token. They are never verified here.
type Claims struct {
	Subject   string
	Tenant    string
	Role      string
	ExpiresAt time.Time
}

// Store holds the single active bearer token. It is safe for concurrent use:
// the UI loop and command goroutines both read it.
type Store struct {
	mu         sync.Mutex
	storage    Storage
	sealer     *secrets.Sealer
	log        *logrus.Logger
	token      string
	loaded     bool
	generation uint64
	onClear    func(reason string)
	persistErr error
}

// NewStore builds a store over storage. sealer may be nil to keep tokens in plain text.
func NewStore(storage Storage, sealer *secrets.Sealer, log *logrus.Logger) *Store {
	return &Store{storage: storage, sealer: sealer, log: log}
}

// OnClear registers the reload signal issued after every teardown.
func (s *Store) OnClear(fn func(reason string)) {
	s.mu.Lock()
	s.onClear = fn
	s.mu.Unlock()
}

// Token returns the persisted token.
func (s *Store) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked()
	return s.token, s.token != ""
}

// Authenticated reports whether a token is present.
func (s *Store) Authenticated() bool {
	_, ok := s.Token()
	return ok
}

// Generation increases on every SetToken and teardown.
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// SetToken persists token and marks the session authenticated.
func (s *Store) SetToken(token string) error {
	if token == "" {
		return fmt.Errorf("session: empty token")
	}
	value := token
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(token)
		if err != nil {
			return fmt.Errorf("session: seal token: %w", err)
		}
		value = sealed
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	if err := s.storage.Set(ctx, TokenKey, value); err != nil {
		return fmt.Errorf("session: persist token: %w", err)
	}
	s.token = token
	s.loaded = true
	s.persistErr = nil
	s.generation++
	s.log.WithField("generation", s.generation).Info("session started")
	return nil
}

// Clear removes the token unconditionally and issues one reload signal.
func (s *Store) Clear() {
	s.mu.Lock()
	s.teardownLocked(ReasonLogout)
	fn := s.onClear
	s.mu.Unlock()
	if fn != nil {
		fn(ReasonLogout)
	}
}

// Invalidate tears the session down if token is still the active one. It reports
// whether a teardown happened. Repeated 401s for the same token tear down once and
// a late 401 from an older session leaves the current one alone.
func (s *Store) Invalidate(token string) bool {
	s.mu.Lock()
	s.loadLocked()
	if token == "" || token != s.token {
		s.mu.Unlock()
		return false
	}
	s.teardownLocked(ReasonUnauthorized)
	fn := s.onClear
	s.mu.Unlock()
	if fn != nil {
		fn(ReasonUnauthorized)
	}
	return true
}

// PersistError reports a teardown that left the token in local storage. The token
// would come back on the next start.
func (s *Store) PersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistErr
}

// Claims decodes the token payload without verifying it.
func (s *Store) Claims() (Claims, bool) {
	token, ok := s.Token()
	if !ok {
		return Claims{}, false
	}
	return ParseClaims(token)
}

// ParseClaims reads sub, customer_id, role and exp from a JWT without verification.
func ParseClaims(token string) (Claims, bool) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, false
	}
	c := Claims{
		Subject: stringClaim(mc, "sub"),
		Tenant:  stringClaim(mc, "customer_id"),
		Role:    stringClaim(mc, "role"),
	}
	if exp, err := mc.GetExpirationTime(); err == nil && exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, true
}

func stringClaim(mc jwt.MapClaims, key string) string {
	if v, ok := mc[key].(string); ok {
		return v
	}
	return ""
}

func (s *Store) loadLocked() {
	if s.loaded {
		return
	}
	s.loaded = true
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	value, ok, err := s.storage.Get(ctx, TokenKey)
	if err != nil {
		s.log.WithError(err).Warn("read stored token")
		return
	}
	if !ok || value == "" {
		return
	}
	if s.sealer != nil {
		plain, err := s.sealer.Open(value)
		if err != nil {
			// unreadable token is as good as none; drop it so the next start is clean
			s.log.WithError(err).Warn("stored token unreadable, discarding")
			_ = s.storage.Remove(ctx, TokenKey)
			return
		}
		value = plain
	}
	s.token = value
}

func (s *Store) teardownLocked(reason string) {
	s.persistErr = s.forgetLocked()
	if s.persistErr != nil {
		s.log.WithError(s.persistErr).Error("stored token could not be removed")
	}
	s.token = ""
	s.loaded = true
	s.generation++
	metrics.RecordTeardown(reason)
	s.log.WithField("reason", reason).WithField("generation", s.generation).Info("session torn down")
}

// forgetLocked removes the stored token, retrying once and falling back to an empty
// value, which reads as no token.
func (s *Store) forgetLocked() error {
	ctx, cancel := context.WithTimeout(context.Background(), storageTimeout)
	defer cancel()
	err := s.storage.Remove(ctx, TokenKey)
	if err == nil {
		return nil
	}
	s.log.WithError(err).Warn("remove stored token, retrying")
	if err = s.storage.Remove(ctx, TokenKey); err == nil {
		return nil
	}
	if serr := s.storage.Set(ctx, TokenKey, ""); serr != nil {
		return fmt.Errorf("session: remove token: %w (blanking also failed: %v)", err, serr)
	}
	s.log.WithError(err).Warn("stored token blanked instead of removed")
	return nil
}
