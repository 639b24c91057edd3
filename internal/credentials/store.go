// Package credentials persists the access/renewal credential pair and the
// access credential's expiry. It performs no network I/O.
package credentials

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// DefaultExpiryThreshold matches the server's silent-refresh window.
const DefaultExpiryThreshold = 2 * time.Minute

// Store holds exactly one live credential pair.
type Store interface {
	// Save records the pair. When the access credential's expiry cannot be
	// decoded, or the pair cannot be persisted, the prior state is kept and
	// the cause is returned.
	Save(access, renewal string) error
	Access() string
	Renewal() string
	// Token returns a copy of the live pair, or nil when nothing is stored.
	Token() *oauth2.Token
	IsExpired() bool
	ExpiringSoon(threshold time.Duration) bool
	Clear()
}

var (
	// ErrUndecodable reports an access credential without a readable expiry.
	ErrUndecodable = errors.New("unreadable access credential")
	// ErrNotPersisted reports a pair that could not be written to storage.
	ErrNotPersisted = errors.New("credentials not persisted")
)

// accessClaims is the part of the access JWT the client reads.
type accessClaims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// DecodeExpiry extracts the exp claim of an access JWT without verifying its
// signature; the server remains the authority on validity.
func DecodeExpiry(access string) (time.Time, error) {
	claims := &accessClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrUndecodable, err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("%w: no exp claim", ErrUndecodable)
	}
	return claims.ExpiresAt.Time, nil
}

// MemoryStore is a goroutine-safe, process-lifetime Store.
type MemoryStore struct {
	mu    sync.RWMutex
	token *oauth2.Token
	now   func() time.Time

	// persist is called with the new state after every mutation, under mu.
	persist func(*oauth2.Token) error
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// SetClock overrides the time source, for tests.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Save(access, renewal string) error {
	expiry, err := DecodeExpiry(access)
	if err != nil {
		log.Error().Err(err).Msg("Error saving tokens")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := &oauth2.Token{
		AccessToken:  access,
		RefreshToken: renewal,
		TokenType:    "Bearer",
		Expiry:       expiry,
	}
	if s.persist != nil {
		if err := s.persist(next); err != nil {
			log.Error().Err(err).Msg("Failed to persist tokens, keeping previous state")
			return fmt.Errorf("%w: %w", ErrNotPersisted, err)
		}
	}
	s.token = next
	log.Debug().Time("expires_at", expiry).Msg("Saved credential pair")
	return nil
}

func (s *MemoryStore) Access() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return ""
	}
	return s.token.AccessToken
}

func (s *MemoryStore) Renewal() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return ""
	}
	return s.token.RefreshToken
}

func (s *MemoryStore) Token() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil
	}
	t := *s.token
	return &t
}

// IsExpired treats a missing expiry as expired.
func (s *MemoryStore) IsExpired() bool {
	return s.ExpiringSoon(0)
}

func (s *MemoryStore) ExpiringSoon(threshold time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil || s.token.Expiry.IsZero() {
		return true
	}
	return !s.now().Add(threshold).Before(s.token.Expiry)
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persist != nil {
		if err := s.persist(nil); err != nil {
			log.Warn().Err(err).Msg("Failed to remove persisted tokens")
		}
	}
	s.token = nil
}
