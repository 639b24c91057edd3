// Package session is the authentication state machine of the client.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/taskdeck/internal/apierr"
	"github.com/taskdeck/internal/challenge"
	"github.com/taskdeck/internal/credentials"
	"github.com/taskdeck/internal/gateway"
	"github.com/taskdeck/internal/notify"
)

type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	EmailUnverified
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case EmailUnverified:
		return "email-unverified"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Transport is the part of the request gateway the controller needs.
type Transport interface {
	Send(ctx context.Context, req *gateway.Request) (*gateway.Response, error)
	OnUnauthenticated(fn func())
}

// Controller owns the session lifecycle. It is safe for concurrent use.
type Controller struct {
	transport Transport
	store     credentials.Store
	challenge *challenge.State
	notifier  notify.Notifier

	mu         sync.RWMutex
	state      State
	user       *User
	loading    bool
	generation uint64
}

// NewController wires a controller to the gateway and the state objects the
// gateway shares. The controller drops to Anonymous whenever the gateway
// gives up on the session.
func NewController(t Transport, store credentials.Store, ch *challenge.State, n notify.Notifier) *Controller {
	if n == nil {
		n = notify.Discard
	}
	c := &Controller{
		transport: t,
		store:     store,
		challenge: ch,
		notifier:  n,
		loading:   true,
	}
	t.OnUnauthenticated(c.reset)
	return c
}

func (c *Controller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = nil
	c.state = Anonymous
}

func stateFor(u *User) State {
	if u.IsEmailVerified {
		return Authenticated
	}
	return EmailUnverified
}

// Start resolves the initial state from stored credentials. Cancelling ctx
// abandons the check without touching credentials or state; a later Start
// supersedes an earlier one still in flight.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.loading = true
	c.mu.Unlock()

	if c.store.Access() == "" || c.store.IsExpired() {
		c.mu.Lock()
		if gen == c.generation {
			c.loading = false
		}
		c.mu.Unlock()
		log.Debug().Msg("No usable stored credential, starting anonymous")
		return nil
	}

	user, err := c.fetchProfile(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		log.Debug().Msg("Session check cancelled")
		return ctx.Err()
	}
	if gen != c.generation {
		log.Debug().Msg("Session check superseded")
		return nil
	}
	c.loading = false

	if err != nil {
		log.Warn().Err(err).Msg("Failed to load user")
		c.store.Clear()
		c.user = nil
		c.state = Anonymous
		return fmt.Errorf("failed to restore session: %w", err)
	}
	c.user = user
	c.state = stateFor(user)
	log.Info().Str("username", user.Username).Str("state", c.state.String()).Msg("Session restored")
	return nil
}

// Login authenticates with username and password, answering an armed
// challenge if the user supplied an answer.
func (c *Controller) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	previous := c.state
	c.state = Authenticating
	c.mu.Unlock()

	req := gateway.NewRequest(http.MethodPost, "/auth/login/", map[string]string{
		"username": username,
		"password": password,
	})
	if answer, ok := c.challenge.Answer(); ok {
		req.Header.Set(gateway.HeaderCaptchaAnswer, answer)
	}

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return c.failLogin(previous, err)
	}

	var pair gateway.Pair
	if err := resp.Decode(&pair); err != nil {
		return c.failLogin(previous, err)
	}
	if err := c.store.Save(pair.Access, pair.Refresh); err != nil {
		if errors.Is(err, credentials.ErrUndecodable) {
			return c.failLogin(previous, apierr.Wrap(apierr.CredentialDecodeFailure, err, "server issued an unreadable access credential"))
		}
		return c.failLogin(previous, apierr.Wrap(apierr.Unknown, err, "failed to store credentials"))
	}
	c.challenge.Clear()

	user, err := c.fetchProfile(ctx)
	if err != nil {
		c.store.Clear()
		return c.failLogin(Anonymous, err)
	}

	c.mu.Lock()
	c.user = user
	c.state = stateFor(user)
	c.loading = false
	c.mu.Unlock()

	log.Info().Str("username", user.Username).Msg("Logged in")
	c.notifier.Notify(notify.Success, "Login successful!")
	return nil
}

func (c *Controller) failLogin(previous State, err error) error {
	if errors.Is(err, apierr.ChallengeRequired) {
		// The gateway re-armed the challenge; the old answer is stale.
		c.challenge.ClearAnswer()
	}

	c.mu.Lock()
	if c.state == Authenticating {
		c.state = previous
		if previous == Authenticating {
			c.state = Anonymous
		}
	}
	c.mu.Unlock()

	log.Warn().Err(err).Msg("Login failed")
	c.notifier.Notify(notify.Error, apierr.Message(err, "Login failed"))
	return err
}

// Register creates an account. It never changes the session: the user signs
// in after verifying their email.
func (c *Controller) Register(ctx context.Context, reg Registration) error {
	if err := reg.Validate(); err != nil {
		c.notifier.Notify(notify.Error, apierr.Message(err, "Registration failed"))
		return err
	}

	if _, err := c.transport.Send(ctx, gateway.NewRequest(http.MethodPost, "/auth/register/", reg)); err != nil {
		c.notifier.Notify(notify.Error, apierr.Message(err, "Registration failed"))
		return err
	}

	log.Info().Str("username", reg.Username).Str("role", string(reg.Role)).Msg("Registered account")
	c.notifier.Notify(notify.Success, "Registration successful! Please verify your email.")
	return nil
}

// Logout revokes the renewal credential on a best-effort basis and always
// ends the local session.
func (c *Controller) Logout(ctx context.Context) {
	if renewal := c.store.Renewal(); renewal != "" {
		req := gateway.NewRequest(http.MethodPost, "/auth/logout/", map[string]string{"refresh": renewal})
		if _, err := c.transport.Send(ctx, req); err != nil {
			log.Warn().Err(err).Msg("Logout error")
		}
	}

	c.store.Clear()
	c.challenge.Clear()
	c.reset()
	c.notifier.Notify(notify.Success, "Logged out successfully")
}

// VerifyEmail submits an email verification code. When a session exists the
// profile is refreshed to pick up the verified flag.
func (c *Controller) VerifyEmail(ctx context.Context, code string) error {
	path := "/auth/verify-email/" + url.PathEscape(code) + "/"
	if _, err := c.transport.Send(ctx, gateway.NewRequest(http.MethodGet, path, nil)); err != nil {
		c.notifier.Notify(notify.Error, apierr.Message(err, "Verification failed"))
		return err
	}

	if c.store.Access() != "" {
		if err := c.RefreshUser(ctx); err != nil {
			c.notifier.Notify(notify.Error, apierr.Message(err, "Verification failed"))
			return err
		}
	}
	c.notifier.Notify(notify.Success, "Email verified successfully!")
	return nil
}

// RefreshUser re-reads the profile of the signed-in user.
func (c *Controller) RefreshUser(ctx context.Context) error {
	user, err := c.fetchProfile(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to refresh user")
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = user
	c.state = stateFor(user)
	return nil
}

// Staff returns the directory of assignable users.
func (c *Controller) Staff(ctx context.Context) (Staff, error) {
	resp, err := c.transport.Send(ctx, gateway.NewRequest(http.MethodGet, "/auth/staff/", nil))
	if err != nil {
		return nil, err
	}
	var staff Staff
	if err := resp.Decode(&staff); err != nil {
		return nil, err
	}
	return staff, nil
}

func (c *Controller) fetchProfile(ctx context.Context) (*User, error) {
	resp, err := c.transport.Send(ctx, gateway.NewRequest(http.MethodGet, "/auth/me/", nil))
	if err != nil {
		return nil, err
	}
	var u User
	if err := resp.Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// User returns a copy of the current profile, or nil when anonymous.
func (c *Controller) User() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

func (c *Controller) IsAuthenticated() bool {
	s := c.State()
	return s == Authenticated || s == EmailUnverified
}

func (c *Controller) IsEmailVerified() bool {
	return c.State() == Authenticated
}

// Loading reports whether the startup check is still unresolved.
func (c *Controller) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}
