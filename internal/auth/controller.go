// Package auth is the session state machine. The only state is whether the
// session store holds a credential; every transition goes through the
// Controller.
package auth

import (
	"context"
	"slices"
	"sync"

	"github.com/go-playground/validator/v10"

	"chemviz/internal/api"
	"chemviz/internal/metrics"
	"chemviz/internal/session"
	"chemviz/internal/transport"
	"chemviz/internal/types"
	"chemviz/internal/utils"
)

// LoginFailedMessage is shown when the backend gives no reason.
const LoginFailedMessage = "Login failed. Please try again."

// ErrMissingCredentials is returned, without contacting the backend, when
// either field is empty.
var ErrMissingCredentials = &Error{Message: "Please enter both username and password"}

// Error is a failed login attempt. Message is safe to show.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "login: " + e.Err.Error()
	}
	return "login: " + e.Message
}

func (e *Error) Unwrap() error       { return e.Err }
func (e *Error) UserMessage() string { return e.Message }

type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

type SignOutReason string

const (
	SignOutLogout   SignOutReason = "logout"
	SignOutRejected SignOutReason = "rejected"
)

// Logins is the backend call the controller needs.
type Logins interface {
	Login(ctx context.Context, req types.LoginRequest) (types.LoginResponse, error)
}

type Controller struct {
	store    session.Store
	backend  Logins
	validate *validator.Validate
	metrics  *metrics.Metrics
	logger   *utils.Logger

	// mu serialises transitions so concurrent rejections of one token
	// tear the session down once.
	mu        sync.Mutex
	listeners []func(SignOutReason)
}

func NewController(store session.Store, backend Logins, m *metrics.Metrics, logger *utils.Logger) *Controller {
	if logger == nil {
		logger = utils.NopLogger()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Controller{
		store:    store,
		backend:  backend,
		validate: validator.New(),
		metrics:  m,
		logger:   logger,
	}
}

// New wires a controller to a and subscribes it to a's transport
// rejections.
func New(store session.Store, a *api.API, m *metrics.Metrics, logger *utils.Logger) *Controller {
	c := NewController(store, a, m, logger)
	c.Watch(a.Client())
	return c
}

// Watch makes every 401 seen by client a candidate for sign-out.
func (c *Controller) Watch(client *transport.Client) {
	client.OnRejected(c.HandleRejection)
}

// OnSignedOut registers fn to run after each sign-out, outside the lock.
func (c *Controller) OnSignedOut(fn func(SignOutReason)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) IsAuthenticated() bool {
	_, ok := c.store.Get()
	return ok
}

func (c *Controller) State() State {
	if c.IsAuthenticated() {
		return Authenticated
	}
	return Anonymous
}

func (c *Controller) Username() string {
	cred, ok := c.store.Get()
	if !ok {
		return ""
	}
	return cred.Username
}

func (c *Controller) Credential() (session.Credential, bool) {
	return c.store.Get()
}

// Login exchanges username and password for a token and stores it. Empty
// inputs fail with ErrMissingCredentials before any request is made. A
// failed attempt leaves the session untouched.
func (c *Controller) Login(ctx context.Context, username, password string) (session.Credential, error) {
	req := types.LoginRequest{Username: username, Password: password}
	if err := c.validate.Struct(req); err != nil {
		c.metrics.LocalValidationFailures.WithLabelValues("missing_credentials").Inc()
		return session.Credential{}, ErrMissingCredentials
	}

	resp, err := c.backend.Login(ctx, req)
	if err != nil {
		c.logger.Warnf("login for %s failed: %v", username, err)
		return session.Credential{}, &Error{Message: transport.UserMessage(err, LoginFailedMessage), Err: err}
	}

	cred := session.Credential{Token: resp.Token, Username: resp.Username, UserID: resp.UserID}
	c.mu.Lock()
	err = c.store.Put(cred)
	c.mu.Unlock()
	if err != nil {
		return session.Credential{}, &Error{Message: LoginFailedMessage, Err: err}
	}
	c.logger.Infof("signed in as %s (token %s)", cred.Username, utils.Fingerprint(cred.Token))
	return cred, nil
}

// Logout clears the local session. It never contacts the backend and is
// safe to call when already signed out. Listeners run even when the store
// fails to persist the erase; that error is returned afterwards.
func (c *Controller) Logout() error {
	c.mu.Lock()
	_, had := c.store.Get()
	err := c.store.Erase()
	c.mu.Unlock()
	if had {
		c.logger.Infof("signed out")
	}
	c.notify(SignOutLogout)
	return err
}

// HandleRejection signs out if r rejected the credential currently stored.
// Rejections of an older token, or of a request sent anonymously, leave
// the session alone.
func (c *Controller) HandleRejection(r transport.Rejection) {
	c.mu.Lock()
	cred, ok := c.store.Get()
	if !ok || r.Token == "" || cred.Token != r.Token {
		c.mu.Unlock()
		return
	}
	err := c.store.Erase()
	c.mu.Unlock()
	if err != nil {
		c.logger.Errorf("erase rejected session: %v", err)
	}
	c.logger.Warnf("session %s rejected by %s %s, signed out", utils.Fingerprint(r.Token), r.Method, r.Path)
	c.notify(SignOutRejected)
}

func (c *Controller) notify(reason SignOutReason) {
	c.metrics.SignOuts.WithLabelValues(string(reason)).Inc()
	c.mu.Lock()
	listeners := slices.Clone(c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(reason)
	}
}
