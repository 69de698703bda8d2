package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cloudzz-dev/rosterchat/internal/client/debug"
	"github.com/cloudzz-dev/rosterchat/internal/client/session"
	"github.com/cloudzz-dev/rosterchat/internal/models"
)

// Keys under which the credential is persisted.
const (
	TokenKey = "token"
	UserKey  = "user"
)

// Reason tells logout listeners why the session ended.
type Reason int

const (
	ReasonLogout Reason = iota
	ReasonUnauthorized
)

// State is a copy of the container's contents.
type State struct {
	IsAuthenticated bool
	User            *models.User
	Token           string
}

// Container owns the credential for the lifetime of the process.
type Container struct {
	store session.Store

	mu        sync.RWMutex
	token     string
	user      *models.User
	listeners map[int]func(Reason)
	nextID    int
}

// New restores a previously stored credential. The session counts as
// authenticated only if both a token and a readable user are present;
// expiry is left for the backend to detect.
func New(store session.Store) *Container {
	c := &Container{store: store, listeners: make(map[int]func(Reason))}

	token, hasToken := store.Get(TokenKey)
	rawUser, hasUser := store.Get(UserKey)
	if !hasToken || !hasUser || token == "" {
		return c
	}
	var user models.User
	if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
		debug.Error("restore stored user", err)
		return c
	}
	c.token = token
	c.user = &user
	return c
}

// Login stores the credential durably and in memory.
func (c *Container) Login(token string, user models.User) error {
	if token == "" {
		return errors.New("empty token")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := c.store.Set(TokenKey, token); err != nil {
		return fmt.Errorf("store token: %w", err)
	}
	if err := c.store.Set(UserKey, string(data)); err != nil {
		return fmt.Errorf("store user: %w", err)
	}

	c.mu.Lock()
	c.token = token
	c.user = &user
	c.mu.Unlock()
	return nil
}

// Logout clears the credential. No backend call is made. Listeners run
// after the state is cleared, so anything they start sees a logged out
// container.
func (c *Container) Logout() error {
	return c.end(ReasonLogout)
}

// HandleUnauthorized is the involuntary logout taken when the backend
// rejects the credential.
func (c *Container) HandleUnauthorized() {
	if err := c.end(ReasonUnauthorized); err != nil {
		debug.Error("clear rejected credential", err)
	}
}

func (c *Container) end(reason Reason) error {
	c.mu.Lock()
	wasAuthenticated := c.token != ""
	c.token = ""
	c.user = nil
	listeners := make([]func(Reason), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	err := c.store.Delete(TokenKey, UserKey)

	if wasAuthenticated {
		for _, fn := range listeners {
			fn(reason)
		}
	}
	return err
}

// OnLogout registers fn to run whenever an authenticated session ends.
// The returned func unregisters it.
func (c *Container) OnLogout(fn func(Reason)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Token implements api.TokenSource.
func (c *Container) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Container) User() (models.User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return models.User{}, false
	}
	return *c.user, true
}

func (c *Container) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != "" && c.user != nil
}

func (c *Container) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s := State{IsAuthenticated: c.token != "" && c.user != nil, Token: c.token}
	if c.user != nil {
		u := *c.user
		s.User = &u
	}
	return s
}

// Authenticator performs the login exchange.
type Authenticator interface {
	Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error)
}

// Registrar creates accounts.
type Registrar interface {
	Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error)
}

// SignIn logs in against the backend and stores the resulting credential.
// The login response carries no email, so the stored user has none.
func (c *Container) SignIn(ctx context.Context, authn Authenticator, req models.LoginRequest) (models.User, error) {
	if err := models.Validate(req); err != nil {
		return models.User{}, err
	}
	resp, err := authn.Login(ctx, req)
	if err != nil {
		return models.User{}, err
	}
	user := models.User{ID: resp.UserID, Username: resp.Username, Email: ""}
	if err := c.Login(resp.Token, user); err != nil {
		return models.User{}, err
	}
	debug.Log("logged in as %s (%s)", user.Username, user.ID)
	return user, nil
}

// Register creates an account without logging in.
func Register(ctx context.Context, reg Registrar, req models.RegisterRequest) error {
	if err := models.Validate(req); err != nil {
		return err
	}
	_, err := reg.Register(ctx, req)
	return err
}
