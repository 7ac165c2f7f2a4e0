// Package auth obtains and discards the credential used by the chatbot
// client. The credential and username live in the store; the REST client
// reads the token from there on every request.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/studychat/internal/api"
	"github.com/soyeahso/studychat/internal/bus"
	"github.com/soyeahso/studychat/internal/logging"
	"github.com/soyeahso/studychat/internal/store"
)

// ErrMissingField is returned when a required credential field is blank.
var ErrMissingField = errors.New("auth: missing required field")

// Client is the part of the REST client used for authentication.
type Client interface {
	Register(ctx context.Context, creds api.Credentials) (api.AuthResponse, error)
	Login(ctx context.Context, creds api.Credentials) (api.AuthResponse, error)
	Me(ctx context.Context) (api.Profile, error)
}

// Service writes credentials to the store and announces the change.
type Service struct {
	client Client
	store  store.Store
	bus    *bus.Bus
	log    *logging.Logger
}

// New creates a Service.
func New(client Client, st store.Store, b *bus.Bus, log *logging.Logger) *Service {
	return &Service{client: client, store: st, bus: b, log: log.Sub("auth")}
}

// Register creates an account and signs in with it.
func (s *Service) Register(ctx context.Context, username, email, password string) (api.AuthResponse, error) {
	username, email = strings.TrimSpace(username), strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return api.AuthResponse{}, fmt.Errorf("%w: username, email and password are required", ErrMissingField)
	}

	resp, err := s.client.Register(ctx, api.Credentials{Username: username, Email: email, Password: password})
	if err != nil {
		return api.AuthResponse{}, fmt.Errorf("register: %w", err)
	}
	if err := s.signIn(ctx, resp, username); err != nil {
		return api.AuthResponse{}, err
	}
	return resp, nil
}

// Login signs in with a username or an email address.
func (s *Service) Login(ctx context.Context, identifier, password string) (api.AuthResponse, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return api.AuthResponse{}, fmt.Errorf("%w: username and password are required", ErrMissingField)
	}

	creds := api.Credentials{Username: identifier, Password: password}
	if strings.Contains(identifier, "@") {
		creds = api.Credentials{Email: identifier, Password: password}
	}

	resp, err := s.client.Login(ctx, creds)
	if err != nil {
		return api.AuthResponse{}, fmt.Errorf("login: %w", err)
	}
	if err := s.signIn(ctx, resp, identifier); err != nil {
		return api.AuthResponse{}, err
	}
	return resp, nil
}

func (s *Service) signIn(ctx context.Context, resp api.AuthResponse, fallbackName string) error {
	if resp.Token == "" {
		return errors.New("auth: backend returned no token")
	}
	name := resp.Username
	if name == "" {
		name = fallbackName
	}

	// A session id from a previous account is meaningless for this one.
	previous, _ := s.store.Get(store.KeyUsername)
	if previous != name {
		if err := s.store.Remove(store.KeyActiveSession); err != nil {
			return fmt.Errorf("clearing active session: %w", err)
		}
	}
	if err := s.store.Set(store.KeyToken, resp.Token); err != nil {
		return fmt.Errorf("saving token: %w", err)
	}
	if err := s.store.Set(store.KeyUsername, name); err != nil {
		return fmt.Errorf("saving username: %w", err)
	}

	s.log.Info().Str("user", name).Msg("signed in")
	s.bus.Publish(ctx, bus.Event{Topic: bus.TopicSessionsChanged})
	// the pointer may have been dropped, or only now be loadable
	s.bus.Publish(ctx, bus.Event{Topic: bus.TopicActiveSessionChanged})
	return nil
}

// Logout forgets the credential, the username and the active session.
func (s *Service) Logout(ctx context.Context) error {
	for _, key := range []string{store.KeyToken, store.KeyUsername, store.KeyActiveSession} {
		if err := s.store.Remove(key); err != nil {
			return fmt.Errorf("removing %s: %w", key, err)
		}
	}

	s.log.Info().Msg("signed out")
	s.bus.Publish(ctx, bus.Event{Topic: bus.TopicSessionsChanged})
	s.bus.Publish(ctx, bus.Event{Topic: bus.TopicActiveSessionChanged})
	return nil
}

// Whoami returns the stored username and whether a credential is present.
func (s *Service) Whoami() (username string, signedIn bool) {
	username, _ = s.store.Get(store.KeyUsername)
	token, ok := s.store.Get(store.KeyToken)
	return username, ok && token != ""
}

// Profile asks the backend who the stored credential belongs to.
func (s *Service) Profile(ctx context.Context) (api.Profile, error) {
	p, err := s.client.Me(ctx)
	if err != nil {
		return api.Profile{}, fmt.Errorf("profile: %w", err)
	}
	return p, nil
}

// Token returns the stored credential, or "" when signed out. It is the
// token source handed to the REST client.
func Token(st store.Store) func() string {
	return func() string {
		token, _ := st.Get(store.KeyToken)
		return token
	}
}
