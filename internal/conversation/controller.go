// Package conversation owns the active session and its transcript. It
// creates sessions, sends messages, and follows session changes announced
// by other components.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/soyeahso/studychat/internal/api"
	"github.com/soyeahso/studychat/internal/bus"
	"github.com/soyeahso/studychat/internal/domain"
	"github.com/soyeahso/studychat/internal/logging"
	"github.com/soyeahso/studychat/internal/store"
)

// Transcript entries used when a send fails. They stand in for the reply.
const (
	ApologyText      = "Sorry, I couldn't process your message right now. Please try again in a moment."
	ConnectivityText = "Sorry, I can't reach the study advisor at the moment. Please check your connection and try again."
)

var (
	// ErrEmptyMessage is returned by Send for blank input.
	ErrEmptyMessage = errors.New("conversation: empty message")

	// ErrBusy is returned by Send while another send is in flight.
	ErrBusy = errors.New("conversation: a message is already being sent")
)

// State is the controller's lifecycle state.
type State int

const (
	StateNoSession State = iota
	StateSessionActive
	StateSending
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no-session"
	case StateSessionActive:
		return "session-active"
	case StateSending:
		return "sending"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Backend is the part of the chatbot API the controller uses.
type Backend interface {
	CreateSession(ctx context.Context, firstMessage string) (domain.Session, error)
	Messages(ctx context.Context, id domain.SessionID) ([]domain.Exchange, error)
	SendMessage(ctx context.Context, id domain.SessionID, text string) (string, error)
}

// Controller holds the authoritative in-memory active session id and the
// transcript for it. The store is re-read whenever the active session is
// announced as changed.
type Controller struct {
	backend Backend
	store   store.Store
	bus     *bus.Bus
	log     *logging.Logger

	mu         sync.Mutex
	activeID   domain.SessionID
	transcript []domain.Message
	sending    bool
	generation uint64
	unsubs     []func()
}

// New creates a Controller.
func New(backend Backend, st store.Store, b *bus.Bus, log *logging.Logger) *Controller {
	return &Controller{
		backend:    backend,
		store:      st,
		bus:        b,
		log:        log.Sub("conversation"),
		transcript: []domain.Message{},
	}
}

// Start subscribes to active-session and force-new-session notifications
// and loads the active session.
func (c *Controller) Start(ctx context.Context) error {
	unsubs := []func(){
		c.bus.Subscribe(bus.TopicActiveSessionChanged, "conversation", c.onActiveSessionChanged),
		c.bus.Subscribe(bus.TopicForceNewSession, "conversation", c.onForceNewSession),
	}

	c.mu.Lock()
	c.unsubs = append(c.unsubs, unsubs...)
	c.mu.Unlock()

	return c.LoadActiveSession(ctx)
}

// Close removes the controller's subscriptions.
func (c *Controller) Close() {
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}

func (c *Controller) onActiveSessionChanged(ctx context.Context, ev bus.Event) error {
	c.log.Debug().Str("hint", string(ev.SessionID)).Msg("active session changed")
	return c.LoadActiveSession(ctx)
}

func (c *Controller) onForceNewSession(ctx context.Context, _ bus.Event) error {
	c.mu.Lock()
	c.generation++
	c.activeID = ""
	c.transcript = []domain.Message{}
	c.mu.Unlock()

	if _, err := c.CreateSession(ctx, ""); err != nil {
		return fmt.Errorf("creating replacement session: %w", err)
	}
	return nil
}

// LoadActiveSession reads the active session from the store and replaces the
// transcript with that session's history. With no active session the
// transcript is emptied. A load overtaken by a later session change is
// discarded.
func (c *Controller) LoadActiveSession(ctx context.Context) error {
	value, ok := c.store.Get(store.KeyActiveSession)
	id := domain.SessionID(value)

	c.mu.Lock()
	c.generation++
	gen := c.generation
	if id != c.activeID {
		c.transcript = []domain.Message{}
	}
	c.activeID = id
	c.mu.Unlock()

	if !ok || id == "" {
		return nil
	}

	exchanges, err := c.backend.Messages(ctx, id)
	if err != nil {
		if errors.Is(err, api.ErrNoCredential) {
			// a pointer without a credential selects nothing
			c.mu.Lock()
			if gen == c.generation {
				c.activeID = ""
				c.transcript = []domain.Message{}
			}
			c.mu.Unlock()
			return nil
		}
		c.log.Warn().Err(err).Str("session", string(id)).Msg("failed to load transcript")
		return nil
	}
	msgs := domain.Flatten(exchanges)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		c.log.Debug().Str("session", string(id)).Msg("discarding stale transcript")
		return nil
	}
	c.transcript = msgs
	return nil
}

// CreateSession asks the backend for a new session, optionally named after
// firstMessage, makes it active, and clears the transcript.
func (c *Controller) CreateSession(ctx context.Context, firstMessage string) (domain.SessionID, error) {
	session, err := c.backend.CreateSession(ctx, firstMessage)
	if err != nil {
		if !errors.Is(err, api.ErrNoCredential) {
			c.log.Warn().Err(err).Msg("failed to create session")
		}
		return "", err
	}

	if err := c.store.Set(store.KeyActiveSession, string(session.ID)); err != nil {
		return "", fmt.Errorf("saving active session: %w", err)
	}

	c.mu.Lock()
	c.generation++
	c.activeID = session.ID
	c.transcript = []domain.Message{}
	c.mu.Unlock()

	c.log.Info().Str("session", string(session.ID)).Str("name", session.Name).Msg("session created")
	c.bus.Publish(ctx, bus.Event{Topic: bus.TopicSessionsChanged, SessionID: session.ID})
	return session.ID, nil
}

// Send delivers text to the agent in the active session, creating a session
// first if none is active. The user entry is appended before the request
// completes. A failed request is reported as an assistant entry in the
// transcript, not as an error. A failed implicit session creation and a
// missing credential are returned to the caller and leave no entry.
func (c *Controller) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return ErrBusy
	}
	c.sending = true
	id := c.activeID
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.sending = false
		c.mu.Unlock()
	}()

	if id == "" {
		created, err := c.CreateSession(ctx, text)
		if err != nil {
			return fmt.Errorf("starting session: %w", err)
		}
		id = created
	}

	c.mu.Lock()
	if c.activeID == id {
		c.transcript = append(c.transcript, domain.Message{Role: domain.RoleUser, Text: text})
	}
	c.mu.Unlock()

	answer, err := c.backend.SendMessage(ctx, id, text)
	if errors.Is(err, api.ErrNoCredential) {
		c.mu.Lock()
		if c.activeID == id {
			if n := len(c.transcript); n > 0 && c.transcript[n-1] == (domain.Message{Role: domain.RoleUser, Text: text}) {
				c.transcript = c.transcript[:n-1]
			}
		}
		c.mu.Unlock()
		return err
	}

	reply := domain.Message{Role: domain.RoleAssistant, Text: answer}
	switch {
	case err == nil:
	case api.IsStatusError(err):
		c.log.Warn().Err(err).Str("session", string(id)).Msg("message rejected")
		reply.Text = ApologyText
	default:
		c.log.Warn().Err(err).Str("session", string(id)).Msg("message not delivered")
		reply.Text = ConnectivityText
	}

	c.mu.Lock()
	if c.activeID == id {
		c.transcript = append(c.transcript, reply)
	} else {
		c.log.Debug().Str("session", string(id)).Msg("discarding reply for inactive session")
	}
	c.mu.Unlock()

	if err == nil {
		// the backend may have renamed the session after its first reply
		c.bus.Publish(ctx, bus.Event{Topic: bus.TopicSessionsChanged, SessionID: id})
	}
	return nil
}

// State reports the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.sending:
		return StateSending
	case c.activeID == "":
		return StateNoSession
	default:
		return StateSessionActive
	}
}

// ActiveID returns the session messages are sent to.
func (c *Controller) ActiveID() domain.SessionID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeID
}

// Transcript returns a copy of the current transcript.
func (c *Controller) Transcript() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}
