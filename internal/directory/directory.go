// Package directory keeps the list of the user's sessions and decides which
// one is active when the current choice is missing or stale.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/soyeahso/studychat/internal/api"
	"github.com/soyeahso/studychat/internal/bus"
	"github.com/soyeahso/studychat/internal/domain"
	"github.com/soyeahso/studychat/internal/logging"
	"github.com/soyeahso/studychat/internal/store"
)

// Backend is the part of the chatbot API the directory uses.
type Backend interface {
	ListSessions(ctx context.Context) ([]domain.Session, error)
	ClearSessions(ctx context.Context) error
}

// SessionCreator creates a session on behalf of a "new chat" action.
type SessionCreator interface {
	CreateSession(ctx context.Context, firstMessage string) (domain.SessionID, error)
}

// Directory owns the session snapshot and its filtered view. It is the only
// writer of that state; the active pointer lives in the store.
type Directory struct {
	backend Backend
	store   store.Store
	bus     *bus.Bus
	log     *logging.Logger

	mu       sync.Mutex
	snapshot []domain.Session
	search   string
	unsub    func()
}

// New creates a Directory.
func New(backend Backend, st store.Store, b *bus.Bus, log *logging.Logger) *Directory {
	return &Directory{
		backend:  backend,
		store:    st,
		bus:      b,
		log:      log.Sub("directory"),
		snapshot: []domain.Session{},
	}
}

// Start subscribes to session changes and performs the initial fetch.
func (d *Directory) Start(ctx context.Context) {
	unsub := d.bus.Subscribe(bus.TopicSessionsChanged, "directory", func(ctx context.Context, _ bus.Event) error {
		d.Refresh(ctx)
		return nil
	})

	d.mu.Lock()
	d.unsub = unsub
	d.mu.Unlock()

	d.Refresh(ctx)
}

// Close removes the directory's subscriptions.
func (d *Directory) Close() {
	d.mu.Lock()
	unsub := d.unsub
	d.unsub = nil
	d.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// List fetches the full session list, replaces the snapshot, and returns the
// sessions whose name contains search (case-insensitive; blank matches all).
// Failures yield an empty list. After a successful fetch, if the active
// session is unset or no longer listed, the first session becomes active.
func (d *Directory) List(ctx context.Context, search string) []domain.Session {
	sessions, err := d.backend.ListSessions(ctx)
	if err != nil {
		if errors.Is(err, api.ErrNoCredential) {
			d.log.Debug().Msg("not signed in; directory is empty")
		} else {
			d.log.Warn().Err(err).Msg("failed to list sessions")
		}
		sessions = []domain.Session{}
	}

	d.mu.Lock()
	d.snapshot = sessions
	d.search = search
	d.mu.Unlock()

	if err == nil {
		d.autoSelect(ctx, sessions)
	}

	return domain.FilterSessions(sessions, search)
}

// Refresh re-runs List with the most recent search text.
func (d *Directory) Refresh(ctx context.Context) []domain.Session {
	return d.List(ctx, d.Search())
}

func (d *Directory) autoSelect(ctx context.Context, sessions []domain.Session) {
	if len(sessions) == 0 {
		return
	}
	active, ok := d.store.Get(store.KeyActiveSession)
	if ok && domain.ContainsSession(sessions, domain.SessionID(active)) {
		return
	}

	first := sessions[0].ID
	d.log.Debug().Str("previous", active).Str("session", string(first)).Msg("auto-selecting session")
	if err := d.Select(ctx, first); err != nil {
		d.log.Error().Err(err).Msg("failed to persist auto-selected session")
	}
}

// Select makes id the active session and announces it. The id is not
// checked against the snapshot.
func (d *Directory) Select(ctx context.Context, id domain.SessionID) error {
	if err := d.store.Set(store.KeyActiveSession, string(id)); err != nil {
		return fmt.Errorf("saving active session: %w", err)
	}
	d.bus.Publish(ctx, bus.Event{Topic: bus.TopicActiveSessionChanged, SessionID: id})
	return nil
}

// ClearAll deletes every session on the backend, then empties the snapshot,
// clears the active session, and asks for a fresh session. The local steps
// run even when the backend call fails; its error is returned afterwards.
func (d *Directory) ClearAll(ctx context.Context) error {
	deleteErr := d.backend.ClearSessions(ctx)
	if deleteErr != nil {
		d.log.Warn().Err(deleteErr).Msg("failed to delete sessions on backend")
	}

	d.mu.Lock()
	d.snapshot = []domain.Session{}
	d.mu.Unlock()

	if err := d.store.Remove(store.KeyActiveSession); err != nil {
		d.log.Error().Err(err).Msg("failed to clear active session")
	}

	d.bus.Publish(ctx, bus.Event{Topic: bus.TopicSessionsChanged})
	d.bus.Publish(ctx, bus.Event{Topic: bus.TopicForceNewSession})

	if deleteErr != nil {
		return fmt.Errorf("clearing sessions: %w", deleteErr)
	}
	return nil
}

// NewChat handles the local "new chat" action: the creator makes a session,
// then the list is fetched again in full.
func (d *Directory) NewChat(ctx context.Context, creator SessionCreator) (domain.SessionID, error) {
	id, err := creator.CreateSession(ctx, "")
	d.Refresh(ctx)
	if err != nil {
		return "", err
	}
	return id, nil
}

// Snapshot returns a copy of the most recently fetched session list.
func (d *Directory) Snapshot() []domain.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Session, len(d.snapshot))
	copy(out, d.snapshot)
	return out
}

// Filtered returns the snapshot filtered by the current search text.
func (d *Directory) Filtered() []domain.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return domain.FilterSessions(d.snapshot, d.search)
}

// Search returns the search text of the most recent List call.
func (d *Directory) Search() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.search
}

// Active returns the active session id from the store.
func (d *Directory) Active() (domain.SessionID, bool) {
	v, ok := d.store.Get(store.KeyActiveSession)
	return domain.SessionID(v), ok && v != ""
}
