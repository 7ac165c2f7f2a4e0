package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/studychat/internal/api"
	"github.com/soyeahso/studychat/internal/auth"
	"github.com/soyeahso/studychat/internal/bus"
	"github.com/soyeahso/studychat/internal/conversation"
	"github.com/soyeahso/studychat/internal/directory"
	"github.com/soyeahso/studychat/internal/store"
)

// app is one client process: the store, the bus, and the components that
// share them.
type app struct {
	store      store.Store
	closeStore func() error
	bus        *bus.Bus
	api        *api.Client
	auth       *auth.Service
	dir        *directory.Directory
	ctrl       *conversation.Controller
	started    bool
}

// openApp wires the client components from the loaded config. Nothing
// touches the network until start.
func openApp() (*app, error) {
	st, closeStore, err := openStore()
	if err != nil {
		return nil, err
	}

	b := bus.New(log)
	client := api.New(cfg.API.BaseURL, auth.Token(st), log,
		api.WithTimeout(time.Duration(cfg.API.Timeout)*time.Second))

	return &app{
		store:      st,
		closeStore: closeStore,
		bus:        b,
		api:        client,
		auth:       auth.New(client, st, b, log),
		dir:        directory.New(client, st, b, log),
		ctrl:       conversation.New(client, st, b, log),
	}, nil
}

func openStore() (store.Store, func() error, error) {
	switch cfg.Store.Driver {
	case "memory":
		log.Debug().Msg("using in-memory store")
		return store.NewMemoryStore(), func() error { return nil }, nil
	default:
		path := paths.StorePath(cfg.Store)
		st, err := store.OpenSQLite(path, log)
		if err != nil {
			return nil, nil, fmt.Errorf("opening store: %w", err)
		}
		log.Debug().Str("path", path).Msg("using SQLite store")
		return st, st.Close, nil
	}
}

// start loads the active session and then the session list, the same
// order a fresh client window would.
func (a *app) start(ctx context.Context) error {
	if err := a.ctrl.Start(ctx); err != nil {
		return err
	}
	a.dir.Start(ctx)
	a.started = true
	return nil
}

func (a *app) close() {
	if a.started {
		a.dir.Close()
		a.ctrl.Close()
	}
	if err := a.closeStore(); err != nil {
		log.Warn().Err(err).Msg("closing store")
	}
}

// requireSignedIn fails early with a readable message when no credential
// is stored.
func (a *app) requireSignedIn() error {
	if _, ok := a.auth.Whoami(); !ok {
		return fmt.Errorf("not signed in; run `studychat login` first")
	}
	return nil
}
