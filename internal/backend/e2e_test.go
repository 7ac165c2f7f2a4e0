package backend_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/studychat/internal/api"
	"github.com/soyeahso/studychat/internal/auth"
	"github.com/soyeahso/studychat/internal/backend"
	"github.com/soyeahso/studychat/internal/bus"
	"github.com/soyeahso/studychat/internal/config"
	"github.com/soyeahso/studychat/internal/conversation"
	"github.com/soyeahso/studychat/internal/directory"
	"github.com/soyeahso/studychat/internal/domain"
	"github.com/soyeahso/studychat/internal/logging"
	"github.com/soyeahso/studychat/internal/store"
)

// client is one running client process: its components share a bus and
// the durable store.
type client struct {
	bus  *bus.Bus
	api  *api.Client
	auth *auth.Service
	dir  *directory.Directory
	ctrl *conversation.Controller
}

func startClient(t *testing.T, baseURL string, st store.Store) *client {
	t.Helper()
	log := logging.New(nil, "silent")
	b := bus.New(log)
	apiClient := api.New(baseURL, auth.Token(st), log)

	c := &client{
		bus:  b,
		api:  apiClient,
		auth: auth.New(apiClient, st, b, log),
		dir:  directory.New(apiClient, st, b, log),
		ctrl: conversation.New(apiClient, st, b, log),
	}
	require.NoError(t, c.ctrl.Start(context.Background()))
	c.dir.Start(context.Background())
	t.Cleanup(func() {
		c.dir.Close()
		c.ctrl.Close()
	})
	return c
}

func startBackend(t *testing.T) string {
	t.Helper()
	log := logging.New(nil, "silent")
	repo, err := backend.OpenRepository(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	srv := backend.New(config.BackendConfig{BcryptCost: 4}, repo, backend.StaticResponder{Answer: "You need a CAS."}, log)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestEndToEnd_SignedOutIsEmpty(t *testing.T) {
	url := startBackend(t)
	c := startClient(t, url, store.NewMemoryStore())

	assert.Empty(t, c.dir.Snapshot())
	assert.Equal(t, conversation.StateNoSession, c.ctrl.State())

	err := c.ctrl.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, api.ErrNoCredential)
	assert.Empty(t, c.ctrl.Transcript())
}

func TestEndToEnd_FirstMessageCreatesSession(t *testing.T) {
	url := startBackend(t)
	st := store.NewMemoryStore()
	c := startClient(t, url, st)
	ctx := context.Background()

	_, err := c.auth.Register(ctx, "ana", "ana@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, c.ctrl.Send(ctx, "Do I need a visa?"))

	assert.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Text: "Do I need a visa?"},
		{Role: domain.RoleAssistant, Text: "You need a CAS."},
	}, c.ctrl.Transcript())

	sessions := c.dir.Snapshot()
	require.Len(t, sessions, 1)
	assert.Equal(t, "Do i need a visa?", sessions[0].Name)
	active, ok := c.dir.Active()
	require.True(t, ok)
	assert.Equal(t, sessions[0].ID, active)
	assert.Equal(t, active, c.ctrl.ActiveID())

	// A new process sharing the durable store resumes the same session.
	restarted := startClient(t, url, st)
	assert.Equal(t, active, restarted.ctrl.ActiveID())
	assert.Equal(t, c.ctrl.Transcript(), restarted.ctrl.Transcript())
}

func TestEndToEnd_SelectSwitchesTranscript(t *testing.T) {
	url := startBackend(t)
	c := startClient(t, url, store.NewMemoryStore())
	ctx := context.Background()
	_, err := c.auth.Register(ctx, "ana", "ana@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, c.ctrl.Send(ctx, "first chat"))
	first := c.ctrl.ActiveID()

	second, err := c.dir.NewChat(ctx, c.ctrl)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Empty(t, c.ctrl.Transcript())
	assert.Len(t, c.dir.Snapshot(), 2)

	require.NoError(t, c.dir.Select(ctx, first))
	assert.Equal(t, first, c.ctrl.ActiveID())
	require.NotEmpty(t, c.ctrl.Transcript())
	assert.Equal(t, "first chat", c.ctrl.Transcript()[0].Text)
}

func TestEndToEnd_ClearAllStartsFresh(t *testing.T) {
	url := startBackend(t)
	c := startClient(t, url, store.NewMemoryStore())
	ctx := context.Background()
	_, err := c.auth.Register(ctx, "ana", "ana@example.com", "secret")
	require.NoError(t, err)

	require.NoError(t, c.ctrl.Send(ctx, "one"))
	_, err = c.dir.NewChat(ctx, c.ctrl)
	require.NoError(t, err)
	old := c.ctrl.ActiveID()

	require.NoError(t, c.dir.ClearAll(ctx))

	sessions := c.dir.Snapshot()
	require.Len(t, sessions, 1)
	assert.Equal(t, domain.DefaultChatName, sessions[0].Name)
	assert.NotEqual(t, old, sessions[0].ID)
	assert.Equal(t, sessions[0].ID, c.ctrl.ActiveID())
	assert.Empty(t, c.ctrl.Transcript())
}

func TestEndToEnd_LogoutClearsState(t *testing.T) {
	url := startBackend(t)
	c := startClient(t, url, store.NewMemoryStore())
	ctx := context.Background()
	_, err := c.auth.Register(ctx, "ana", "ana@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, c.ctrl.Send(ctx, "hello"))

	require.NoError(t, c.auth.Logout(ctx))

	assert.Empty(t, c.dir.Snapshot())
	assert.Equal(t, conversation.StateNoSession, c.ctrl.State())
	assert.Empty(t, c.ctrl.Transcript())
}

func TestEndToEnd_AccountSwitchStartsOwnSession(t *testing.T) {
	url := startBackend(t)
	c := startClient(t, url, store.NewMemoryStore())
	ctx := context.Background()

	_, err := c.auth.Register(ctx, "ana", "ana@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, c.ctrl.Send(ctx, "ana's question"))
	anaSession := c.ctrl.ActiveID()

	_, err = c.auth.Register(ctx, "ben", "ben@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, conversation.StateNoSession, c.ctrl.State())
	assert.Empty(t, c.ctrl.Transcript())
	assert.Empty(t, c.dir.Snapshot())

	require.NoError(t, c.ctrl.Send(ctx, "ben's question"))
	assert.NotEqual(t, anaSession, c.ctrl.ActiveID())
	assert.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Text: "ben's question"},
		{Role: domain.RoleAssistant, Text: "You need a CAS."},
	}, c.ctrl.Transcript())

	sessions := c.dir.Snapshot()
	require.Len(t, sessions, 1)
	assert.Equal(t, c.ctrl.ActiveID(), sessions[0].ID)
}

func TestEndToEnd_PointerWithoutCredentialResumesOnLogin(t *testing.T) {
	url := startBackend(t)
	st := store.NewMemoryStore()
	ctx := context.Background()

	first := startClient(t, url, st)
	_, err := first.auth.Register(ctx, "ana", "ana@example.com", "secret")
	require.NoError(t, err)
	require.NoError(t, first.ctrl.Send(ctx, "hello"))
	session := first.ctrl.ActiveID()

	// the credential is gone but the pointer survives
	require.NoError(t, st.Remove(store.KeyToken))
	c := startClient(t, url, st)
	assert.Equal(t, conversation.StateNoSession, c.ctrl.State())
	assert.ErrorIs(t, c.ctrl.Send(ctx, "anyone there?"), api.ErrNoCredential)
	assert.Empty(t, c.ctrl.Transcript())

	_, err = c.auth.Login(ctx, "ana", "secret")
	require.NoError(t, err)
	assert.Equal(t, session, c.ctrl.ActiveID())
	require.Len(t, c.ctrl.Transcript(), 2)
	assert.Equal(t, "hello", c.ctrl.Transcript()[0].Text)
}
