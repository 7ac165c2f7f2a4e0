package backend

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/studychat/internal/api"
	"github.com/soyeahso/studychat/internal/config"
	"github.com/soyeahso/studychat/internal/domain"
	"github.com/soyeahso/studychat/internal/logging"
)

type testEnv struct {
	srv    *httptest.Server
	repo   *Repository
	token  string
	client *api.Client
}

func newTestEnv(t *testing.T, responder Responder) *testEnv {
	t.Helper()
	log := logging.New(nil, "silent")
	repo := testRepo(t)
	s := New(config.BackendConfig{BcryptCost: 4}, repo, responder, log)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	env := &testEnv{srv: srv, repo: repo}
	env.client = api.New(srv.URL, func() string { return env.token }, log)
	return env
}

func (e *testEnv) register(t *testing.T, name string) api.AuthResponse {
	t.Helper()
	resp, err := e.client.Register(context.Background(), api.Credentials{
		Username: name, Email: name + "@example.com", Password: "pw-" + name,
	})
	require.NoError(t, err)
	e.token = resp.Token
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, StaticResponder{Answer: "ok"})
	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, StaticResponder{Answer: "ok"})
	ctx := context.Background()

	reg := env.register(t, "ana")
	assert.NotEmpty(t, reg.Token)
	assert.Equal(t, "ana", reg.Username)
	assert.NotZero(t, reg.UserID)

	_, err := env.client.Register(ctx, api.Credentials{Username: "ana", Email: "x@example.com", Password: "pw"})
	assert.Equal(t, http.StatusConflict, api.StatusCode(err))

	_, err = env.client.Register(ctx, api.Credentials{Username: "bob", Password: "pw"})
	assert.Equal(t, http.StatusBadRequest, api.StatusCode(err))

	login, err := env.client.Login(ctx, api.Credentials{Username: "ana", Password: "pw-ana"})
	require.NoError(t, err)
	assert.NotEqual(t, reg.Token, login.Token)

	byEmail, err := env.client.Login(ctx, api.Credentials{Email: "ana@example.com", Password: "pw-ana"})
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, byEmail.UserID)

	_, err = env.client.Login(ctx, api.Credentials{Username: "ana", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, api.StatusCode(err))
	assert.Contains(t, err.Error(), "Invalid credentials")

	env.token = login.Token
	me, err := env.client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", me.Email)
}

func TestTokenRequired(t *testing.T) {
	env := newTestEnv(t, StaticResponder{Answer: "ok"})

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/chatbot/sessions", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	env.token = "bogus"
	_, err = env.client.ListSessions(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, api.StatusCode(err))
	assert.Contains(t, err.Error(), "Token is invalid")
}

func TestTokenRequiresBearerScheme(t *testing.T) {
	env := newTestEnv(t, StaticResponder{Answer: "ok"})
	reg := env.register(t, "ana")

	for _, tc := range []struct {
		header string
		want   int
	}{
		{"Basic " + reg.Token, http.StatusUnauthorized},
		{reg.Token, http.StatusUnauthorized},
		{"Bearer " + reg.Token, http.StatusOK},
		{"bearer " + reg.Token, http.StatusOK},
	} {
		req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/api/chatbot/sessions", nil)
		req.Header.Set("Authorization", tc.header)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tc.want, resp.StatusCode, tc.header)
	}
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, StaticResponder{Answer: "Tuition varies by course."})
	ctx := context.Background()
	env.register(t, "ana")

	blank, err := env.client.CreateSession(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultChatName, blank.Name)

	named, err := env.client.CreateSession(ctx, "what are the TUITION fees for international students in London")
	require.NoError(t, err)
	assert.Equal(t, "What are the tuition fees for...", named.Name)

	sessions, err := env.client.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, named.ID, sessions[0].ID)

	answer, err := env.client.SendMessage(ctx, blank.ID, "  How much is tuition?  ")
	require.NoError(t, err)
	assert.Equal(t, "Tuition varies by course.", answer)

	// The first message renames a New Chat session.
	sessions, err = env.client.ListSessions(ctx)
	require.NoError(t, err)
	for _, s := range sessions {
		if s.ID == blank.ID {
			assert.Equal(t, "How much is tuition?", s.Name)
		}
	}

	exchanges, err := env.client.Messages(ctx, blank.ID)
	require.NoError(t, err)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "How much is tuition?", exchanges[0].Message)
	assert.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Text: "How much is tuition?"},
		{Role: domain.RoleAssistant, Text: "Tuition varies by course."},
	}, domain.Flatten(exchanges))

	require.NoError(t, env.client.ClearSessions(ctx))
	sessions, err = env.client.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestSendMessage_Errors(t *testing.T) {
	env := newTestEnv(t, StaticResponder{Answer: "ok"})
	ctx := context.Background()
	env.register(t, "ana")
	own, err := env.client.CreateSession(ctx, "")
	require.NoError(t, err)

	_, err = env.client.SendMessage(ctx, own.ID, "   ")
	assert.Equal(t, http.StatusBadRequest, api.StatusCode(err))

	_, err = env.client.SendMessage(ctx, "999", "hello")
	assert.Equal(t, http.StatusNotFound, api.StatusCode(err))

	_, err = env.client.Messages(ctx, "not-a-number")
	assert.Equal(t, http.StatusNotFound, api.StatusCode(err))

	// Another user's session is invisible.
	env.register(t, "ben")
	_, err = env.client.Messages(ctx, own.ID)
	assert.Equal(t, http.StatusNotFound, api.StatusCode(err))
	_, err = env.client.SendMessage(ctx, own.ID, "hello")
	assert.Equal(t, http.StatusNotFound, api.StatusCode(err))
}

func TestSendMessage_EmptyAnswerBecomesApology(t *testing.T) {
	env := newTestEnv(t, StaticResponder{})
	ctx := context.Background()
	env.register(t, "ana")
	s, err := env.client.CreateSession(ctx, "")
	require.NoError(t, err)

	answer, err := env.client.SendMessage(ctx, s.ID, "hello")
	require.NoError(t, err)
	assert.Equal(t, FallbackAnswer, answer)
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t, StaticResponder{})
	ctx := context.Background()
	env.register(t, "ana")
	s, err := env.client.CreateSession(ctx, "")
	require.NoError(t, err)
	_, err = env.client.SendMessage(ctx, s.ID, "hello")
	require.NoError(t, err)

	health, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	health.Body.Close()

	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `studychat_backend_answers_total{outcome="fallback"} 1`)
	assert.Contains(t, string(body), `studychat_backend_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestNotFoundRoute(t *testing.T) {
	env := newTestEnv(t, StaticResponder{})
	resp, err := http.Post(env.srv.URL+"/nope", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResolveBindAddr(t *testing.T) {
	tests := []struct {
		cfg  config.BackendConfig
		want string
	}{
		{config.BackendConfig{Port: 5000, Bind: "loopback"}, "127.0.0.1:5000"},
		{config.BackendConfig{Port: 5000}, "127.0.0.1:5000"},
		{config.BackendConfig{Port: 80, Bind: "lan"}, "0.0.0.0:80"},
		{config.BackendConfig{Port: 81, Bind: "custom", CustomBindHost: "10.0.0.5"}, "10.0.0.5:81"},
		{config.BackendConfig{Port: 82, Bind: "custom"}, "0.0.0.0:82"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resolveBindAddr(tt.cfg))
	}
}

func TestStart_ShutsDownOnCancel(t *testing.T) {
	repo := testRepo(t)
	s := New(config.BackendConfig{Port: 0, Bind: "loopback"}, repo, StaticResponder{}, logging.New(nil, "silent"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
