package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soyeahso/studychat/internal/domain"
	"github.com/soyeahso/studychat/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc, token string) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(ts.URL, func() string { return token }, logging.New(nil, "silent"))
}

func TestListSessions(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/chatbot/sessions", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`[{"id": 2, "name": "Tuition fees", "created_at": "x"}, {"id": 1, "name": "New Chat"}]`))
	}, "tok")

	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Session{{ID: "2", Name: "Tuition fees"}, {ID: "1", Name: "New Chat"}}, sessions)
}

func TestListSessions_NullBody(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	}, "tok")

	sessions, err := c.ListSessions(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sessions)
	assert.Empty(t, sessions)
}

func TestNoCredentialSkipsNetwork(t *testing.T) {
	var hits int
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits++
	}, "")

	_, err := c.ListSessions(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
	_, err = c.CreateSession(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrNoCredential)
	_, err = c.SendMessage(context.Background(), "1", "hi")
	assert.ErrorIs(t, err, ErrNoCredential)
	assert.ErrorIs(t, c.ClearSessions(context.Background()), ErrNoCredential)
	assert.Zero(t, hits)
}

func TestNilTokenFunc(t *testing.T) {
	c := New("http://127.0.0.1:1", nil, logging.New(nil, "silent"))
	_, err := c.ListSessions(context.Background())
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestCreateSession(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Visa help", body["message"])
		w.Write([]byte(`{"id": 7, "name": "Visa help"}`))
	}, "tok")

	s, err := c.CreateSession(context.Background(), "  Visa help ")
	require.NoError(t, err)
	assert.EqualValues(t, "7", s.ID)
	assert.Equal(t, "Visa help", s.Name)
}

func TestCreateSession_NoMessageSendsEmptyObject(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{}`, string(data))
		w.Write([]byte(`{"id": 8, "name": "New Chat"}`))
	}, "tok")

	s, err := c.CreateSession(context.Background(), "")
	require.NoError(t, err)
	assert.EqualValues(t, "8", s.ID)
}

func TestCreateSession_MissingID(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name": "New Chat"}`))
	}, "tok")

	_, err := c.CreateSession(context.Background(), "")
	assert.Error(t, err)
}

func TestMessages(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chatbot/sessions/7/messages", r.URL.Path)
		w.Write([]byte(`[{"message": "A", "response": "B"}, {"message": "C", "response": null}]`))
	}, "tok")

	ex, err := c.Messages(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, ex, 2)
	assert.Equal(t, "A", ex[0].Message)
	require.NotNil(t, ex[0].Response)
	assert.Equal(t, "B", *ex[0].Response)
	assert.Nil(t, ex[1].Response)
}

func TestMessages_EscapesID(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chatbot/sessions/a%2Fb/messages", r.URL.EscapedPath())
		w.Write([]byte(`[]`))
	}, "tok")

	_, err := c.Messages(context.Background(), "a/b")
	require.NoError(t, err)
}

func TestSendMessage(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chatbot/sessions/3/message", r.URL.Path)
		var body sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body.Message)
		w.Write([]byte(`{"answer": "Hi! How can I help with your application?"}`))
	}, "tok")

	answer, err := c.SendMessage(context.Background(), "3", "hello")
	require.NoError(t, err)
	assert.Equal(t, "Hi! How can I help with your application?", answer)
}

func TestStatusErrorFromJSON(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "Session not found"}`))
	}, "tok")

	_, err := c.SendMessage(context.Background(), "99", "hello")
	require.Error(t, err)
	assert.True(t, IsStatusError(err))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Session not found", se.Message)
	assert.Contains(t, se.Error(), "404")
}

func TestStatusErrorPlainBody(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}, "tok")

	err := c.ClearSessions(context.Background())
	require.Error(t, err)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "upstream exploded", se.Message)
}

func TestTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := New(url, func() string { return "tok" }, logging.New(nil, "silent"))
	_, err := c.ListSessions(context.Background())
	require.Error(t, err)
	assert.False(t, IsStatusError(err))
	assert.NotErrorIs(t, err, ErrNoCredential)
	assert.Zero(t, StatusCode(err))
}

func TestTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`[]`))
	}))
	t.Cleanup(ts.Close)

	shared := &http.Client{}
	tokenFunc := func() string { return "tok" }
	log := logging.New(nil, "silent")

	// option order does not matter and the supplied client is left alone
	for _, opts := range [][]Option{
		{WithTimeout(20 * time.Millisecond), WithHTTPClient(shared)},
		{WithHTTPClient(shared), WithTimeout(20 * time.Millisecond)},
	} {
		c := New(ts.URL, tokenFunc, log, opts...)
		_, err := c.ListSessions(context.Background())
		assert.Error(t, err)
		assert.Zero(t, shared.Timeout)
	}
}

func TestLoginAndRegisterAreUnauthenticated(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		var creds Credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		switch r.URL.Path {
		case "/api/auth/register":
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"token": "t1", "username": "` + creds.Username + `", "email": "a@b.c", "user_id": 1}`))
		case "/api/auth/login":
			if creds.Password != "pw" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error": "Invalid credentials"}`))
				return
			}
			w.Write([]byte(`{"token": "t2", "username": "amara"}`))
		}
	}, "")

	reg, err := c.Register(context.Background(), Credentials{Username: "amara", Email: "a@b.c", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "t1", reg.Token)
	assert.Equal(t, "amara", reg.Username)

	login, err := c.Login(context.Background(), Credentials{Username: "amara", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "t2", login.Token)

	_, err = c.Login(context.Background(), Credentials{Username: "amara", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, StatusCode(err))
}

func TestMe(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/me", r.URL.Path)
		w.Write([]byte(`{"username": "amara", "email": "a@b.c", "user_id": 4}`))
	}, "tok")

	p, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Profile{Username: "amara", Email: "a@b.c", UserID: 4}, p)
}

func TestBaseURLTrimmed(t *testing.T) {
	c := New("http://localhost:5000/", nil, logging.New(nil, "silent"))
	assert.Equal(t, "http://localhost:5000", c.BaseURL())
}
