package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/studychat/internal/logging"
)

// FallbackAnswer is returned when no responder produced an answer.
const FallbackAnswer = "I apologize, but I'm having trouble processing your request right now. Please try again later."

// Responder produces the agent's answer to a message. An empty answer with
// a nil error means the responder had nothing to say.
type Responder interface {
	Respond(ctx context.Context, sender, message string) (string, error)
}

// RasaResponder asks a Rasa REST webhook for an answer.
type RasaResponder struct {
	url    string
	client *http.Client
	log    *logging.Logger
}

// NewRasaResponder creates a responder for the webhook at url, e.g.
// http://localhost:5005/webhooks/rest/webhook.
func NewRasaResponder(url string, timeout time.Duration, log *logging.Logger) *RasaResponder {
	return &RasaResponder{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log.Sub("rasa"),
	}
}

type rasaRequest struct {
	Sender  string `json:"sender"`
	Message string `json:"message"`
}

type rasaReply struct {
	Text string `json:"text"`
}

// Respond joins the text of every reply with blank lines.
func (r *RasaResponder) Respond(ctx context.Context, sender, message string) (string, error) {
	body, err := json.Marshal(rasaRequest{Sender: sender, Message: message})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("rasa request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("rasa: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("rasa: unexpected status %d", resp.StatusCode)
	}

	var replies []rasaReply
	if err := json.NewDecoder(resp.Body).Decode(&replies); err != nil {
		return "", fmt.Errorf("rasa: decoding reply: %w", err)
	}

	texts := make([]string, 0, len(replies))
	for _, reply := range replies {
		if reply.Text != "" {
			texts = append(texts, reply.Text)
		}
	}
	answer := strings.Join(texts, "\n\n")
	if strings.TrimSpace(answer) == "" {
		return "", nil
	}
	return answer, nil
}

// StaticResponder always gives the same answer.
type StaticResponder struct {
	Answer string
}

func (s StaticResponder) Respond(context.Context, string, string) (string, error) {
	return s.Answer, nil
}

// FallbackResponder tries each responder in turn and returns the first
// non-empty answer. Failures are logged and skipped. When every responder
// comes up empty the apology in FallbackAnswer is returned.
type FallbackResponder struct {
	responders []Responder
	log        *logging.Logger
}

// NewFallbackResponder creates a FallbackResponder.
func NewFallbackResponder(log *logging.Logger, responders ...Responder) *FallbackResponder {
	return &FallbackResponder{responders: responders, log: log.Sub("responder")}
}

func (f *FallbackResponder) Respond(ctx context.Context, sender, message string) (string, error) {
	for i, r := range f.responders {
		answer, err := r.Respond(ctx, sender, message)
		if err != nil {
			f.log.Warn().Err(err).Int("responder", i).Msg("responder failed")
			continue
		}
		if strings.TrimSpace(answer) != "" {
			return answer, nil
		}
	}
	return FallbackAnswer, nil
}
