package backend

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/soyeahso/studychat/internal/domain"
)

type sessionResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

type messageRequest struct {
	Message string `json:"message"`
}

type answerResponse struct {
	Answer string `json:"answer"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	sessions, err := s.repo.ListSessions(user.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("listing sessions")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]sessionResponse, 0, len(sessions))
	for _, cs := range sessions {
		out = append(out, sessionResponse{
			ID:        cs.ID,
			Name:      cs.Name,
			CreatedAt: cs.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cs, err := s.repo.CreateSession(user.ID, domain.ChatName(req.Message))
	if err != nil {
		s.log.Error().Err(err).Msg("creating session")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Debug().Int64("session", cs.ID).Str("name", cs.Name).Msg("session created")
	writeJSON(w, http.StatusOK, sessionResponse{ID: cs.ID, Name: cs.Name})
}

func (s *Server) handleDeleteSessions(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	n, err := s.repo.DeleteSessions(user.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("deleting sessions")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info().Int64("user_id", user.ID).Int64("sessions", n).Msg("sessions deleted")
	writeJSON(w, http.StatusOK, map[string]string{"message": "All sessions deleted."})
}

// ownedSession resolves the {id} URL parameter to a session of the current
// user, writing a 404 when it is malformed or not theirs.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) (User, ChatSession, bool) {
	user, _ := userFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return user, ChatSession{}, false
	}
	cs, err := s.repo.Session(user.ID, id)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return user, ChatSession{}, false
	}
	if err != nil {
		s.log.Error().Err(err).Msg("reading session")
		writeError(w, http.StatusInternalServerError, "internal error")
		return user, ChatSession{}, false
	}
	return user, cs, true
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	user, cs, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	exchanges, err := s.repo.Exchanges(cs.ID, user.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("listing exchanges")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, exchanges)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "Message required")
		return
	}

	user, cs, ok := s.ownedSession(w, r)
	if !ok {
		return
	}

	if cs.Name == domain.DefaultChatName || strings.TrimSpace(cs.Name) == "" {
		if err := s.repo.RenameSession(cs.ID, domain.ChatName(message)); err != nil {
			s.log.Warn().Err(err).Int64("session", cs.ID).Msg("failed to rename session")
		}
	}

	answer, err := s.responder.Respond(r.Context(), strconv.FormatInt(user.ID, 10), message)
	if err != nil || strings.TrimSpace(answer) == "" {
		if err != nil {
			s.log.Warn().Err(err).Msg("responder failed")
		}
		answer = FallbackAnswer
	}
	if answer == FallbackAnswer {
		s.metrics.answers.WithLabelValues("fallback").Inc()
	} else {
		s.metrics.answers.WithLabelValues("answered").Inc()
	}

	if _, err := s.repo.AddExchange(cs.ID, user.ID, message, answer); err != nil {
		s.log.Error().Err(err).Msg("storing exchange")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, answerResponse{Answer: answer})
}
