package backend

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

type contextKey struct{}

// userFromContext returns the user attached by requireToken.
func userFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(contextKey{}).(User)
	return u, ok
}

// requireToken resolves the bearer token and attaches its user to the
// request context.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Token is missing")
			return
		}
		user, err := s.repo.UserForToken(token)
		if err != nil {
			if !errors.Is(err, ErrInvalidCredential) {
				s.log.Error().Err(err).Msg("token lookup failed")
			}
			writeError(w, http.StatusUnauthorized, "Token is invalid")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Message  string `json:"message,omitempty"`
	Token    string `json:"token,omitempty"`
	Username string `json:"username"`
	Email    string `json:"email"`
	UserID   int64  `json:"user_id"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username, email, and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		s.log.Error().Err(err).Msg("hashing password")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := s.repo.CreateUser(req.Username, req.Email, string(hash))
	switch {
	case errors.Is(err, ErrUsernameTaken):
		writeError(w, http.StatusConflict, "Username already exists")
		return
	case errors.Is(err, ErrEmailTaken):
		writeError(w, http.StatusConflict, "Email already exists")
		return
	case err != nil:
		s.log.Error().Err(err).Msg("creating user")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := s.repo.IssueToken(user.ID, s.tokenTTL)
	if err != nil {
		s.log.Error().Err(err).Msg("issuing token")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.log.Info().Str("user", user.Username).Int64("user_id", user.ID).Msg("user registered")
	writeJSON(w, http.StatusCreated, authResponse{
		Message:  "User registered successfully",
		Token:    token,
		Username: user.Username,
		Email:    user.Email,
		UserID:   user.ID,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	identifier := strings.TrimSpace(req.Username)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Email)
	}
	if identifier == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username/email and password are required")
		return
	}

	user, err := s.repo.UserByIdentifier(identifier)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.log.Error().Err(err).Msg("looking up user")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.repo.IssueToken(user.ID, s.tokenTTL)
	if err != nil {
		s.log.Error().Err(err).Msg("issuing token")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Message:  "Login successful",
		Token:    token,
		Username: user.Username,
		Email:    user.Email,
		UserID:   user.ID,
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, authResponse{
		Username: user.Username,
		Email:    user.Email,
		UserID:   user.ID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}
