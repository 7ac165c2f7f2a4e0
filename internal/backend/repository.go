package backend

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/studychat/internal/domain"
	"github.com/soyeahso/studychat/internal/logging"
	"github.com/soyeahso/studychat/internal/store"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUsernameTaken     = errors.New("username already exists")
	ErrEmailTaken        = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid credential")
)

// dbTime is a fixed-width UTC layout so stored timestamps sort as text.
const dbTime = "2006-01-02T15:04:05.000000000Z"

// User is an account of the reference backend.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
}

// ChatSession is a stored conversation thread.
type ChatSession struct {
	ID        int64
	UserID    int64
	Name      string
	CreatedAt time.Time
}

// Repository persists users, tokens, sessions and exchanges in SQLite.
type Repository struct {
	db  *store.DB
	log *logging.Logger
	now func() time.Time
}

// OpenRepository opens the backend database at path and migrates it.
func OpenRepository(path string, log *logging.Logger) (*Repository, error) {
	db, err := store.Open(path, log, Migrations)
	if err != nil {
		return nil, err
	}
	return NewRepository(db, log), nil
}

// NewRepository creates a Repository on an already migrated database.
func NewRepository(db *store.DB, log *logging.Logger) *Repository {
	return &Repository{db: db, log: log.Sub("repository"), now: time.Now}
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) timestamp() string {
	return r.now().UTC().Format(dbTime)
}

// CreateUser inserts a user. Username and email must be unused.
func (r *Repository) CreateUser(username, email, passwordHash string) (User, error) {
	var n int
	if err := r.db.SQL().QueryRow(`SELECT COUNT(*) FROM users WHERE username = ?`, username).Scan(&n); err != nil {
		return User{}, fmt.Errorf("checking username: %w", err)
	}
	if n > 0 {
		return User{}, ErrUsernameTaken
	}
	if err := r.db.SQL().QueryRow(`SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&n); err != nil {
		return User{}, fmt.Errorf("checking email: %w", err)
	}
	if n > 0 {
		return User{}, ErrEmailTaken
	}

	res, err := r.db.SQL().Exec(
		`INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)`,
		username, email, passwordHash,
	)
	if err != nil {
		return User{}, fmt.Errorf("inserting user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("user id: %w", err)
	}
	return User{ID: id, Username: username, Email: email, PasswordHash: passwordHash}, nil
}

// UserByIdentifier finds a user by username or email.
func (r *Repository) UserByIdentifier(identifier string) (User, error) {
	return r.scanUser(r.db.SQL().QueryRow(
		`SELECT id, username, email, password_hash FROM users
		 WHERE username = ? OR email = ? ORDER BY id LIMIT 1`,
		identifier, identifier,
	))
}

// UserByID finds a user by id.
func (r *Repository) UserByID(id int64) (User, error) {
	return r.scanUser(r.db.SQL().QueryRow(
		`SELECT id, username, email, password_hash FROM users WHERE id = ?`, id,
	))
}

func (r *Repository) scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scanning user: %w", err)
	}
	return u, nil
}

// IssueToken creates an opaque bearer token for userID valid for ttl.
func (r *Repository) IssueToken(userID int64, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	expires := r.now().Add(ttl).UTC().Format(dbTime)
	if _, err := r.db.SQL().Exec(
		`INSERT INTO auth_tokens (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, expires,
	); err != nil {
		return "", fmt.Errorf("inserting token: %w", err)
	}
	return token, nil
}

// UserForToken resolves a bearer token. Unknown and expired tokens yield
// ErrInvalidCredential.
func (r *Repository) UserForToken(token string) (User, error) {
	var userID int64
	var expiresAt string
	err := r.db.SQL().QueryRow(
		`SELECT user_id, expires_at FROM auth_tokens WHERE token = ?`, token,
	).Scan(&userID, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrInvalidCredential
	}
	if err != nil {
		return User{}, fmt.Errorf("looking up token: %w", err)
	}

	expires, err := time.Parse(dbTime, expiresAt)
	if err != nil || !r.now().Before(expires) {
		return User{}, ErrInvalidCredential
	}

	u, err := r.UserByID(userID)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredential
	}
	return u, err
}

// PruneTokens deletes expired tokens and returns how many were removed.
func (r *Repository) PruneTokens() (int64, error) {
	res, err := r.db.SQL().Exec(`DELETE FROM auth_tokens WHERE expires_at <= ?`, r.timestamp())
	if err != nil {
		return 0, fmt.Errorf("pruning tokens: %w", err)
	}
	return res.RowsAffected()
}

// CreateSession stores a new session for userID.
func (r *Repository) CreateSession(userID int64, name string) (ChatSession, error) {
	now := r.now().UTC()
	res, err := r.db.SQL().Exec(
		`INSERT INTO chat_sessions (user_id, name, created_at) VALUES (?, ?, ?)`,
		userID, name, now.Format(dbTime),
	)
	if err != nil {
		return ChatSession{}, fmt.Errorf("inserting session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return ChatSession{}, fmt.Errorf("session id: %w", err)
	}
	return ChatSession{ID: id, UserID: userID, Name: name, CreatedAt: now}, nil
}

// ListSessions returns the sessions of userID, newest first.
func (r *Repository) ListSessions(userID int64) ([]ChatSession, error) {
	rows, err := r.db.SQL().Query(
		`SELECT id, user_id, name, created_at FROM chat_sessions
		 WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	sessions := []ChatSession{}
	for rows.Next() {
		var s ChatSession
		var created string
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &created); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		s.CreatedAt, _ = time.Parse(dbTime, created)
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// Session returns a session owned by userID, or ErrNotFound.
func (r *Repository) Session(userID, id int64) (ChatSession, error) {
	var s ChatSession
	var created string
	err := r.db.SQL().QueryRow(
		`SELECT id, user_id, name, created_at FROM chat_sessions WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(&s.ID, &s.UserID, &s.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatSession{}, ErrNotFound
	}
	if err != nil {
		return ChatSession{}, fmt.Errorf("reading session: %w", err)
	}
	s.CreatedAt, _ = time.Parse(dbTime, created)
	return s, nil
}

// RenameSession changes a session's name.
func (r *Repository) RenameSession(id int64, name string) error {
	if _, err := r.db.SQL().Exec(`UPDATE chat_sessions SET name = ? WHERE id = ?`, name, id); err != nil {
		return fmt.Errorf("renaming session: %w", err)
	}
	return nil
}

// DeleteSessions removes every session of userID along with its exchanges.
func (r *Repository) DeleteSessions(userID int64) (int64, error) {
	tx, err := r.db.SQL().Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	if _, err := tx.Exec(
		`DELETE FROM chat_exchanges WHERE session_id IN (SELECT id FROM chat_sessions WHERE user_id = ?)`,
		userID,
	); err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("deleting exchanges: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM chat_sessions WHERE user_id = ?`, userID)
	if err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("deleting sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return res.RowsAffected()
}

// AddExchange stores a message and its response in a session. An empty
// response is stored as NULL.
func (r *Repository) AddExchange(sessionID, userID int64, message, response string) (domain.Exchange, error) {
	var resp sql.NullString
	if strings.TrimSpace(response) != "" {
		resp = sql.NullString{String: response, Valid: true}
	}
	ts := r.timestamp()
	res, err := r.db.SQL().Exec(
		`INSERT INTO chat_exchanges (session_id, user_id, message, response, created_at) VALUES (?, ?, ?, ?, ?)`,
		sessionID, userID, message, resp, ts,
	)
	if err != nil {
		return domain.Exchange{}, fmt.Errorf("inserting exchange: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Exchange{}, fmt.Errorf("exchange id: %w", err)
	}

	ex := domain.Exchange{ID: id, Message: message, Timestamp: ts}
	if resp.Valid {
		ex.Response = &resp.String
	}
	return ex, nil
}

// Exchanges returns the exchanges of a session, oldest first.
func (r *Repository) Exchanges(sessionID, userID int64) ([]domain.Exchange, error) {
	rows, err := r.db.SQL().Query(
		`SELECT id, message, response, created_at FROM chat_exchanges
		 WHERE session_id = ? AND user_id = ? ORDER BY id`, sessionID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing exchanges: %w", err)
	}
	defer rows.Close()

	exchanges := []domain.Exchange{}
	for rows.Next() {
		var ex domain.Exchange
		var resp sql.NullString
		if err := rows.Scan(&ex.ID, &ex.Message, &resp, &ex.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning exchange: %w", err)
		}
		if resp.Valid {
			s := resp.String
			ex.Response = &s
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}
