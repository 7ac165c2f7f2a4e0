// Package domain holds the types shared by the client, its stores, and the
// reference backend.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// DefaultChatName is the name a session carries until its first message.
const DefaultChatName = "New Chat"

// SessionID is an opaque backend-assigned session identifier.
// The backend may encode it as a JSON number or a JSON string.
type SessionID string

// UnmarshalJSON accepts both `7` and `"7"`.
func (id *SessionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = SessionID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("session id: %w", err)
	}
	*id = SessionID(n.String())
	return nil
}

func (id SessionID) String() string { return string(id) }

// Session is one conversation thread as summarized by the backend.
type Session struct {
	ID   SessionID `json:"id"`
	Name string    `json:"name"`
}

// ContainsSession reports whether id is among sessions.
func ContainsSession(sessions []Session, id SessionID) bool {
	for _, s := range sessions {
		if s.ID == id {
			return true
		}
	}
	return false
}

// FilterSessions returns the sessions whose name contains search,
// case-insensitively. A blank search returns every session.
func FilterSessions(sessions []Session, search string) []Session {
	search = strings.ToLower(strings.TrimSpace(search))
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if search == "" || strings.Contains(strings.ToLower(s.Name), search) {
			out = append(out, s)
		}
	}
	return out
}

// ChatName derives a session name from the first message of a conversation:
// the first six words, capitalized, with "..." when truncated.
func ChatName(message string) string {
	words := strings.Fields(message)
	if len(words) == 0 {
		return DefaultChatName
	}
	name := strings.Join(words[:min(len(words), 6)], " ")
	if len(words) > 6 {
		name += "..."
	}
	return capitalize(name)
}

func capitalize(s string) string {
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
