package domain

// Role identifies who authored a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single transcript entry.
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Exchange is the backend's storage shape: a request and its reply, if any.
type Exchange struct {
	ID        int64   `json:"id,omitempty"`
	Message   string  `json:"message"`
	Response  *string `json:"response"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// Flatten converts exchanges into an ordered transcript. Each reply directly
// follows its request; an exchange without a reply yields only the user entry.
func Flatten(exchanges []Exchange) []Message {
	msgs := make([]Message, 0, 2*len(exchanges))
	for _, ex := range exchanges {
		msgs = append(msgs, Message{Role: RoleUser, Text: ex.Message})
		if ex.Response != nil && *ex.Response != "" {
			msgs = append(msgs, Message{Role: RoleAssistant, Text: *ex.Response})
		}
	}
	return msgs
}
