package api

// Credentials is the body of register and login requests. Login accepts
// either the username or the email as the identifier.
type Credentials struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// AuthResponse is returned by a successful register or login.
type AuthResponse struct {
	Message  string `json:"message,omitempty"`
	Token    string `json:"token"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	UserID   int64  `json:"user_id,omitempty"`
}

// Profile describes the authenticated user.
type Profile struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	UserID   int64  `json:"user_id"`
}

type createSessionRequest struct {
	Message string `json:"message,omitempty"`
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

type sendMessageResponse struct {
	Answer string `json:"answer"`
}

type errorResponse struct {
	Error string `json:"error"`
}
