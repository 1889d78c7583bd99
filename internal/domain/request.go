package domain

// SignupRequest is the body of POST /signup.
type SignupRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// SendMessageRequest is the body of POST /messages.
type SendMessageRequest struct {
	Campaign string `json:"campaign"`
	Sender   string `json:"sender"`
	Content  string `json:"content"`
	Role     Role   `json:"role"`
}

// CampaignChatRequest is the body of POST /campaigns/:id/chat and of the
// campaign-less POST /api/marketa/chat.
type CampaignChatRequest struct {
	Prompt string `json:"prompt"`
	UserID string `json:"userId"`
}

// CampaignChatResponse is the synchronous reply of both chat routes.
type CampaignChatResponse struct {
	Response string `json:"response"`
}

// ErrorBody is the JSON error shape the backend returns on non-2xx responses.
type ErrorBody struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
