package models

// RegisterRequest represents the JSON body for user registration
// swagger:model RegisterRequest
type RegisterRequest struct {
	// Username
	// required: true
	// example: john_doe
	Username string `json:"username" validate:"required,max=50"`

	// Email
	// required: true
	// example: john@example.com
	Email string `json:"email" validate:"required,email,max=100"`

	// Password
	// required: true
	// example: secret123
	Password string `json:"password" validate:"required,maxbytes=72"`
}

// TokenResponse represents a successful login response
// swagger:model TokenResponse
type TokenResponse struct {
	// Signed bearer token
	// example: eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...
	AccessToken string `json:"access_token"`

	// Always "bearer"
	// example: bearer
	TokenType string `json:"token_type"`
}

// MessageResponse carries a human readable confirmation
// swagger:model MessageResponse
type MessageResponse struct {
	// example: Item deleted successfully
	Message string `json:"message"`
}

// ErrorResponse is the body of every error response
// swagger:model ErrorResponse
type ErrorResponse struct {
	// example: Not enough permissions
	Detail string `json:"detail"`
}
