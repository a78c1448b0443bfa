package models

// LoginRequest is the body of POST /user/login on the backend
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ResponseToken is the token envelope returned by the backend on login
type ResponseToken struct {
	Token        string `json:"token" validate:"required"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResponse is the backend's successful login payload
type LoginResponse struct {
	ID            string         `json:"id" validate:"required"`
	Name          string         `json:"name"`
	Email         string         `json:"email" validate:"required,email"`
	ResponseToken *ResponseToken `json:"responseToken" validate:"required"`
}

// RegisterRequest is the body of POST /user/register on the backend
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,max=256"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// ResetPasswordRequest is the body of POST /user/reset-password on the backend
type ResetPasswordRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Code        string `json:"code" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6"`
}

// BackendError is the backend's error body
type BackendError struct {
	ErrorMessages []string `json:"errorMessages"`
}
