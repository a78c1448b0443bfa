package models

import "strings"

// LoginMode tells the credential verifier how to treat the secret
type LoginMode string

const (
	// LoginModePassword verifies the secret against the backend login endpoint
	LoginModePassword LoginMode = "password"
	// LoginModeExternal treats the secret as an external token from the OAuth bridge
	LoginModeExternal LoginMode = "external"
	// LoginModeAuto picks external when the secret looks like a compact token (contains '.')
	LoginModeAuto LoginMode = "auto"
)

// Resolve turns LoginModeAuto into a concrete mode for the given secret.
// An empty mode behaves like auto.
func (m LoginMode) Resolve(secret string) LoginMode {
	switch m {
	case LoginModePassword, LoginModeExternal:
		return m
	default:
		if strings.Contains(secret, ".") {
			return LoginModeExternal
		}
		return LoginModePassword
	}
}

// CredentialsRequest is the body accepted by the gateway's credential endpoints.
// Username/password mirror the original credentials form; Email is accepted as an alias.
type CredentialsRequest struct {
	Username string    `json:"username" validate:"required_without=Email,max=254"`
	Email    string    `json:"email" validate:"required_without=Username,max=254"`
	Password string    `json:"password" validate:"required"`
	Name     string    `json:"name" validate:"max=256"`
	Mode     LoginMode `json:"mode" validate:"omitempty,login_mode"`
}

// Identifier returns the username or its email alias
func (r *CredentialsRequest) Identifier() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}
