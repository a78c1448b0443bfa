package models

// ExternalSubjectID is the subject assigned to identities established from an external token
// when the token itself carries no subject.
const ExternalSubjectID = "external"

// IdentityClaim holds the verified user attributes produced by authentication,
// before they are packaged into a session.
type IdentityClaim struct {
	SubjectID    string `json:"id" validate:"required,max=128"`
	DisplayName  string `json:"name" validate:"max=256"`
	Email        string `json:"email" validate:"required,email,max=254"`
	AccessToken  string `json:"token" validate:"required"`
	RefreshToken string `json:"refreshToken"`
}
