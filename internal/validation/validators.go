package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/myrecipebook/web-gateway/internal/models"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New(validator.WithRequiredStructEnabled())

	if err := Validate.RegisterValidation("login_mode", validateLoginMode); err != nil {
		panic(fmt.Sprintf("failed to register login_mode validator: %v", err))
	}
}

// validateLoginMode validates that a string is a valid LoginMode enum value
func validateLoginMode(fl validator.FieldLevel) bool {
	switch models.LoginMode(fl.Field().String()) {
	case models.LoginModePassword, models.LoginModeExternal, models.LoginModeAuto:
		return true
	default:
		return false
	}
}

// Struct validates v and flattens validator errors into one readable error
func Struct(v any) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("validation failed: %s", strings.Join(msgs, ", "))
}

// NormalizeEmail trims and lower-cases an email identifier the way the login form does
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}
