package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/myrecipebook/web-gateway/internal/logger"
	"github.com/myrecipebook/web-gateway/internal/models"
)

const maxErrorMessageLength = 200

// respondJSON sends a JSON response in the success envelope
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondJSONError sends an error JSON response with a length-capped message
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	respondJSONErrorDetails(w, status, errorType, message, nil)
}

// respondJSONErrorDetails is respondJSONError with backend validation messages attached
func respondJSONErrorDetails(w http.ResponseWriter, status int, errorType, message string, details []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if len(details) > 0 {
		response["errorMessages"] = details
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func sanitizeErrorMessage(message string) string {
	return logger.Truncate(message, maxErrorMessageLength)
}

// writeRawJSON writes body without the envelope, for endpoints whose shape is fixed by the frontend
func writeRawJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

var errBadBody = errors.New("invalid request body")

func isForm(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}

// decodeBody decodes a JSON body into v, rejecting unknown fields
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

// decodeCredentials reads credentials from a JSON body or a urlencoded form
func decodeCredentials(r *http.Request) (models.CredentialsRequest, error) {
	var req models.CredentialsRequest
	if isForm(r) {
		if err := r.ParseForm(); err != nil {
			return req, fmt.Errorf("%w: %v", errBadBody, err)
		}
		req.Username = r.PostForm.Get("username")
		req.Email = r.PostForm.Get("email")
		req.Password = r.PostForm.Get("password")
		req.Name = r.PostForm.Get("name")
		req.Mode = models.LoginMode(r.PostForm.Get("mode"))
		return req, nil
	}
	if err := decodeBody(r, &req); err != nil {
		return req, err
	}
	return req, nil
}
