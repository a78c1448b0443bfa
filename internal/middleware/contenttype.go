package middleware

import (
	"mime"
	"net/http"
)

// ContentType rejects request bodies that are neither JSON nor a urlencoded form.
// Bodiless POSTs (sign-out) pass through.
func ContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasBody(r) {
			contentType := r.Header.Get("Content-Type")
			if contentType == "" {
				respondErrorJSON(w, r, http.StatusBadRequest, "Bad Request", "Content-Type header is required", nil)
				return
			}

			mediaType, _, err := mime.ParseMediaType(contentType)
			if err != nil {
				respondErrorJSON(w, r, http.StatusBadRequest, "Bad Request", "Malformed Content-Type header", nil)
				return
			}
			switch mediaType {
			case "application/json", "application/x-www-form-urlencoded":
			default:
				respondErrorJSON(w, r, http.StatusUnsupportedMediaType, "Unsupported Media Type",
					"Content-Type must be application/json or application/x-www-form-urlencoded", nil)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func hasBody(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody
	default:
		return false
	}
}
