package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// RespondWithJSON encodes data as JSON in the response body.
// Headers and status code must be written beforehand.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, data any) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	err := enc.Encode(data)
	if err != nil {
		slog.WarnContext(r.Context(), "Error writing JSON response", slog.Any("error", err))
	}
}

// RespondWithStatus writes a JSON response with the given status code.
func RespondWithStatus(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set(HeaderContentType, ContentTypeJson)
	w.WriteHeader(status)
	RespondWithJSON(w, r, data)
}
