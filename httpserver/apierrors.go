package httpserver

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
)

// ApiError is an error returned by the API, serialized as JSON.
type ApiError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	InnerError error             `json:"-"`
	Metadata   map[string]string `json:"metadata,omitempty"`

	httpStatus int
}

// NewApiError creates a new ApiError with the specified code, HTTP status, and message.
func NewApiError(code string, httpStatus int, message string) *ApiError {
	return &ApiError{
		Code:       code,
		Message:    message,
		httpStatus: httpStatus,
	}
}

// HTTPStatus returns the status code written by WriteResponse.
func (e ApiError) HTTPStatus() int {
	if e.httpStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.httpStatus
}

// WriteResponse writes the error as a JSON response.
func (e ApiError) WriteResponse(w http.ResponseWriter, r *http.Request) {
	RespondWithStatus(w, r, e.HTTPStatus(), e)
}

// MarshalJSON implements json.Marshaler.
// The inner error is included as a string.
func (e ApiError) MarshalJSON() ([]byte, error) {
	type apiErrorJSON struct {
		Code       string            `json:"code"`
		Message    string            `json:"message"`
		InnerError string            `json:"innerError,omitempty"`
		Metadata   map[string]string `json:"metadata,omitempty"`
	}
	out := apiErrorJSON{
		Code:     e.Code,
		Message:  e.Message,
		Metadata: e.Metadata,
	}
	if e.InnerError != nil {
		out.InnerError = e.InnerError.Error()
	}
	return json.Marshal(out)
}

// Clone returns a copy of the error, with the modifications applied by the with functions.
func (e ApiError) Clone(with ...func(*ApiError)) *ApiError {
	cloned := &ApiError{
		Code:       e.Code,
		Message:    e.Message,
		InnerError: e.InnerError,
		Metadata:   maps.Clone(e.Metadata),
		httpStatus: e.httpStatus,
	}
	for _, w := range with {
		w(cloned)
	}
	return cloned
}

// WithInnerError sets the InnerError field; used with Clone.
func WithInnerError(innerError error) func(*ApiError) {
	return func(e *ApiError) {
		e.InnerError = innerError
	}
}

// WithMetadata adds values to the Metadata field; used with Clone.
func WithMetadata(metadata map[string]string) func(*ApiError) {
	return func(e *ApiError) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, len(metadata))
		}
		maps.Copy(e.Metadata, metadata)
	}
}

// Error implements the error interface.
func (e ApiError) Error() string {
	if e.InnerError != nil {
		return fmt.Sprintf("API error (%s): %s: %v", e.Code, e.Message, e.InnerError)
	}
	return fmt.Sprintf("API error (%s): %s", e.Code, e.Message)
}

// Unwrap returns the inner error.
func (e ApiError) Unwrap() error {
	return e.InnerError
}

// Is reports whether target is an ApiError with the same code.
func (e ApiError) Is(target error) bool {
	switch t := target.(type) {
	case ApiError:
		return t.Code == e.Code
	case *ApiError:
		return t != nil && t.Code == e.Code
	default:
		return false
	}
}
