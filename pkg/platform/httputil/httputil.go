// Package httputil centralizes JSON encoding of responses and domain errors.
package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "tokenmeta/pkg/domain-errors"
)

// MaxBodyBytes bounds request bodies; a logo alone may take ~87KB.
const MaxBodyBytes = 2 << 20

// ErrorResponse is the envelope for every non-validation error.
type ErrorResponse struct {
	InternalCode string `json:"internalCode"`
	Message      string `json:"message"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err into a status and body. Validation errors render
// their violation list; server-side failures never leak the underlying cause.
func WriteError(w http.ResponseWriter, err error) {
	de, ok := dErrors.As(err)
	if !ok {
		de = dErrors.New(dErrors.CodeUnmapped, "an unexpected error occurred")
	}
	status := dErrors.ToHTTPStatus(de.Code)

	if de.Code == dErrors.CodeValidation && de.Details != nil {
		WriteJSON(w, status, de.Details)
		return
	}

	message := de.Message
	if (status >= http.StatusInternalServerError && de.Code != dErrors.CodeSubjectExists) || de.Code == dErrors.CodeTimeout {
		message = genericMessage(de.Code)
	}
	WriteJSON(w, status, ErrorResponse{InternalCode: string(de.Code), Message: message})
}

func genericMessage(code dErrors.Code) string {
	switch code {
	case dErrors.CodeStore:
		return "the metadata store could not complete the request"
	case dErrors.CodeTimeout:
		return "the request timed out"
	default:
		return "an unexpected error occurred"
	}
}

// DecodeJSON decodes a size-limited request body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return dErrors.New(dErrors.CodeInvalidJSON, "request body too large")
		}
		if errors.Is(err, io.EOF) {
			return dErrors.New(dErrors.CodeInvalidJSON, "request body is empty")
		}
		return dErrors.Wrap(err, dErrors.CodeInvalidJSON, "request body is not valid JSON")
	}
	if dec.More() {
		return dErrors.New(dErrors.CodeInvalidJSON, "request body must contain a single JSON value")
	}
	return nil
}
