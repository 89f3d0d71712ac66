package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	ContentTypeJSON    = "application/json"
	ContentTypeMsgpack = "application/msgpack"
)

// WantsMsgpack reports whether the client asked for a msgpack body
func WantsMsgpack(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, ContentTypeMsgpack) || strings.Contains(accept, "application/x-msgpack")
}

// Respond encodes v as JSON, or as msgpack when the Accept header asks for it.
// msgpack field names follow the json tags so both encodings have one schema.
// The body is encoded before the status is written, so a value that cannot be
// encoded becomes a 500 instead of a truncated success.
func Respond(w http.ResponseWriter, r *http.Request, statusCode int, v interface{}) {
	var buf bytes.Buffer
	contentType := ContentTypeJSON

	var err error
	if r != nil && WantsMsgpack(r) {
		contentType = ContentTypeMsgpack
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		err = enc.Encode(v)
	} else {
		err = json.NewEncoder(&buf).Encode(v)
	}

	if err != nil {
		log.Error().Err(err).Str("content_type", contentType).Msg("Failed to encode response")
		w.Header().Set("Content-Type", ContentTypeJSON)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ErrorBody{Error: "failed to encode response"})
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(statusCode)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// ErrorResponse sends a JSON error response
func ErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	FieldErrorResponse(w, message, "", statusCode)
}

// FieldErrorResponse sends a JSON error response naming the offending input field
func FieldErrorResponse(w http.ResponseWriter, message, field string, statusCode int) {
	event := log.Warn()
	if statusCode >= 500 {
		event = log.Error()
	}
	if field != "" {
		event = event.Str("field", field)
	}
	event.Int("status", statusCode).Msg(message)

	Respond(w, nil, statusCode, ErrorBody{Error: message, Field: field})
}

// ParseFloat parses an optional float from the form or query, returning def
// when the key is absent
func ParseFloat(r *http.Request, key string, def float64) (float64, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not a number", key, v)
	}
	return f, nil
}

// ParseInt parses an optional int from the form or query
func ParseInt(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.FormValue(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", key, v)
	}
	return n, nil
}

// ParseBool parses an optional boolean flag from the form or query
func ParseBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.FormValue(key))
	return b
}

// IsJSON reports whether the request body is JSON
func IsJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), ContentTypeJSON)
}

// DecodeJSON decodes a JSON request body, rejecting unknown fields
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
