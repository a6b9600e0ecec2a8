// Package apierr writes JSON responses and maps failures onto the API's
// error taxonomy: validation (400), not found (404), upstream (400/500 with
// the upstream detail) and internal (500).
package apierr

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// MaxJSONBody bounds request bodies read by DecodeJSON.
const MaxJSONBody = 1 << 20

var ErrEmptyBody = errors.New("request body is empty")

// Body is the error response shape.
type Body struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Errors  any               `json:"errors,omitempty"`
	Stack   string            `json:"stack,omitempty"`
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DecodeJSON reads a JSON request body into dst.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	return nil
}

// ErrorLogger logs failures with request context and writes the response.
type ErrorLogger struct {
	log       *zap.Logger
	showStack bool
}

// NewErrorLogger returns an ErrorLogger. showStack adds a stack trace to
// 500 responses and should be false in production.
func NewErrorLogger(logger *zap.Logger, showStack bool) *ErrorLogger {
	return &ErrorLogger{log: logger, showStack: showStack}
}

func (e *ErrorLogger) fields(r *http.Request, err error) []zap.Field {
	f := []zap.Field{
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
	}
	if err != nil {
		f = append(f, zap.Error(err))
	}
	return f
}

// BadRequest responds 400 with msg.
func (e *ErrorLogger) BadRequest(w http.ResponseWriter, r *http.Request, msg string, err error) {
	e.log.Info(msg, e.fields(r, err)...)
	WriteJSON(w, http.StatusBadRequest, Body{Error: msg})
}

// Invalid responds 400 with per-field messages.
func (e *ErrorLogger) Invalid(w http.ResponseWriter, r *http.Request, first string, fields map[string]string) {
	e.log.Info("validation failed", append(e.fields(r, nil), zap.Any("fields", fields))...)
	WriteJSON(w, http.StatusBadRequest, Body{Error: first, Fields: fields})
}

// Unauthorized responds 401.
func (e *ErrorLogger) Unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	e.log.Info(msg, e.fields(r, nil)...)
	WriteJSON(w, http.StatusUnauthorized, Body{Error: msg})
}

// Forbidden responds 403.
func (e *ErrorLogger) Forbidden(w http.ResponseWriter, r *http.Request, msg string) {
	e.log.Info(msg, e.fields(r, nil)...)
	WriteJSON(w, http.StatusForbidden, Body{Error: msg})
}

// NotFound responds 404.
func (e *ErrorLogger) NotFound(w http.ResponseWriter, r *http.Request, msg string) {
	e.log.Debug(msg, e.fields(r, nil)...)
	WriteJSON(w, http.StatusNotFound, Body{Error: msg})
}

// TooManyRequests responds 429.
func (e *ErrorLogger) TooManyRequests(w http.ResponseWriter, r *http.Request) {
	e.log.Warn("rate limited", e.fields(r, nil)...)
	WriteJSON(w, http.StatusTooManyRequests, Body{Error: "Too many requests"})
}

// Upstream responds with status and passes the upstream's detail through.
func (e *ErrorLogger) Upstream(w http.ResponseWriter, r *http.Request, status int, msg string, detail any, err error) {
	e.log.Warn(msg, e.fields(r, err)...)
	body := Body{Error: msg, Errors: detail}
	if err != nil {
		body.Message = err.Error()
	}
	WriteJSON(w, status, body)
}

// ServerError responds 500 with the error message.
func (e *ErrorLogger) ServerError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	e.log.Error(msg, e.fields(r, err)...)
	body := Body{Error: msg}
	if err != nil {
		body.Message = err.Error()
	}
	if e.showStack {
		body.Stack = string(debug.Stack())
	}
	WriteJSON(w, http.StatusInternalServerError, body)
}
