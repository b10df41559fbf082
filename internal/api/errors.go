package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/TimurManjosov/gorules/internal/rules"
	"github.com/TimurManjosov/gorules/internal/store"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/hlog"
)

// ErrorCode represents machine-readable error codes
type ErrorCode string

const (
	// General error codes
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"
	ErrCodeRequestTooLarge ErrorCode = "REQUEST_TOO_LARGE"
	ErrCodeUnavailable     ErrorCode = "UNAVAILABLE"

	// Rule error codes
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidJSON  ErrorCode = "INVALID_JSON"
	ErrCodeSyntax       ErrorCode = "SYNTAX_ERROR"
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"
)

// Position locates a syntax error in the submitted rule string.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// ErrorResponse represents a structured error response
type ErrorResponse struct {
	Error     string            `json:"error"`                // HTTP status text
	Message   string            `json:"message"`              // Human-readable description
	Code      ErrorCode         `json:"code"`                 // Machine-readable error code
	Kind      string            `json:"kind,omitempty"`       // Rule error kind, e.g. ValidationError
	Fields    map[string]string `json:"fields,omitempty"`     // Field-level errors
	Position  *Position         `json:"position,omitempty"`   // Syntax error location
	RequestID string            `json:"request_id,omitempty"` // Request ID for debugging
}

// NewErrorResponse creates a new error response
func NewErrorResponse(statusCode int, code ErrorCode, message string) *ErrorResponse {
	return &ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    code,
	}
}

// WithFields adds field-level errors to the response
func (e *ErrorResponse) WithFields(fields map[string]string) *ErrorResponse {
	e.Fields = fields
	return e
}

// WithKind sets the rule error kind
func (e *ErrorResponse) WithKind(kind string) *ErrorResponse {
	e.Kind = kind
	return e
}

// WithRequestID adds a request ID to the response
func (e *ErrorResponse) WithRequestID(requestID string) *ErrorResponse {
	e.RequestID = requestID
	return e
}

// writeErrorResponse writes a structured error response to the http response writer
func writeErrorResponse(w http.ResponseWriter, r *http.Request, statusCode int, errResp *ErrorResponse) {
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		errResp.RequestID = reqID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errResp)
}

// ValidationError creates a validation error response with field-level details
func ValidationError(w http.ResponseWriter, r *http.Request, message string, fields map[string]string) {
	errResp := NewErrorResponse(http.StatusBadRequest, ErrCodeValidation, message).
		WithKind(rules.KindValidationError).
		WithFields(fields)
	writeErrorResponse(w, r, http.StatusBadRequest, errResp)
}

// BadRequestError creates a bad request error response
func BadRequestError(w http.ResponseWriter, r *http.Request, code ErrorCode, message string) {
	errResp := NewErrorResponse(http.StatusBadRequest, code, message)
	writeErrorResponse(w, r, http.StatusBadRequest, errResp)
}

// UnauthorizedError creates an unauthorized error response
func UnauthorizedError(w http.ResponseWriter, r *http.Request, message string) {
	errResp := NewErrorResponse(http.StatusUnauthorized, ErrCodeUnauthorized, message)
	writeErrorResponse(w, r, http.StatusUnauthorized, errResp)
}

// ForbiddenError creates a forbidden error response
func ForbiddenError(w http.ResponseWriter, r *http.Request, message string) {
	errResp := NewErrorResponse(http.StatusForbidden, ErrCodeForbidden, message)
	writeErrorResponse(w, r, http.StatusForbidden, errResp)
}

// InternalError creates an internal server error response
func InternalError(w http.ResponseWriter, r *http.Request, message string) {
	errResp := NewErrorResponse(http.StatusInternalServerError, ErrCodeInternal, message)
	writeErrorResponse(w, r, http.StatusInternalServerError, errResp)
}

// NotFoundError creates a not found error response
func NotFoundError(w http.ResponseWriter, r *http.Request, message string) {
	errResp := NewErrorResponse(http.StatusNotFound, ErrCodeNotFound, message).
		WithKind(rules.KindNotFoundError)
	writeErrorResponse(w, r, http.StatusNotFound, errResp)
}

// RequestTooLargeError creates a request entity too large error response
func RequestTooLargeError(w http.ResponseWriter, r *http.Request, message string) {
	errResp := NewErrorResponse(http.StatusRequestEntityTooLarge, ErrCodeRequestTooLarge, message)
	writeErrorResponse(w, r, http.StatusRequestEntityTooLarge, errResp)
}

// RateLimitedError creates a too many requests error response
func RateLimitedError(w http.ResponseWriter, r *http.Request) {
	errResp := NewErrorResponse(http.StatusTooManyRequests, ErrCodeRateLimited, "Too many requests, slow down")
	writeErrorResponse(w, r, http.StatusTooManyRequests, errResp)
}

// writeRuleError maps an error from the rule service onto a response:
// syntax and validation errors are 400, type mismatches 422, unknown ids
// 404. Anything else is logged and reported as 500.
func writeRuleError(w http.ResponseWriter, r *http.Request, err error) {
	kind := rules.KindOf(err)
	switch kind {
	case rules.KindNotFoundError:
		NotFoundError(w, r, err.Error())
		return
	case rules.KindTypeMismatchError:
		errResp := NewErrorResponse(http.StatusUnprocessableEntity, ErrCodeTypeMismatch, err.Error()).WithKind(kind)
		writeErrorResponse(w, r, http.StatusUnprocessableEntity, errResp)
		return
	case rules.KindValidationError, rules.KindSyntaxError:
		// Parse failures keep kind ValidationError but report SYNTAX_ERROR.
		code := ErrCodeValidation
		var synErr *rules.SyntaxError
		if errors.As(err, &synErr) {
			code = ErrCodeSyntax
		}
		errResp := NewErrorResponse(http.StatusBadRequest, code, err.Error()).WithKind(kind)
		if synErr != nil && synErr.Line > 0 {
			errResp.Position = &Position{Line: synErr.Line, Column: synErr.Column}
		}
		writeErrorResponse(w, r, http.StatusBadRequest, errResp)
		return
	}

	switch {
	case errors.Is(err, store.ErrDuplicateID):
		writeErrorResponse(w, r, http.StatusConflict, NewErrorResponse(http.StatusConflict, ErrCodeConflict, err.Error()))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeErrorResponse(w, r, http.StatusServiceUnavailable,
			NewErrorResponse(http.StatusServiceUnavailable, ErrCodeUnavailable, "Request timed out"))
	default:
		hlog.FromRequest(r).Error().Err(err).Msg("request failed")
		InternalError(w, r, "Internal server error")
	}
}
