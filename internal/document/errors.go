package document

import (
	"errors"
	"net/http"
)

// Sentinel errors, use with errors.Is().
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrAuth       = errors.New("not authenticated")
	ErrStore      = errors.New("store failure")
	ErrConflict   = errors.New("version conflict")
)

// Messages surfaced to users.
const (
	MsgTitleRequired    = "Title is required"
	MsgContentRequired  = "Content is required"
	MsgInvalidCategory  = "Invalid category"
	MsgNotFound         = "Document not found"
	MsgNotAuthenticated = "Not authenticated"
)

// HTTPError is implemented by every error in the taxonomy.
type HTTPError interface {
	error
	StatusCode() int
}

type (
	// ValidationError indicates invalid input (empty title/content, bad category).
	ValidationError struct {
		Message string
	}

	// NotFoundError indicates an identifier that does not resolve.
	NotFoundError struct {
		Message string
	}

	// AuthError indicates a missing acting-user identity.
	AuthError struct {
		Message string
	}

	// ConflictError indicates the document kept changing underneath an update.
	ConflictError struct {
		Message string
	}

	// StoreError wraps a transport or backend failure.
	StoreError struct {
		Message string
		Err     error
	}
)

func (e *ValidationError) Error() string { return e.Message }
func (e *NotFoundError) Error() string   { return e.Message }
func (e *AuthError) Error() string       { return e.Message }
func (e *ConflictError) Error() string   { return e.Message }

func (e *StoreError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }
func (e *NotFoundError) StatusCode() int   { return http.StatusNotFound }
func (e *AuthError) StatusCode() int       { return http.StatusUnauthorized }
func (e *ConflictError) StatusCode() int   { return http.StatusConflict }
func (e *StoreError) StatusCode() int      { return http.StatusInternalServerError }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
func (e *NotFoundError) Is(target error) bool   { return target == ErrNotFound }
func (e *AuthError) Is(target error) bool       { return target == ErrAuth }
func (e *ConflictError) Is(target error) bool   { return target == ErrConflict }
func (e *StoreError) Is(target error) bool      { return target == ErrStore }

// NotFound returns the canonical "Document not found" error.
func NotFound() error { return &NotFoundError{Message: MsgNotFound} }

// StatusCode maps any error to an HTTP status, defaulting to 500.
func StatusCode(err error) int {
	var he HTTPError
	if errors.As(err, &he) {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}
