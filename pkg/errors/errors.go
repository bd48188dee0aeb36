// Package errors defines the structured error taxonomy of the credcore service.
// Every failure surfaced by the cryptographic core carries a stable code and an
// HTTP status so that transports can map it without string matching.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Code is the stable, machine-readable identifier of an error class.
type Code string

const (
	CodeUnsupportedAlgorithm Code = "unsupported_algorithm"
	CodeInsufficientEntropy  Code = "insufficient_entropy"
	CodeInvalidLength        Code = "invalid_length"
	CodeWeakParameters       Code = "weak_parameters"
	CodeKeyNotFound          Code = "key_not_found"
	CodeKeyRevoked           Code = "key_revoked"
	CodeKeyExists            Code = "key_exists"
	CodeDuplicateNamespace   Code = "duplicate_namespace"
	CodeUnknownApplication   Code = "unknown_application"
	CodeAppExists            Code = "app_exists"
	CodeMalformedInput       Code = "malformed_input"
	CodeSignatureMismatch    Code = "signature_mismatch"
	CodeInvalidConfig        Code = "invalid_config"
	CodeCorruptKeyMaterial   Code = "corrupt_key_material"
	CodeInvalidMnemonic      Code = "invalid_mnemonic"
	CodeRateLimited          Code = "rate_limited"
	CodeInvalidToken         Code = "invalid_token"
	CodeInternal             Code = "internal_error"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// CredError represents a structured error with additional metadata
type CredError interface {
	error

	// Code returns the stable error code
	Code() Code

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description of the error class
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause returns a copy of the error with the cause attached
	WithCause(cause error) CredError

	// WithMetadata returns a copy of the error with an additional metadata entry
	WithMetadata(key string, value interface{}) CredError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	code        Code
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

// Error implements the error interface
func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *baseError) Code() Code          { return e.code }
func (e *baseError) HTTPStatus() int     { return e.httpStatus }
func (e *baseError) Description() string { return e.description }
func (e *baseError) Unwrap() error       { return e.cause }

// Is reports whether target carries the same code, which lets callers match
// sentinels such as ErrKeyNotFound with the standard errors.Is.
func (e *baseError) Is(target error) bool {
	var t *baseError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.code == e.code
}

func (e *baseError) clone() *baseError {
	c := *e
	c.metadata = make(map[string]interface{}, len(e.metadata))
	for k, v := range e.metadata {
		c.metadata[k] = v
	}
	return &c
}

// WithCause adds a cause error to the error chain
func (e *baseError) WithCause(cause error) CredError {
	c := e.clone()
	c.cause = cause
	return c
}

// WithMetadata adds additional context metadata
func (e *baseError) WithMetadata(key string, value interface{}) CredError {
	c := e.clone()
	c.metadata[key] = value
	return c
}

// Metadata returns all metadata
func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

// ================================================================================
// Error Constructor
// ================================================================================

// NewError creates a new CredError with the specified parameters
func NewError(code Code, httpStatus int, description string, message string) CredError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Sentinels
// ================================================================================

var (
	ErrUnsupportedAlgorithm = NewError(CodeUnsupportedAlgorithm, http.StatusBadRequest, "The requested algorithm is not supported.", "")
	ErrInsufficientEntropy  = NewError(CodeInsufficientEntropy, http.StatusServiceUnavailable, "The secure random source could not satisfy the request.", "")
	ErrInvalidLength        = NewError(CodeInvalidLength, http.StatusBadRequest, "The requested length is outside the permitted bounds.", "")
	ErrWeakParameters       = NewError(CodeWeakParameters, http.StatusBadRequest, "The derivation parameters are below the security floor.", "")
	ErrKeyNotFound          = NewError(CodeKeyNotFound, http.StatusNotFound, "The key does not exist.", "")
	ErrKeyRevoked           = NewError(CodeKeyRevoked, http.StatusConflict, "The key has been revoked.", "")
	ErrKeyExists            = NewError(CodeKeyExists, http.StatusConflict, "A different key already exists under this id.", "")
	ErrDuplicateNamespace   = NewError(CodeDuplicateNamespace, http.StatusConflict, "The storage namespace is already held by another application.", "")
	ErrUnknownApplication   = NewError(CodeUnknownApplication, http.StatusNotFound, "The application is not registered.", "")
	ErrAppExists            = NewError(CodeAppExists, http.StatusConflict, "The application is already registered.", "")
	ErrMalformedInput       = NewError(CodeMalformedInput, http.StatusBadRequest, "The cryptographic input is malformed.", "")
	ErrSignatureMismatch    = NewError(CodeSignatureMismatch, http.StatusBadRequest, "The signature does not match the message.", "")
	ErrInvalidConfig        = NewError(CodeInvalidConfig, http.StatusBadRequest, "The configuration is invalid.", "")
	ErrCorruptKeyMaterial   = NewError(CodeCorruptKeyMaterial, http.StatusInternalServerError, "The stored key material is inconsistent.", "")
	ErrInvalidMnemonic      = NewError(CodeInvalidMnemonic, http.StatusBadRequest, "The recovery phrase is invalid.", "")
	ErrRateLimited          = NewError(CodeRateLimited, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.", "")
	ErrInvalidToken         = NewError(CodeInvalidToken, http.StatusUnauthorized, "The credential token is invalid or expired.", "")
	ErrInternal             = NewError(CodeInternal, http.StatusInternalServerError, "An unexpected error occurred.", "")
)

// ================================================================================
// Predefined Error Constructors
// ================================================================================

func withMessage(sentinel CredError, message string) CredError {
	c := sentinel.(*baseError).clone()
	c.message = message
	return c
}

// UnsupportedAlgorithm creates an unsupported_algorithm error
func UnsupportedAlgorithm(name string) CredError {
	return withMessage(ErrUnsupportedAlgorithm, fmt.Sprintf("unsupported algorithm %q", name)).
		WithMetadata("algorithm", name)
}

// InsufficientEntropy creates an insufficient_entropy error
func InsufficientEntropy(requested int, cause error) CredError {
	return withMessage(ErrInsufficientEntropy, fmt.Sprintf("secure random source failed to provide %d bytes", requested)).
		WithCause(cause).
		WithMetadata("requested", requested)
}

// InvalidLength creates an invalid_length error
func InvalidLength(requested, min, max int) CredError {
	return withMessage(ErrInvalidLength, fmt.Sprintf("length %d outside [%d, %d]", requested, min, max)).
		WithMetadata("requested", requested).
		WithMetadata("min", min).
		WithMetadata("max", max)
}

// UnsupportedKeySize creates an invalid_length error for a key size the algorithm cannot use
func UnsupportedKeySize(algorithm string, bits int) CredError {
	return withMessage(ErrInvalidLength, fmt.Sprintf("key size %d is not valid for %s", bits, algorithm)).
		WithMetadata("algorithm", algorithm).
		WithMetadata("key_size", bits)
}

// WeakParameters creates a weak_parameters error
func WeakParameters(reason string) CredError {
	return withMessage(ErrWeakParameters, reason).WithMetadata("reason", reason)
}

// KeyNotFound creates a key_not_found error
func KeyNotFound(keyID string) CredError {
	return withMessage(ErrKeyNotFound, fmt.Sprintf("key %s not found", keyID)).
		WithMetadata("key_id", keyID)
}

// KeyRevoked creates a key_revoked error
func KeyRevoked(keyID string) CredError {
	return withMessage(ErrKeyRevoked, fmt.Sprintf("key %s has been revoked", keyID)).
		WithMetadata("key_id", keyID)
}

// KeyExists creates a key_exists error
func KeyExists(keyID string) CredError {
	return withMessage(ErrKeyExists, fmt.Sprintf("key %s already exists", keyID)).
		WithMetadata("key_id", keyID)
}

// DuplicateNamespace creates a duplicate_namespace error
func DuplicateNamespace(namespace, holder string) CredError {
	return withMessage(ErrDuplicateNamespace, fmt.Sprintf("storage namespace %q already held by %q", namespace, holder)).
		WithMetadata("namespace", namespace).
		WithMetadata("holder", holder)
}

// UnknownApplication creates an unknown_application error
func UnknownApplication(appID string) CredError {
	return withMessage(ErrUnknownApplication, fmt.Sprintf("application %q is not registered", appID)).
		WithMetadata("app_id", appID)
}

// AppExists creates an app_exists error
func AppExists(appID string) CredError {
	return withMessage(ErrAppExists, fmt.Sprintf("application %q is already registered", appID)).
		WithMetadata("app_id", appID)
}

// MalformedInput creates a malformed_input error
func MalformedInput(reason string) CredError {
	return withMessage(ErrMalformedInput, reason).WithMetadata("reason", reason)
}

// SignatureMismatch creates a signature_mismatch error
func SignatureMismatch(reason string) CredError {
	return withMessage(ErrSignatureMismatch, reason)
}

// InvalidConfig creates an invalid_config error
func InvalidConfig(reason string) CredError {
	return withMessage(ErrInvalidConfig, reason).WithMetadata("reason", reason)
}

// CorruptKeyMaterial creates a corrupt_key_material error
func CorruptKeyMaterial(keyID, reason string) CredError {
	return withMessage(ErrCorruptKeyMaterial, fmt.Sprintf("key %s: %s", keyID, reason)).
		WithMetadata("key_id", keyID)
}

// InvalidMnemonic creates an invalid_mnemonic error
func InvalidMnemonic() CredError {
	return withMessage(ErrInvalidMnemonic, "recovery phrase failed checksum validation")
}

// RateLimited creates a rate_limited error
func RateLimited(scope string) CredError {
	return withMessage(ErrRateLimited, fmt.Sprintf("rate limit exceeded for %s", scope)).
		WithMetadata("scope", scope)
}

// InvalidToken creates an invalid_token error
func InvalidToken(reason string, cause error) CredError {
	return withMessage(ErrInvalidToken, reason).WithCause(cause)
}

// Internal wraps an unexpected failure
func Internal(message string, cause error) CredError {
	return withMessage(ErrInternal, message).WithCause(cause)
}

// ================================================================================
// Error Inspection Utilities
// ================================================================================

// AsCredError extracts the first CredError in err's chain
func AsCredError(err error) (CredError, bool) {
	var ce CredError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// CodeOf returns the code of err, or CodeInternal when err carries none
func CodeOf(err error) Code {
	if ce, ok := AsCredError(err); ok {
		return ce.Code()
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code
func HasCode(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatusOf returns the HTTP status for err
func HTTPStatusOf(err error) int {
	if ce, ok := AsCredError(err); ok {
		return ce.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// Is is re-exported so callers importing this package need not import the standard one
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is re-exported for the same reason as Is
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

// ================================================================================
// Error Response Builder
// ================================================================================

// ErrorResponse represents the JSON structure for error responses
type ErrorResponse struct {
	Error            string                 `json:"error"`
	ErrorDescription string                 `json:"error_description"`
	Message          string                 `json:"message,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToErrorResponse converts any error to an ErrorResponse
func ToErrorResponse(err error) *ErrorResponse {
	if ce, ok := AsCredError(err); ok {
		resp := &ErrorResponse{
			Error:            string(ce.Code()),
			ErrorDescription: ce.Description(),
			Message:          ce.Error(),
		}
		if len(ce.Metadata()) > 0 {
			resp.Metadata = ce.Metadata()
		}
		return resp
	}

	return &ErrorResponse{
		Error:            string(CodeInternal),
		ErrorDescription: ErrInternal.Description(),
	}
}
