// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind discriminates the failure classes surfaced by the session controller.
type Kind string

const (
	KindNone             Kind = ""
	KindValidation       Kind = "validation"
	KindClientCreation   Kind = "client_creation"
	KindAuthentication   Kind = "authentication"
	KindNotAuthenticated Kind = "not_authenticated"
	KindOrderPlacement   Kind = "order_placement"
	KindReportFetch      Kind = "report_fetch"
	KindLogout           Kind = "logout"
	KindReadOnly         Kind = "read_only"
)

// Sentinels matched by errors.Is against an *OperationError of the same kind.
var (
	ErrValidation       = errors.New("validation failed")
	ErrClientCreation   = errors.New("client creation failed")
	ErrAuthentication   = errors.New("authentication failed")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrOrderPlacement   = errors.New("order placement failed")
	ErrReportFetch      = errors.New("report fetch failed")
	ErrLogout           = errors.New("logout failed")
	ErrReadOnlyMode     = errors.New("operation blocked: read-only mode enabled")
)

var kindSentinels = map[Kind]error{
	KindValidation:       ErrValidation,
	KindClientCreation:   ErrClientCreation,
	KindAuthentication:   ErrAuthentication,
	KindNotAuthenticated: ErrNotAuthenticated,
	KindOrderPlacement:   ErrOrderPlacement,
	KindReportFetch:      ErrReportFetch,
	KindLogout:           ErrLogout,
	KindReadOnly:         ErrReadOnlyMode,
}

// Sentinel returns the sentinel error for a kind, or nil for KindNone.
func (k Kind) Sentinel() error {
	return kindSentinels[k]
}

// Stage identifies which authentication sub-step failed.
type Stage string

const (
	StageNone     Stage = ""
	StageLogin    Stage = "login"
	StageValidate Stage = "validate"
)

// OperationError is the single error type returned by session operations.
type OperationError struct {
	Kind    Kind
	Op      string
	Env     string
	Field   string // set for validation errors
	Stage   Stage  // set for authentication errors
	Message string
	Err     error
}

func (e *OperationError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(" error")
	if e.Op != "" || e.Env != "" {
		fmt.Fprintf(&b, " [%s", e.Op)
		if e.Env != "" {
			fmt.Fprintf(&b, "@%s", e.Env)
		}
		b.WriteString("]")
	}
	if e.Stage != StageNone {
		fmt.Fprintf(&b, " (%s)", e.Stage)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " %s", e.Field)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *OperationError) Is(target error) bool {
	s := e.Kind.Sentinel()
	return s != nil && s == target
}

// NewValidationError creates a validation error for a missing or bad input.
func NewValidationError(op, env, field, message string) *OperationError {
	return &OperationError{
		Kind:    KindValidation,
		Op:      op,
		Env:     env,
		Field:   field,
		Message: message,
	}
}

// NewNotAuthenticatedError creates the error returned when a trading action
// is attempted without an authenticated session.
func NewNotAuthenticatedError(op, env, message string) *OperationError {
	return &OperationError{
		Kind:    KindNotAuthenticated,
		Op:      op,
		Env:     env,
		Message: message,
	}
}

// NewAuthenticationError wraps a failure from one of the two login steps.
func NewAuthenticationError(op, env string, stage Stage, err error) *OperationError {
	return &OperationError{
		Kind:  KindAuthentication,
		Op:    op,
		Env:   env,
		Stage: stage,
		Err:   err,
	}
}

// NewCollaboratorError wraps a trading client failure under the given kind.
func NewCollaboratorError(kind Kind, op, env string, err error) *OperationError {
	return &OperationError{
		Kind: kind,
		Op:   op,
		Env:  env,
		Err:  err,
	}
}

// KindOf returns the kind of the first OperationError in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return KindNone
}

// StageOf returns the authentication stage recorded in err, if any.
func StageOf(err error) Stage {
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Stage
	}
	return StageNone
}

// PanicError reports a panic recovered from a trading client call.
type PanicError struct {
	Call  string
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("trading client panicked in %s: %v", e.Call, e.Value)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
