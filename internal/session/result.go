package session

import (
	"fmt"

	apperrors "neo-trader/internal/errors"
	"neo-trader/internal/models"
)

// Operation names a controller operation.
type Operation string

const (
	OpCreateClient Operation = "create_client"
	OpAuthenticate Operation = "authenticate"
	OpPlaceOrder   Operation = "place_order"
	OpFetchReport  Operation = "fetch_report"
	OpLogout       Operation = "logout"
)

// Result is the outcome of a controller operation. Exactly one of Err and
// a successful Response/Warning applies; Err is always an *OperationError.
type Result struct {
	Op       Operation
	Env      models.Environment
	Response models.Response
	Warning  string
	Err      error
}

// AuthResponses carries both authentication responses.
type AuthResponses struct {
	Login    models.Response `json:"login" yaml:"login"`
	Validate models.Response `json:"validate" yaml:"validate"`
}

// OK reports whether the operation succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Kind returns the error kind, or KindNone on success.
func (r Result) Kind() apperrors.Kind {
	return apperrors.KindOf(r.Err)
}

// Message returns a one-line description for the user. Failures include
// the underlying cause.
func (r Result) Message() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.Warning != "" {
		return r.Warning
	}
	switch r.Op {
	case OpCreateClient:
		return fmt.Sprintf("Client created for %s", r.Env)
	case OpAuthenticate:
		return fmt.Sprintf("Authenticated with %s", r.Env)
	case OpPlaceOrder:
		return fmt.Sprintf("Order submitted to %s", r.Env)
	case OpFetchReport:
		return fmt.Sprintf("Report fetched from %s", r.Env)
	case OpLogout:
		return fmt.Sprintf("Logged out of %s", r.Env)
	}
	return "OK"
}

func failed(op Operation, env models.Environment, err error) Result {
	return Result{Op: op, Env: env, Err: err}
}
