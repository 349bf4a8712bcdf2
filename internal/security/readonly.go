package security

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// OperationType represents the type of operation.
type OperationType string

const (
	// Read operations
	OpRead OperationType = "READ"

	// Session operations (always allowed)
	OpCreateClient OperationType = "CREATE_CLIENT"
	OpLogin        OperationType = "LOGIN"
	OpLogout       OperationType = "LOGOUT"

	// Write operations (blocked in read-only mode)
	OpPlaceOrder OperationType = "PLACE_ORDER"
)

var writeOperations = map[OperationType]bool{
	OpPlaceOrder: true,
}

// ReadOnlyError represents an error when attempting a write operation in read-only mode.
type ReadOnlyError struct {
	Operation OperationType
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("operation %s blocked: read-only mode is enabled", e.Operation)
}

// AccessController manages read-only mode and operation permissions.
type AccessController struct {
	readOnly    bool
	auditLogger *AuditLogger
	mu          sync.RWMutex
}

// NewAccessController creates a new access controller.
func NewAccessController(readOnly bool, auditLogger *AuditLogger) *AccessController {
	return &AccessController{
		readOnly:    readOnly,
		auditLogger: auditLogger,
	}
}

// IsReadOnly returns whether read-only mode is enabled.
func (ac *AccessController) IsReadOnly() bool {
	ac.mu.RLock()
	defer ac.mu.RUnlock()
	return ac.readOnly
}

// SetReadOnly sets the read-only mode.
func (ac *AccessController) SetReadOnly(readOnly bool) {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	ac.readOnly = readOnly
}

// CheckPermission returns a ReadOnlyError for operations that change the
// account while read-only mode is on, recording the attempt in the audit
// log. If the audit write fails, that error is joined to the ReadOnlyError.
// Session operations are always allowed.
func (ac *AccessController) CheckPermission(ctx context.Context, op OperationType) error {
	if !ac.IsReadOnly() || !writeOperations[op] {
		return nil
	}
	roErr := &ReadOnlyError{Operation: op}
	if ac.auditLogger != nil {
		if err := ac.auditLogger.LogReadOnlyViolation(ctx, string(op)); err != nil {
			return errors.Join(roErr, fmt.Errorf("recording read-only violation: %w", err))
		}
	}
	return roErr
}
