package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	// Session events
	AuditClientCreated AuditEventType = "CLIENT_CREATED"
	AuditLogin         AuditEventType = "LOGIN"
	AuditAuthFailed    AuditEventType = "AUTH_FAILED"
	AuditLogout        AuditEventType = "LOGOUT"

	// Trading events
	AuditOrderPlaced   AuditEventType = "ORDER_PLACED"
	AuditOrderRejected AuditEventType = "ORDER_REJECTED"

	// Security events
	AuditReadOnlyViolation AuditEventType = "READ_ONLY_VIOLATION"
)

// requestIDKey is the context key the audit logger reads request IDs from.
type requestIDKey struct{}

// WithRequestID attaches a request ID to ctx for audit correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFrom returns the request ID attached to ctx, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp   time.Time              `json:"timestamp"`
	EventType   AuditEventType         `json:"event_type"`
	Environment string                 `json:"environment,omitempty"`
	UserID      string                 `json:"user_id,omitempty"`
	Symbol      string                 `json:"symbol,omitempty"`
	Action      string                 `json:"action,omitempty"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Success     bool                   `json:"success"`
	ErrorMsg    string                 `json:"error,omitempty"`
	SessionID   string                 `json:"session_id,omitempty"`
	RequestID   string                 `json:"request_id,omitempty"`
}

// AuditLogger writes audit events as JSON lines.
type AuditLogger struct {
	writer    io.WriteCloser
	mu        sync.Mutex
	sessionID string
	now       func() time.Time
}

// AuditConfig holds audit logger configuration.
type AuditConfig struct {
	Path       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultAuditConfig returns the default audit configuration.
func DefaultAuditConfig() AuditConfig {
	home, _ := os.UserHomeDir()
	return AuditConfig{
		Path:       filepath.Join(home, ".config", "neo-trader", "logs", "audit.log"),
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365, // Keep audit logs for 1 year
		Compress:   true,
	}
}

// NewAuditLogger creates a new audit logger backed by a rotating file.
func NewAuditLogger(cfg AuditConfig) (*AuditLogger, error) {
	// Ensure audit directory exists with restricted permissions
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	writer := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}

	return NewAuditLoggerWriter(writer), nil
}

// NewAuditLoggerWriter creates an audit logger writing to w.
func NewAuditLoggerWriter(w io.WriteCloser) *AuditLogger {
	return &AuditLogger{
		writer:    w,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}
}

// SessionID returns the ID stamped on every event of this process.
func (al *AuditLogger) SessionID() string {
	return al.sessionID
}

// Log logs an audit event.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) error {
	al.mu.Lock()
	defer al.mu.Unlock()

	// Set common fields
	event.Timestamp = al.now().UTC()
	event.SessionID = al.sessionID
	if event.RequestID == "" {
		event.RequestID = RequestIDFrom(ctx)
	}
	if event.ErrorMsg != "" {
		event.ErrorMsg = MaskSensitive(event.ErrorMsg)
	}
	if event.Details != nil {
		event.Details = LogWithoutCredentials(event.Details)
	}

	// Serialize to JSON
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}

	// Write with newline
	if _, err := al.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}

	return nil
}

// LogClientCreated logs client construction for an environment.
func (al *AuditLogger) LogClientCreated(ctx context.Context, env, consumerKey string, success bool, errorMsg string) error {
	return al.Log(ctx, AuditEvent{
		EventType:   AuditClientCreated,
		Environment: env,
		Success:     success,
		ErrorMsg:    errorMsg,
		Details: map[string]interface{}{
			"consumer_key": MaskCredential(consumerKey),
		},
	})
}

// LogLogin logs an authentication attempt. stage names the failing step.
func (al *AuditLogger) LogLogin(ctx context.Context, env, ucc, stage string, success bool, errorMsg string) error {
	eventType := AuditLogin
	if !success {
		eventType = AuditAuthFailed
	}
	event := AuditEvent{
		EventType:   eventType,
		Environment: env,
		UserID:      ucc,
		Success:     success,
		ErrorMsg:    errorMsg,
	}
	if stage != "" {
		event.Details = map[string]interface{}{"stage": stage}
	}
	return al.Log(ctx, event)
}

// LogLogout logs a logout event.
func (al *AuditLogger) LogLogout(ctx context.Context, env string, success bool, errorMsg string) error {
	return al.Log(ctx, AuditEvent{
		EventType:   AuditLogout,
		Environment: env,
		Success:     success,
		ErrorMsg:    errorMsg,
	})
}

// LogOrderPlaced logs an order placement event.
func (al *AuditLogger) LogOrderPlaced(ctx context.Context, env, symbol, side string, qty int, price, orderType, product string, success bool, errorMsg string) error {
	eventType := AuditOrderPlaced
	if !success {
		eventType = AuditOrderRejected
	}
	return al.Log(ctx, AuditEvent{
		EventType:   eventType,
		Environment: env,
		Symbol:      symbol,
		Action:      side,
		Success:     success,
		ErrorMsg:    errorMsg,
		Details: map[string]interface{}{
			"quantity":   qty,
			"price":      price,
			"order_type": orderType,
			"product":    product,
		},
	})
}

// LogReadOnlyViolation logs an attempt to perform a write operation in read-only mode.
func (al *AuditLogger) LogReadOnlyViolation(ctx context.Context, operation string) error {
	return al.Log(ctx, AuditEvent{
		EventType: AuditReadOnlyViolation,
		Action:    operation,
		Success:   false,
		ErrorMsg:  "operation blocked: read-only mode enabled",
	})
}

// Close closes the audit logger.
func (al *AuditLogger) Close() error {
	return al.writer.Close()
}
