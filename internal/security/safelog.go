package security

import (
	"errors"

	"github.com/rs/zerolog"
)

// SafeLogger wraps a zerolog.Logger and masks credentials in every field,
// error and message it writes.
type SafeLogger struct {
	logger zerolog.Logger
}

// NewSafeLogger creates a new safe logger that masks sensitive data.
func NewSafeLogger(logger zerolog.Logger) *SafeLogger {
	return &SafeLogger{logger: logger}
}

func (sl *SafeLogger) Info() *SafeEvent  { return &SafeEvent{event: sl.logger.Info()} }
func (sl *SafeLogger) Warn() *SafeEvent  { return &SafeEvent{event: sl.logger.Warn()} }
func (sl *SafeLogger) Error() *SafeEvent { return &SafeEvent{event: sl.logger.Error()} }

// SafeEvent wraps zerolog.Event. A nil inner event (level disabled) is
// handled by zerolog itself.
type SafeEvent struct {
	event *zerolog.Event
}

// Str adds a string field. Fields named like credentials are masked
// outright; others have embedded credentials masked.
func (se *SafeEvent) Str(key, val string) *SafeEvent {
	if isSensitiveField(key) {
		val = MaskCredential(val)
	} else {
		val = MaskSensitive(val)
	}
	se.event = se.event.Str(key, val)
	return se
}

// Err adds an error field with credentials masked out of its text.
func (se *SafeEvent) Err(err error) *SafeEvent {
	if err != nil {
		se.event = se.event.Err(errors.New(MaskSensitive(err.Error())))
	}
	return se
}

// Msg sends the event.
func (se *SafeEvent) Msg(msg string) {
	se.event.Msg(MaskSensitive(msg))
}
