// Package store provides the action journal for the running panel.
package store

import (
	"context"
	"time"
)

// Journal records the outcome of every panel operation. Entries live only
// as long as the process.
type Journal interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, filter JournalFilter) ([]Entry, error)
	Close() error
}

// Entry is one journaled operation outcome.
type Entry struct {
	ID          string
	Timestamp   time.Time
	Environment string
	Operation   string
	Success     bool
	Kind        string // error kind, empty on success
	Message     string
	Warning     string
	Detail      string // order summary or report kind
}

// JournalFilter represents filters for querying journal entries.
type JournalFilter struct {
	Environment string
	Operation   string
	Limit       int
}
