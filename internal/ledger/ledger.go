package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JonMunkholm/crmwriter/internal/core"
)

// Sink receives ledger entries in order.
type Sink interface {
	Write(ctx context.Context, e Entry) error
	Close() error
}

// Ledger appends one entry per record to every sink. Writes are serialized.
type Ledger struct {
	mu    sync.Mutex
	sinks []Sink
	now   func() time.Time
}

var _ core.Recorder = (*Ledger)(nil)

// New creates a Ledger over the given sinks.
func New(sinks ...Sink) *Ledger {
	return &Ledger{sinks: sinks, now: time.Now}
}

// Record writes the entry for a processed record to every sink. The first
// sink failure is returned.
func (l *Ledger) Record(ctx context.Context, rec core.Record, collection string, op core.Operation, outcome core.Outcome) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := NewEntry(l.now(), rec, collection, op, outcome)
	for _, s := range l.sinks {
		if err := s.Write(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing ledger sink: %w", err))
		}
	}
	return errors.Join(errs...)
}
