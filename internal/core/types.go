package core

import (
	"context"
	"fmt"
	"strings"
)

// Mode is the configured operation mode for a run.
type Mode string

const (
	ModeDelete          Mode = "delete"
	ModeCreateAndUpdate Mode = "create_and_update"
	ModeUpsert          Mode = "upsert"
)

// Modes lists every supported mode in documentation order.
var Modes = []Mode{ModeDelete, ModeCreateAndUpdate, ModeUpsert}

// ParseMode converts a configuration value into a Mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unsupported operation %q: must be one of delete, create_and_update, upsert", s)
}

// RequiredColumns returns the columns every input file must carry for this mode.
func (m Mode) RequiredColumns() []string {
	if m == ModeDelete {
		return []string{ColumnID}
	}
	return []string{ColumnID, ColumnData}
}

// Operation is the effective per-record operation sent to the API.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpUpsert Operation = "upsert"
	OpDelete Operation = "delete"
)

// ResolveOperation returns the operation for a record with the given id.
// Only create_and_update depends on the id: empty means create, anything else update.
func ResolveOperation(mode Mode, id string) Operation {
	switch mode {
	case ModeCreateAndUpdate:
		if id == "" {
			return OpCreate
		}
		return OpUpdate
	case ModeUpsert:
		return OpUpsert
	default:
		return OpDelete
	}
}

// NeedsPayload reports whether the operation sends a request body.
func (o Operation) NeedsPayload() bool {
	return o != OpDelete
}

// Input column names.
const (
	ColumnID   = "id"
	ColumnData = "data"
)

// Record is one row of one collection file. Columns keep file order.
type Record struct {
	Line    int      // 1-indexed line number in the source file
	Columns []string // header names in file order
	Values  []string // cell values aligned with Columns
}

// Get returns the value of the named column, or "" if absent.
func (r Record) Get(name string) string {
	for i, c := range r.Columns {
		if c == name && i < len(r.Values) {
			return r.Values[i]
		}
	}
	return ""
}

// ID returns the trimmed id column.
func (r Record) ID() string {
	return strings.TrimSpace(r.Get(ColumnID))
}

// Data returns the raw data column.
func (r Record) Data() string {
	return r.Get(ColumnData)
}

// String renders the record as name=value pairs in file order.
// The rendering is stable and feeds request id generation.
func (r Record) String() string {
	var b strings.Builder
	for i, c := range r.Columns {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(c)
		b.WriteByte('=')
		if i < len(r.Values) {
			b.WriteString(r.Values[i])
		}
	}
	return b.String()
}

// Status labels written to the ledger.
const (
	LabelMissingID       = "MISSING_ID_ERROR"
	LabelDataError       = "DATA_ERROR"
	LabelConnectionError = "CONNECTION_ERROR"
)

// RequestOK, RequestError and UnknownError build the status labels for HTTP outcomes.
func RequestOK(status int) string    { return fmt.Sprintf("REQUEST_OK - %d", status) }
func RequestError(status int) string { return fmt.Sprintf("REQUEST_ERROR - %d", status) }
func UnknownError(status int) string { return fmt.Sprintf("UNKNOWN_ERROR - %d", status) }

// Outcome is the structured result of processing one record.
type Outcome struct {
	Success       bool
	CorrelationID string // server-issued request id; empty when absent
	StatusLabel   string
	Message       string
}

// Failure builds an unsuccessful outcome that never reached the API.
func Failure(label, message string) Outcome {
	return Outcome{StatusLabel: label, Message: message}
}

// Dispatcher issues one API request for a resolved operation.
// A returned error is fatal for the run; recoverable problems are reported in the Outcome.
type Dispatcher interface {
	Dispatch(ctx context.Context, op Operation, collection, id string, data Payload) (Outcome, error)
}

// Recorder persists one ledger entry per processed record.
type Recorder interface {
	Record(ctx context.Context, rec Record, collection string, op Operation, outcome Outcome) error
}

// Catalog answers which collections and fields the remote API supports.
type Catalog interface {
	// Resolve returns the canonical collection name for a case-insensitive lookup.
	Resolve(ctx context.Context, collection string) (string, bool, error)
	// Fields returns the supported field names of a canonical collection.
	Fields(ctx context.Context, collection string) (map[string]struct{}, error)
	// ListingURL points at a human-readable list of supported collections.
	ListingURL() string
}
