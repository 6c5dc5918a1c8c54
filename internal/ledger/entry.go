// Package ledger writes one audit entry per processed record to the
// results table, and optionally mirrors entries to Postgres and exports the
// finished table to object storage.
package ledger

import (
	"crypto/md5"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/crmwriter/internal/core"
)

// Columns is the fixed column order of the results table.
var Columns = []string{
	"request_id",
	"timestamp",
	"collection",
	"operation",
	"id",
	"data",
	"status_label",
	"message",
}

// PrimaryKey is the declared unique key of the results table.
var PrimaryKey = []string{"request_id"}

// Entry is one row of the results table.
type Entry struct {
	RequestID   string
	Timestamp   string // unix milliseconds
	Collection  string
	Operation   core.Operation
	ID          string
	Data        string
	StatusLabel string
	Message     string
}

// Row renders the entry in Columns order.
func (e Entry) Row() []string {
	return []string{
		e.RequestID,
		e.Timestamp,
		e.Collection,
		string(e.Operation),
		e.ID,
		e.Data,
		e.StatusLabel,
		e.Message,
	}
}

// FormatTimestamp renders t as unix milliseconds.
func FormatTimestamp(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// RequestID derives a request id from the entry's timestamp, collection,
// operation and record content. Identical inputs give identical ids.
func RequestID(timestamp, collection string, op core.Operation, rec core.Record) string {
	key := strings.Join([]string{timestamp, collection, string(op), rec.String()}, "|")
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// NewEntry builds the entry for a processed record.
func NewEntry(ts time.Time, rec core.Record, collection string, op core.Operation, outcome core.Outcome) Entry {
	timestamp := FormatTimestamp(ts)
	requestID := outcome.CorrelationID
	if requestID == "" {
		requestID = RequestID(timestamp, collection, op, rec)
	}
	return Entry{
		RequestID:   requestID,
		Timestamp:   timestamp,
		Collection:  collection,
		Operation:   op,
		ID:          rec.Get(core.ColumnID),
		Data:        rec.Get(core.ColumnData),
		StatusLabel: outcome.StatusLabel,
		Message:     outcome.Message,
	}
}
