package core

// validation.go checks input files and records before anything is sent to the API.
//
// Validation happens at two levels:
//  1. File validation: mandatory columns exist in the header
//  2. Record validation: the data payload is a JSON object whose keys are all supported fields
//
// File and field problems are fatal ValidationErrors. A payload that does not parse is a
// recoverable data error handled per record.

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
)

// ValidationError describes a fatal input problem detected before dispatch.
type ValidationError struct {
	Collection string // collection (file) name
	Line       int    // 1-indexed line, 0 when the problem is file-wide
	Field      string // offending column or payload key
	Message    string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation failed")
	if e.Collection != "" {
		fmt.Fprintf(&b, " in %s", e.Collection)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, " on line %d", e.Line)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// ErrInvalidPayload is returned when a data value is not a JSON object.
var ErrInvalidPayload = errors.New("data is not a valid JSON object")

// Payload is a decoded data column.
type Payload map[string]any

// ParsePayload strictly decodes a data value into a JSON object.
// Numbers are kept as json.Number so they are re-encoded verbatim.
func ParsePayload(raw string) (Payload, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: null", ErrInvalidPayload)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing content", ErrInvalidPayload)
	}
	return p, nil
}

// MarshalJSON encodes the payload without HTML escaping.
func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(map[string]any(p)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// UnsupportedFields returns payload keys missing from the supported set, sorted.
// Keys carrying an OData annotation (anything with '@') are not checked.
func UnsupportedFields(p Payload, supported map[string]struct{}) []string {
	var missing []string
	for key := range p {
		if strings.Contains(key, "@") {
			continue
		}
		if _, ok := supported[strings.ToLower(key)]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}

// ValidateHeaders checks that all columns required by the mode are present.
func ValidateHeaders(collection string, headers []string, mode Mode) error {
	present := make(map[string]bool, len(headers))
	for _, h := range headers {
		present[h] = true
	}

	var missing []string
	for _, col := range mode.RequiredColumns() {
		if !present[col] {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		return &ValidationError{
			Collection: collection,
			Field:      strings.Join(missing, ", "),
			Message:    fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")),
		}
	}
	return nil
}
