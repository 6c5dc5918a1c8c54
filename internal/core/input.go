package core

// input.go reads collection files from the input directory.
//
// Each CSV file is one collection: "accounts.csv" holds records for the
// "accounts" collection. Files are read as a stream, one record at a time, so
// memory stays flat regardless of file size. A UTF-8 BOM written by Windows
// tools is skipped before the header is parsed.

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoInputFiles is returned when the input directory holds no CSV files.
var ErrNoInputFiles = errors.New("no input tables found: at least one input table is required")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CollectionFile is one input file and the collection it targets.
type CollectionFile struct {
	Name string // file name without the .csv extension
	Path string
}

// DiscoverCollections lists the CSV files in dir, sorted by file name.
func DiscoverCollections(dir string) ([]CollectionFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading input directory %s: %w", dir, err)
	}

	var files []CollectionFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".csv") {
			continue
		}
		files = append(files, CollectionFile{
			Name: strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Path: filepath.Join(dir, entry.Name()),
		})
	}

	if len(files) == 0 {
		return nil, ErrNoInputFiles
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// NewBOMSkippingReader returns a reader that drops a leading UTF-8 BOM.
func NewBOMSkippingReader(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// CleanHeader normalizes a header cell.
func CleanHeader(h string) string {
	return strings.TrimSpace(h)
}

// RecordReader streams records from one collection file.
type RecordReader struct {
	r      *csv.Reader
	header []string
	line   int
}

// NewRecordReader reads the header row and prepares to stream records.
func NewRecordReader(r io.Reader) (*RecordReader, error) {
	cr := csv.NewReader(NewBOMSkippingReader(r))
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false

	header, err := cr.Read()
	if err == io.EOF {
		return &RecordReader{r: cr, line: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cleaned := make([]string, len(header))
	for i, h := range header {
		cleaned[i] = CleanHeader(h)
	}
	return &RecordReader{r: cr, header: cleaned, line: 1}, nil
}

// Header returns the cleaned header row.
func (rr *RecordReader) Header() []string {
	return rr.header
}

// Next returns the next record, or io.EOF when the file is exhausted.
// Empty lines are dropped by the CSV reader; rows of blank cells are returned.
func (rr *RecordReader) Next() (Record, error) {
	values, err := rr.r.Read()
	if err != nil {
		return Record{}, err
	}
	line, _ := rr.r.FieldPos(0)
	rr.line = line

	if len(values) < len(rr.header) {
		padded := make([]string, len(rr.header))
		copy(padded, values)
		values = padded
	}
	return Record{Line: line, Columns: rr.header, Values: values[:len(rr.header)]}, nil
}

// ReadHeader returns the cleaned header of a collection file.
func ReadHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rr, err := NewRecordReader(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return rr.Header(), nil
}

// ForEachRecord streams every record of a file through fn, in file order.
// Iteration stops at the first error returned by fn or when ctx is cancelled.
func ForEachRecord(ctx context.Context, path string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rr, err := NewRecordReader(f)
	if err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("operation cancelled at line %d: %w", rr.line, err)
		}

		rec, err := rr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(path), err)
		}

		if err := fn(rec); err != nil {
			return err
		}
	}
}
