package ledger

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ResultsFile is the results table written under the output directory.
	ResultsFile = "results.csv"
	// ManifestSuffix is appended to the table path for its manifest.
	ManifestSuffix = ".manifest"
)

// Manifest describes the results table to the loader that picks it up.
type Manifest struct {
	Incremental bool     `json:"incremental"`
	PrimaryKey  []string `json:"primary_key"`
	Columns     []string `json:"columns"`
}

// CSVSink writes entries to results.csv, flushing after every row. The
// table carries no header row; columns are declared in the manifest.
type CSVSink struct {
	path string
	file *os.File
	w    *csv.Writer
}

// NewCSVSink creates dir if needed, writes the manifest and opens the table.
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	path := filepath.Join(dir, ResultsFile)
	if err := writeManifest(path + ManifestSuffix); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open results table: %w", err)
	}

	return &CSVSink{path: path, file: f, w: csv.NewWriter(f)}, nil
}

func writeManifest(path string) error {
	data, err := json.Marshal(Manifest{
		Incremental: true,
		PrimaryKey:  PrimaryKey,
		Columns:     Columns,
	})
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Path returns the table path.
func (s *CSVSink) Path() string { return s.path }

// ManifestPath returns the manifest path.
func (s *CSVSink) ManifestPath() string { return s.path + ManifestSuffix }

// Write appends and flushes one row.
func (s *CSVSink) Write(_ context.Context, e Entry) error {
	if err := s.w.Write(e.Row()); err != nil {
		return fmt.Errorf("write results row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush results row: %w", err)
	}
	return nil
}

// Close flushes and closes the table.
func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
