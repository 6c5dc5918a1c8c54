package core

// pipeline.go drives a run: preflight every collection, then process each
// record in file order.
//
// Per record the state machine is:
//
//	Validate -> Resolve operation -> Dispatch -> Record -> Policy check
//
// A record that fails validation is recorded without reaching Dispatch.
// Collections run one at a time in discovery order; records within a
// collection run one at a time. Nothing is parallel.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/crmwriter/internal/logging"
)

const missingIDMessage = "an id must be provided for every record in delete and upsert operations"

// Pipeline processes collection files against the remote API.
type Pipeline struct {
	mode       Mode
	catalog    Catalog
	dispatcher Dispatcher
	ledger     Recorder
	policy     ErrorPolicy
	progress   *Progress
}

// PipelineConfig holds the collaborators of a Pipeline.
type PipelineConfig struct {
	Mode       Mode
	Catalog    Catalog
	Dispatcher Dispatcher
	Ledger     Recorder
	Policy     ErrorPolicy
	Progress   *Progress // optional; created when nil
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	progress := cfg.Progress
	if progress == nil {
		progress = NewProgress("", cfg.Mode)
	}
	return &Pipeline{
		mode:       cfg.Mode,
		catalog:    cfg.Catalog,
		dispatcher: cfg.Dispatcher,
		ledger:     cfg.Ledger,
		policy:     cfg.Policy,
		progress:   progress,
	}
}

// Progress returns the run tracker.
func (p *Pipeline) Progress() *Progress {
	return p.progress
}

// target is a collection file that passed preflight.
type target struct {
	file     CollectionFile
	resource string // canonical collection name used in request paths
}

// Run preflights all files and then processes every record.
// The returned error is fatal: a ValidationError, an AbortError under
// fail-fast, or a dispatch/ledger failure.
func (p *Pipeline) Run(ctx context.Context, files []CollectionFile) error {
	targets, err := p.preflight(ctx, files)
	if err != nil {
		p.progress.Finish(err)
		return err
	}

	for _, t := range targets {
		if err := p.runCollection(ctx, t); err != nil {
			p.progress.Finish(err)
			return err
		}
	}

	p.progress.Finish(nil)
	return nil
}

// preflight validates every file before any request is made: mandatory
// columns, collection support, and payload field support.
func (p *Pipeline) preflight(ctx context.Context, files []CollectionFile) ([]target, error) {
	if len(files) == 0 {
		return nil, ErrNoInputFiles
	}

	// 1. Mandatory columns
	var missingCols []string
	for _, f := range files {
		header, err := ReadHeader(f.Path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		if err := ValidateHeaders(f.Name, header, p.mode); err != nil {
			missingCols = append(missingCols, f.Name)
		}
	}
	if len(missingCols) > 0 {
		return nil, &ValidationError{
			Field: strings.Join(p.mode.RequiredColumns(), ", "),
			Message: fmt.Sprintf("mandatory columns [%s] missing in tables [%s]",
				strings.Join(p.mode.RequiredColumns(), ", "), strings.Join(missingCols, ", ")),
		}
	}

	// 2. Collection support
	targets := make([]target, 0, len(files))
	var unsupported []string
	for _, f := range files {
		resource, ok, err := p.catalog.Resolve(ctx, f.Name)
		if err != nil {
			return nil, fmt.Errorf("resolving collection %s: %w", f.Name, err)
		}
		if !ok {
			unsupported = append(unsupported, f.Name)
			continue
		}
		targets = append(targets, target{file: f, resource: resource})
	}
	if len(unsupported) > 0 {
		return nil, &ValidationError{
			Collection: strings.Join(unsupported, ", "),
			Message: fmt.Sprintf("collections not available in the API: [%s]; for the list of available collections see %s",
				strings.Join(unsupported, ", "), p.catalog.ListingURL()),
		}
	}

	// 3. Field support
	if p.mode != ModeDelete {
		for _, t := range targets {
			if err := p.checkFields(ctx, t); err != nil {
				return nil, err
			}
		}
	}

	logging.FromContext(ctx).Info("preflight passed", "collections", len(targets))
	return targets, nil
}

func (p *Pipeline) checkFields(ctx context.Context, t target) error {
	fields, err := p.catalog.Fields(ctx, t.resource)
	if err != nil {
		return fmt.Errorf("fetching fields for %s: %w", t.resource, err)
	}
	logging.FromContext(ctx).Debug("supported fields", "collection", t.resource, "count", len(fields))

	return ForEachRecord(ctx, t.file.Path, func(rec Record) error {
		id := rec.ID()
		if id == "" && p.mode != ModeCreateAndUpdate {
			return nil
		}
		if !ResolveOperation(p.mode, id).NeedsPayload() {
			return nil
		}
		payload, err := ParsePayload(rec.Data())
		if err != nil {
			// Recorded as a data error during processing.
			return nil
		}
		if missing := UnsupportedFields(payload, fields); len(missing) > 0 {
			return &ValidationError{
				Collection: t.file.Name,
				Line:       rec.Line,
				Field:      strings.Join(missing, ", "),
				Message:    fmt.Sprintf("unsupported attributes: [%s]", strings.Join(missing, ", ")),
			}
		}
		return nil
	})
}

func (p *Pipeline) runCollection(ctx context.Context, t target) error {
	ctx = logging.ContextWithCollection(ctx, t.file.Name)
	logger := logging.WithFields(ctx, "resource", t.resource)
	logger.Info("writing records", "mode", p.mode)

	p.progress.Begin(t.file.Name)

	err := ForEachRecord(ctx, t.file.Path, func(rec Record) error {
		return p.processRecord(logging.ContextWithLine(ctx, rec.Line), t, rec)
	})

	if failed := p.progress.Failed(t.file.Name); failed > 0 {
		logger.Warn("collection finished with errors",
			"mode", p.mode,
			"errors", failed,
		)
	}
	return err
}

func (p *Pipeline) processRecord(ctx context.Context, t target, rec Record) error {
	id := rec.ID()
	op := ResolveOperation(p.mode, id)

	outcome, err := p.execute(ctx, t, rec, id, op)
	if err != nil {
		return err
	}

	if err := p.ledger.Record(ctx, rec, t.file.Name, op, outcome); err != nil {
		return fmt.Errorf("writing ledger entry for %s line %d: %w", t.file.Name, rec.Line, err)
	}
	p.progress.Observe(t.file.Name, outcome.Success)

	logging.FromContext(ctx).Debug("record processed",
		"operation", op,
		"status", outcome.StatusLabel,
		"success", outcome.Success,
	)

	return p.policy.Decide(t.file.Name, rec, op, outcome)
}

// execute validates the record and dispatches it. Validation failures come
// back as unsuccessful outcomes; only fatal problems are returned as errors.
func (p *Pipeline) execute(ctx context.Context, t target, rec Record, id string, op Operation) (Outcome, error) {
	if id == "" && p.mode != ModeCreateAndUpdate {
		return Failure(LabelMissingID, missingIDMessage), nil
	}

	var payload Payload
	if op.NeedsPayload() {
		var err error
		payload, err = ParsePayload(rec.Data())
		if err != nil {
			return Failure(LabelDataError, err.Error()), nil
		}
	}

	outcome, err := p.dispatcher.Dispatch(ctx, op, t.resource, id, payload)
	if err != nil {
		return Outcome{}, fmt.Errorf("%s on %s line %d: %w", op, t.file.Name, rec.Line, err)
	}
	return outcome, nil
}

// IsFatalInput reports whether err is an input validation failure.
func IsFatalInput(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr) || errors.Is(err, ErrNoInputFiles)
}
