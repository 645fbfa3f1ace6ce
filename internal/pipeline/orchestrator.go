// Package pipeline sequences the merge stages, reports progress and maps
// component failures to terminal outcomes.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yayoinoyume/PDF-Generator/internal/assemble"
	"github.com/yayoinoyume/PDF-Generator/internal/compress"
	"github.com/yayoinoyume/PDF-Generator/internal/config"
	"github.com/yayoinoyume/PDF-Generator/internal/domain"
	"github.com/yayoinoyume/PDF-Generator/internal/geometry"
	"github.com/yayoinoyume/PDF-Generator/internal/source"
)

// Request describes one merge run.
type Request struct {
	Inputs []string
	Policy domain.WidthPolicy

	Compress    bool
	Quality     int   // base quality for the ladder; 0 uses the default
	TargetSize  int64 // bytes; 0 disables the size search
	MaxAttempts int   // 0 uses the configured bound

	// OutputPath, when set, receives the final document atomically; when
	// empty the bytes are returned in the MergeResult.
	OutputPath string
}

// Orchestrator runs the merge state machine:
//
//	Idle → ReadingInputs → Normalizing → Assembling → Compressing → Done
//
// with Aborted reachable from any non-terminal state. One run at a time;
// runs share no mutable state.
type Orchestrator struct {
	cfg  *config.Config
	tool compress.Recompressor
	log  zerolog.Logger
}

// Option customizes an orchestrator.
type Option func(*Orchestrator)

// WithRecompressor overrides the external tool, used by tests to substitute
// a fake reporting synthetic sizes.
func WithRecompressor(tool compress.Recompressor) Option {
	return func(o *Orchestrator) { o.tool = tool }
}

// WithLogger overrides the default logger.
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// New creates an orchestrator from explicit configuration.
func New(cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:  cfg,
		tool: compress.NewGhostscript(cfg.GhostscriptPath),
		log:  domain.DefaultLogger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one merge to completion or abortion. Progress events are
// sent to events when it is non-nil; the terminal event carries the result
// or the error. Event volume is bounded by input count plus the iteration
// budget, so sends are blocking.
func (o *Orchestrator) Run(ctx context.Context, req Request, events chan<- domain.ProgressEvent) (*domain.MergeResult, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := o.log.With().Str("run", runID).Logger()

	if len(req.Inputs) == 0 {
		err := domain.UnreadableInput(-1, "no input files", nil).WithStage(domain.StageReading)
		o.emit(events, domain.ProgressEvent{Stage: domain.StageAborted, Item: -1, Attempt: -1, Err: err})
		return nil, err
	}

	items, err := classify(req.Inputs)
	if err != nil {
		o.emit(events, domain.ProgressEvent{Stage: domain.StageAborted, Item: domain.ItemOf(err), Attempt: -1, Err: err})
		return nil, err
	}

	tempDir, err := os.MkdirTemp(o.cfg.TempDir, "pdf-generator-*")
	if err != nil {
		err = fmt.Errorf("create temp dir: %w", err)
		o.emit(events, domain.ProgressEvent{Stage: domain.StageAborted, Item: -1, Attempt: -1, Err: err})
		return nil, err
	}
	defer os.RemoveAll(tempDir)

	result, err := o.run(ctx, req, items, tempDir, events, log)
	if err != nil {
		o.emit(events, domain.ProgressEvent{Stage: domain.StageAborted, Item: domain.ItemOf(err), Attempt: -1, Err: err})
		return nil, err
	}

	result.RunID = runID
	result.Duration = time.Since(start)
	o.emit(events, domain.ProgressEvent{Stage: domain.StageDone, Item: -1, Attempt: -1, Result: result})
	log.Info().Int("pages", result.Pages).Int64("size", result.Size).
		Str("compression", string(result.Compression)).Dur("took", result.Duration).Msg("merge finished")
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request, items []domain.InputItem, tempDir string, events chan<- domain.ProgressEvent, log zerolog.Logger) (*domain.MergeResult, error) {
	adapter := source.NewAdapter(tempDir, o.cfg.RasterDPI, log)

	// Reading inputs. The pre-count only sizes progress reporting; decode
	// errors surface with full context below.
	total := 0
	for _, item := range items {
		total += adapter.PageCount(item)
	}
	o.emit(events, domain.ProgressEvent{
		Stage: domain.StageReading, Item: -1, Attempt: -1,
		TotalPages: total,
		Message:    fmt.Sprintf("reading %d inputs", len(items)),
	})

	pages, err := o.readAll(ctx, adapter, items, events)
	if err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx, domain.StageReading); err != nil {
		return nil, err
	}

	o.emit(events, domain.StageEvent(domain.StageNormalizing, "normalizing page geometry"))
	specs, err := geometry.Normalize(pages, req.Policy)
	if err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx, domain.StageNormalizing); err != nil {
		return nil, err
	}

	o.emit(events, domain.StageEvent(domain.StageAssembling, "assembling document"))
	draft, err := assemble.New(log).Assemble(ctx, specs)
	if err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx, domain.StageAssembling); err != nil {
		return nil, err
	}

	if req.Compress {
		o.emit(events, domain.StageEvent(domain.StageCompressing, "compressing document"))
	}
	outcome, err := compress.New(o.tool, tempDir, log).Run(ctx, draft, compress.Options{
		Enabled:        req.Compress,
		TargetSize:     req.TargetSize,
		BaseQuality:    req.Quality,
		MaxAttempts:    pickAttempts(req.MaxAttempts, o.cfg.MaxAttempts),
		AttemptTimeout: o.cfg.AttemptTimeout,
	}, func(attempt int) {
		o.emit(events, domain.ProgressEvent{
			Stage: domain.StageCompressing, Item: -1, Attempt: attempt,
			Message: fmt.Sprintf("compression attempt %d", attempt+1),
		})
	})
	if err != nil {
		return nil, err
	}

	result := &domain.MergeResult{
		Pages:       len(specs),
		Size:        int64(len(outcome.Data)),
		Compression: outcome.Status,
		Attempts:    outcome.Attempts,
	}

	if req.OutputPath == "" {
		result.Output = outcome.Data
		return result, nil
	}
	if err := writeAtomic(req.OutputPath, outcome.Data); err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}
	result.OutputPath = req.OutputPath
	return result, nil
}

// readAll decodes all inputs with a bounded worker pool. Descriptors are
// independent, so items decode in parallel and order is reassembled by
// index afterward. The first failing item in caller order wins.
func (o *Orchestrator) readAll(ctx context.Context, adapter *source.Adapter, items []domain.InputItem, events chan<- domain.ProgressEvent) ([]domain.PageDescriptor, error) {
	workers := o.cfg.DecodeWorkers
	if workers > len(items) {
		workers = len(items)
	}
	if workers < 1 {
		workers = 1
	}

	var (
		wg      sync.WaitGroup
		results = make([][]domain.PageDescriptor, len(items))
		errs    = make([]error, len(items))
		sem     = make(chan struct{}, workers)
	)

	for i, item := range items {
		wg.Add(1)
		go func(i int, item domain.InputItem) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				return
			}
			descs, err := adapter.Read(item)
			if err != nil {
				errs[i] = err
				return
			}
			results[i] = descs

			o.emit(events, domain.ProgressEvent{
				Stage: domain.StageReading, Item: item.Index, Attempt: -1,
				Pages:   len(descs),
				Message: fmt.Sprintf("read input %d (%d pages)", item.Index+1, len(descs)),
			})
		}(i, item)
	}
	wg.Wait()

	if err := checkCancelled(ctx, domain.StageReading); err != nil {
		return nil, err
	}

	for i := range items {
		if errs[i] != nil {
			var pe *domain.Error
			if pErr, ok := errs[i].(*domain.Error); ok {
				pe = pErr.WithStage(domain.StageReading)
			} else {
				pe = domain.UnreadableInput(i, "decode failed", errs[i]).WithStage(domain.StageReading)
			}
			return nil, pe
		}
	}

	var pages []domain.PageDescriptor
	for _, descs := range results {
		for _, d := range descs {
			d.Seq = len(pages)
			pages = append(pages, d)
		}
	}
	if len(pages) == 0 {
		return nil, domain.UnreadableInput(-1, "inputs produced no pages", nil).WithStage(domain.StageReading)
	}
	return pages, nil
}

func classify(inputs []string) ([]domain.InputItem, error) {
	items := make([]domain.InputItem, 0, len(inputs))
	for i, path := range inputs {
		kind, err := source.DetectKind(i, path)
		if err != nil {
			return nil, err
		}
		items = append(items, domain.InputItem{Index: i, Path: path, Kind: kind})
	}
	return items, nil
}

// writeAtomic lands the output via rename so a failed run never leaves a
// partial file behind.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pdf-generator-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func checkCancelled(ctx context.Context, stage domain.Stage) error {
	if err := ctx.Err(); err != nil {
		return domain.Cancelled(stage, err)
	}
	return nil
}

func pickAttempts(requested, configured int) int {
	if requested > 0 {
		return requested
	}
	return configured
}

func (o *Orchestrator) emit(events chan<- domain.ProgressEvent, ev domain.ProgressEvent) {
	if events != nil {
		events <- ev
	}
}
