// Package merger is the public entry point for the merge-and-compress
// pipeline. It streams progress events over a channel so a caller can
// render incremental progress without coupling to any presentation layer.
package merger

import (
	"context"

	"github.com/yayoinoyume/PDF-Generator/internal/config"
	"github.com/yayoinoyume/PDF-Generator/internal/domain"
	"github.com/yayoinoyume/PDF-Generator/internal/pipeline"
)

// Re-export the types callers interact with.
type (
	ProgressEvent      = domain.ProgressEvent
	MergeResult        = domain.MergeResult
	CompressionAttempt = domain.CompressionAttempt
	CompressionStatus  = domain.CompressionStatus
	WidthPolicy        = domain.WidthPolicy
	Stage              = domain.Stage
	Config             = config.Config
	Request            = pipeline.Request
)

// Stage constants.
const (
	StageReading     = domain.StageReading
	StageNormalizing = domain.StageNormalizing
	StageAssembling  = domain.StageAssembling
	StageCompressing = domain.StageCompressing
	StageDone        = domain.StageDone
	StageAborted     = domain.StageAborted
)

// Compression statuses.
const (
	CompressionDisabled    = domain.CompressionDisabled
	TargetMet              = domain.TargetMet
	TargetNotReached       = domain.TargetNotReached
	CompressionUnavailable = domain.CompressionUnavailable
)

// FirstPageWidth unifies output pages to the first page's width.
func FirstPageWidth() WidthPolicy { return domain.FirstPageWidth() }

// FixedWidth unifies output pages to the given width in points.
func FixedWidth(pts float64) WidthPolicy { return domain.FixedWidth(pts) }

// Client runs merge requests. One request runs to completion before the
// next; the client itself holds no per-run state.
type Client struct {
	cfg  *config.Config
	orch *pipeline.Orchestrator
}

// NewClient creates a client configured from the environment.
func NewClient() (*Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewClientWithConfig(cfg)
}

// NewClientWithConfig creates a client from explicit configuration.
func NewClientWithConfig(cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := domain.NewLogger(domain.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return &Client{
		cfg:  cfg,
		orch: pipeline.New(cfg, pipeline.WithLogger(log)),
	}, nil
}

// Merge starts a run and returns its event stream. The channel closes after
// a terminal event carrying either the result (StageDone) or the error
// (StageAborted).
func (c *Client) Merge(ctx context.Context, req Request) (<-chan ProgressEvent, error) {
	events := make(chan domain.ProgressEvent, 100)
	go func() {
		defer close(events)
		// The orchestrator emits the terminal event itself.
		_, _ = c.orch.Run(ctx, req, events)
	}()
	return events, nil
}

// MergeSync runs a request to completion without event streaming.
func (c *Client) MergeSync(ctx context.Context, req Request) (*MergeResult, error) {
	return c.orch.Run(ctx, req, nil)
}
