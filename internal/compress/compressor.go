// Package compress implements the optional size-targeting pass: a lossless
// structural optimize followed by a bounded monotone search over a
// descending quality ladder, each step one stateless external tool
// invocation on the draft document.
package compress

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"

	"github.com/yayoinoyume/PDF-Generator/internal/domain"
)

const (
	defaultBaseQuality = 85
	qualityFloor       = 25
	qualityStep        = 15
)

// Options configures one compression run.
type Options struct {
	Enabled bool
	// TargetSize in bytes; 0 means no size search, just a single
	// recompression pass at BaseQuality.
	TargetSize     int64
	BaseQuality    int
	MaxAttempts    int
	AttemptTimeout time.Duration
}

// Outcome is the compression leg's result. Data is never nil: on any
// shortfall the best attempt or the original draft comes back, with the
// status saying which.
type Outcome struct {
	Data     []byte
	Status   domain.CompressionStatus
	Attempts []domain.CompressionAttempt
}

// Compressor shrinks an assembled document toward a target size.
type Compressor struct {
	tool    Recompressor
	workDir string
	log     zerolog.Logger

	// optimize is the lossless pre-pass, replaceable in tests.
	optimize func([]byte) ([]byte, error)
}

// New creates a compressor writing its candidates under workDir.
func New(tool Recompressor, workDir string, log zerolog.Logger) *Compressor {
	return &Compressor{
		tool:     tool,
		workDir:  workDir,
		log:      log,
		optimize: optimizePDF,
	}
}

// Ladder returns the descending quality rungs searched for a given base
// quality.
func Ladder(base int) []int {
	if base <= 0 {
		base = defaultBaseQuality
	}
	if base > 100 {
		base = 100
	}
	var rungs []int
	for q := base; q > qualityFloor; q -= qualityStep {
		rungs = append(rungs, q)
	}
	return append(rungs, qualityFloor)
}

// Run executes the compression pass. onAttempt, when non-nil, is called
// before each quality iteration so the caller can report progress.
//
// The external tool's absence or total failure degrades the result to the
// uncompressed draft flagged CompressionUnavailable; it is never fatal.
func (c *Compressor) Run(ctx context.Context, draft []byte, opts Options, onAttempt func(int)) (*Outcome, error) {
	if !opts.Enabled {
		return &Outcome{Data: draft, Status: domain.CompressionDisabled}, nil
	}
	if opts.TargetSize > 0 && int64(len(draft)) <= opts.TargetSize {
		// Already under target: zero quality-reduction iterations.
		return &Outcome{Data: draft, Status: domain.TargetMet}, nil
	}
	if err := c.tool.Available(); err != nil {
		c.log.Warn().Err(err).Msg("recompression tool unavailable, returning uncompressed document")
		return &Outcome{Data: draft, Status: domain.CompressionUnavailable}, nil
	}

	working := draft
	if optimized, err := c.optimize(draft); err != nil {
		c.log.Debug().Err(err).Msg("lossless optimize pass failed, continuing with draft")
	} else if len(optimized) > 0 && len(optimized) < len(working) {
		working = optimized
	}
	if opts.TargetSize > 0 && int64(len(working)) <= opts.TargetSize {
		return &Outcome{Data: working, Status: domain.TargetMet}, nil
	}

	draftPath := filepath.Join(c.workDir, "draft.pdf")
	if err := os.WriteFile(draftPath, working, 0o600); err != nil {
		return nil, fmt.Errorf("write draft: %w", err)
	}

	rungs := Ladder(opts.BaseQuality)
	if opts.TargetSize == 0 {
		rungs = rungs[:1]
	}
	budget := opts.MaxAttempts
	if budget <= 0 || budget > len(rungs) {
		budget = len(rungs)
	}
	timeout := opts.AttemptTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	best := working
	attempts := make([]domain.CompressionAttempt, 0, budget)
	failures := 0

	for i, quality := range rungs[:budget] {
		select {
		case <-ctx.Done():
			return nil, domain.Cancelled(domain.StageCompressing, ctx.Err())
		default:
		}
		if onAttempt != nil {
			onAttempt(i)
		}

		att := c.attempt(ctx, draftPath, quality, timeout)
		if att.Error != "" {
			failures++
			attempts = append(attempts, att)
			c.log.Warn().Int("quality", quality).Str("error", att.Error).Msg("recompression attempt failed")
			continue
		}

		candidate, err := os.ReadFile(filepath.Join(c.workDir, candidateName(quality)))
		if err != nil {
			att.Error = err.Error()
			failures++
			attempts = append(attempts, att)
			continue
		}
		if len(candidate) == 0 {
			// An empty candidate is a tool failure, not a win: the run must
			// never hand back fewer bytes of information than the draft.
			att.Error = "tool produced empty candidate"
			failures++
			attempts = append(attempts, att)
			c.log.Warn().Int("quality", quality).Msg("recompression produced empty candidate")
			continue
		}
		att.Size = int64(len(candidate))
		if len(candidate) < len(best) {
			best = candidate
		}

		if opts.TargetSize > 0 && att.Size <= opts.TargetSize {
			att.MetTarget = true
			attempts = append(attempts, att)
			c.log.Info().Int("quality", quality).Int64("size", att.Size).Msg("size target met")
			return &Outcome{Data: candidate, Status: domain.TargetMet, Attempts: attempts}, nil
		}
		attempts = append(attempts, att)
	}

	if len(attempts) > 0 && failures == len(attempts) {
		return &Outcome{Data: draft, Status: domain.CompressionUnavailable, Attempts: attempts}, nil
	}
	if opts.TargetSize == 0 {
		return &Outcome{Data: best, Status: domain.TargetMet, Attempts: attempts}, nil
	}

	// Target unreachable: return the smallest attempt achieved, flagged.
	c.log.Info().Int64("best", int64(len(best))).Int64("target", opts.TargetSize).
		Int("attempts", len(attempts)).Msg("size target not reached")
	return &Outcome{Data: best, Status: domain.TargetNotReached, Attempts: attempts}, nil
}

func (c *Compressor) attempt(ctx context.Context, draftPath string, quality int, timeout time.Duration) domain.CompressionAttempt {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.tool.Recompress(attemptCtx, draftPath, filepath.Join(c.workDir, candidateName(quality)), quality)
	att := domain.CompressionAttempt{Quality: quality, Duration: time.Since(start)}
	if err != nil {
		att.Error = err.Error()
	}
	return att
}

func candidateName(quality int) string {
	return fmt.Sprintf("candidate_q%03d.pdf", quality)
}

// optimizePDF is the lossless structural resave (object streams, stream
// recompression) applied before any lossy step.
func optimizePDF(in []byte) ([]byte, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var buf bytes.Buffer
	if err := api.Optimize(bytes.NewReader(in), &buf, conf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
