// Package domain holds the data model shared by all pipeline stages:
// input items, page descriptors, output page specs, merge results and
// the progress event stream.
package domain

import "time"

// InputKind is the closed set of input types the pipeline accepts.
type InputKind int

const (
	KindImage InputKind = iota
	KindPDF
)

// InputItem is one caller-supplied entry in the merge order. Index is the
// stable identity used for error reporting ("file 3 of 7 failed").
type InputItem struct {
	Index int
	Path  string
	Kind  InputKind
}

// PageDescriptor is the canonical unit produced by the page source adapter:
// one output page's source content plus its intrinsic size in PDF points.
//
// For raster images the encoded bytes are held in memory, so the descriptor
// stays decodable even if the source file disappears. For PDF pages the
// descriptor references a run-owned snapshot of the source document, whose
// lifetime the orchestrator extends until the run finishes.
type PageDescriptor struct {
	Item int // originating InputItem.Index
	Seq  int // final output position, assigned after decoding

	Width  float64 // intrinsic width in points
	Height float64 // intrinsic height in points

	// Raster content (images only).
	Image     []byte
	ImageType string // "PNG" or "JPG"

	// Embedded content (PDF pages only).
	PDFPath string // snapshot path inside the run temp dir
	PDFPage int    // 1-based page number within PDFPath
}

// IsImage reports whether the descriptor carries raster content.
func (d PageDescriptor) IsImage() bool { return len(d.Image) > 0 }

// WidthPolicy decides the common output page width for one run.
// A zero Fixed value means "use the first page's intrinsic width".
type WidthPolicy struct {
	Fixed float64 // points; 0 selects first-page width
}

// FirstPageWidth unifies all pages to the first page's intrinsic width.
func FirstPageWidth() WidthPolicy { return WidthPolicy{} }

// FixedWidth unifies all pages to the given width in points.
func FixedWidth(pts float64) WidthPolicy { return WidthPolicy{Fixed: pts} }

// OutputPageSpec is a normalized page placement: the descriptor plus the
// target geometry. Height is always Width/intrinsic-ratio, so aspect ratio
// is preserved and content fills the page width exactly.
type OutputPageSpec struct {
	Page   PageDescriptor
	Width  float64
	Height float64
	Scale  float64 // Width / Page.Width
}

// CompressionStatus classifies the compression leg of a merge run.
type CompressionStatus string

const (
	// CompressionDisabled means the caller did not ask for compression.
	CompressionDisabled CompressionStatus = "disabled"
	// TargetMet means the result meets the requested size (or no size was
	// requested and the recompression pass succeeded).
	TargetMet CompressionStatus = "target_met"
	// TargetNotReached means the best attempt is returned but it is still
	// larger than the requested size. Degraded result, not a failure.
	TargetNotReached CompressionStatus = "target_not_reached"
	// CompressionUnavailable means the external tool was missing or every
	// invocation failed; the uncompressed assembly is returned instead.
	CompressionUnavailable CompressionStatus = "unavailable"
)

// CompressionAttempt records one iteration of the size-targeting search.
// Kept for diagnostics only, never persisted.
type CompressionAttempt struct {
	Quality   int
	Size      int64 // 0 when the invocation failed
	MetTarget bool
	Error     string
	Duration  time.Duration
}

// MergeResult is the final artifact of one run.
type MergeResult struct {
	RunID      string
	Output     []byte // populated only when no output path was given
	OutputPath string
	Size       int64
	Pages      int

	Compression CompressionStatus
	Attempts    []CompressionAttempt

	Duration time.Duration
}

// Stage identifies a pipeline state-machine state.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageReading     Stage = "reading_inputs"
	StageNormalizing Stage = "normalizing"
	StageAssembling  Stage = "assembling"
	StageCompressing Stage = "compressing"
	StageDone        Stage = "done"
	StageAborted     Stage = "aborted"
)

// ProgressEvent is one entry in the ordered progress stream. Item and
// Attempt are -1 when the event is not tied to an input item or a
// compression attempt. The terminal event carries either Result or Err.
type ProgressEvent struct {
	Stage      Stage
	Item       int
	Attempt    int
	TotalPages int // set on the first reading_inputs event
	Pages      int // pages contributed by the item, on per-item reading events
	Message    string

	Result *MergeResult
	Err    error
}

// StageEvent builds a plain stage-transition event.
func StageEvent(stage Stage, msg string) ProgressEvent {
	return ProgressEvent{Stage: stage, Item: -1, Attempt: -1, Message: msg}
}
