package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yayoinoyume/PDF-Generator/internal/config"
	"github.com/yayoinoyume/PDF-Generator/internal/domain"
	"github.com/yayoinoyume/PDF-Generator/internal/pipeline"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.TempDir = t.TempDir()
	cfg.RasterDPI = 72 // 1 px == 1 pt keeps the geometry arithmetic plain
	return cfg
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: 90, B: uint8(y % 256), A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func writePDF(t *testing.T, dir, name string, pages int, w, h float64) string {
	t.Helper()
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: w, Ht: h},
	})
	for i := 0; i < pages; i++ {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "", 12)
		pdf.Text(40, 60, "page content")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, pdf.OutputFileAndClose(path))
	return path
}

func collectEvents(ch chan domain.ProgressEvent) []domain.ProgressEvent {
	close(ch)
	var events []domain.ProgressEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestMergeImagesToFile(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 800, 600)
	b := writePNG(t, dir, "b.png", 400, 300)
	out := filepath.Join(dir, "merged.pdf")

	events := make(chan domain.ProgressEvent, 256)
	orch := pipeline.New(testConfig(t))
	result, err := orch.Run(context.Background(), pipeline.Request{
		Inputs:     []string{a, b},
		Policy:     domain.FirstPageWidth(),
		OutputPath: out,
	}, events)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Pages)
	assert.Equal(t, out, result.OutputPath)
	assert.Empty(t, result.Output)
	assert.Equal(t, domain.CompressionDisabled, result.Compression)
	assert.NotEmpty(t, result.RunID)

	count, err := api.PageCountFile(out)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Width unified to the first page; page 2 height = 300*(800/400).
	dims, err := api.PageDimsFile(out)
	require.NoError(t, err)
	require.Len(t, dims, 2)
	assert.InDelta(t, 800.0, dims[0].Width, 0.5)
	assert.InDelta(t, 600.0, dims[0].Height, 0.5)
	assert.InDelta(t, 800.0, dims[1].Width, 0.5)
	assert.InDelta(t, 600.0, dims[1].Height, 0.5)

	evs := collectEvents(events)
	require.NotEmpty(t, evs)
	assert.Equal(t, domain.StageReading, evs[0].Stage)
	assert.Equal(t, 2, evs[0].TotalPages)
	last := evs[len(evs)-1]
	assert.Equal(t, domain.StageDone, last.Stage)
	require.NotNil(t, last.Result)
	assert.Equal(t, 2, last.Result.Pages)
}

func TestMergeMixedInputsInMemory(t *testing.T) {
	dir := t.TempDir()
	doc := writePDF(t, dir, "doc.pdf", 3, 595, 842)
	img := writePNG(t, dir, "c.png", 595, 400)

	events := make(chan domain.ProgressEvent, 256)
	orch := pipeline.New(testConfig(t))
	result, err := orch.Run(context.Background(), pipeline.Request{
		Inputs: []string{doc, img},
		Policy: domain.FirstPageWidth(),
	}, events)
	require.NoError(t, err)

	// 3 PDF pages + 1 image, caller order preserved.
	assert.Equal(t, 4, result.Pages)
	require.NotEmpty(t, result.Output)
	assert.Equal(t, int64(len(result.Output)), result.Size)

	// Per-item reading events report how many pages each input contributed.
	pagesByItem := map[int]int{}
	for _, ev := range collectEvents(events) {
		if ev.Stage == domain.StageReading && ev.Item >= 0 {
			pagesByItem[ev.Item] = ev.Pages
		}
	}
	assert.Equal(t, map[int]int{0: 3, 1: 1}, pagesByItem)

	path := filepath.Join(dir, "roundtrip.pdf")
	require.NoError(t, os.WriteFile(path, result.Output, 0o600))
	count, err := api.PageCountFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestMergeIdempotentGeometry(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{
		writePNG(t, dir, "x.png", 640, 480),
		writePNG(t, dir, "y.png", 320, 200),
	}

	orch := pipeline.New(testConfig(t))
	run := func(name string) []byte {
		result, err := orch.Run(context.Background(), pipeline.Request{
			Inputs: inputs,
			Policy: domain.FirstPageWidth(),
		}, nil)
		require.NoError(t, err, name)
		return result.Output
	}

	first, second := run("first"), run("second")

	dimsOf := func(doc []byte, name string) string {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, os.WriteFile(path, doc, 0o600))
		dims, err := api.PageDimsFile(path)
		require.NoError(t, err)
		var s string
		for _, d := range dims {
			s += fmt.Sprintf("%.2fx%.2f;", d.Width, d.Height)
		}
		return s
	}
	assert.Equal(t, dimsOf(first, "a.pdf"), dimsOf(second, "b.pdf"))
}

func TestMergeMissingInputAbortsWithItem(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, dir, "ok.png", 100, 100)
	out := filepath.Join(dir, "never.pdf")

	events := make(chan domain.ProgressEvent, 256)
	orch := pipeline.New(testConfig(t))
	_, err := orch.Run(context.Background(), pipeline.Request{
		Inputs:     []string{good, filepath.Join(dir, "missing.png")},
		Policy:     domain.FirstPageWidth(),
		OutputPath: out,
	}, events)
	require.Error(t, err)

	assert.Equal(t, domain.CodeUnreadableInput, domain.CodeOf(err))
	assert.Equal(t, 1, domain.ItemOf(err))

	// No partial output left behind.
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))

	evs := collectEvents(events)
	last := evs[len(evs)-1]
	assert.Equal(t, domain.StageAborted, last.Stage)
	assert.Equal(t, 1, last.Item)
	assert.Error(t, last.Err)
}

func TestMergeTempDirFailureEmitsTerminalEvent(t *testing.T) {
	dir := t.TempDir()
	img := writePNG(t, dir, "a.png", 100, 100)

	cfg := testConfig(t)
	cfg.TempDir = filepath.Join(dir, "missing", "nested")

	events := make(chan domain.ProgressEvent, 256)
	orch := pipeline.New(cfg)
	_, err := orch.Run(context.Background(), pipeline.Request{
		Inputs: []string{img},
		Policy: domain.FirstPageWidth(),
	}, events)
	require.Error(t, err)

	// Consumers driven by the event stream must still see the run end.
	evs := collectEvents(events)
	require.NotEmpty(t, evs)
	last := evs[len(evs)-1]
	assert.Equal(t, domain.StageAborted, last.Stage)
	assert.Error(t, last.Err)
}

func TestMergeWithZeroDecodeWorkers(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{
		writePNG(t, dir, "a.png", 100, 100),
		writePNG(t, dir, "b.png", 100, 100),
	}

	// An unvalidated config must not stall the decode pool.
	cfg := testConfig(t)
	cfg.DecodeWorkers = 0

	orch := pipeline.New(cfg)
	result, err := orch.Run(context.Background(), pipeline.Request{
		Inputs: inputs,
		Policy: domain.FirstPageWidth(),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pages)
}

func TestMergeUnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	gif := filepath.Join(dir, "anim.gif")
	require.NoError(t, os.WriteFile(gif, []byte("GIF89a"), 0o600))

	orch := pipeline.New(testConfig(t))
	_, err := orch.Run(context.Background(), pipeline.Request{
		Inputs: []string{gif},
		Policy: domain.FirstPageWidth(),
	}, nil)
	require.Error(t, err)
	assert.Equal(t, domain.CodeUnsupportedFormat, domain.CodeOf(err))
	assert.Equal(t, 0, domain.ItemOf(err))
}

func TestMergeNoInputs(t *testing.T) {
	orch := pipeline.New(testConfig(t))
	_, err := orch.Run(context.Background(), pipeline.Request{}, nil)
	require.Error(t, err)
	assert.Equal(t, domain.CodeUnreadableInput, domain.CodeOf(err))
}

func TestMergeCancelled(t *testing.T) {
	dir := t.TempDir()
	img := writePNG(t, dir, "a.png", 50, 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	orch := pipeline.New(testConfig(t))
	_, err := orch.Run(ctx, pipeline.Request{
		Inputs: []string{img},
		Policy: domain.FirstPageWidth(),
	}, nil)
	require.Error(t, err)
	assert.Equal(t, domain.CodeCancelled, domain.CodeOf(err))
}

// fakeTool mirrors the compressor's test double at the pipeline level.
type fakeTool struct {
	sizes map[int]int64
}

func (f *fakeTool) Available() error { return nil }

func (f *fakeTool) Recompress(_ context.Context, _, outPath string, quality int) error {
	size, ok := f.sizes[quality]
	if !ok {
		return errors.New("no synthetic size")
	}
	return os.WriteFile(outPath, bytes.Repeat([]byte{0xEF}, int(size)), 0o600)
}

func TestMergeWithSizeTarget(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{
		writePNG(t, dir, "a.png", 400, 300),
		writePNG(t, dir, "b.png", 400, 300),
	}

	tool := &fakeTool{sizes: map[int]int64{85: 150}}
	events := make(chan domain.ProgressEvent, 256)
	orch := pipeline.New(testConfig(t), pipeline.WithRecompressor(tool))
	result, err := orch.Run(context.Background(), pipeline.Request{
		Inputs:     inputs,
		Policy:     domain.FirstPageWidth(),
		Compress:   true,
		Quality:    85,
		TargetSize: 200,
	}, events)
	require.NoError(t, err)

	assert.Equal(t, domain.TargetMet, result.Compression)
	assert.Equal(t, int64(150), result.Size)
	require.NotEmpty(t, result.Attempts)
	assert.True(t, result.Attempts[len(result.Attempts)-1].MetTarget)

	var attemptEvents int
	for _, ev := range collectEvents(events) {
		if ev.Stage == domain.StageCompressing && ev.Attempt >= 0 {
			attemptEvents++
		}
	}
	assert.Equal(t, len(result.Attempts), attemptEvents)
}

func TestMergeCompressionToolMissing(t *testing.T) {
	dir := t.TempDir()
	img := writePNG(t, dir, "a.png", 200, 200)

	cfg := testConfig(t)
	cfg.GhostscriptPath = "definitely-not-a-real-binary"

	orch := pipeline.New(cfg)
	result, err := orch.Run(context.Background(), pipeline.Request{
		Inputs:     []string{img},
		Policy:     domain.FirstPageWidth(),
		Compress:   true,
		TargetSize: 10,
	}, nil)
	require.NoError(t, err)

	// Still a usable document, just flagged.
	assert.Equal(t, domain.CompressionUnavailable, result.Compression)
	assert.NotEmpty(t, result.Output)
}
