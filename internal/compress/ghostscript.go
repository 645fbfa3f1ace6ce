package compress

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Recompressor is the external rasterize-and-recompress contract. One
// invocation is stateless: it reads inPath, writes a candidate to outPath
// at the given JPEG quality, and either succeeds or fails as a whole.
// Tests substitute a fake that reports synthetic sizes per quality level.
type Recompressor interface {
	Available() error
	Recompress(ctx context.Context, inPath, outPath string, quality int) error
}

// Ghostscript drives the gs binary in pdfwrite mode. Image streams are
// re-encoded as DCT at the requested quality and downsampled to a
// resolution matched to the quality rung.
type Ghostscript struct {
	bin string
}

// NewGhostscript creates a driver for the given binary path or name.
func NewGhostscript(bin string) *Ghostscript {
	return &Ghostscript{bin: bin}
}

// Available reports whether the binary can be resolved.
func (g *Ghostscript) Available() error {
	if _, err := exec.LookPath(g.bin); err != nil {
		return fmt.Errorf("ghostscript not found: %w", err)
	}
	return nil
}

// Recompress runs one bounded invocation. The caller controls the timeout
// through ctx; on expiry the process is killed and the attempt fails.
func (g *Ghostscript) Recompress(ctx context.Context, inPath, outPath string, quality int) error {
	args := []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.5",
		"-dNOPAUSE", "-dBATCH", "-dQUIET",
		"-dAutoFilterColorImages=false",
		"-dAutoFilterGrayImages=false",
		"-sColorImageFilter=DCTEncode",
		"-sGrayImageFilter=DCTEncode",
		fmt.Sprintf("-dJPEGQ=%d", quality),
		"-dDownsampleColorImages=true",
		fmt.Sprintf("-dColorImageResolution=%d", resolutionFor(quality)),
		"-dDownsampleGrayImages=true",
		fmt.Sprintf("-dGrayImageResolution=%d", resolutionFor(quality)),
		"-sOutputFile=" + outPath,
		inPath,
	}

	cmd := exec.CommandContext(ctx, g.bin, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ghostscript timed out: %w", ctx.Err())
		}
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return fmt.Errorf("ghostscript failed: %w: %s", err, detail)
		}
		return fmt.Errorf("ghostscript failed: %w", err)
	}
	return nil
}

// resolutionFor pairs each quality rung with a raster resolution so the
// ladder shrinks both quantization and pixel count.
func resolutionFor(quality int) int {
	switch {
	case quality >= 80:
		return 200
	case quality >= 60:
		return 150
	case quality >= 40:
		return 110
	default:
		return 72
	}
}
