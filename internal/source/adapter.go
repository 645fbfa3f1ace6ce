// Package source normalizes heterogeneous inputs (raster images, existing
// PDFs) into canonical page descriptors.
package source

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog"

	"github.com/yayoinoyume/PDF-Generator/internal/domain"
)

// Extensions the adapter recognizes but does not handle. Kept separate from
// unknown extensions so the error message can say "convert it" rather than
// "what is this".
var unhandledExts = map[string]bool{
	".gif": true, ".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true,
}

// DetectKind classifies a path into the closed input-kind set.
func DetectKind(item int, path string) (domain.InputKind, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExts[ext]:
		return domain.KindImage, nil
	case ext == ".pdf":
		return domain.KindPDF, nil
	case unhandledExts[ext]:
		return 0, domain.UnsupportedFormat(item, fmt.Sprintf("%s input is not supported, convert to PNG/JPEG/PDF first", ext))
	default:
		return 0, domain.UnsupportedFormat(item, fmt.Sprintf("unrecognized input type %q", ext))
	}
}

// Adapter turns one InputItem into zero or more PageDescriptors.
//
// Images keep their full-resolution encoded bytes in memory; downscaling is
// deferred so the compressor keeps its options open. PDF sources are
// snapshotted into the run temp dir so descriptors survive the original
// file going away, and their pages are re-embedded later rather than
// rasterized.
type Adapter struct {
	snapDir string
	dpi     int
	log     zerolog.Logger
}

// NewAdapter creates an adapter writing PDF snapshots under snapDir.
func NewAdapter(snapDir string, dpi int, log zerolog.Logger) *Adapter {
	return &Adapter{snapDir: snapDir, dpi: dpi, log: log}
}

// Read produces the ordered descriptors for one input item.
func (a *Adapter) Read(item domain.InputItem) ([]domain.PageDescriptor, error) {
	switch item.Kind {
	case domain.KindImage:
		desc, err := a.readImage(item)
		if err != nil {
			return nil, err
		}
		return []domain.PageDescriptor{desc}, nil
	case domain.KindPDF:
		return a.readPDF(item)
	default:
		return nil, domain.UnsupportedFormat(item.Index, "unrecognized input kind")
	}
}

// PageCount is a cheap pre-count used to size progress reporting. Errors
// are deferred to Read, which reports them with full context.
func (a *Adapter) PageCount(item domain.InputItem) int {
	if item.Kind == domain.KindImage {
		return 1
	}
	doc, err := fitz.New(item.Path)
	if err != nil {
		return 0
	}
	defer doc.Close()
	return doc.NumPage()
}

func (a *Adapter) readImage(item domain.InputItem) (domain.PageDescriptor, error) {
	raw, err := os.ReadFile(item.Path)
	if err != nil {
		return domain.PageDescriptor{}, domain.UnreadableInput(item.Index, "cannot read image file", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return domain.PageDescriptor{}, domain.UnreadableInput(item.Index, "cannot decode image", err)
	}

	var imageType string
	switch format {
	case "png":
		imageType = "PNG"
	case "jpeg":
		imageType = "JPG"
	default:
		return domain.PageDescriptor{}, domain.UnsupportedFormat(item.Index, fmt.Sprintf("image format %q is not supported", format))
	}

	scale := 72.0 / float64(a.dpi)
	a.log.Debug().Int("item", item.Index).Str("format", format).
		Int("px_w", cfg.Width).Int("px_h", cfg.Height).Msg("decoded image")

	return domain.PageDescriptor{
		Item:      item.Index,
		Width:     float64(cfg.Width) * scale,
		Height:    float64(cfg.Height) * scale,
		Image:     raw,
		ImageType: imageType,
	}, nil
}

func (a *Adapter) readPDF(item domain.InputItem) ([]domain.PageDescriptor, error) {
	snapshot := filepath.Join(a.snapDir, fmt.Sprintf("input_%03d.pdf", item.Index))
	if err := copyFile(item.Path, snapshot); err != nil {
		return nil, domain.UnreadableInput(item.Index, "cannot read PDF file", err)
	}

	doc, err := fitz.New(snapshot)
	if err != nil {
		return nil, domain.UnreadableInput(item.Index, "cannot open PDF", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, domain.UnreadableInput(item.Index, "PDF has no pages", nil)
	}

	descs := make([]domain.PageDescriptor, 0, pageCount)
	for page := 0; page < pageCount; page++ {
		bound, err := doc.Bound(page)
		if err != nil {
			return nil, domain.UnreadableInput(item.Index, fmt.Sprintf("cannot read bounds of page %d", page+1), err)
		}
		descs = append(descs, domain.PageDescriptor{
			Item:    item.Index,
			Width:   float64(bound.Dx()),
			Height:  float64(bound.Dy()),
			PDFPath: snapshot,
			PDFPage: page + 1,
		})
	}

	a.log.Debug().Int("item", item.Index).Int("pages", pageCount).Msg("snapshotted PDF")
	return descs, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
