// Package assemble composes normalized pages into a single PDF document.
// Raster pages are embedded from their in-memory bytes; pages imported from
// existing PDFs are placed as templates, preserving vector fidelity.
package assemble

import (
	"bytes"
	"context"
	"fmt"

	"github.com/jung-kurt/gofpdf"
	"github.com/jung-kurt/gofpdf/contrib/gofpdi"
	"github.com/rs/zerolog"

	"github.com/yayoinoyume/PDF-Generator/internal/domain"
)

// Assembler writes the ordered output document.
type Assembler struct {
	log zerolog.Logger
}

// New creates an assembler.
func New(log zerolog.Logger) *Assembler {
	return &Assembler{log: log}
}

// Assemble produces the draft document bytes, pages exactly in spec order
// and sized exactly per spec. Fails with AssemblyError when the writer
// rejects content, tagged with the offending item.
func (a *Assembler) Assemble(ctx context.Context, specs []domain.OutputPageSpec) ([]byte, error) {
	if len(specs) == 0 {
		return nil, domain.AssemblyError(-1, "no pages to assemble", nil)
	}

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: specs[0].Width, Ht: specs[0].Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	importer := gofpdi.NewImporter()

	for i, sp := range specs {
		select {
		case <-ctx.Done():
			return nil, domain.Cancelled(domain.StageAssembling, ctx.Err())
		default:
		}

		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: sp.Width, Ht: sp.Height})

		var err error
		if sp.Page.IsImage() {
			err = a.placeImage(pdf, i, sp)
		} else {
			err = a.placeImported(pdf, importer, sp)
		}
		if err != nil {
			return nil, domain.AssemblyError(sp.Page.Item, fmt.Sprintf("cannot embed page %d", i+1), err)
		}
		if pdf.Err() {
			return nil, domain.AssemblyError(sp.Page.Item, fmt.Sprintf("writer rejected page %d", i+1), pdf.Error())
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, domain.AssemblyError(-1, "cannot write document", err)
	}

	a.log.Debug().Int("pages", len(specs)).Int("bytes", buf.Len()).Msg("assembled draft")
	return buf.Bytes(), nil
}

func (a *Assembler) placeImage(pdf *gofpdf.Fpdf, seq int, sp domain.OutputPageSpec) error {
	name := fmt.Sprintf("page-%04d", seq)
	opts := gofpdf.ImageOptions{ImageType: sp.Page.ImageType}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(sp.Page.Image))
	pdf.ImageOptions(name, 0, 0, sp.Width, sp.Height, false, opts, 0, "")
	return nil
}

// placeImported embeds one page of an existing PDF as a scaled template.
// gofpdi panics on malformed source documents, so the import is fenced off
// and surfaced as a regular error.
func (a *Assembler) placeImported(pdf *gofpdf.Fpdf, importer *gofpdi.Importer, sp domain.OutputPageSpec) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("import %s page %d: %v", sp.Page.PDFPath, sp.Page.PDFPage, r)
		}
	}()

	tpl := importer.ImportPage(pdf, sp.Page.PDFPath, sp.Page.PDFPage, "/MediaBox")
	importer.UseImportedTemplate(pdf, tpl, 0, 0, sp.Width, sp.Height)
	return nil
}
