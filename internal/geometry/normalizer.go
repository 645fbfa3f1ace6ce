// Package geometry computes output page placement. All pages in one run
// share a single width; heights follow from each page's intrinsic aspect
// ratio, so nothing is cropped or letterboxed.
package geometry

import (
	"fmt"

	"github.com/yayoinoyume/PDF-Generator/internal/domain"
)

// Normalize resolves the run's target width once and produces one
// OutputPageSpec per descriptor. A zero or negative intrinsic width is a
// corrupt decode and fails with InvalidGeometry rather than silently
// poisoning the whole document's width policy.
func Normalize(descs []domain.PageDescriptor, policy domain.WidthPolicy) ([]domain.OutputPageSpec, error) {
	if len(descs) == 0 {
		return nil, domain.InvalidGeometry(-1, "no pages to normalize")
	}

	target := policy.Fixed
	if target < 0 {
		// A negative explicit width is a caller mistake, not any input's.
		return nil, domain.InvalidGeometry(-1, fmt.Sprintf("fixed width %.2f is not positive", target))
	}
	if target == 0 {
		target = descs[0].Width
	}
	if target <= 0 {
		return nil, domain.InvalidGeometry(descs[0].Item, fmt.Sprintf("target width %.2f is not positive", target))
	}

	specs := make([]domain.OutputPageSpec, 0, len(descs))
	for _, d := range descs {
		if d.Width <= 0 || d.Height <= 0 {
			return nil, domain.InvalidGeometry(d.Item, fmt.Sprintf("page %d has invalid intrinsic size %.2fx%.2f", d.Seq+1, d.Width, d.Height))
		}
		scale := target / d.Width
		specs = append(specs, domain.OutputPageSpec{
			Page:   d,
			Width:  target,
			Height: d.Height * scale,
			Scale:  scale,
		})
	}
	return specs, nil
}
