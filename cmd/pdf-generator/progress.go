package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Extra bar steps for the normalize/assemble/compress stage transitions.
const stageSteps = 3

// progressBar renders pipeline progress events on stderr.
type progressBar struct {
	bar *progressbar.ProgressBar
}

func newProgressBar() *progressBar {
	bar := progressbar.NewOptions64(
		-1,
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetDescription("merging"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &progressBar{bar: bar}
}

// SetTotal sizes the bar once the page pre-count is known.
func (p *progressBar) SetTotal(total int64) {
	p.bar.ChangeMax64(total)
}

// AdvanceBy moves the bar forward by the given number of pages.
func (p *progressBar) AdvanceBy(pages int) {
	if pages < 1 {
		pages = 1
	}
	_ = p.bar.Add(pages)
}

// Step advances past a stage transition and relabels the bar.
func (p *progressBar) Step(stage string) {
	p.bar.Describe(stage)
	_ = p.bar.Add(1)
}

// Finish completes the bar and clears the line.
func (p *progressBar) Finish() {
	_ = p.bar.Finish()
}
