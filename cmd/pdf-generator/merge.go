package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yayoinoyume/PDF-Generator/internal/config"
	"github.com/yayoinoyume/PDF-Generator/pkg/merger"
)

var (
	outputPath      string
	widthPx         int
	matchFirstWidth bool
	noCompress      bool
	quality         int
	targetSize      int64
	maxAttempts     int
)

var mergeCmd = &cobra.Command{
	Use:   "merge [files...]",
	Short: "Merge the given files, in order, into one PDF",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runMerge,
}

func init() {
	mergeCmd.Flags().StringVarP(&outputPath, "output", "o", "output.pdf", "output PDF path")
	mergeCmd.Flags().IntVar(&widthPx, "width-px", 1024, "target page width in pixels at the configured DPI")
	mergeCmd.Flags().BoolVar(&matchFirstWidth, "match-first-width", false, "use the first page's width instead of --width-px")
	mergeCmd.Flags().BoolVar(&noCompress, "no-compress", false, "skip the compression pass")
	mergeCmd.Flags().IntVar(&quality, "quality", 85, "base JPEG quality for compression (1-100)")
	mergeCmd.Flags().Int64Var(&targetSize, "target-size", 0, "target output size in bytes (0 = single compression pass)")
	mergeCmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "bound on compression attempts (0 = configured default)")
}

func runMerge(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	client, err := merger.NewClientWithConfig(cfg)
	if err != nil {
		return err
	}

	policy := merger.FirstPageWidth()
	if !matchFirstWidth {
		// Pixels at the configured DPI map to points at 72/DPI.
		policy = merger.FixedWidth(float64(widthPx) * 72.0 / float64(cfg.RasterDPI))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events, err := client.Merge(ctx, merger.Request{
		Inputs:      args,
		Policy:      policy,
		Compress:    !noCompress,
		Quality:     quality,
		TargetSize:  targetSize,
		MaxAttempts: maxAttempts,
		OutputPath:  outputPath,
	})
	if err != nil {
		return err
	}

	bar := newProgressBar()
	var result *merger.MergeResult
	for ev := range events {
		switch ev.Stage {
		case merger.StageReading:
			if ev.TotalPages > 0 {
				bar.SetTotal(int64(ev.TotalPages) + stageSteps)
			}
			if ev.Item >= 0 {
				bar.AdvanceBy(ev.Pages)
			}
		case merger.StageNormalizing, merger.StageAssembling, merger.StageCompressing:
			if ev.Attempt < 0 {
				bar.Step(string(ev.Stage))
			}
		case merger.StageDone:
			result = ev.Result
			bar.Finish()
		case merger.StageAborted:
			bar.Finish()
			if item := itemIndex(ev); item >= 0 {
				return fmt.Errorf("input %d failed: %w", item+1, ev.Err)
			}
			return ev.Err
		}
	}

	if result == nil {
		return fmt.Errorf("merge produced no result")
	}

	fmt.Printf("Merged %d pages into %s (%d bytes)\n", result.Pages, result.OutputPath, result.Size)
	switch result.Compression {
	case merger.TargetNotReached:
		fmt.Printf("Could not reach target size: best of %d attempts is %d bytes\n", len(result.Attempts), result.Size)
	case merger.CompressionUnavailable:
		fmt.Println("Compression tool unavailable, wrote uncompressed document")
	case merger.TargetMet:
		if len(result.Attempts) > 0 {
			fmt.Printf("Compressed in %d attempts\n", len(result.Attempts))
		}
	}
	return nil
}

func itemIndex(ev merger.ProgressEvent) int {
	if ev.Item >= 0 {
		return ev.Item
	}
	return -1
}
