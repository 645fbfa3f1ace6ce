// Command pdf-generator merges images and PDF pages into a single PDF,
// optionally recompressing the result toward a target size.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "pdf-generator",
	Short: "Merge images and PDFs into a single PDF",
	Long: `pdf-generator merges an ordered list of images (PNG/JPEG) and PDF files
into one PDF document. All output pages share a common width while keeping
each page's aspect ratio. The result can optionally be recompressed toward
a target file size using Ghostscript.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.AddCommand(mergeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
