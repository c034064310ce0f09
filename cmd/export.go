package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"

	"github.com/conatus-oss/dana-archive/internal/bundle"
)

// NewExportCommand writes a collection subtree (and its assets' media) out
// as a bundle zip (spec.md §4.6).
func NewExportCommand() *cobra.Command {
	flags := &Flags{}
	var collectionID, outputPath string

	cmd := &cobra.Command{
		Use:          "export",
		Short:        "Export a collection subtree to a bundle zip",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openArchive(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := os.Create(outputPath)
			if err != nil {
				return err
			}
			defer out.Close()

			if err := bundle.Export(ctx, a, collectionID, out); err != nil {
				return err
			}

			fmt.Printf("exported collection %s to %s\n", collectionID, outputPath)
			return nil
		},
	}

	registerExportFlags(cmd, flags, &collectionID, &outputPath)
	return cmd
}

func registerExportFlags(cmd *cobra.Command, flags *Flags, collectionID, outputPath *string) {
	nfs := cobrautil.NewNamedFlagSets(cmd)
	registerCommonFlags(nfs.FlagSet(color.New(color.FgCyan, color.Bold).Sprint("archive")), flags)

	exportFlagSet := nfs.FlagSet(color.New(color.FgGreen, color.Bold).Sprint("export"))
	exportFlagSet.StringVar(collectionID, "collection", "", "id of the collection subtree to export (required)")
	exportFlagSet.StringVar(outputPath, "output", "", "path to write the bundle zip to (required)")

	nfs.AddFlagSets(cmd)
	cmd.MarkFlagRequired("collection")
	cmd.MarkFlagRequired("output")
	markArchiveRequired(cmd)
}
