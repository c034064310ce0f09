package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"

	"github.com/conatus-oss/dana-archive/internal/ingest"
)

// NewBootstrapCommand recreates a whole archive from a bundle that carries
// a manifest, replaying every collection and asset with its original id
// (spec.md §4.5 "bootstrap from bundle").
func NewBootstrapCommand() *cobra.Command {
	flags := &Flags{}
	var bundlePath string

	cmd := &cobra.Command{
		Use:          "bootstrap",
		Short:        "Recreate an archive from a manifest-carrying bundle",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := openArchive(ctx, flags)
			if err != nil {
				return err
			}
			defer a.Close()

			repo := ingest.NewRepository(a.Store())
			svc := ingest.NewService(repo, a)

			if err := svc.Bootstrap(ctx, bundlePath); err != nil {
				return err
			}

			fmt.Printf("bootstrapped %s from %s\n", a.RootDir(), bundlePath)
			return nil
		},
	}

	registerBootstrapFlags(cmd, flags, &bundlePath)
	return cmd
}

func registerBootstrapFlags(cmd *cobra.Command, flags *Flags, bundlePath *string) {
	nfs := cobrautil.NewNamedFlagSets(cmd)
	registerCommonFlags(nfs.FlagSet(color.New(color.FgCyan, color.Bold).Sprint("archive")), flags)

	bundleFlagSet := nfs.FlagSet(color.New(color.FgGreen, color.Bold).Sprint("bundle"))
	bundleFlagSet.StringVar(bundlePath, "bundle", "", "path to the bundle zip to bootstrap from (required)")

	nfs.AddFlagSets(cmd)
	cmd.MarkFlagRequired("bundle")
	markArchiveRequired(cmd)
}
