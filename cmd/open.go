package cmd

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/jzelinskie/cobrautil/v2"
	"github.com/spf13/cobra"
)

// NewOpenCommand creates (if absent) and opens an archive directory,
// running pending migrations, then reports its layout. Mostly useful to
// confirm a directory is a valid archive before pointing other commands
// at it.
func NewOpenCommand() *cobra.Command {
	flags := &Flags{}

	cmd := &cobra.Command{
		Use:          "open",
		Short:        "Open (creating if absent) an archive directory",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openArchive(context.Background(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Printf("archive ready at %s\n", a.RootDir())
			return nil
		},
	}

	registerOpenFlags(cmd, flags)
	return cmd
}

func registerOpenFlags(cmd *cobra.Command, flags *Flags) {
	nfs := cobrautil.NewNamedFlagSets(cmd)
	registerCommonFlags(nfs.FlagSet(color.New(color.FgCyan, color.Bold).Sprint("archive")), flags)
	nfs.AddFlagSets(cmd)
	markArchiveRequired(cmd)
}
