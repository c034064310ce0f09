// Package cmd wires the archive engine's domain services into a cobra CLI,
// one NewXCommand(...) constructor per subcommand, mirroring the teacher's
// cmd/serve.go and cmd/migrate.go layout.
package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/conatus-oss/dana-archive/internal/archive"
	"github.com/conatus-oss/dana-archive/internal/config"
)

// Flags are the persistent settings every subcommand shares: which
// directory is the archive, and how to log.
type Flags struct {
	ArchiveDir string
	LogLevel   string
	LogFormat  string
}

func registerCommonFlags(flagSet *pflag.FlagSet, flags *Flags) {
	flagSet.StringVar(&flags.ArchiveDir, "archive", "", "path to the archive directory (required)")
	flagSet.StringVar(&flags.LogLevel, "log-level", "info", "log level")
	flagSet.StringVar(&flags.LogFormat, "log-format", "console", "format of the logs: console or json")
}

func openArchive(ctx context.Context, flags *Flags) (*archive.Archive, error) {
	return archive.Open(ctx, flags.ArchiveDir,
		config.WithLogLevel(flags.LogLevel),
		config.WithLogFormat(flags.LogFormat),
	)
}

func markArchiveRequired(cmd *cobra.Command) {
	_ = cmd.MarkFlagRequired("archive")
}
