package cmd_test

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/cmd"
)

func requireFlagMarkedRequired(t *testing.T, flag *pflag.Flag) {
	t.Helper()
	require.NotNil(t, flag)
	_, ok := flag.Annotations[cobra.BashCompOneRequiredFlag]
	require.True(t, ok, "flag %q must be marked required", flag.Name)
}

func TestNewOpenCommandRegistersArchiveFlag(t *testing.T) {
	c := cmd.NewOpenCommand()
	requireFlagMarkedRequired(t, c.Flags().Lookup("archive"))
	require.NotNil(t, c.Flags().Lookup("log-level"))
}

func TestNewBootstrapCommandRegistersBundleAndArchiveFlags(t *testing.T) {
	c := cmd.NewBootstrapCommand()
	requireFlagMarkedRequired(t, c.Flags().Lookup("archive"))
	require.NotNil(t, c.Flags().Lookup("bundle"))
}

func TestNewExportCommandRegistersArchiveCollectionAndOutputFlags(t *testing.T) {
	c := cmd.NewExportCommand()
	require.NotNil(t, c.Flags().Lookup("archive"))
	require.NotNil(t, c.Flags().Lookup("collection"))
	require.NotNil(t, c.Flags().Lookup("output"))
}

func TestNewSyncCommandRegistersSourceAndDestinationFlags(t *testing.T) {
	c := cmd.NewSyncCommand()
	requireFlagMarkedRequired(t, c.Flags().Lookup("source"))
	requireFlagMarkedRequired(t, c.Flags().Lookup("destination"))
	require.NotNil(t, c.Flags().Lookup("collections"))
}
