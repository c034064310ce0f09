package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/internal/config"
)

func TestNewConfigAppliesOptionsOverDefaults(t *testing.T) {
	c := config.NewConfig(config.WithLogLevel("debug"), config.WithRenditionWidth(1024))
	require.Equal(t, "debug", c.LogLevel)
	require.Equal(t, 1024, c.RenditionWidth)
	require.Equal(t, "console", c.LogFormat, "unset options keep their default")
}

func TestClampLimit(t *testing.T) {
	c := config.NewConfig(config.WithDefaultPageLimit(50), config.WithMaxPageLimit(200))

	require.Equal(t, 50, c.ClampLimit(0), "non-positive limit falls back to the default page size")
	require.Equal(t, 50, c.ClampLimit(-5))
	require.Equal(t, 10, c.ClampLimit(10))
	require.Equal(t, 200, c.ClampLimit(10000), "limit above the max is clamped down")
}
