// Package config holds the archive engine's runtime configuration. The
// teacher repo generates its option setters with ecordell/optgen; that
// generator needs `go generate` invoked, which this build cannot do, so the
// options below are hand-written in the same WithX(...) shape optgen would
// have produced.
package config

const (
	defaultBlobDirName     = "blob"
	defaultSyncDirName     = "sync"
	defaultDatabaseFile    = "db.sqlite3"
	defaultRenditionWidth  = 640
	defaultPageLimit       = 100
	defaultMaxPageLimit    = 1000
	defaultSyncTxTimeoutS  = 30
	defaultLogLevel        = "info"
	defaultLogFormat       = "console"
)

// Config is the archive engine's runtime configuration.
type Config struct {
	BlobDirName    string `debugmap:"visible"`
	SyncDirName    string `debugmap:"visible"`
	DatabaseFile   string `debugmap:"visible"`
	RenditionWidth int    `debugmap:"visible" default:"640"`

	DefaultPageLimit int `debugmap:"visible" default:"100"`
	MaxPageLimit     int `debugmap:"visible" default:"1000"`

	SyncTransactionTimeoutSeconds int `debugmap:"visible" default:"30"`

	LogLevel  string `debugmap:"visible"`
	LogFormat string `debugmap:"visible"`
}

// Option mutates a Config under construction.
type Option func(*Config)

// NewConfig builds a Config with defaults, then applies opts in order.
func NewConfig(opts ...Option) *Config {
	c := &Config{
		BlobDirName:                   defaultBlobDirName,
		SyncDirName:                   defaultSyncDirName,
		DatabaseFile:                  defaultDatabaseFile,
		RenditionWidth:                defaultRenditionWidth,
		DefaultPageLimit:              defaultPageLimit,
		MaxPageLimit:                  defaultMaxPageLimit,
		SyncTransactionTimeoutSeconds: defaultSyncTxTimeoutS,
		LogLevel:                      defaultLogLevel,
		LogFormat:                     defaultLogFormat,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithBlobDirName(name string) Option {
	return func(c *Config) { c.BlobDirName = name }
}

func WithSyncDirName(name string) Option {
	return func(c *Config) { c.SyncDirName = name }
}

func WithDatabaseFile(name string) Option {
	return func(c *Config) { c.DatabaseFile = name }
}

func WithRenditionWidth(width int) Option {
	return func(c *Config) { c.RenditionWidth = width }
}

func WithDefaultPageLimit(limit int) Option {
	return func(c *Config) { c.DefaultPageLimit = limit }
}

func WithMaxPageLimit(limit int) Option {
	return func(c *Config) { c.MaxPageLimit = limit }
}

func WithSyncTransactionTimeoutSeconds(seconds int) Option {
	return func(c *Config) { c.SyncTransactionTimeoutSeconds = seconds }
}

func WithLogLevel(level string) Option {
	return func(c *Config) { c.LogLevel = level }
}

func WithLogFormat(format string) Option {
	return func(c *Config) { c.LogFormat = format }
}

// ClampLimit applies the spec's pagination clamp: limit <= 0 means "use the
// default page size"; limit above MaxPageLimit is clamped down.
func (c *Config) ClampLimit(limit int) int {
	if limit <= 0 {
		return c.DefaultPageLimit
	}
	if limit > c.MaxPageLimit {
		return c.MaxPageLimit
	}
	return limit
}
