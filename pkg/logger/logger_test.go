package logger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/pkg/logger"
	"github.com/conatus-oss/dana-archive/pkg/requestid"
)

func TestNewBuildsAStructuredLogger(t *testing.T) {
	require.NotPanics(t, func() {
		log := logger.New("info", "console")
		require.NotNil(t, log)
	})
}

func TestWithContextReturnsSameLoggerWhenNoRequestID(t *testing.T) {
	log := logger.NewInfoLogger("test")
	require.Same(t, log, log.WithContext(context.Background()))
}

func TestWithContextAttachesRequestID(t *testing.T) {
	log := logger.NewInfoLogger("test")
	ctx := requestid.ToContext(context.Background(), "req-7")

	scoped := log.WithContext(ctx)
	require.NotSame(t, log, scoped)
}

func TestOperationTracerBuildersDoNotPanic(t *testing.T) {
	log := logger.NewDebugLogger("test")

	require.NotPanics(t, func() {
		tracer := log.StartOperation("create_asset").WithString("asset_id", "a-1").Build()
		tracer.Step("validate").WithInt("count", 3).Log()
		tracer.Success().WithBool("ok", true).Log()
	})
}
