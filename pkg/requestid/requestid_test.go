package requestid_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/pkg/requestid"
)

func TestGenerateProducesUniqueIDs(t *testing.T) {
	a := requestid.Generate()
	b := requestid.Generate()
	require.NotEmpty(t, a)
	require.NotEqual(t, a, b)
}

func TestToContextAndFromContextRoundTrip(t *testing.T) {
	ctx := requestid.ToContext(context.Background(), "req-1")
	require.Equal(t, "req-1", requestid.FromContext(ctx))
}

func TestFromContextReturnsEmptyWhenAbsent(t *testing.T) {
	require.Empty(t, requestid.FromContext(context.Background()))
}
