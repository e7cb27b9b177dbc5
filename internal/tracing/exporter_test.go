package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/koopa0/recall/internal/log"
)

func TestSetupDefaults(t *testing.T) {
	tp, shutdown, err := Setup(context.Background(), Config{ServiceName: "recall-test"}, log.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tp)
	require.NotNil(t, shutdown)

	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupShutdownStopsBatchProcessor(t *testing.T) {
	defer goleak.VerifyNone(t)

	// The batch span processor starts a background goroutine as soon as
	// the provider is built; the shutdown function must stop it even if
	// no span was ever exported.
	_, shutdown, err := Setup(context.Background(), Config{
		Endpoint:    "localhost:4318",
		ServiceName: "recall-test",
		Environment: "test",
	}, log.NewNop())
	require.NoError(t, err)

	require.NoError(t, shutdown(context.Background()))
}
