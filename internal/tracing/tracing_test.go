package tracing

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/claimrisk/internal/domain"
	"github.com/opensource-finance/claimrisk/internal/logging"
)

func TestInit_Disabled(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "info", "json")

	shutdown, err := Init(context.Background(), domain.TracingConfig{Enabled: false, Endpoint: "localhost:4317"}, "test", logger)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), "tracing disabled")
}

func TestInit_NoEndpoint(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&buf, "info", "json")

	shutdown, err := Init(context.Background(), domain.TracingConfig{Enabled: true}, "test", logger)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
