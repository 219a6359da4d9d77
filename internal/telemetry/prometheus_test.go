package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/sgscope/pkg/usage"
)

func TestPrometheusReader_ServesOTELMetrics(t *testing.T) {
	reader, err := NewPrometheusReader()
	require.NoError(t, err)

	p, err := NewProvider(context.Background(), disabledConfig(), reader.Exporter)
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(context.Background()) }()

	p.RecordLookup(context.Background(), "us-east-1", usage.Result{
		Provider:    "ec2",
		ResourceIDs: []string{"i-1"},
		Duration:    50 * time.Millisecond,
	})

	srv := httptest.NewServer(reader.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := string(body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out, "sgscope_resources_matched_total")
	assert.Contains(t, out, `provider="ec2"`)
	assert.Contains(t, out, "go_goroutines")
}
