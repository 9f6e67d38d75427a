package integration

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ncbimcp/ncbimcp/internal/observability"
)

func TestMetricsEndpoint_Integration(t *testing.T) {
	observability.InitServerLogger("test", "info", "http")
	initMetricsOrSkip(t)

	st := newStack(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"einforesult":{"dblist":["pubmed"]}}`)
	}))
	client := st.http.Client()

	const numRequests = 40
	const numWorkers = 8

	requests := make(chan int, numRequests)
	for i := range numRequests {
		requests <- i
	}
	close(requests)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range requests {
				path := "/health"
				switch n % 3 {
				case 1:
					path = "/version"
				case 2:
					path = "/missing"
				}
				resp, err := client.Get(st.http.URL + path)
				if err == nil {
					_ = resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()

	resp, err := client.Get(st.http.URL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	content := string(body)
	assert.Contains(t, content, "http_requests_total")
	assert.Contains(t, content, "http_request_duration_ms")
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")

	metricLines := 0
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		if !strings.HasPrefix(line, "#") && strings.TrimSpace(line) != "" {
			metricLines++
		}
	}
	assert.Greater(t, metricLines, 0)
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	st := newStack(t, http.NotFoundHandler())

	resp, err := st.http.Client().Get(st.http.URL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
