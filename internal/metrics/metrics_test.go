package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Searches.WithLabelValues("italian game").Inc()
	m.Searches.WithLabelValues("italian game").Inc()
	m.FetchFailures.WithLabelValues("network").Inc()
	m.LessonsBuilt.WithLabelValues("false").Inc()
	m.SlideDelay.Observe(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Searches.WithLabelValues("italian game")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchFailures.WithLabelValues("network")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.SlideDelay))
}

func TestQueueDepthGauge(t *testing.T) {
	m := New()
	depth := 3
	require.NoError(t, m.RegisterQueueDepth(func() int { return depth }))
	assert.Error(t, m.RegisterQueueDepth(func() int { return 0 }), "duplicate registration")

	n, err := testutil.GatherAndCount(m.Registry(), "chessmaster_queue_depth")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestServe(t *testing.T) {
	m := New()
	m.SlidesShown.Add(7)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- m.serve(ctx, lis) }()

	var body string
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + lis.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		body = string(b)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, body, "chessmaster_driver_slides_shown_total 7")

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
