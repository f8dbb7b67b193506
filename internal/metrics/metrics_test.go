package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()
	m.ObserveRecord(0)
	m.ObserveRecord(13)
	m.IncrementReported()
	m.IncrementSuppressed()
	m.IncrementDuplicate()
	m.AddSkipped(5)
	m.AddSkipped(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsReported))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsSuppressed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDuplicate))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.BytesSkipped))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "utmpscan_records_total 2")
	assert.Contains(t, string(body), "utmpscan_record_score_count 2")
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRecord(3)
		m.IncrementReported()
		m.IncrementSuppressed()
		m.IncrementDuplicate()
		m.AddSkipped(10)
	})
}

func TestServe(t *testing.T) {
	m := New()
	m.ObserveRecord(4)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Serve(ctx, ln) }()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err = io.ReadAll(resp.Body)
		return err == nil && resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, string(body), "utmpscan_records_total 1")

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("metrics server did not stop")
	}
}
