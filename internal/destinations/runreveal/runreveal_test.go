package runreveal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/runreveal/kawa"
	"github.com/runreveal/utmpscan/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type webhook struct {
	mu      sync.Mutex
	batches [][]types.Event
	status  int
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	var batch []types.Event
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}
	w.mu.Lock()
	w.batches = append(w.batches, batch)
	status := w.status
	w.mu.Unlock()
	if status != 0 {
		rw.WriteHeader(status)
	}
}

func (w *webhook) received() [][]types.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]types.Event(nil), w.batches...)
}

func msgs(users ...string) []kawa.Message[types.Event] {
	var out []kawa.Message[types.Event]
	for _, u := range users {
		out = append(out, kawa.Message[types.Event]{Value: types.Event{
			SourceType: "wtmp",
			Actor:      types.Actor{Username: u},
			Score:      3,
		}})
	}
	return out
}

func TestFlush(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	rr := New(WithWebhookURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, rr.Flush(context.Background(), msgs("alice", "bob")))

	got := hook.received()
	require.Len(t, got, 1)
	require.Len(t, got[0], 2)
	assert.Equal(t, "alice", got[0][0].Actor.Username)
	assert.Equal(t, 3, got[0][1].Score)
}

func TestFlushServerError(t *testing.T) {
	hook := &webhook{status: http.StatusInternalServerError}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	rr := New(WithWebhookURL(srv.URL), WithHTTPClient(srv.Client()))
	assert.Error(t, rr.Flush(context.Background(), msgs("alice")))
}

func TestBatchedSend(t *testing.T) {
	hook := &webhook{}
	srv := httptest.NewServer(hook)
	defer srv.Close()

	rr := New(
		WithWebhookURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithBatchSize(2),
		WithFlushFrequency(time.Hour),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- rr.Run(ctx) }()

	var acked atomic.Int32
	require.NoError(t, rr.Send(ctx, func() { acked.Add(1) }, msgs("alice", "bob")...))

	assert.Eventually(t, func() bool { return acked.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	got := hook.received()
	require.Len(t, got, 1)
	assert.Len(t, got[0], 2)

	cancel()
	<-errc
}

func TestRunRequiresURL(t *testing.T) {
	assert.Error(t, New().Run(context.Background()))
}
