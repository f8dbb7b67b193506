// Package runreveal forwards scored login events to a webhook in batches.
package runreveal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/runreveal/kawa"
	batch "github.com/runreveal/kawa/x/batcher"
	"github.com/runreveal/utmpscan/internal/types"
)

type Option func(*RunReveal)

func WithWebhookURL(url string) Option {
	return func(r *RunReveal) {
		r.webhookURL = url
	}
}

func WithBatchSize(size int) Option {
	return func(r *RunReveal) {
		r.batchSize = size
	}
}

func WithFlushFrequency(d time.Duration) Option {
	return func(r *RunReveal) {
		r.flushFreq = d
	}
}

func WithHTTPClient(c *http.Client) Option {
	return func(r *RunReveal) {
		r.httpc = c
	}
}

type RunReveal struct {
	httpc   *http.Client
	batcher *batch.Destination[types.Event]

	webhookURL string
	batchSize  int
	flushFreq  time.Duration
}

func New(opts ...Option) *RunReveal {
	ret := &RunReveal{
		httpc: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(ret)
	}
	if ret.batchSize <= 0 {
		ret.batchSize = 100
	}
	if ret.flushFreq <= 0 {
		ret.flushFreq = 10 * time.Second
	}

	ret.batcher = batch.NewDestination[types.Event](ret,
		batch.Raise[types.Event](),
		batch.FlushLength(ret.batchSize),
		batch.FlushFrequency(ret.flushFreq),
	)
	return ret
}

func (r *RunReveal) Run(ctx context.Context) error {
	if r.webhookURL == "" {
		return errors.New("runreveal: missing webhook url")
	}
	return r.batcher.Run(ctx)
}

func (r *RunReveal) Send(ctx context.Context, ack func(), msgs ...kawa.Message[types.Event]) error {
	return r.batcher.Send(ctx, ack, msgs...)
}

// Flush posts msgs to the webhook as a single JSON array.
func (r *RunReveal) Flush(ctx context.Context, msgs []kawa.Message[types.Event]) error {
	events := make([]types.Event, 0, len(msgs))
	for _, msg := range msgs {
		events = append(events, msg.Value)
	}

	err := requests.
		URL(r.webhookURL).
		Client(r.httpc).
		BodyJSON(events).
		Fetch(ctx)
	if err != nil {
		slog.Error(fmt.Sprintf("error sending batch to runreveal: %+v", err))
		return fmt.Errorf("runreveal: %w", err)
	}
	slog.Debug(fmt.Sprintf("sent %d events to runreveal", len(events)))
	return nil
}
