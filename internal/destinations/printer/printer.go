package printer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/runreveal/kawa"
	"github.com/runreveal/utmpscan/internal/report"
	"github.com/runreveal/utmpscan/internal/types"
	"github.com/runreveal/utmpscan/internal/utmp"
)

type Option func(*Printer)

// WithReporter renders events as report lines.
func WithReporter(r *report.Reporter) Option {
	return func(p *Printer) {
		p.reporter = r
	}
}

// WithJSON writes each event as one JSON document per line instead.
func WithJSON(w io.Writer) Option {
	return func(p *Printer) {
		p.enc = json.NewEncoder(w)
	}
}

// Printer is a destination that writes events for a human or a pipe.
type Printer struct {
	mu       sync.Mutex
	reporter *report.Reporter
	enc      *json.Encoder
}

func New(opts ...Option) *Printer {
	p := &Printer{}
	for _, opt := range opts {
		opt(p)
	}
	if p.reporter == nil && p.enc == nil {
		p.reporter = report.New()
	}
	return p
}

func (p *Printer) Send(ctx context.Context, ack func(), msgs ...kawa.Message[types.Event]) error {
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.print(msg.Value); err != nil {
			return err
		}
	}
	if ack != nil {
		ack()
	}
	return nil
}

func (p *Printer) print(ev types.Event) error {
	if p.enc != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		if err := p.enc.Encode(ev); err != nil {
			return fmt.Errorf("printer: %w", err)
		}
		return nil
	}

	if ev.Record == nil {
		slog.Warn(fmt.Sprintf("printer: %s event without a record, skipping", ev.SourceType))
		return nil
	}
	_, err := p.reporter.Report(utmp.Scored{Entry: *ev.Record, Score: ev.Score})
	return err
}
