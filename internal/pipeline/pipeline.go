// Package pipeline moves events from sources to every destination and
// acknowledges each message back to its source once all destinations have.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/runreveal/kawa"
	"github.com/runreveal/kawa/x/multi"
	"github.com/runreveal/lib/await"
	"github.com/runreveal/utmpscan/internal/types"
)

type runner interface {
	Run(context.Context) error
}

type Option func(*Pipeline)

func WithSource(name string, src kawa.Source[types.Event]) Option {
	return func(p *Pipeline) {
		p.sources[name] = src
	}
}

func WithDestination(name string, dst kawa.Destination[types.Event]) Option {
	return func(p *Pipeline) {
		p.dests[name] = dst
	}
}

// WithRunner adds a component that runs next to the pipeline and stops with
// it, such as a metrics listener.
func WithRunner(name string, r runner) Option {
	return func(p *Pipeline) {
		p.extra[name] = r
	}
}

type Pipeline struct {
	sources map[string]kawa.Source[types.Event]
	dests   map[string]kawa.Destination[types.Event]
	extra   map[string]runner
}

func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		sources: make(map[string]kawa.Source[types.Event]),
		dests:   make(map[string]kawa.Destination[types.Event]),
		extra:   make(map[string]runner),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until ctx is canceled, a component fails, or every source has
// reported io.EOF and all of its messages have been acknowledged.
func (p *Pipeline) Run(ctx context.Context) error {
	if len(p.sources) == 0 {
		return errors.New("pipeline: no sources configured")
	}
	if len(p.dests) == 0 {
		return errors.New("pipeline: no destinations configured")
	}

	wg := await.New()
	for name, src := range p.sources {
		if r, ok := src.(runner); ok {
			wg.AddNamed(untilDone(r), "source:"+name)
		}
	}
	for name, dst := range p.dests {
		if r, ok := dst.(runner); ok {
			wg.AddNamed(untilDone(r), "destination:"+name)
		}
	}
	for name, r := range p.extra {
		wg.AddNamed(untilDone(r), name)
	}

	dst := multi.NewMultiDestination(p.sortedDests())
	drained := make(chan string, len(p.sources))
	for name, src := range p.sources {
		wg.AddNamed(await.RunFunc(func(ctx context.Context) error {
			if err := forward(ctx, name, src, dst); err != nil {
				return err
			}
			drained <- name
			// stay up so the group only winds down once every source is drained
			<-ctx.Done()
			return ctx.Err()
		}), "forward:"+name)
	}
	// returning nil is what stops the group without an error
	wg.AddNamed(await.RunFunc(func(ctx context.Context) error {
		for range p.sources {
			select {
			case <-drained:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		slog.Info("all sources drained, pipeline stopping")
		return nil
	}), "drain")

	err := wg.Run(ctx)
	if ctx.Err() != nil {
		// shutdown requested by the caller
		return nil
	}
	return err
}

// untilDone keeps a component that finished cleanly in the group until the
// pipeline itself stops.
func untilDone(r runner) await.RunFunc {
	return func(ctx context.Context) error {
		if err := r.Run(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

func (p *Pipeline) sortedDests() []kawa.Destination[types.Event] {
	names := make([]string, 0, len(p.dests))
	for name := range p.dests {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]kawa.Destination[types.Event], 0, len(names))
	for _, name := range names {
		out = append(out, p.dests[name])
	}
	return out
}

// forward copies messages from src to dst until src reports io.EOF, then
// waits for the outstanding acknowledgements. kawa.Processor treats io.EOF as
// fatal, so one-shot sources need this loop instead.
func forward(ctx context.Context, name string, src kawa.Source[types.Event], dst kawa.Destination[types.Event]) error {
	var pending sync.WaitGroup
	drained := func() error {
		done := make(chan struct{})
		go func() {
			pending.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		msg, ack, err := src.Recv(ctx)
		if errors.Is(err, io.EOF) {
			slog.Debug(fmt.Sprintf("source %s exhausted", name))
			return drained()
		}
		if err != nil {
			return fmt.Errorf("pipeline: source %s: %w", name, err)
		}

		pending.Add(1)
		err = dst.Send(ctx, func() {
			if ack != nil {
				ack()
			}
			pending.Done()
		}, msg)
		if err != nil {
			return fmt.Errorf("pipeline: send from %s: %w", name, err)
		}
	}
}
