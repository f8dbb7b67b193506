package wtmp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/runreveal/kawa"
	"github.com/runreveal/lib/await"
	"github.com/runreveal/utmpscan/internal/bytesource"
	"github.com/runreveal/utmpscan/internal/metrics"
	"github.com/runreveal/utmpscan/internal/report"
	"github.com/runreveal/utmpscan/internal/types"
	"github.com/runreveal/utmpscan/internal/utmp"
	"github.com/segmentio/ksuid"
)

const sourceType = "wtmp"

type Option func(*Source)

func WithPath(path string) Option {
	return func(s *Source) {
		s.path = path
	}
}

// WithMaxScore drops records scoring above n before they are emitted.
func WithMaxScore(n int) Option {
	return func(s *Source) {
		s.maxScore = n
	}
}

// WithFollow keeps the source running after the end of the file and picks
// up records appended later.
func WithFollow(follow bool) Option {
	return func(s *Source) {
		s.follow = follow
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(s *Source) {
		s.pollInterval = d
	}
}

func WithCommitInterval(d time.Duration) Option {
	return func(s *Source) {
		s.commitInterval = d
	}
}

func WithHighWatermarkFile(fname string) Option {
	return func(s *Source) {
		s.highWatermarkFile = fname
	}
}

func WithScorer(scorer utmp.Scorer) Option {
	return func(s *Source) {
		s.scorer = scorer
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Source) {
		s.metrics = m
	}
}

// WithDedupSize remembers the last n emitted records by offset and content,
// and drops a record only when the same bytes come back at the same offset.
// That happens when a rotated or truncated file is read again from the
// start. Identical records at different offsets are always emitted.
func WithDedupSize(n int) Option {
	return func(s *Source) {
		s.dedupSize = n
	}
}

type msgErr[T any] struct {
	msg kawa.Message[T]
	ack func()
	err error
}

// Source scans a wtmpx/utmpx file and emits one event per scored record.
type Source struct {
	path              string
	maxScore          int
	follow            bool
	pollInterval      time.Duration
	commitInterval    time.Duration
	highWatermarkFile string
	scorer            utmp.Scorer
	metrics           *metrics.Metrics
	dedupSize         int
	seen              *lru.Cache[string, struct{}]
	scanID            string

	msgC chan msgErr[types.Event]
	done chan struct{}
	err  error

	posLock   sync.Mutex
	committed int
	// gen changes on every reset so acks for the old file are ignored
	gen    int
	loaded chan struct{}
}

func New(opts ...Option) *Source {
	s := &Source{
		maxScore: report.DefaultMaxScore,
		msgC:     make(chan msgErr[types.Event]),
		done:     make(chan struct{}),
		loaded:   make(chan struct{}),
		scanID:   ksuid.New().String(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pollInterval == 0 {
		s.pollInterval = 5 * time.Second
	}
	if s.commitInterval == 0 {
		s.commitInterval = 5 * time.Second
	}
	if s.dedupSize > 0 {
		// only fails for a non-positive size
		s.seen, _ = lru.New[string, struct{}](s.dedupSize)
	}
	return s
}

func (s *Source) Run(ctx context.Context) error {
	if s.path == "" {
		return errors.New("wtmp: path is required")
	}
	if !filepath.IsAbs(s.path) {
		abs, err := filepath.Abs(s.path)
		if err != nil {
			return fmt.Errorf("wtmp: %w", err)
		}
		s.path = abs
	}

	wg := await.New()
	wg.AddNamed(await.RunFunc(s.recvLoop), "recvLoop")
	if s.follow && s.highWatermarkFile != "" {
		wg.AddNamed(await.RunFunc(s.commitLoop), "commitLoop")
	}
	return wg.Run(ctx)
}

// Recv returns the next event. Once a non-follow scan has delivered every
// record it returns io.EOF.
func (s *Source) Recv(ctx context.Context) (kawa.Message[types.Event], func(), error) {
	select {
	case <-ctx.Done():
		return kawa.Message[types.Event]{}, nil, ctx.Err()
	case msg := <-s.msgC:
		return msg.msg, msg.ack, msg.err
	case <-s.done:
		if s.err != nil {
			return kawa.Message[types.Event]{}, nil, s.err
		}
		return kawa.Message[types.Event]{}, nil, io.EOF
	}
}

func (s *Source) finish(err error) {
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	s.err = err
	close(s.done)
}

func (s *Source) recvLoop(ctx context.Context) (err error) {
	defer func() { s.finish(err) }()

	cursor := 0
	if s.follow && s.highWatermarkFile != "" {
		cursor = s.loadOffsets()[s.path]
		s.committed = cursor
		if cursor > 0 {
			slog.Info(fmt.Sprintf("resuming %s at offset %d", s.path, cursor))
		}
	}
	close(s.loaded)

	if !s.follow {
		_, err = s.scan(ctx, 0)
		return err
	}

	var changes <-chan fsnotify.Event
	watcher, werr := fsnotify.NewWatcher()
	if werr != nil {
		slog.Warn(fmt.Sprintf("file notifications unavailable, polling every %v: %v", s.pollInterval, werr))
	} else {
		defer watcher.Close()
		if werr := watcher.Add(filepath.Dir(s.path)); werr != nil {
			slog.Warn(fmt.Sprintf("cannot watch %s, polling every %v: %v", filepath.Dir(s.path), s.pollInterval, werr))
		} else {
			changes = watcher.Events
		}
	}

	var current os.FileInfo
	for {
		st, err := os.Stat(s.path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// between rotation and re-creation
			slog.Debug(fmt.Sprintf("%s does not exist yet", s.path))
		case err != nil:
			return fmt.Errorf("wtmp: %w", err)
		default:
			if current != nil && !os.SameFile(current, st) {
				slog.Info(fmt.Sprintf("log rotation detected, rescanning: %s", s.path))
				cursor = 0
				s.resetPosition()
			} else if st.Size() < int64(cursor) {
				slog.Info(fmt.Sprintf("file truncated, rescanning: %s", s.path))
				cursor = 0
				s.resetPosition()
			}
			current = st

			if st.Size()-int64(cursor) >= utmp.Size {
				cursor, err = s.scan(ctx, cursor)
				if errors.Is(err, bytesource.ErrEmptyFile) || errors.Is(err, os.ErrNotExist) {
					// truncated or rotated since the stat; the next pass catches up
					slog.Debug(fmt.Sprintf("%s changed while opening: %v", s.path, err))
				} else if err != nil {
					return err
				}
			}
		}

		if err := s.wait(ctx, changes); err != nil {
			return err
		}
	}
}

// open maps the file for a one-shot scan. A followed file can be truncated
// underneath us, and touching a mapping past the new end raises SIGBUS, so
// follow mode copies the unread tail instead.
func (s *Source) open(cursor int) (*bytesource.Source, *utmp.Scanner, error) {
	if s.follow {
		src, err := bytesource.ReadTail(s.path, int64(cursor))
		if err != nil {
			return nil, nil, err
		}
		return src, utmp.NewScannerFrom(src.Bytes(), cursor), nil
	}
	src, err := bytesource.Open(s.path)
	if err != nil {
		return nil, nil, err
	}
	return src, utmp.NewScannerAt(src.Bytes(), cursor), nil
}

// scan emits every record from cursor on. It returns the cursor where
// scanning stopped.
func (s *Source) scan(ctx context.Context, cursor int) (int, error) {
	src, sc, err := s.open(cursor)
	if err != nil {
		return cursor, fmt.Errorf("wtmp: %w", err)
	}
	defer src.Close()
	defer func() { s.metrics.AddSkipped(sc.Skipped()) }()

	for {
		ok, err := sc.ScanContext(ctx)
		if err != nil {
			return sc.Offset(), err
		}
		if !ok {
			return sc.Offset(), nil
		}

		rec := sc.Record()
		scored := s.scorer.Evaluate(rec, sc.UsernameLen())
		s.metrics.ObserveRecord(scored.Score)

		if scored.Score > s.maxScore {
			s.metrics.IncrementSuppressed()
			continue
		}
		if s.seen != nil {
			key := fmt.Sprintf("%d:%s", rec.Offset(), rec.Raw())
			if ok, _ := s.seen.ContainsOrAdd(key, struct{}{}); ok {
				s.metrics.IncrementDuplicate()
				continue
			}
		}

		if err := s.emit(ctx, scored); err != nil {
			return sc.Offset(), err
		}
	}
}

func (s *Source) emit(ctx context.Context, scored utmp.Scored) error {
	event, err := types.FromScored(sourceType, s.path, report.TierFor(scored.Score).String(), scored)
	if err != nil {
		return fmt.Errorf("wtmp: %w", err)
	}
	event.Tags["scan"] = s.scanID
	end := int(scored.Entry.Offset) + utmp.Size
	gen := s.generation()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.msgC <- msgErr[types.Event]{
		msg: kawa.Message[types.Event]{Key: fmt.Sprintf("%s:%d", s.path, scored.Entry.Offset), Value: event},
		ack: func() {
			s.savePosition(gen, end)
		},
	}:
	}
	s.metrics.IncrementReported()
	return nil
}

func (s *Source) wait(ctx context.Context, changes <-chan fsnotify.Event) error {
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case ev, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if filepath.Clean(ev.Name) == s.path && ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				return nil
			}
		}
	}
}

func (s *Source) generation() int {
	s.posLock.Lock()
	defer s.posLock.Unlock()
	return s.gen
}

// savePosition records an ack for a record emitted during generation gen.
func (s *Source) savePosition(gen, pos int) {
	s.posLock.Lock()
	// acks can arrive out of order; never move the watermark backwards
	if gen == s.gen && pos > s.committed {
		s.committed = pos
	}
	s.posLock.Unlock()
}

func (s *Source) resetPosition() {
	s.posLock.Lock()
	s.committed = 0
	s.gen++
	s.posLock.Unlock()
}

// Position is the end of the last acknowledged record.
func (s *Source) Position() int {
	s.posLock.Lock()
	defer s.posLock.Unlock()
	return s.committed
}

func (s *Source) commitLoop(ctx context.Context) error {
	// Wait until we have loaded the initial offsets
	select {
	case <-s.loaded:
	case <-ctx.Done():
		return ctx.Err()
	}

	ticker := time.NewTicker(s.commitInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.persistOffsets()
			return ctx.Err()
		case <-ticker.C:
			s.persistOffsets()
		}
	}
}

func (s *Source) persistOffsets() {
	tracker := s.loadOffsets()
	tracker[s.path] = s.Position()

	bts, err := json.Marshal(tracker)
	if err != nil {
		slog.Error(fmt.Sprintf("error marshalling offsets: %s", err))
		return
	}
	bts = append(bts, '\n')

	tmp := s.highWatermarkFile + ".tmp"
	if err := os.WriteFile(tmp, bts, 0644); err != nil {
		slog.Error(fmt.Sprintf("error writing high watermark file %s: %s", tmp, err))
		return
	}
	if err := os.Rename(tmp, s.highWatermarkFile); err != nil {
		slog.Error(fmt.Sprintf("error renaming high watermark file %s: %s", s.highWatermarkFile, err))
		return
	}
	slog.Debug(fmt.Sprintf("persisted offsets to high watermark file: %s", s.highWatermarkFile))
}

func (s *Source) loadOffsets() map[string]int {
	ret := make(map[string]int)

	f, err := os.Open(s.highWatermarkFile)
	if err != nil {
		// if the file doesn't exist, return an empty map
		slog.Debug(fmt.Sprintf("cant open high watermark file: %s", err))
		return ret
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&ret); err != nil {
		slog.Error(fmt.Sprintf("error decoding offsets: %s", err))
		return make(map[string]int)
	}
	return ret
}
