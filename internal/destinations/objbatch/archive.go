// Package objbatch archives batches of scored login events to an object
// store as compressed JSON lines.
package objbatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/runreveal/kawa"
	batch "github.com/runreveal/kawa/x/batcher"
	"github.com/runreveal/utmpscan/internal/destinations/objstore"
	"github.com/runreveal/utmpscan/internal/types"
	"github.com/segmentio/ksuid"
)

type Compression string

const (
	Gzip Compression = "gzip"
	Zstd Compression = "zstd"
)

func (c Compression) ext() string {
	if c == Zstd {
		return "zst"
	}
	return "gz"
}

type Option func(*ObjectStorage)

func WithBatchSize(batchSize int) Option {
	return func(s *ObjectStorage) {
		s.batchSize = batchSize
	}
}

func WithFlushFrequency(flushFrequency time.Duration) Option {
	return func(s *ObjectStorage) {
		s.flushFrequency = flushFrequency
	}
}

func WithBlobLike(blobLike objstore.BlobLike) Option {
	return func(s *ObjectStorage) {
		s.blobLike = blobLike
	}
}

func WithBucket(bucket string) Option {
	return func(s *ObjectStorage) {
		s.bucketName = bucket
	}
}

func WithPathPrefix(prefix string) Option {
	return func(s *ObjectStorage) {
		s.pathPrefix = prefix
	}
}

func WithCompression(c Compression) Option {
	return func(s *ObjectStorage) {
		s.compression = c
	}
}

type ObjectStorage struct {
	batcher *batch.Destination[types.Event]

	pathPrefix  string
	bucketName  string
	compression Compression

	batchSize      int
	flushFrequency time.Duration
	blobLike       objstore.BlobLike
	archive        *objstore.Archive

	now func() time.Time
}

func New(opts ...Option) *ObjectStorage {
	ret := &ObjectStorage{now: time.Now}
	for _, o := range opts {
		o(ret)
	}
	if ret.batchSize == 0 {
		ret.batchSize = 100
	}
	if ret.flushFrequency == 0 {
		ret.flushFrequency = 30 * time.Second
	}
	if ret.pathPrefix == "" {
		ret.pathPrefix = "utmpscan"
	}
	if ret.compression == "" {
		ret.compression = Gzip
	}
	if ret.blobLike != nil {
		// New only fails on a nil backend
		ret.archive, _ = objstore.New(ret.blobLike, ret.bucketName)
	}

	ret.batcher = batch.NewDestination[types.Event](ret,
		batch.Raise[types.Event](),
		batch.FlushLength(ret.batchSize),
		batch.FlushFrequency(ret.flushFrequency),
	)
	return ret
}

func (s *ObjectStorage) Run(ctx context.Context) error {
	if s.archive == nil {
		return errors.New("objbatch: no object store configured")
	}
	return s.batcher.Run(ctx)
}

func (s *ObjectStorage) Send(ctx context.Context, ack func(), msgs ...kawa.Message[types.Event]) error {
	return s.batcher.Send(ctx, ack, msgs...)
}

func (s *ObjectStorage) compressor(w io.Writer) (io.WriteCloser, error) {
	switch s.compression {
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		return zstd.NewWriter(w)
	default:
		return nil, fmt.Errorf("objbatch: unknown compression %q", s.compression)
	}
}

// Flush writes one object holding every event in msgs, one JSON document per
// line.
func (s *ObjectStorage) Flush(ctx context.Context, msgs []kawa.Message[types.Event]) error {
	var buf bytes.Buffer
	cw, err := s.compressor(&buf)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cw)
	for _, msg := range msgs {
		if err := enc.Encode(msg.Value); err != nil {
			return fmt.Errorf("objbatch: %w", err)
		}
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("objbatch: %w", err)
	}

	now := s.now().UTC()
	key := fmt.Sprintf("%s/%s/%s_%d.jsonl.%s",
		s.pathPrefix,
		now.Format("2006/01/02/15"),
		ksuid.New().String(),
		now.Unix(),
		s.compression.ext(),
	)
	if err := s.archive.Store(ctx, key, bytes.NewReader(buf.Bytes())); err != nil {
		return err
	}

	// the batch is stored; a failed signature only costs the link
	u, err := s.archive.GetSignedURL(ctx, key)
	if err != nil {
		slog.Warn(fmt.Sprintf("archived %d events to %s, no link: %v", len(msgs), key, err))
		return nil
	}
	slog.Info(fmt.Sprintf("archived %d events: %s", len(msgs), u))
	return nil
}
