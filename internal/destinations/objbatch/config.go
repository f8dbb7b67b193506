package objbatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/runreveal/kawa"
	"github.com/runreveal/lib/loader"
	"github.com/runreveal/utmpscan/internal/destinations/objstore"
	"github.com/runreveal/utmpscan/internal/types"
)

type BlobConfig struct {
	BatchSize      int           `json:"batchSize"`
	FlushFrequency time.Duration `json:"flushFrequency"`
	Bucket         string        `json:"bucket"`
	PathPrefix     string        `json:"pathPrefix"`
	Compression    Compression   `json:"compression"`

	ObjStore *loader.Loader[objstore.BlobLike] `json:"store"`
}

func (bc BlobConfig) Configure() (kawa.Destination[types.Event], error) {
	if bc.ObjStore == nil {
		return nil, errors.New("objbatch: store is required")
	}
	switch bc.Compression {
	case "", Gzip, Zstd:
	default:
		return nil, fmt.Errorf("objbatch: unknown compression %q", bc.Compression)
	}
	bl, err := bc.ObjStore.Configure()
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithBlobLike(bl),
		WithBucket(bc.Bucket),
		WithPathPrefix(bc.PathPrefix),
		WithCompression(bc.Compression),
	}
	if bc.BatchSize > 0 {
		opts = append(opts, WithBatchSize(bc.BatchSize))
	}
	if bc.FlushFrequency > 0 {
		opts = append(opts, WithFlushFrequency(bc.FlushFrequency))
	}
	return New(opts...), nil
}
