package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

type PutObjectInput struct {
	Bucket string
	Key    string
	Data   io.Reader
}

type SignedURLInput struct {
	Bucket string
	Key    string
}

type BlobLike interface {
	PutObject(ctx context.Context, in PutObjectInput) error
	GetSignedURL(ctx context.Context, in SignedURLInput) (string, error)
}

// Archive stores evidence objects under a single bucket.
type Archive struct {
	svc    BlobLike
	bucket string
}

func New(objstr BlobLike, bucket string) (*Archive, error) {
	if objstr == nil {
		return nil, errors.New("objstore: no backend configured")
	}
	return &Archive{svc: objstr, bucket: bucket}, nil
}

// Store blocks until data has been fully read, so it must run in a separate
// goroutine from whatever writes the other side of data, if necessary.
func (a *Archive) Store(ctx context.Context, key string, data io.Reader) error {
	if key == "" {
		return errors.New("objstore: key is required")
	}
	if err := a.svc.PutObject(ctx, PutObjectInput{Bucket: a.bucket, Key: key, Data: data}); err != nil {
		return fmt.Errorf("objstore: put %s: %w", key, err)
	}
	return nil
}

// GetSignedURL returns a time-limited link to key for whoever picks up the
// evidence.
func (a *Archive) GetSignedURL(ctx context.Context, key string) (string, error) {
	r, err := a.svc.GetSignedURL(ctx, SignedURLInput{Bucket: a.bucket, Key: key})
	if err != nil {
		return "", fmt.Errorf("objstore: sign %s: %w", key, err)
	}
	return r, nil
}
