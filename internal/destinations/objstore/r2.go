package objstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// R2 is Cloudflare's S3-compatible object store.
type R2 struct {
	bucketClient
}

type R2Config struct {
	Account         string `json:"account"`
	Jurisdiction    string `json:"jurisdiction"`
	AccessKeyID     string `json:"accessKeyID"`
	SecretAccessKey string `json:"secretAccessKey"`
	Type            string `json:"type"`
}

func (c R2Config) endpoint() string {
	if c.Jurisdiction != "" {
		return fmt.Sprintf("https://%s.%s.r2.cloudflarestorage.com", c.Account, c.Jurisdiction)
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.Account)
}

func NewR2(cfg R2Config) (*R2, error) {
	if cfg.Account == "" {
		return nil, errors.New("r2: account is required")
	}
	r2Cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
		config.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("r2: %w", err)
	}

	client := s3.NewFromConfig(r2Cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.endpoint())
	})
	return &R2{bucketClient{s3svc: client}}, nil
}
