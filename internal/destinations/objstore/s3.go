package objstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

const presignExpiry = 15 * time.Minute

// bucketClient implements BlobLike for any S3-compatible endpoint.
type bucketClient struct {
	s3svc *s3.Client
}

func (c bucketClient) PutObject(ctx context.Context, in PutObjectInput) error {
	uploader := manager.NewUploader(c.s3svc, func(u *manager.Uploader) {
		u.Concurrency = 5
		u.LeavePartsOnError = false
	})

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(in.Bucket),
		Key:    aws.String(in.Key),
		Body:   in.Data,
	})
	return err
}

func (c bucketClient) GetSignedURL(ctx context.Context, in SignedURLInput) (string, error) {
	presignClient := s3.NewPresignClient(c.s3svc)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(in.Bucket),
		Key:    aws.String(in.Key),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return "", fmt.Errorf("failed to presign URL: %w", err)
	}
	return req.URL, nil
}

type S3 struct {
	bucketClient
}

type S3Config struct {
	Region          string `json:"region"`
	Type            string `json:"type"`
	AccessKeyID     string `json:"accessKeyID,omitempty"`
	SecretAccessKey string `json:"secretAccessKey,omitempty"`
	CustomEndpoint  string `json:"customEndpoint,omitempty"`

	// RoleArn, when set, is assumed through STS on top of the base
	// credentials before talking to S3.
	RoleArn     string `json:"roleArn,omitempty"`
	ExternalID  string `json:"externalID,omitempty"`
	SessionName string `json:"sessionName,omitempty"`
}

func NewS3(cfg S3Config) (*S3, error) {
	var configOpts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		configOpts = append(configOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)
		configOpts = append(configOpts, config.WithCredentialsProvider(staticCreds))
	}

	awsConfig, err := config.LoadDefaultConfig(context.TODO(), configOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cfg.RoleArn != "" {
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsConfig), cfg.RoleArn,
			func(o *stscreds.AssumeRoleOptions) {
				if cfg.ExternalID != "" {
					o.ExternalID = aws.String(cfg.ExternalID)
				}
				if cfg.SessionName != "" {
					o.RoleSessionName = cfg.SessionName
				}
			},
		)
		awsConfig.Credentials = aws.NewCredentialsCache(provider)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.CustomEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.CustomEndpoint)
			o.UsePathStyle = true
		}
	})
	return &S3{bucketClient{s3svc: client}}, nil
}
