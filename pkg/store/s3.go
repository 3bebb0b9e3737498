package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3KV stores each key as one object under a prefix in a bucket. It
// exists for operators who want the run's watermark durable in object
// storage rather than on a coordinator's local disk, generalizing the
// object-storage connection handling gonimbus's provider/s3 package
// does for crawling.
type S3KV struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3 builds an S3KV against bucket, storing keys under prefix
// (joined with "/"). Credentials and region are resolved the standard
// SDK way (environment, shared config, EC2/ECS role).
func NewS3(ctx context.Context, bucket, prefix string, optFns ...func(*awsconfig.LoadOptions) error) (*S3KV, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("store: load aws config: %w", err)
	}
	return &S3KV{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (s *S3KV) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3KV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("store: s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	value, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("store: s3 read body for %s: %w", key, err)
	}
	return value, true, nil
}

func (s *S3KV) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(value),
	})
	if err != nil {
		return fmt.Errorf("store: s3 put %s: %w", key, err)
	}
	return nil
}

func (s *S3KV) Close() error {
	return nil
}
