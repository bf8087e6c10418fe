// Package storage wraps the S3 access the runtime needs: reading the policy
// mapping and policy files out of the configuration bucket.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectGetter fetches an object body by key. Satisfied by Bucket and by
// test fakes.
type ObjectGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Bucket reads objects from a single S3 bucket.
type Bucket struct {
	client *s3.Client
	name   string
}

// NewBucket creates a Bucket backed by the given AWS config.
func NewBucket(cfg aws.Config, name string) *Bucket {
	return &Bucket{
		client: s3.NewFromConfig(cfg),
		name:   name,
	}
}

// Get downloads the object at key and returns its full body.
func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", b.name, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", b.name, key, err)
	}
	return body, nil
}
