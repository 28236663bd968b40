// Package s3 loads index snapshots stored as JSON objects in an S3 bucket.
package s3

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/dittoquery/internal/logger"
	"github.com/marmos91/dittoquery/pkg/store/index"
)

// maxObjectSize bounds a single entity object.
const maxObjectSize = 16 << 20

// Client is the subset of the S3 API used by the loader.
type Client interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// LoaderConfig configures a Loader.
type LoaderConfig struct {
	Client Client
	Bucket string
	Prefix string
}

// Loader copies every "<prefix><key>.json" object of a bucket into an index.
type Loader struct {
	client Client
	bucket string
	prefix string
}

// NewLoader validates cfg and returns a Loader.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("s3 snapshot loader: client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 snapshot loader: bucket is required")
	}
	return &Loader{client: cfg.Client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// KeyFor maps an object key to an index key. It returns false for objects
// outside the prefix, objects without a ".json" suffix and directory markers.
func KeyFor(prefix, objectKey string) (string, bool) {
	if !strings.HasPrefix(objectKey, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(objectKey, prefix)
	if !strings.HasSuffix(rest, ".json") {
		return "", false
	}
	key := strings.TrimSuffix(rest, ".json")
	if key == "" || strings.HasSuffix(key, "/") {
		return "", false
	}
	return key, true
}

// Load reads every snapshot object and stores it in idx.
//
// Returns the number of entities loaded. Loading stops at the first object
// that cannot be read or is not valid JSON.
func (l *Loader) Load(ctx context.Context, idx index.Index) (int, error) {
	paginator := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(l.prefix),
	})

	loaded := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return loaded, fmt.Errorf("failed to list s3://%s/%s: %w", l.bucket, l.prefix, err)
		}

		for _, obj := range page.Contents {
			objectKey := aws.ToString(obj.Key)
			key, ok := KeyFor(l.prefix, objectKey)
			if !ok {
				logger.Debug("Skipping snapshot object %s", objectKey)
				continue
			}

			body, err := l.fetch(ctx, objectKey)
			if err != nil {
				return loaded, err
			}
			if !json.Valid(body) {
				return loaded, fmt.Errorf("snapshot object %s is not valid JSON", objectKey)
			}
			if err := idx.Put(ctx, key, body); err != nil {
				return loaded, fmt.Errorf("failed to store %q: %w", key, err)
			}
			loaded++
		}
	}

	logger.Info("Loaded %d entities from s3://%s/%s", loaded, l.bucket, l.prefix)
	return loaded, nil
}

func (l *Loader) fetch(ctx context.Context, objectKey string) ([]byte, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", l.bucket, objectKey, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(io.LimitReader(out.Body, maxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read s3://%s/%s: %w", l.bucket, objectKey, err)
	}
	if len(body) > maxObjectSize {
		return nil, fmt.Errorf("snapshot object %s exceeds %d bytes", objectKey, maxObjectSize)
	}
	return body, nil
}
