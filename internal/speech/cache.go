package speech

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// ObjectStore is the subset of the S3 API used by the audio cache.
type ObjectStore interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Cache stores synthesized audio in an S3-compatible bucket.
type Cache struct {
	client ObjectStore
	bucket string
}

// NewS3Cache builds a path-style S3 client for cfg.
func NewS3Cache(ctx context.Context, cfg S3Config) (*Cache, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})
	return NewCache(client, cfg.Bucket), nil
}

func NewCache(client ObjectStore, bucket string) *Cache {
	return &Cache{client: client, bucket: bucket}
}

// EnsureBucket creates the bucket when HeadBucket fails.
func (c *Cache) EnsureBucket(ctx context.Context) error {
	_, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err == nil {
		return nil
	}
	_, err = c.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			switch apiErr.ErrorCode() {
			case "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
				return nil
			}
		}
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Get returns cached audio and whether it was found.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read object: %w", err)
	}
	return data, true, nil
}

func (c *Cache) Put(ctx context.Context, key string, audio []byte) error {
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(audio),
		ContentType: aws.String("audio/mpeg"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}

// CacheKey is the object key for text spoken in lang.
func CacheKey(lang, text string) string {
	sum := sha256.Sum256([]byte(lang + "\x00" + text))
	return "speech/" + lang + "/" + hex.EncodeToString(sum[:]) + ".mp3"
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}

// CachedSynth serves audio from the cache and fills it on a miss.
// Cache failures are logged and never fail synthesis.
type CachedSynth struct {
	next   Synthesizer
	cache  *Cache
	logger *slog.Logger
}

func NewCachedSynth(next Synthesizer, cache *Cache, logger *slog.Logger) *CachedSynth {
	return &CachedSynth{next: next, cache: cache, logger: logger}
}

func (c *CachedSynth) Synthesize(ctx context.Context, text, lang string) ([]byte, error) {
	key := CacheKey(lang, text)

	audio, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("speech cache read failed", "key", key, "error", err)
	}
	if ok {
		c.logger.Debug("speech cache hit", "key", key)
		return audio, nil
	}

	audio, err = c.next.Synthesize(ctx, text, lang)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Put(ctx, key, audio); err != nil {
		c.logger.Warn("speech cache write failed", "key", key, "error", err)
	}
	return audio, nil
}
