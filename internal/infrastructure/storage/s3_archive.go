// Package storage archives the raw payloads of accepted webhook events to
// S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/config"
)

// s3API is the subset of the S3 client the archive uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// S3PayloadArchive writes each accepted raw payload once, under a key
// derived from the event, to an S3-compatible bucket such as AWS S3 or MinIO.
type S3PayloadArchive struct {
	client s3API
	bucket string
	prefix string
	logger *zap.Logger
}

// S3ArchiveOption customizes an S3PayloadArchive.
type S3ArchiveOption func(*S3PayloadArchive)

// WithLogger routes archive logs to log. Nil keeps the no-op logger.
func WithLogger(log *zap.Logger) S3ArchiveOption {
	return func(a *S3PayloadArchive) {
		if log != nil {
			a.logger = log
		}
	}
}

// withClient swaps the S3 client out in tests.
func withClient(c s3API) S3ArchiveOption {
	return func(a *S3PayloadArchive) { a.client = c }
}

const (
	defaultEndpoint = "localhost:9000"
	defaultRegion   = "us-east-1"
)

// NewS3PayloadArchive validates cfg and builds the archive. The S3 client
// uses static credentials; the default AWS chain is only consulted for
// settings the configuration leaves out.
func NewS3PayloadArchive(cfg *config.StorageConfig, opts ...S3ArchiveOption) (*S3PayloadArchive, error) {
	if err := validateStorage(cfg); err != nil {
		return nil, err
	}
	endpoint, err := endpointURL(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	a := &S3PayloadArchive{
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.client == nil {
		if a.client, err = newS3Client(cfg, endpoint); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func validateStorage(cfg *config.StorageConfig) error {
	if cfg == nil {
		return errors.New("storage configuration is required")
	}
	for _, f := range []struct{ name, value string }{
		{"bucket", cfg.Bucket},
		{"access key", cfg.AccessKey},
		{"secret key", cfg.SecretKey},
	} {
		if f.value == "" {
			return fmt.Errorf("storage %s is required", f.name)
		}
	}
	return nil
}

// endpointURL adds a scheme to a bare host:port, https when useSSL is set.
func endpointURL(raw string, useSSL bool) (string, error) {
	if raw == "" {
		raw = defaultEndpoint
	}
	if !strings.Contains(raw, "://") {
		scheme := "http://"
		if useSSL {
			scheme = "https://"
		}
		raw = scheme + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid storage endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid storage endpoint scheme %q", u.Scheme)
	}
	return u.String(), nil
}

func newS3Client(cfg *config.StorageConfig, endpoint string) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// EnsureBucket creates the bucket when a HEAD reports it missing.
func (a *S3PayloadArchive) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	switch {
	case err == nil:
		return nil
	case !isMissing(err):
		return fmt.Errorf("head bucket %s: %w", a.bucket, err)
	}

	a.logger.Info("Creating payload archive bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	var owned *types.BucketAlreadyOwnedByYou
	if err != nil && !errors.As(err, &owned) {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	return nil
}

// Archive stores the event's raw payload. An object already present under
// the event's key is left untouched so the first write is the audit copy.
func (a *S3PayloadArchive) Archive(ctx context.Context, e *webhook.WebhookEvent) error {
	key := ArchiveKey(a.prefix, e)

	exists, err := a.exists(ctx, key)
	if err != nil {
		return err
	}
	if exists {
		a.logger.Debug("Payload already archived", zap.String("key", key))
		return nil
	}

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(e.RawPayload),
		ContentType: aws.String(ContentType(e.RawPayload)),
		Metadata: map[string]string{
			"sender":      string(e.Sender),
			"event-type":  string(e.EventType),
			"external-id": e.ExternalID,
			"received-at": e.ReceivedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("put archived payload %s: %w", key, err)
	}
	return nil
}

func (a *S3PayloadArchive) exists(ctx context.Context, key string) (bool, error) {
	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		return true, nil
	case isMissing(err):
		return false, nil
	}
	return false, fmt.Errorf("head archived payload %s: %w", key, err)
}

// isMissing reports a missing bucket or key. Some S3-compatible servers
// answer HEAD with a bare 404 the SDK cannot type, hence the string match.
func isMissing(err error) bool {
	var (
		notFound     *types.NotFound
		noSuchKey    *types.NoSuchKey
		noSuchBucket *types.NoSuchBucket
	)
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "NotFound") || strings.Contains(msg, "NoSuchKey")
}

// Bucket names the target bucket.
func (a *S3PayloadArchive) Bucket() string {
	return a.bucket
}

// ArchiveKey is prefix/sender/yyyy/mm/dd/<event id>.<json|xml>, dated by
// receipt in UTC.
func ArchiveKey(prefix string, e *webhook.WebhookEvent) string {
	day := e.ReceivedAt.UTC().Format("2006/01/02")
	name := e.ID.String() + "." + extension(e.RawPayload)
	return path.Join(prefix, string(e.Sender), day, name)
}

// ContentType guesses the media type of a raw payload from its first
// non-blank byte.
func ContentType(raw []byte) string {
	if extension(raw) == "xml" {
		return "application/xml"
	}
	return "application/json"
}

func extension(raw []byte) string {
	trimmed := bytes.TrimLeft(raw, " \t\r\n\ufeff")
	if len(trimmed) > 0 && trimmed[0] == '<' {
		return "xml"
	}
	return "json"
}
