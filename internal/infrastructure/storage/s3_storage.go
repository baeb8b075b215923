// Package storage uploads generated files to S3 compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// ErrMissingKey is returned for an empty object key
var ErrMissingKey = errors.New("storage key is required")

// NewRecorder builds the span and counter helper of S3 clients.
func NewRecorder(meter metric.Meter) (*telemetry.APICallRecorder, error) {
	return telemetry.NewAPICallRecorder(telemetry.APICallConfig{
		Vendor:         "S3",
		PeerService:    "s3",
		CounterName:    "saleor.app.products_feed.s3.requests",
		Description:    "The number of requests to S3",
		EnvironmentKey: "aws.region",
		Meter:          meter,
	})
}

// Config configures the bucket of one tenant.
type Config struct {
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
	// Endpoint overrides the AWS endpoint, for MinIO and other S3 compatible stores.
	Endpoint          string
	UsePathStyle      bool
	PresignExpiration time.Duration
	Tenant            string
	Recorder          *telemetry.APICallRecorder
}

// S3ObjectStorage reads and writes objects of one bucket.
type S3ObjectStorage struct {
	client            *s3.Client
	presignClient     *s3.PresignClient
	bucket            string
	region            string
	tenant            string
	presignExpiration time.Duration
	recorder          *telemetry.APICallRecorder
	clock             clockwork.Clock
	logger            *zap.Logger
}

// S3ObjectStorageOption is a functional option for configuring S3ObjectStorage
type S3ObjectStorageOption func(*S3ObjectStorage)

// WithLogger sets a custom logger for S3ObjectStorage
func WithLogger(logger *zap.Logger) S3ObjectStorageOption {
	return func(s *S3ObjectStorage) {
		s.logger = logger
	}
}

// WithClock sets the clock used for presign expiry times
func WithClock(clock clockwork.Clock) S3ObjectStorageOption {
	return func(s *S3ObjectStorage) {
		s.clock = clock
	}
}

// NewS3ObjectStorage creates a client for cfg.Bucket.
func NewS3ObjectStorage(cfg Config, opts ...S3ObjectStorageOption) (*S3ObjectStorage, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" {
		return nil, errors.New("storage access key is required")
	}
	if cfg.SecretKey == "" {
		return nil, errors.New("storage secret key is required")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	var endpoint string
	if cfg.Endpoint != "" {
		endpoint = cfg.Endpoint
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			endpoint = "https://" + endpoint
		}
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("invalid storage endpoint: %w", err)
		}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	recorder := cfg.Recorder
	if recorder == nil {
		if recorder, err = NewRecorder(nil); err != nil {
			return nil, err
		}
	}

	storage := &S3ObjectStorage{
		client:            client,
		presignClient:     s3.NewPresignClient(client),
		bucket:            cfg.Bucket,
		region:            region,
		tenant:            cfg.Tenant,
		presignExpiration: cfg.PresignExpiration,
		recorder:          recorder,
		clock:             clockwork.NewRealClock(),
		logger:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(storage)
	}
	if storage.presignExpiration == 0 {
		storage.presignExpiration = 15 * time.Minute
	}
	return storage, nil
}

func (s *S3ObjectStorage) call(ctx context.Context, operation, method string, fn func(ctx context.Context) error) error {
	return s.recorder.Do(ctx, telemetry.APICall{
		Operation:   operation,
		Method:      method,
		Environment: s.region,
		Tenant:      s.tenant,
		Attributes:  []attribute.KeyValue{attribute.String("aws.s3.bucket", s.bucket)},
	}, fn)
}

// CheckBucket verifies that the bucket exists and the credentials can reach it.
func (s *S3ObjectStorage) CheckBucket(ctx context.Context) error {
	return s.call(ctx, "headBucket", "head_bucket", func(ctx context.Context) error {
		_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
		if err != nil {
			return fmt.Errorf("failed to access bucket %s: %w", s.bucket, err)
		}
		return nil
	})
}

// LastModified returns the modification time of key. found is false when the
// object does not exist.
func (s *S3ObjectStorage) LastModified(ctx context.Context, storageKey string) (modified time.Time, found bool, err error) {
	if storageKey == "" {
		return time.Time{}, false, ErrMissingKey
	}
	err = s.call(ctx, "headObject", "head_object", func(ctx context.Context) error {
		out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(storageKey),
		})
		if err != nil {
			if isNotFound(err) {
				return nil
			}
			return fmt.Errorf("failed to check object existence: %w", err)
		}
		found = true
		if out.LastModified != nil {
			modified = *out.LastModified
		}
		return nil
	})
	return modified, found, err
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	// Some S3 compatible services only set the error code.
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey")
}

// Upload stores data under key.
func (s *S3ObjectStorage) Upload(ctx context.Context, storageKey string, data []byte, contentType string) error {
	if storageKey == "" {
		return ErrMissingKey
	}
	return s.call(ctx, "putObject", "put_object", func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(storageKey),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			return fmt.Errorf("failed to upload object: %w", err)
		}
		s.logger.Debug("Uploaded object", zap.String("key", storageKey), zap.Int("size", len(data)))
		return nil
	})
}

// GenerateDownloadURL presigns a GET of key. A non-positive expiresIn uses
// the configured expiration.
func (s *S3ObjectStorage) GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error) {
	if storageKey == "" {
		return "", time.Time{}, ErrMissingKey
	}
	if expiresIn <= 0 {
		expiresIn = s.presignExpiration
	}
	presignReq, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(storageKey),
	}, s3.WithPresignExpires(expiresIn))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate download URL: %w", err)
	}
	return presignReq.URL, s.clock.Now().Add(expiresIn), nil
}

// DeleteObject removes key. Deleting a missing key succeeds.
func (s *S3ObjectStorage) DeleteObject(ctx context.Context, storageKey string) error {
	if storageKey == "" {
		return ErrMissingKey
	}
	return s.call(ctx, "deleteObject", "delete_object", func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(storageKey),
		})
		if err != nil {
			return fmt.Errorf("failed to delete object: %w", err)
		}
		return nil
	})
}

// GetBucket returns the bucket name
func (s *S3ObjectStorage) GetBucket() string {
	return s.bucket
}
