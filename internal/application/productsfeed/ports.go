package productsfeed

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	domain "github.com/trieb-work/saleor-apps/internal/domain/productsfeed"
	saleorapi "github.com/trieb-work/saleor-apps/internal/infrastructure/saleor"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/storage"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/telemetry"
)

// ConfigKey is the metadata key of the serialized AppConfig
const ConfigKey = "products-feed-config"

// ObjectStorage holds the generated feeds.
type ObjectStorage interface {
	CheckBucket(ctx context.Context) error
	LastModified(ctx context.Context, key string) (time.Time, bool, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	GenerateDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}

// StorageFactory creates the storage of one tenant's bucket.
type StorageFactory func(s3 domain.S3Config, saleorAPIURL string) (ObjectStorage, error)

// VariantSource pages through the variants of a channel.
type VariantSource interface {
	FetchProductVariants(ctx context.Context, channel, after string, first, imageSize int) (*saleorapi.VariantsPage, error)
}

// VariantSourceFactory creates a source for an installation.
type VariantSourceFactory func(authData *apl.AuthData) VariantSource

// ConfigStore loads and saves the serialized config of one installation.
type ConfigStore interface {
	Load(ctx context.Context, authData *apl.AuthData) (string, error)
	Save(ctx context.Context, authData *apl.AuthData, raw string) error
}

// StorageSettings are the deployment wide S3 client settings.
type StorageSettings struct {
	// Endpoint overrides the AWS endpoint, empty for AWS.
	Endpoint          string
	UsePathStyle      bool
	PresignExpiration time.Duration
}

// NewStorageFactory returns a factory over the S3 client.
func NewStorageFactory(settings StorageSettings, recorder *telemetry.APICallRecorder, logger *zap.Logger) StorageFactory {
	return func(s3 domain.S3Config, saleorAPIURL string) (ObjectStorage, error) {
		return storage.NewS3ObjectStorage(storage.Config{
			Bucket:            s3.BucketName,
			AccessKey:         s3.AccessKeyID,
			SecretKey:         s3.SecretAccessKey,
			Region:            s3.Region,
			Endpoint:          settings.Endpoint,
			UsePathStyle:      settings.UsePathStyle,
			PresignExpiration: settings.PresignExpiration,
			Tenant:            saleorAPIURL,
			Recorder:          recorder,
		}, storage.WithLogger(logger))
	}
}

// NewVariantSourceFactory returns a factory over the Saleor GraphQL client.
func NewVariantSourceFactory(opts ...saleorapi.Option) VariantSourceFactory {
	return func(authData *apl.AuthData) VariantSource {
		return saleorapi.NewClient(authData.SaleorAPIURL, authData.Token, opts...)
	}
}
