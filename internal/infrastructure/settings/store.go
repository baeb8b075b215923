package settings

import (
	"context"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/crypto"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/saleor"
)

// Factory builds a Manager scoped to one installation.
type Factory func(authData *apl.AuthData) Manager

// NewMetadataFactory returns a Factory backed by the installation's Saleor API.
func NewMetadataFactory(encryptor crypto.Encryptor, opts ...saleor.Option) Factory {
	return func(authData *apl.AuthData) Manager {
		client := saleor.NewClient(authData.SaleorAPIURL, authData.Token, opts...)
		return NewEncryptedMetadataManager(client, encryptor)
	}
}

// BlobStore keeps one serialized config per installation under key, scoped
// to the installation's Saleor API URL.
type BlobStore struct {
	factory Factory
	key     string
}

// NewBlobStore creates a store for key.
func NewBlobStore(factory Factory, key string) *BlobStore {
	return &BlobStore{factory: factory, key: key}
}

// Key returns the metadata key.
func (s *BlobStore) Key() string {
	return s.key
}

// Load returns the stored blob, or "" when nothing was saved yet.
func (s *BlobStore) Load(ctx context.Context, authData *apl.AuthData) (string, error) {
	return s.factory(authData).Get(ctx, s.key, authData.SaleorAPIURL)
}

// Save replaces the stored blob.
func (s *BlobStore) Save(ctx context.Context, authData *apl.AuthData, raw string) error {
	return s.factory(authData).Set(ctx, Entry{Key: s.key, Value: raw, Domain: authData.SaleorAPIURL})
}
