// Package settings stores app configuration in the app's private metadata,
// encrypted with the app secret key.
package settings

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/crypto"
)

// MetadataClient is the part of the Saleor client the manager needs.
type MetadataClient interface {
	FetchPrivateMetadata(ctx context.Context) (string, []domain.MetadataItem, error)
	UpdatePrivateMetadata(ctx context.Context, appID string, items []domain.MetadataItem) ([]domain.MetadataItem, error)
	DeletePrivateMetadata(ctx context.Context, appID string, keys []string) error
}

// Entry is one value to write.
type Entry struct {
	Key    string
	Value  string
	Domain string
}

// Manager reads and writes settings. Implementations cache metadata for
// their lifetime, so create one per request.
type Manager interface {
	Get(ctx context.Context, key, domain string) (string, error)
	Set(ctx context.Context, entries ...Entry) error
	Delete(ctx context.Context, key string) error
}

// EncryptedMetadataManager keeps values encrypted in private metadata under
// "<key>__<domain>" when a domain is given.
type EncryptedMetadataManager struct {
	client    MetadataClient
	encryptor crypto.Encryptor

	mu     sync.Mutex
	loaded bool
	appID  string
	values map[string]string
}

// NewEncryptedMetadataManager creates a manager for one Saleor instance.
func NewEncryptedMetadataManager(client MetadataClient, encryptor crypto.Encryptor) *EncryptedMetadataManager {
	return &EncryptedMetadataManager{
		client:    client,
		encryptor: encryptor,
		values:    map[string]string{},
	}
}

// DomainKey builds the metadata key for key scoped to domain.
func DomainKey(key, domain string) string {
	if domain == "" {
		return key
	}
	return key + "__" + domain
}

func (m *EncryptedMetadataManager) load(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	appID, items, err := m.client.FetchPrivateMetadata(ctx)
	if err != nil {
		return fmt.Errorf("settings: fetch metadata: %w", err)
	}
	m.appID = appID
	m.replace(items)
	m.loaded = true
	return nil
}

func (m *EncryptedMetadataManager) replace(items []domain.MetadataItem) {
	m.values = make(map[string]string, len(items))
	for _, item := range items {
		m.values[item.Key] = item.Value
	}
}

// Get returns the decrypted value, or "" when the key is not set.
func (m *EncryptedMetadataManager) Get(ctx context.Context, key, domain string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.load(ctx); err != nil {
		return "", err
	}
	raw, ok := m.values[DomainKey(key, domain)]
	if !ok || raw == "" {
		return "", nil
	}
	value, err := m.encryptor.Decrypt(raw)
	if err != nil {
		return "", fmt.Errorf("settings: decrypt %q: %w", key, err)
	}
	return value, nil
}

// Set encrypts and upserts entries in one mutation.
func (m *EncryptedMetadataManager) Set(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.load(ctx); err != nil {
		return err
	}

	items := make([]domain.MetadataItem, 0, len(entries))
	for _, e := range entries {
		encrypted, err := m.encryptor.Encrypt(e.Value)
		if err != nil {
			return fmt.Errorf("settings: encrypt %q: %w", e.Key, err)
		}
		items = append(items, domain.MetadataItem{Key: DomainKey(e.Key, e.Domain), Value: encrypted})
	}

	updated, err := m.client.UpdatePrivateMetadata(ctx, m.appID, items)
	if err != nil {
		return fmt.Errorf("settings: update metadata: %w", err)
	}
	if updated != nil {
		m.replace(updated)
	} else {
		for _, item := range items {
			m.values[item.Key] = item.Value
		}
	}
	return nil
}

// Delete removes key from metadata.
func (m *EncryptedMetadataManager) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.load(ctx); err != nil {
		return err
	}
	if err := m.client.DeletePrivateMetadata(ctx, m.appID, []string{key}); err != nil {
		return fmt.Errorf("settings: delete metadata: %w", err)
	}
	delete(m.values, key)
	return nil
}

var _ Manager = (*EncryptedMetadataManager)(nil)
