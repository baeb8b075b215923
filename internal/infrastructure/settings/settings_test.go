package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/trieb-work/saleor-apps/internal/domain/saleor"
	"github.com/trieb-work/saleor-apps/internal/infrastructure/crypto"
)

type fakeMetadataClient struct {
	items      map[string]string
	fetchCalls int
	fetchErr   error
	deleted    []string
}

func newFakeMetadataClient() *fakeMetadataClient {
	return &fakeMetadataClient{items: map[string]string{}}
}

func (f *fakeMetadataClient) FetchPrivateMetadata(context.Context) (string, []domain.MetadataItem, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return "", nil, f.fetchErr
	}
	return "QXBwOjE=", f.list(), nil
}

func (f *fakeMetadataClient) UpdatePrivateMetadata(_ context.Context, appID string, items []domain.MetadataItem) ([]domain.MetadataItem, error) {
	if appID != "QXBwOjE=" {
		return nil, errors.New("unknown app")
	}
	for _, item := range items {
		f.items[item.Key] = item.Value
	}
	return f.list(), nil
}

func (f *fakeMetadataClient) DeletePrivateMetadata(_ context.Context, _ string, keys []string) error {
	for _, k := range keys {
		delete(f.items, k)
		f.deleted = append(f.deleted, k)
	}
	return nil
}

func (f *fakeMetadataClient) list() []domain.MetadataItem {
	out := make([]domain.MetadataItem, 0, len(f.items))
	for k, v := range f.items {
		out = append(out, domain.MetadataItem{Key: k, Value: v})
	}
	return out
}

func newManager(t *testing.T, client *fakeMetadataClient) *EncryptedMetadataManager {
	t.Helper()
	enc, err := crypto.NewAESGCMEncryptor("CHANGE_ME")
	require.NoError(t, err)
	return NewEncryptedMetadataManager(client, enc)
}

func TestEncryptedMetadataManager_SetGet(t *testing.T) {
	ctx := context.Background()
	client := newFakeMetadataClient()
	m := newManager(t, client)

	value, err := m.Get(ctx, "app-config", "demo.saleor.cloud")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, m.Set(ctx, Entry{Key: "app-config", Value: `{"a":1}`, Domain: "demo.saleor.cloud"}))

	stored, ok := client.items["app-config__demo.saleor.cloud"]
	require.True(t, ok)
	assert.NotContains(t, stored, `"a"`)

	value, err = m.Get(ctx, "app-config", "demo.saleor.cloud")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, value)

	fresh := newManager(t, client)
	value, err = fresh.Get(ctx, "app-config", "demo.saleor.cloud")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, value)

	assert.Equal(t, 2, client.fetchCalls, "each manager loads metadata once")
}

func TestEncryptedMetadataManager_Delete(t *testing.T) {
	ctx := context.Background()
	client := newFakeMetadataClient()
	m := newManager(t, client)

	require.NoError(t, m.Set(ctx, Entry{Key: "token", Value: "secret"}))
	require.NoError(t, m.Delete(ctx, "token"))

	value, err := m.Get(ctx, "token", "")
	require.NoError(t, err)
	assert.Empty(t, value)
	assert.Equal(t, []string{"token"}, client.deleted)
}

func TestEncryptedMetadataManager_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("fetch failure", func(t *testing.T) {
		client := newFakeMetadataClient()
		client.fetchErr = errors.New("saleor down")
		_, err := newManager(t, client).Get(ctx, "k", "")
		assert.ErrorContains(t, err, "saleor down")
	})

	t.Run("value not encrypted with our key", func(t *testing.T) {
		client := newFakeMetadataClient()
		client.items["k"] = "plaintext"
		_, err := newManager(t, client).Get(ctx, "k", "")
		assert.ErrorContains(t, err, "decrypt")
	})
}

func TestDomainKey(t *testing.T) {
	assert.Equal(t, "config", DomainKey("config", ""))
	assert.Equal(t, "config__shop.example.com", DomainKey("config", "shop.example.com"))
}
