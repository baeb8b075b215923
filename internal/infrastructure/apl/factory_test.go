package apl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/trieb-work/saleor-apps/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.APLConfig
		want    any
		wantErr error
	}{
		{"empty", config.APLConfig{}, nil, ErrInvalidAPLConfig},
		{"blank", config.APLConfig{Type: " "}, nil, ErrInvalidAPLConfig},
		{"file", config.APLConfig{Type: "file", FilePath: "/tmp/auth.json"}, &FileAPL{}, nil},
		{"upstash", config.APLConfig{Type: "upstash", UpstashURL: "https://u", UpstashToken: "t"}, &UpstashAPL{}, nil},
		{"saleor cloud", config.APLConfig{Type: "saleor-cloud", RestEndpoint: "https://apl", RestToken: "t"}, &SaleorCloudAPL{}, nil},
		{"saleor cloud missing token", config.APLConfig{Type: "saleor-cloud", RestEndpoint: "https://apl"}, nil, ErrRestNotConfigured},
		{"saleor cloud missing endpoint", config.APLConfig{Type: "saleor-cloud", RestToken: "t"}, nil, ErrRestNotConfigured},
		{"redis", config.APLConfig{Type: "redis", RedisURL: "redis://localhost:6379/0"}, &RedisAPL{}, nil},
		{"redis missing url", config.APLConfig{Type: "redis"}, nil, ErrRedisNotConfigured},
		{"unknown", config.APLConfig{Type: "dynamo"}, nil, ErrInvalidAPLConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.cfg, "smtp", WithLogger(zaptest.NewLogger(t)))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}
}

func TestNew_ErrorMessages(t *testing.T) {
	_, err := New(config.APLConfig{Type: "saleor-cloud"}, "stripe")
	assert.EqualError(t, err, "Rest APL is not configured - missing env variables")

	_, err = New(config.APLConfig{Type: "redis"}, "stripe")
	assert.EqualError(t, err, "Redis APL is not configured - missing env variables")

	_, err = New(config.APLConfig{Type: "memory"}, "stripe")
	assert.EqualError(t, err, "Invalid APL config")
}

func TestNew_RedisHashCollectionKey(t *testing.T) {
	got, err := New(config.APLConfig{Type: "redis", RedisURL: "redis://localhost:6379"}, "klaviyo")
	require.NoError(t, err)
	r := got.(*RedisAPL)
	assert.Equal(t, "app-klaviyo", r.HashCollectionKey())
	_ = r.Close()
}

func TestNew_FileDefaultPath(t *testing.T) {
	got, err := New(config.APLConfig{Type: "file"}, "smtp")
	require.NoError(t, err)
	assert.Equal(t, DefaultFilePath, got.(*FileAPL).Path())
}
