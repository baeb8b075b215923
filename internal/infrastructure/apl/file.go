package apl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
)

// FileAPL keeps the auth data of exactly one Saleor instance in a JSON file.
// It is meant for local development; registering a second instance replaces
// the first one.
type FileAPL struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileAPL creates a file backed APL at path.
func NewFileAPL(path string, logger *zap.Logger) *FileAPL {
	if path == "" {
		path = DefaultFilePath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileAPL{path: path, logger: logger}
}

// Path returns the file location.
func (f *FileAPL) Path() string {
	return f.path
}

func (f *FileAPL) load() (*apl.AuthData, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("apl: read %s: %w", f.path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var data apl.AuthData
	if err := json.Unmarshal(raw, &data); err != nil {
		f.logger.Warn("Auth data file is not valid JSON, ignoring it", zap.String("path", f.path), zap.Error(err))
		return nil, nil
	}
	if data.SaleorAPIURL == "" {
		return nil, nil
	}
	return &data, nil
}

func (f *FileAPL) write(data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("apl: encode auth data: %w", err)
	}
	if err := os.WriteFile(f.path, raw, 0o600); err != nil {
		return fmt.Errorf("apl: write %s: %w", f.path, err)
	}
	return nil
}

func (f *FileAPL) Get(_ context.Context, saleorAPIURL string) (*apl.AuthData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return nil, err
	}
	if data == nil || data.SaleorAPIURL != saleorAPIURL {
		return nil, apl.ErrAuthDataNotFound
	}
	return data, nil
}

func (f *FileAPL) Set(_ context.Context, data apl.AuthData) error {
	if err := data.Validate(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.write(data)
}

func (f *FileAPL) Delete(_ context.Context, saleorAPIURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}
	if data == nil || data.SaleorAPIURL != saleorAPIURL {
		return nil
	}
	return f.write(struct{}{})
}

func (f *FileAPL) GetAll(_ context.Context) ([]apl.AuthData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return nil, err
	}
	if data == nil {
		return []apl.AuthData{}, nil
	}
	return []apl.AuthData{*data}, nil
}

func (f *FileAPL) IsReady(context.Context) error {
	return nil
}

func (f *FileAPL) IsConfigured(context.Context) error {
	return nil
}

var _ apl.APL = (*FileAPL)(nil)
