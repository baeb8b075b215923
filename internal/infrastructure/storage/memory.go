package storage

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type memoryObject struct {
	data        []byte
	contentType string
	modified    time.Time
}

// MemoryObjectStorage keeps objects in memory. Download URLs point at BaseURL.
type MemoryObjectStorage struct {
	BaseURL string

	mu      sync.RWMutex
	objects map[string]memoryObject
	clock   clockwork.Clock
}

// NewMemoryObjectStorage creates an empty store using clock for modification times.
func NewMemoryObjectStorage(clock clockwork.Clock) *MemoryObjectStorage {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryObjectStorage{
		BaseURL: "https://storage.example.com",
		objects: map[string]memoryObject{},
		clock:   clock,
	}
}

// CheckBucket always succeeds.
func (s *MemoryObjectStorage) CheckBucket(context.Context) error {
	return nil
}

// LastModified returns the time of the last Upload of key.
func (s *MemoryObjectStorage) LastModified(_ context.Context, storageKey string) (time.Time, bool, error) {
	if storageKey == "" {
		return time.Time{}, false, ErrMissingKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[storageKey]
	return obj.modified, ok, nil
}

// Upload stores a copy of data.
func (s *MemoryObjectStorage) Upload(_ context.Context, storageKey string, data []byte, contentType string) error {
	if storageKey == "" {
		return ErrMissingKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[storageKey] = memoryObject{
		data:        append([]byte(nil), data...),
		contentType: contentType,
		modified:    s.clock.Now(),
	}
	return nil
}

// GenerateDownloadURL returns BaseURL/key with the expiry as query parameter.
func (s *MemoryObjectStorage) GenerateDownloadURL(_ context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error) {
	if storageKey == "" {
		return "", time.Time{}, ErrMissingKey
	}
	expiresAt := s.clock.Now().Add(expiresIn)
	return s.BaseURL + "/" + storageKey + "?expires=" + url.QueryEscape(expiresAt.Format(time.RFC3339)), expiresAt, nil
}

// DeleteObject removes key.
func (s *MemoryObjectStorage) DeleteObject(_ context.Context, storageKey string) error {
	if storageKey == "" {
		return ErrMissingKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, storageKey)
	return nil
}

// Object returns the stored data and content type of key.
func (s *MemoryObjectStorage) Object(storageKey string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[storageKey]
	return obj.data, obj.contentType, ok
}
