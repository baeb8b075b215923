package storage

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryObjectStorage(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	s := NewMemoryObjectStorage(clock)
	ctx := context.Background()

	require.NoError(t, s.CheckBucket(ctx))

	_, found, err := s.LastModified(ctx, "a/google.xml")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, s.Upload(ctx, "a/google.xml", []byte("<rss/>"), "application/xml"))
	clock.Advance(time.Minute)

	modified, found, err := s.LastModified(ctx, "a/google.xml")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC), modified)

	data, contentType, ok := s.Object("a/google.xml")
	require.True(t, ok)
	assert.Equal(t, "<rss/>", string(data))
	assert.Equal(t, "application/xml", contentType)

	url, expiresAt, err := s.GenerateDownloadURL(ctx, "a/google.xml", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "https://storage.example.com/a/google.xml?expires=2026-05-01T13%3A01%3A00Z", url)
	assert.Equal(t, time.Date(2026, 5, 1, 13, 1, 0, 0, time.UTC), expiresAt)

	require.NoError(t, s.DeleteObject(ctx, "a/google.xml"))
	_, _, ok = s.Object("a/google.xml")
	assert.False(t, ok)

	assert.ErrorIs(t, s.Upload(ctx, "", nil, ""), ErrMissingKey)
}
