// Package apltest provides an in-memory APL for tests.
package apltest

import (
	"context"
	"sort"
	"sync"

	"github.com/trieb-work/saleor-apps/internal/domain/apl"
)

// Memory is an apl.APL backed by a map. Setting Err makes every call fail.
type Memory struct {
	mu      sync.Mutex
	records map[string]apl.AuthData

	Err      error
	ReadyErr error
}

// NewMemory returns a store seeded with records.
func NewMemory(records ...apl.AuthData) *Memory {
	m := &Memory{records: make(map[string]apl.AuthData, len(records))}
	for _, r := range records {
		m.records[r.SaleorAPIURL] = r
	}
	return m
}

func (m *Memory) Get(_ context.Context, saleorAPIURL string) (*apl.AuthData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	r, ok := m.records[saleorAPIURL]
	if !ok {
		return nil, apl.ErrAuthDataNotFound
	}
	return &r, nil
}

func (m *Memory) Set(_ context.Context, data apl.AuthData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.records[data.SaleorAPIURL] = data
	return nil
}

func (m *Memory) Delete(_ context.Context, saleorAPIURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	delete(m.records, saleorAPIURL)
	return nil
}

func (m *Memory) GetAll(context.Context) ([]apl.AuthData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]apl.AuthData, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SaleorAPIURL < out[j].SaleorAPIURL })
	return out, nil
}

func (m *Memory) IsReady(context.Context) error {
	return m.ReadyErr
}

func (m *Memory) IsConfigured(context.Context) error {
	return nil
}
