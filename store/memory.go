package store

import (
	"context"
	"sync"
)

// Memory is an in-memory RecordStore keyed by record key per table. Lookups
// by key are O(1); Find scans.
type Memory struct {
	mu     sync.RWMutex
	tables map[string]map[string]Row
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]map[string]Row)}
}

func (m *Memory) Get(_ context.Context, table, key string) (Row, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.tables[table][key]
	if !ok {
		return nil, false, nil
	}
	return row.Clone(), true, nil
}

func (m *Memory) ReadAll(_ context.Context, table string) (map[string]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.tables[table]
	out := make(map[string]Row, len(rows))
	for k, row := range rows {
		out[k] = row.Clone()
	}
	return out, nil
}

func (m *Memory) Upsert(_ context.Context, table, key string, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		t = make(map[string]Row)
		m.tables[table] = t
	}
	t[key] = row.Clone()
	return nil
}

func (m *Memory) Delete(_ context.Context, table, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.tables[table], key)
	return nil
}

func (m *Memory) Find(_ context.Context, table string, match func(key string, row Row) bool) (string, Row, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for k, row := range m.tables[table] {
		if match(k, row) {
			return k, row.Clone(), true, nil
		}
	}
	return "", nil, false, nil
}

// Len reports the number of rows in a table. Test helper.
func (m *Memory) Len(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables[table])
}
