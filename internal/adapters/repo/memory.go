package repo

import (
	"context"
	"encoding/json"
	"sync"

	"tg-photo-moderator/internal/domain"
)

// Memory держит снимок состояния в памяти. Используется в dev-режиме и тестах.
type Memory struct {
	mu   sync.Mutex
	data []byte
}

var _ domain.StateRepo = (*Memory)(nil)

// NewMemory создаёт пустое хранилище.
func NewMemory() *Memory {
	return &Memory{}
}

// Load возвращает последний сохранённый снимок.
func (m *Memory) Load(ctx context.Context) (domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var snap domain.Snapshot
	if len(m.data) == 0 {
		return snap, nil
	}
	err := json.Unmarshal(m.data, &snap)
	return snap, err
}

// Save сохраняет глубокую копию снимка.
func (m *Memory) Save(ctx context.Context, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.data = data
	return nil
}
