package storage

import (
	"context"
	"strings"
	"sync"
)

type memoryStore struct {
	mu     sync.Mutex
	st     *state
	runs   []RunRecord
	closed bool
}

// NewMemory returns a store that lives as long as the process.
func NewMemory() Store {
	return &memoryStore{st: newState()}
}

func (m *memoryStore) PutAlert(_ context.Context, a Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.st.Alerts[a.ID] = a
	return nil
}

func (m *memoryStore) DeleteAlert(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.st.Alerts, id)
	return nil
}

func (m *memoryStore) DeleteAlertsWithPrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.st.deletePrefix(prefix), nil
}

func (m *memoryStore) ListAlerts(_ context.Context, prefix string) ([]Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.st.list(prefix), nil
}

func (m *memoryStore) GetPref(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.st.Prefs[strings.TrimSpace(key)]
	return v, ok, nil
}

func (m *memoryStore) PutPref(_ context.Context, key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.st.Prefs[key] = value
	return nil
}

func (m *memoryStore) AppendRun(_ context.Context, r RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.runs = append(m.runs, r)
	return nil
}

func (m *memoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
