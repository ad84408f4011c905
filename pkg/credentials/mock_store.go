package credentials

import "sync"

// MockStore is an in-memory Store with error injection for tests.
type MockStore struct {
	mu     sync.RWMutex
	tokens map[string]Token

	SetError    error
	GetError    error
	ListError   error
	DeleteError error
}

func NewMockStore() *MockStore {
	return &MockStore{tokens: make(map[string]Token)}
}

func (m *MockStore) Name() string { return "mock" }

func (m *MockStore) Set(t *Token) error {
	if m.SetError != nil {
		return m.SetError
	}
	if t == nil || t.Service == "" {
		return ErrInvalid
	}
	m.mu.Lock()
	m.tokens[t.Service] = *t
	m.mu.Unlock()
	return nil
}

func (m *MockStore) Get(service string) (*Token, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[service]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MockStore) List() ([]*Token, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	tokens := make([]*Token, 0, len(m.tokens))
	for _, t := range m.tokens {
		t := t
		tokens = append(tokens, &t)
	}
	return tokens, nil
}

func (m *MockStore) Delete(service string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[service]; !ok {
		return ErrNotFound
	}
	delete(m.tokens, service)
	return nil
}

// Count returns the number of stored tokens.
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}
