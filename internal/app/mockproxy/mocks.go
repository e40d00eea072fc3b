package mockproxy

import (
	"sync"

	"github.com/pkg/errors"
)

// Mocks holds the registered mocks of one session, in registration order.
type Mocks struct {
	mu      sync.RWMutex
	mocks   []*Mock
	byKey   map[string]*Mock
	byAlias map[string]*Mock
}

func newMocks() *Mocks {
	return &Mocks{
		byKey:   map[string]*Mock{},
		byAlias: map[string]*Mock{},
	}
}

// Store registers mock. A mock with the same key replaces the previous one, alias
// included. An alias owned by a mock with another key is rejected.
func (m *Mocks) Store(mock *Mock) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mock.Alias != "" {
		if owner, ok := m.byAlias[mock.Alias]; ok && owner.Key() != mock.Key() {
			return errors.Wrapf(ErrAliasInUse, "'%s' is bound to '%s'", mock.Alias, owner.Key())
		}
	}

	if previous, ok := m.byKey[mock.Key()]; ok {
		if previous.Alias != "" {
			delete(m.byAlias, previous.Alias)
		}
		for i, existing := range m.mocks {
			if existing == previous {
				m.mocks[i] = mock
				break
			}
		}
	} else {
		m.mocks = append(m.mocks, mock)
	}

	m.byKey[mock.Key()] = mock
	if mock.Alias != "" {
		m.byAlias[mock.Alias] = mock
	}
	return nil
}

func (m *Mocks) Load(alias string) (*Mock, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mock, ok := m.byAlias[alias]
	return mock, ok
}

func (m *Mocks) Find(method, path string) (*Mock, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mock := range m.mocks {
		if mock.Match(method, path) {
			return mock, true
		}
	}
	return nil, false
}

func (m *Mocks) All() []*Mock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Mock(nil), m.mocks...)
}

func (m *Mocks) AllHaveRequests() bool {
	for _, mock := range m.All() {
		if !mock.HasRequests(1) {
			return false
		}
	}
	return true
}
