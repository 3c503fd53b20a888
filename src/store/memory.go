package store

import (
	"context"
	"sync"

	"github.com/espe-chat/relay/src/types"
)

// MemoryStore is an in-memory implementation of Store. It is
// thread-safe and suitable for development and testing; for durable
// history use BadgerStore or RedisStore.
type MemoryStore struct {
	mu       sync.RWMutex
	byName   map[string]*types.User
	byID     map[string]*types.User
	messages []types.PrivateMessage
}

var _ Store = (*MemoryStore)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		byName: make(map[string]*types.User),
		byID:   make(map[string]*types.User),
	}
}

// FindUserByUsername retrieves a user by normalized username.
func (m *MemoryStore) FindUserByUsername(_ context.Context, username string) (*types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	u := *user
	return &u, nil
}

// CreateUser stores a new user with a generated id.
func (m *MemoryStore) CreateUser(_ context.Context, username string) (*types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byName[username]; exists {
		return nil, ErrUserExists
	}
	user := &types.User{ID: newUserID(), Username: username}
	m.byName[username] = user
	m.byID[user.ID] = user
	u := *user
	return &u, nil
}

// FindUserByID retrieves a user by id.
func (m *MemoryStore) FindUserByID(_ context.Context, id string) (*types.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	u := *user
	return &u, nil
}

// SaveMessage appends a private message.
func (m *MemoryStore) SaveMessage(_ context.Context, msg types.PrivateMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, msg)
	return nil
}

// FindMessagesInvolving returns messages sent or received by a user,
// in insertion order.
func (m *MemoryStore) FindMessagesInvolving(_ context.Context, username string) ([]types.PrivateMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []types.PrivateMessage
	for _, msg := range m.messages {
		if msg.FromUser == username || msg.ToUser == username {
			out = append(out, msg)
		}
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
