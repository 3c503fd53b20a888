package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/espe-chat/relay/src/types"
)

// BadgerStore persists users and private messages in an embedded
// BadgerDB. Records are JSON documents.
//
// Message keys are "pm:{username}:{timestamp_padded}:{uuid}":
//  1. The 19-digit zero-padded nanosecond timestamp makes a prefix scan
//     return messages in chronological order.
//  2. The message id breaks ties when two messages land on the same
//     nanosecond.
//
// Each message is written under both participants so that a single
// prefix scan answers FindMessagesInvolving for either side.
type BadgerStore struct {
	db *badger.DB
}

var _ Store = (*BadgerStore)(nil)

// NewBadger wraps an already opened BadgerDB.
func NewBadger(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadger opens a BadgerDB at path and wraps it. An empty path opens
// an in-memory database.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func userNameKey(username string) []byte { return []byte("user:name:" + username) }
func userIDKey(id string) []byte         { return []byte("user:id:" + id) }

// messagePrefix length-delimits the username segment so a username
// containing ':' cannot alias another user's prefix.
func messagePrefix(username string) []byte {
	return []byte(fmt.Sprintf("pm:%d:%s:", len(username), username))
}

func messageKey(username string, msg types.PrivateMessage) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s", messagePrefix(username), msg.CreatedAt.UnixNano(), msg.ID))
}

// FindUserByUsername retrieves a user by normalized username.
func (s *BadgerStore) FindUserByUsername(_ context.Context, username string) (*types.User, error) {
	return s.getUser(userNameKey(username))
}

// FindUserByID retrieves a user by id.
func (s *BadgerStore) FindUserByID(_ context.Context, id string) (*types.User, error) {
	return s.getUser(userIDKey(id))
}

func (s *BadgerStore) getUser(key []byte) (*types.User, error) {
	var user types.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &user)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser persists a new user, indexed by both username and id.
func (s *BadgerStore) CreateUser(_ context.Context, username string) (*types.User, error) {
	user := types.User{ID: newUserID(), Username: username}
	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		nameKey := userNameKey(username)
		if _, err := txn.Get(nameKey); err == nil {
			return ErrUserExists
		}
		if err := txn.Set(nameKey, data); err != nil {
			return err
		}
		return txn.Set(userIDKey(user.ID), data)
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveMessage persists a private message under both participants.
func (s *BadgerStore) SaveMessage(_ context.Context, msg types.PrivateMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(msg.FromUser, msg), data); err != nil {
			return err
		}
		if msg.ToUser == msg.FromUser {
			return nil
		}
		return txn.Set(messageKey(msg.ToUser, msg), data)
	})
}

// FindMessagesInvolving scans the user's message prefix. The padded
// timestamp in the key yields chronological order without sorting.
func (s *BadgerStore) FindMessagesInvolving(_ context.Context, username string) ([]types.PrivateMessage, error) {
	var raw [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(username)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				cp := make([]byte, len(val))
				copy(cp, val)
				raw = append(raw, cp)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var messages []types.PrivateMessage
	for _, data := range raw {
		var msg types.PrivateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error { return s.db.Close() }
