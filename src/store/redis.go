package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/espe-chat/relay/src/types"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists users and private messages in Redis. Users are
// JSON values under name and id keys; messages are appended to one list
// per participant, so LRANGE returns them in insertion order.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedis creates a store backed by the configured Redis server.
func NewRedis(cfg *RedisConfig) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisStore{client: client, prefix: cfg.Prefix}
}

// Ping verifies the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) nameKey(username string) string { return s.prefix + "user:name:" + username }
func (s *RedisStore) idKey(id string) string         { return s.prefix + "user:id:" + id }
func (s *RedisStore) messagesKey(username string) string {
	return s.prefix + "pm:" + username
}

// FindUserByUsername retrieves a user by normalized username.
func (s *RedisStore) FindUserByUsername(ctx context.Context, username string) (*types.User, error) {
	return s.getUser(ctx, s.nameKey(username))
}

// FindUserByID retrieves a user by id.
func (s *RedisStore) FindUserByID(ctx context.Context, id string) (*types.User, error) {
	return s.getUser(ctx, s.idKey(id))
}

func (s *RedisStore) getUser(ctx context.Context, key string) (*types.User, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var user types.User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser persists a new user. SETNX on the name key enforces
// username uniqueness.
func (s *RedisStore) CreateUser(ctx context.Context, username string) (*types.User, error) {
	user := types.User{ID: newUserID(), Username: username}
	data, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.nameKey(username), data, 0).Result()
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, ErrUserExists
	}
	if err := s.client.Set(ctx, s.idKey(user.ID), data, 0).Err(); err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveMessage appends a private message to both participants' lists.
func (s *RedisStore) SaveMessage(ctx context.Context, msg types.PrivateMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := s.client.RPush(ctx, s.messagesKey(msg.FromUser), data).Err(); err != nil {
		return err
	}
	if msg.ToUser == msg.FromUser {
		return nil
	}
	return s.client.RPush(ctx, s.messagesKey(msg.ToUser), data).Err()
}

// FindMessagesInvolving returns the user's message list in insertion order.
func (s *RedisStore) FindMessagesInvolving(ctx context.Context, username string) ([]types.PrivateMessage, error) {
	items, err := s.client.LRange(ctx, s.messagesKey(username), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	var messages []types.PrivateMessage
	for _, item := range items {
		var msg types.PrivateMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error { return s.client.Close() }
