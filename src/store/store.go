package store

import (
	"context"
	"errors"

	"github.com/espe-chat/relay/src/types"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a user lookup misses.
	ErrNotFound = errors.New("record not found")
	// ErrUserExists is returned when creating a username that is taken.
	ErrUserExists = errors.New("user already exists")
)

// Store persists users and private messages. Usernames are expected to
// be normalized (uppercase) by the caller; uniqueness is enforced here,
// not by the registry. FindMessagesInvolving returns every message where
// the username is either side, in storage order.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*types.User, error)
	CreateUser(ctx context.Context, username string) (*types.User, error)
	FindUserByID(ctx context.Context, id string) (*types.User, error)
	SaveMessage(ctx context.Context, msg types.PrivateMessage) error
	FindMessagesInvolving(ctx context.Context, username string) ([]types.PrivateMessage, error)
	Close() error
}

// newUserID generates a store-assigned user id.
func newUserID() string { return uuid.NewString() }
