package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when inserting a record whose key already exists.
	ErrDuplicate = errors.New("duplicate key")
	// ErrDeleted is returned when mutating a tombstoned message.
	ErrDeleted = errors.New("message deleted")
)

// User represents a user in the system.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	IsGuest      bool
	SessionID    string // For guest user session tracking
	CreatedAt    time.Time
}

// Message represents a persisted chat message. ID is assigned by the
// caller and is never regenerated by the store.
type Message struct {
	ID        string
	Room      string
	Sender    string
	Body      string
	CreatedAt time.Time
	EditedAt  *time.Time
	DeletedAt *time.Time
}

// Deleted reports whether the message is tombstoned.
func (m *Message) Deleted() bool {
	return m.DeletedAt != nil
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// CreateGuestUser creates a temporary guest user with session ID.
	CreateGuestUser(ctx context.Context, sessionID string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// GetUserBySessionID retrieves a guest user by session ID.
	GetUserBySessionID(ctx context.Context, sessionID string) (*User, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// InsertMessage persists a new message under msg.ID.
	// Returns ErrDuplicate if the ID is taken.
	InsertMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message, tombstoned or not.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// UpdateMessageBody replaces the body of a live message.
	// Returns ErrNotFound or ErrDeleted.
	UpdateMessageBody(ctx context.Context, id, body string, editedAt time.Time) (*Message, error)

	// TombstoneMessage marks a live message deleted.
	// Returns ErrNotFound or ErrDeleted.
	TombstoneMessage(ctx context.Context, id string, deletedAt time.Time) (*Message, error)

	// ListMessages retrieves messages from a room in chronological order.
	// If beforeID is set, only messages committed before it are returned.
	ListMessages(ctx context.Context, room string, limit int, beforeID string) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
