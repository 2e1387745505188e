package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// ConversationType distinguishes two-party chats from group rooms.
type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

// Conversation is a persisted chat channel. Its ID is the room identifier
// the relay fans out on.
type Conversation struct {
	ID        int64
	Type      ConversationType
	Name      string  // group name, empty for direct chats
	DirectKey *string // "dm:{minUserId}:{maxUserId}" for direct chats
	CreatedBy int64
	CreatedAt time.Time
}

// Message is a persisted chat message.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Text           string
	Media          string
	Deleted        bool
	CreatedAt      time.Time
}

// ConversationSummary pairs a conversation with its most recent visible
// message, for listing a user's conversations.
type ConversationSummary struct {
	Conversation *Conversation
	LastMessage  *Message // nil when the conversation has no messages
}

// DirectKey builds the deduplication key for a two-party conversation.
func DirectKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)
	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// ConversationStore persists conversations and their participant lists.
type ConversationStore interface {
	CreateGroupConversation(ctx context.Context, name string, createdBy int64, participants []int64) (*Conversation, error)
	// GetOrCreateDirectConversation returns the existing direct conversation
	// between the two users, creating it on first contact.
	GetOrCreateDirectConversation(ctx context.Context, userA, userB int64) (*Conversation, error)
	GetConversation(ctx context.Context, id int64) (*Conversation, error)
	// ListConversations returns the user's conversations, most recently
	// active first, each with its latest visible message.
	ListConversations(ctx context.Context, userID int64) ([]*ConversationSummary, error)
	AddParticipant(ctx context.Context, conversationID, userID int64) error
	RemoveParticipant(ctx context.Context, conversationID, userID int64) error
	IsParticipant(ctx context.Context, conversationID, userID int64) (bool, error)
	ListParticipants(ctx context.Context, conversationID int64) ([]int64, error)
}

// MessageStore persists messages. SaveMessage assigns the durable ID the
// relay envelopes carry.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID int64, limit int, beforeID *int64) ([]*Message, error)
	// DeleteMessage soft-deletes a message owned by senderID.
	DeleteMessage(ctx context.Context, id, senderID int64) error
}

// Store bundles all persistence used by the server.
type Store interface {
	UserStore
	ConversationStore
	MessageStore
	Close() error
}
