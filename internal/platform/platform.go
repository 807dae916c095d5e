// Package platform describes the messaging platform collaborator: entity
// resolution, dialog listing, message history and the live message stream.
package platform

import (
	"context"
	"errors"
	"time"

	"github.com/edgard/chanwatch/internal/identifier"
	"github.com/edgard/chanwatch/internal/payload"
)

// ErrNotFound is returned when an entity or message is unknown to the
// platform.
var ErrNotFound = errors.New("platform: not found")

// Kind tags what an Entity refers to.
type Kind string

// Entity kinds. Channel, Supergroup and Group are chats that can be
// tracked; User and Private are subjects.
const (
	KindChannel    Kind = "channel"
	KindSupergroup Kind = "supergroup"
	KindGroup      Kind = "group"
	KindUser       Kind = "user"
	KindPrivate    Kind = "private"
)

// IsChat reports whether the entity can be tracked as a channel.
func (k Kind) IsChat() bool {
	return k == KindChannel || k == KindSupergroup || k == KindGroup
}

// Entity is a channel, group or user known to the platform.
type Entity struct {
	ID       int64
	Kind     Kind
	Username string

	// Chats.
	Title        string
	About        string
	MembersCount int

	// Users.
	FirstName string
	LastName  string
	Bio       string
	IsBot     bool
}

// Link returns the public link of an entity with a username.
func (e Entity) Link() string {
	if e.Username == "" {
		return ""
	}
	return "https://t.me/" + e.Username
}

// Event is one incoming message from the live stream.
type Event struct {
	ChannelID  int64
	ReceivedAt time.Time
	Message    payload.Document
}

// EventHandler consumes live events.
type EventHandler func(ctx context.Context, ev Event)

// Client is the subset of the platform API the core depends on.
type Client interface {
	// ResolveEntity looks up an entity by numeric id or handle.
	ResolveEntity(ctx context.Context, key identifier.Identifier) (Entity, error)

	// Dialogs lists the chats the account is a member of.
	Dialogs(ctx context.Context) ([]Entity, error)

	// IterMessages walks a chat's history newest first, starting at or
	// before offset. Iteration stops when fn returns false.
	IterMessages(ctx context.Context, chatID int64, offset time.Time, fn func(payload.Document) bool) error

	// GetMessages fetches specific messages. Unknown ids are omitted.
	GetMessages(ctx context.Context, chatID int64, ids []int64) ([]payload.Document, error)

	// Subscribe registers h for every incoming message.
	Subscribe(h EventHandler)
}
