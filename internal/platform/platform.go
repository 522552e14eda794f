// Package platform is the narrow interface to the chat platform: message
// send/delete, role grant/revoke, member and role lookup, and the gateway
// event stream. Everything here is a fallible remote call.
package platform

import (
	"context"
	"errors"
)

// ErrNotFound is returned when the platform reports that a channel, message,
// member, or role does not exist. Callers treat it as already-satisfied: a
// vanished entity needs no change.
var ErrNotFound = errors.New("platform: not found")

// PermissionAdministrator is the administrator bit in a role's permissions
// bitfield.
const PermissionAdministrator uint64 = 1 << 3

// Message is an inbound chat message.
type Message struct {
	ID        uint64
	ChannelID uint64
	GuildID   uint64
	AuthorID  uint64
	AuthorBot bool
	Content   string
}

// Member is a guild member with their currently held roles.
type Member struct {
	UserID  uint64
	RoleIDs []uint64
}

// HasRole reports whether the member currently holds the role.
func (m *Member) HasRole(roleID uint64) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Role is a guild role.
type Role struct {
	ID          uint64
	Name        string
	Permissions uint64
}

// Client is the platform REST surface consumed by the lifecycle engine.
// Lookups return ErrNotFound for absent entities; grant/revoke calls are
// idempotent with respect to roles already present or absent.
type Client interface {
	SendMessage(ctx context.Context, channelID uint64, content string) error
	SendDM(ctx context.Context, userID uint64, content string) error
	DeleteMessage(ctx context.Context, channelID, messageID uint64) error
	React(ctx context.Context, channelID, messageID uint64, emoji string) error

	ChannelGuild(ctx context.Context, channelID uint64) (uint64, error)
	Member(ctx context.Context, guildID, userID uint64) (*Member, error)
	GuildRoles(ctx context.Context, guildID uint64) ([]Role, error)

	AddRoles(ctx context.Context, guildID, userID uint64, roleIDs []uint64) error
	RemoveRoles(ctx context.Context, guildID, userID uint64, roleIDs []uint64) error
}

// Handler receives decoded gateway events. Calls are made sequentially from
// the gateway read loop: a handler runs to completion before the next event
// is dispatched.
type Handler interface {
	Ready(botUserID uint64)
	MessageCreate(ctx context.Context, msg Message)
	MessageDelete(ctx context.Context, channelID, messageID uint64)
	MemberUpdate(ctx context.Context, guildID uint64, member Member)
	MemberJoin(ctx context.Context, guildID uint64, member Member)
}
