package store

import (
	"context"
	"time"

	"github.com/skippi/standup/internal/models"
)

// DataStore defines the interface for persistent storage of rooms, room
// roles, and posts. Both PostgresStore and SQLiteStore implement this
// interface. Lookups return (nil, nil) when the record does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Room operations
	CreateRoom(ctx context.Context, channelID uint64, cooldown int64) (*models.Room, error)
	GetRoom(ctx context.Context, channelID uint64) (*models.Room, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	DeleteRoom(ctx context.Context, channelID uint64) (bool, error)
	SetCooldown(ctx context.Context, channelID uint64, cooldown int64) error
	// ReplaceRoles replaces the room's whole role set in one transaction
	// (delete all, then insert); it is never a partial patch.
	ReplaceRoles(ctx context.Context, channelID uint64, roleIDs []uint64) error

	// Post operations
	CreatePost(ctx context.Context, post *models.Post) (*models.Post, error)
	// DeletePost reports whether a row was actually removed; deleting a
	// nonexistent post is not an error.
	DeletePost(ctx context.Context, id int64) (bool, error)
	PostsByMessage(ctx context.Context, messageID uint64) ([]models.Post, error)
	PostsByRoom(ctx context.Context, channelID uint64) ([]models.Post, error)
	// ActivePostsByUser filters at read time: rows that have expired but
	// not yet been swept are excluded.
	ActivePostsByUser(ctx context.Context, userID uint64, now time.Time) ([]models.Post, error)
	// ExpiredPosts returns posts whose age meets or exceeds their room's
	// cooldown at `now`.
	ExpiredPosts(ctx context.Context, now time.Time) ([]models.Post, error)

	// Stats
	CountRooms(ctx context.Context) (int64, error)
	CountPosts(ctx context.Context) (int64, error)
}
