package standup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skippi/standup/internal/metrics"
	"github.com/skippi/standup/internal/models"
	"github.com/skippi/standup/internal/platform"
	"github.com/skippi/standup/internal/store"
)

// Manager drives the post state machine: nonexistent -> active ->
// destroyed. A destroyed post never becomes active again; a new message
// always creates a fresh post.
type Manager struct {
	store  store.DataStore
	rec    *Reconciler
	client platform.Client
	logger zerolog.Logger
}

// NewManager creates a Manager.
func NewManager(st store.DataStore, rec *Reconciler, client platform.Client, logger zerolog.Logger) *Manager {
	return &Manager{store: st, rec: rec, client: client, logger: logger}
}

// Submit handles a message posted in a room's channel. Malformed messages
// are deleted and answered with a DM help text without creating a post.
// Well-formed messages create a post and then grant the room's roles; the
// post survives a failed grant.
func (m *Manager) Submit(ctx context.Context, room *models.Room, msg platform.Message) error {
	if !MessageIsFormatted(msg.Content) {
		metrics.PostsRejected.Inc()
		if err := m.client.DeleteMessage(ctx, msg.ChannelID, msg.ID); err != nil && !errors.Is(err, platform.ErrNotFound) {
			m.logger.Warn().Err(err).
				Uint64("channel_id", msg.ChannelID).
				Uint64("message_id", msg.ID).
				Msg("failed to delete malformed submission")
		}
		if err := m.client.SendDM(ctx, msg.AuthorID, DMHelp); err != nil {
			m.logger.Warn().Err(err).
				Uint64("user_id", msg.AuthorID).
				Msg("failed to DM format help")
		}
		return nil
	}

	post := &models.Post{
		ChannelID: msg.ChannelID,
		UserID:    msg.AuthorID,
		MessageID: msg.ID,
		Timestamp: time.Now().UTC().Truncate(time.Second),
	}
	created, err := m.store.CreatePost(ctx, post)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	metrics.PostsCreated.Inc()
	m.logger.Info().
		Uint64("channel_id", created.ChannelID).
		Uint64("user_id", created.UserID).
		Uint64("message_id", created.MessageID).
		Msg("post created")

	if err := m.rec.Grant(ctx, created); err != nil {
		// The post stands even when the initial grant fails; the failure
		// is counted, not rolled back.
		metrics.ReconcileFailures.WithLabelValues("grant").Inc()
		m.logger.Error().Err(err).
			Int64("post_id", created.ID).
			Msg("initial role grant failed")
	}
	return nil
}

// Invalidate revokes the post's roles and deletes its row, in that order.
// Safe to call for a post that a concurrent trigger already removed: the
// revoke is idempotent and deleting a missing row is a no-op.
func (m *Manager) Invalidate(ctx context.Context, post *models.Post, reason string) error {
	if err := m.rec.Revoke(ctx, post); err != nil {
		// The row delete proceeds regardless; a revoke is never retried.
		metrics.ReconcileFailures.WithLabelValues("revoke").Inc()
		m.logger.Error().Err(err).
			Int64("post_id", post.ID).
			Str("reason", reason).
			Msg("role revoke failed")
	}

	removed, err := m.store.DeletePost(ctx, post.ID)
	if err != nil {
		return fmt.Errorf("delete post %d: %w", post.ID, err)
	}
	if removed {
		metrics.PostsInvalidated.WithLabelValues(reason).Inc()
		m.logger.Info().
			Int64("post_id", post.ID).
			Uint64("user_id", post.UserID).
			Str("reason", reason).
			Msg("post invalidated")
	}
	return nil
}

// ReinstateIfActive re-applies the post's role grant if the post is still
// inside its room's cooldown. Used when a member rejoins the guild; it is a
// pure re-application, never a new post.
func (m *Manager) ReinstateIfActive(ctx context.Context, post *models.Post, now time.Time) error {
	room, err := m.store.GetRoom(ctx, post.ChannelID)
	if err != nil {
		return fmt.Errorf("load room %d: %w", post.ChannelID, err)
	}
	if room == nil || !post.Active(room.CooldownDuration(), now) {
		return nil
	}
	return m.rec.Grant(ctx, post)
}

// RemoveRoom deletes a room, cascading through its posts first: each is
// invalidated (roles revoked, row removed) before the room and its role set
// go away. Reports whether the room existed.
func (m *Manager) RemoveRoom(ctx context.Context, channelID uint64) (bool, error) {
	posts, err := m.store.PostsByRoom(ctx, channelID)
	if err != nil {
		return false, fmt.Errorf("load room %d posts: %w", channelID, err)
	}
	for i := range posts {
		if err := m.Invalidate(ctx, &posts[i], "room_removed"); err != nil {
			m.logger.Error().Err(err).
				Int64("post_id", posts[i].ID).
				Msg("failed to invalidate post during room removal")
		}
	}
	return m.store.DeleteRoom(ctx, channelID)
}
