package standup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skippi/standup/internal/dedup"
	"github.com/skippi/standup/internal/metrics"
	"github.com/skippi/standup/internal/platform"
	"github.com/skippi/standup/internal/store"
)

// Dispatcher maps inbound gateway events to lifecycle manager calls. It
// implements platform.Handler; the gateway invokes it sequentially, so the
// handlers never interleave with one another.
type Dispatcher struct {
	store     store.DataStore
	manager   *Manager
	client    platform.Client
	commander *Commander
	guard     *dedup.Guard
	logger    zerolog.Logger

	// Set by Ready before any other handler fires.
	botID uint64
}

// NewDispatcher creates a Dispatcher. guard may be nil to disable event
// deduplication.
func NewDispatcher(st store.DataStore, mgr *Manager, client platform.Client, commander *Commander, guard *dedup.Guard, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     st,
		manager:   mgr,
		client:    client,
		commander: commander,
		guard:     guard,
		logger:    logger,
	}
}

// Ready records the bot's own user ID, used to ignore self-authored
// messages and to recognize the command mention prefix.
func (d *Dispatcher) Ready(botUserID uint64) {
	d.botID = botUserID
	d.logger.Info().Uint64("bot_user_id", botUserID).Msg("gateway session ready")
}

func (d *Dispatcher) eventLogger(event string) zerolog.Logger {
	return d.logger.With().
		Str("event", event).
		Str("event_id", uuid.NewString()).
		Logger()
}

// MessageCreate routes a new message: admin commands first, then the
// standup submission path if the channel is a configured room. Messages in
// unconfigured channels are ignored.
func (d *Dispatcher) MessageCreate(ctx context.Context, msg platform.Message) {
	if msg.AuthorBot || msg.AuthorID == d.botID {
		return
	}
	metrics.GatewayEvents.WithLabelValues("message_create").Inc()
	logger := d.eventLogger("message_create")

	if d.commander != nil && d.commander.TryHandle(ctx, d.botID, msg) {
		return
	}

	room, err := d.store.GetRoom(ctx, msg.ChannelID)
	if err != nil {
		logger.Error().Err(err).Uint64("channel_id", msg.ChannelID).Msg("room lookup failed")
		return
	}
	if room == nil {
		return
	}

	if err := d.manager.Submit(ctx, room, msg); err != nil {
		logger.Error().Err(err).
			Uint64("channel_id", msg.ChannelID).
			Uint64("user_id", msg.AuthorID).
			Msg("submission failed")
	}
}

// MessageDelete invalidates every post referencing the deleted message —
// normally exactly one.
func (d *Dispatcher) MessageDelete(ctx context.Context, channelID, messageID uint64) {
	metrics.GatewayEvents.WithLabelValues("message_delete").Inc()
	logger := d.eventLogger("message_delete")

	if d.guard.Seen(ctx, fmt.Sprintf("message_delete:%d", messageID)) {
		metrics.DedupHits.Inc()
		return
	}

	posts, err := d.store.PostsByMessage(ctx, messageID)
	if err != nil {
		logger.Error().Err(err).Uint64("message_id", messageID).Msg("post lookup failed")
		return
	}
	for i := range posts {
		if err := d.manager.Invalidate(ctx, &posts[i], "message_deleted"); err != nil {
			logger.Error().Err(err).Int64("post_id", posts[i].ID).Msg("invalidation failed")
		}
	}
}

// MemberUpdate invalidates the member's active posts whose required roles
// are no longer all held, then best-effort deletes the originating standup
// message. Expired-but-unswept posts are treated as already gone.
func (d *Dispatcher) MemberUpdate(ctx context.Context, guildID uint64, member platform.Member) {
	metrics.GatewayEvents.WithLabelValues("member_update").Inc()
	logger := d.eventLogger("member_update")

	posts, err := d.store.ActivePostsByUser(ctx, member.UserID, time.Now().UTC())
	if err != nil {
		logger.Error().Err(err).Uint64("user_id", member.UserID).Msg("active post lookup failed")
		return
	}

	for i := range posts {
		post := &posts[i]
		if !d.postInGuild(ctx, post.ChannelID, guildID) {
			continue
		}

		room, err := d.store.GetRoom(ctx, post.ChannelID)
		if err != nil {
			logger.Error().Err(err).Uint64("channel_id", post.ChannelID).Msg("room lookup failed")
			continue
		}
		if room == nil || len(room.RoleIDs) == 0 {
			continue
		}

		revoked := false
		for _, required := range room.RoleIDs {
			if !member.HasRole(required) {
				revoked = true
				break
			}
		}
		if !revoked {
			continue
		}

		if err := d.manager.Invalidate(ctx, post, "role_revoked"); err != nil {
			logger.Error().Err(err).Int64("post_id", post.ID).Msg("invalidation failed")
			continue
		}
		// Best effort: the standup message may already be gone.
		if err := d.client.DeleteMessage(ctx, post.ChannelID, post.MessageID); err != nil && !errors.Is(err, platform.ErrNotFound) {
			logger.Warn().Err(err).
				Uint64("message_id", post.MessageID).
				Msg("failed to delete standup message")
		}
	}
}

// MemberJoin re-grants roles for the member's still-active posts.
func (d *Dispatcher) MemberJoin(ctx context.Context, guildID uint64, member platform.Member) {
	metrics.GatewayEvents.WithLabelValues("member_join").Inc()
	logger := d.eventLogger("member_join")

	now := time.Now().UTC()
	posts, err := d.store.ActivePostsByUser(ctx, member.UserID, now)
	if err != nil {
		logger.Error().Err(err).Uint64("user_id", member.UserID).Msg("active post lookup failed")
		return
	}

	for i := range posts {
		post := &posts[i]
		if !d.postInGuild(ctx, post.ChannelID, guildID) {
			continue
		}
		if err := d.manager.ReinstateIfActive(ctx, post, now); err != nil {
			logger.Error().Err(err).Int64("post_id", post.ID).Msg("reinstate failed")
		}
	}
}

// postInGuild reports whether the post's channel belongs to the guild the
// event came from. A member's posts can span guilds; only the event's guild
// is affected.
func (d *Dispatcher) postInGuild(ctx context.Context, channelID, guildID uint64) bool {
	owner, err := d.client.ChannelGuild(ctx, channelID)
	if err != nil {
		return false
	}
	return owner == guildID
}
