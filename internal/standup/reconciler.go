package standup

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/skippi/standup/internal/models"
	"github.com/skippi/standup/internal/platform"
	"github.com/skippi/standup/internal/store"
)

// ErrReconcile marks a platform failure (permissions, rate limit, network)
// while granting or revoking roles. Callers log and count it; they do not
// retry, and the paired storage mutation is not rolled back.
var ErrReconcile = errors.New("standup: reconciliation failed")

// Reconciler applies and reverses a post's role grants against the
// platform. It mutates no storage.
type Reconciler struct {
	client platform.Client
	store  store.DataStore
	logger zerolog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(client platform.Client, st store.DataStore, logger zerolog.Logger) *Reconciler {
	return &Reconciler{client: client, store: st, logger: logger}
}

// Grant gives the post's author the roles configured on the post's room.
// Idempotent: roles already held are untouched.
func (r *Reconciler) Grant(ctx context.Context, post *models.Post) error {
	return r.apply(ctx, post, true)
}

// Revoke takes the room's roles back from the post's author. Idempotent:
// roles already absent are untouched.
func (r *Reconciler) Revoke(ctx context.Context, post *models.Post) error {
	return r.apply(ctx, post, false)
}

func (r *Reconciler) apply(ctx context.Context, post *models.Post, grant bool) error {
	room, err := r.store.GetRoom(ctx, post.ChannelID)
	if err != nil {
		return fmt.Errorf("load room %d: %w", post.ChannelID, err)
	}
	if room == nil || len(room.RoleIDs) == 0 {
		return nil
	}

	guildID, err := r.client.ChannelGuild(ctx, post.ChannelID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			// Channel gone; nobody left to change.
			return nil
		}
		return fmt.Errorf("%w: resolve guild for channel %d: %w", ErrReconcile, post.ChannelID, err)
	}

	member, err := r.client.Member(ctx, guildID, post.UserID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			// Member left the guild, or a lookup race. A vanished member
			// needs no role change; a later rejoin replays the grant.
			r.logger.Debug().
				Uint64("guild_id", guildID).
				Uint64("user_id", post.UserID).
				Msg("member not found, skipping reconciliation")
			return nil
		}
		return fmt.Errorf("%w: lookup member %d: %w", ErrReconcile, post.UserID, err)
	}

	roleIDs, err := r.existingRoles(ctx, guildID, room.RoleIDs)
	if err != nil {
		return err
	}
	if len(roleIDs) == 0 {
		return nil
	}

	if grant {
		if err := r.client.AddRoles(ctx, guildID, member.UserID, roleIDs); err != nil {
			return fmt.Errorf("%w: grant roles to user %d: %w", ErrReconcile, post.UserID, err)
		}
		return nil
	}
	if err := r.client.RemoveRoles(ctx, guildID, member.UserID, roleIDs); err != nil {
		return fmt.Errorf("%w: revoke roles from user %d: %w", ErrReconcile, post.UserID, err)
	}
	return nil
}

// existingRoles intersects the room's configured role set with the roles
// that currently exist in the guild. Stale or deleted roles are silently
// skipped.
func (r *Reconciler) existingRoles(ctx context.Context, guildID uint64, configured []uint64) ([]uint64, error) {
	guildRoles, err := r.client.GuildRoles(ctx, guildID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: list guild %d roles: %w", ErrReconcile, guildID, err)
	}

	exists := make(map[uint64]bool, len(guildRoles))
	for _, role := range guildRoles {
		exists[role.ID] = true
	}

	var roleIDs []uint64
	for _, id := range configured {
		if exists[id] {
			roleIDs = append(roleIDs, id)
		}
	}
	return roleIDs, nil
}
