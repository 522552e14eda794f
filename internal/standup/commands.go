package standup

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/skippi/standup/internal/metrics"
	"github.com/skippi/standup/internal/models"
	"github.com/skippi/standup/internal/platform"
	"github.com/skippi/standup/internal/store"
)

const commandUsage = "usage: rooms <add|remove|list|config>"

// Commander handles the mention-prefixed admin command surface. Commands
// mutate room and room-role records only; they never touch post rows
// directly (room removal cascades through the lifecycle manager).
type Commander struct {
	store   store.DataStore
	manager *Manager
	client  platform.Client
	logger  zerolog.Logger
}

// NewCommander creates a Commander.
func NewCommander(st store.DataStore, mgr *Manager, client platform.Client, logger zerolog.Logger) *Commander {
	return &Commander{store: st, manager: mgr, client: client, logger: logger}
}

// TryHandle consumes the message if it is addressed to the bot. The command
// outcome is signaled with a reaction, with failures additionally reported
// as fenced error text, so command messages never fall through to the
// standup submission path.
func (c *Commander) TryHandle(ctx context.Context, botID uint64, msg platform.Message) bool {
	rest, ok := stripMention(msg.Content, botID)
	if !ok {
		return false
	}

	err := c.run(ctx, msg, strings.Fields(rest))

	emoji := "✅" // white heavy check mark
	if err != nil {
		emoji = "❌" // cross mark
	}
	if rerr := c.client.React(ctx, msg.ChannelID, msg.ID, emoji); rerr != nil && !errors.Is(rerr, platform.ErrNotFound) {
		c.logger.Warn().Err(rerr).Uint64("message_id", msg.ID).Msg("failed to react to command")
	}
	if err != nil {
		text := fmt.Sprintf("```\nFailed: %s```", err)
		if serr := c.client.SendMessage(ctx, msg.ChannelID, text); serr != nil {
			c.logger.Warn().Err(serr).Uint64("channel_id", msg.ChannelID).Msg("failed to report command error")
		}
	}
	return true
}

// stripMention returns the message content with the bot mention prefix
// removed, and whether the prefix was present.
func stripMention(content string, botID uint64) (string, bool) {
	content = strings.TrimSpace(content)
	id := strconv.FormatUint(botID, 10)
	for _, prefix := range []string{"<@" + id + ">", "<@!" + id + ">"} {
		if strings.HasPrefix(content, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(content, prefix)), true
		}
	}
	return "", false
}

func (c *Commander) run(ctx context.Context, msg platform.Message, args []string) error {
	if len(args) < 2 || args[0] != "rooms" {
		return errors.New(commandUsage)
	}

	admin, err := c.isAdmin(ctx, msg.GuildID, msg.AuthorID)
	if err != nil {
		return fmt.Errorf("permission check failed: %v", err)
	}
	if !admin {
		return errors.New("missing permissions `administrator`.")
	}

	switch args[1] {
	case "add":
		return c.roomsAdd(ctx, args[2:])
	case "remove":
		return c.roomsRemove(ctx, args[2:])
	case "list":
		return c.roomsList(ctx, msg.ChannelID)
	case "config":
		return c.roomsConfig(ctx, msg, args[2:])
	default:
		return errors.New(commandUsage)
	}
}

// isAdmin reports whether the member holds a role carrying the
// administrator permission bit.
func (c *Commander) isAdmin(ctx context.Context, guildID, userID uint64) (bool, error) {
	member, err := c.client.Member(ctx, guildID, userID)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	roles, err := c.client.GuildRoles(ctx, guildID)
	if err != nil {
		return false, err
	}

	var perms uint64
	for _, role := range roles {
		if member.HasRole(role.ID) {
			perms |= role.Permissions
		}
	}
	return perms&platform.PermissionAdministrator != 0, nil
}

// parseChannelID accepts a raw snowflake or a channel mention like <#123>.
func parseChannelID(arg string) (uint64, error) {
	arg = strings.TrimSuffix(strings.TrimPrefix(arg, "<#"), ">")
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid channel id '%s'", arg)
	}
	return id, nil
}

func (c *Commander) roomsAdd(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: rooms add <channel>")
	}
	channelID, err := parseChannelID(args[0])
	if err != nil {
		return err
	}

	conflicting, err := c.store.GetRoom(ctx, channelID)
	if err != nil {
		return fmt.Errorf("storage error: %v", err)
	}
	if conflicting != nil {
		return fmt.Errorf("channel '%d' already is a room.", channelID)
	}

	if _, err := c.store.CreateRoom(ctx, channelID, models.DefaultCooldown); err != nil {
		return fmt.Errorf("storage error: %v", err)
	}
	metrics.CommandsHandled.WithLabelValues("rooms_add").Inc()
	return nil
}

func (c *Commander) roomsRemove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: rooms remove <channel>")
	}
	channelID, err := parseChannelID(args[0])
	if err != nil {
		return err
	}

	if _, err := c.manager.RemoveRoom(ctx, channelID); err != nil {
		return fmt.Errorf("storage error: %v", err)
	}
	metrics.CommandsHandled.WithLabelValues("rooms_remove").Inc()
	return nil
}

func (c *Commander) roomsList(ctx context.Context, channelID uint64) error {
	rooms, err := c.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("storage error: %v", err)
	}

	lines := make([]string, len(rooms))
	for i := range rooms {
		lines[i] = fmt.Sprintf("%d: %s", i+1, rooms[i].FormatForListing())
	}
	text := fmt.Sprintf("```\n%s```", strings.Join(lines, "\n"))

	if err := c.client.SendMessage(ctx, channelID, text); err != nil {
		return fmt.Errorf("send failed: %v", err)
	}
	metrics.CommandsHandled.WithLabelValues("rooms_list").Inc()
	return nil
}

func (c *Commander) roomsConfig(ctx context.Context, msg platform.Message, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: rooms config <channel> <roles|cooldown> [value]")
	}
	channelID, err := parseChannelID(args[0])
	if err != nil {
		return err
	}

	room, err := c.store.GetRoom(ctx, channelID)
	if err != nil {
		return fmt.Errorf("storage error: %v", err)
	}
	if room == nil {
		return fmt.Errorf("room '%d' does not exist.", channelID)
	}

	switch args[1] {
	case "roles":
		// No value clears the role set.
		value := ""
		if len(args) > 2 {
			value = args[2]
		}
		roleIDs, err := c.parseRoleList(ctx, msg.GuildID, value)
		if err != nil {
			return err
		}
		if err := c.store.ReplaceRoles(ctx, channelID, roleIDs); err != nil {
			return fmt.Errorf("storage error: %v", err)
		}
	case "cooldown":
		if len(args) != 3 {
			return errors.New("usage: rooms config <channel> cooldown <seconds>")
		}
		cooldown, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil || cooldown <= 0 {
			return fmt.Errorf("invalid cooldown '%s'", args[2])
		}
		if err := c.store.SetCooldown(ctx, channelID, cooldown); err != nil {
			return fmt.Errorf("storage error: %v", err)
		}
	default:
		return fmt.Errorf("unknown config key '%s'", args[1])
	}

	metrics.CommandsHandled.WithLabelValues("rooms_config").Inc()
	return nil
}

// parseRoleList parses a comma-separated role ID list, keeping only roles
// that currently exist in the guild.
func (c *Commander) parseRoleList(ctx context.Context, guildID uint64, value string) ([]uint64, error) {
	if value == "" {
		return nil, nil
	}

	guildRoles, err := c.client.GuildRoles(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("role lookup failed: %v", err)
	}
	exists := make(map[uint64]bool, len(guildRoles))
	for _, role := range guildRoles {
		exists[role.ID] = true
	}

	var roleIDs []uint64
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid role id '%s'", part)
		}
		if exists[id] {
			roleIDs = append(roleIDs, id)
		}
	}
	return roleIDs, nil
}
