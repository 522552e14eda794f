package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://discord.com/api/v10"

// RestClient implements Client against the platform HTTP API using
// bot-token authentication.
type RestClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewRestClient creates a REST client. If baseURL is empty the public API
// endpoint is used.
func NewRestClient(token, baseURL string) *RestClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &RestClient{
		BaseURL:    baseURL,
		Token:      token,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// apiError carries a non-2xx response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("platform: status %d: %s", e.Status, e.Body)
}

func (c *RestClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Status: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// Snowflakes travel as decimal strings on the wire.
func parseSnowflake(s string) uint64 {
	id, _ := strconv.ParseUint(s, 10, 64)
	return id
}

func formatSnowflake(id uint64) string {
	return strconv.FormatUint(id, 10)
}

// SendMessage posts a message to a channel.
func (c *RestClient) SendMessage(ctx context.Context, channelID uint64, content string) error {
	path := fmt.Sprintf("/channels/%d/messages", channelID)
	return c.do(ctx, http.MethodPost, path, map[string]string{"content": content}, nil)
}

// SendDM opens (or reuses) the DM channel with a user and sends a message.
func (c *RestClient) SendDM(ctx context.Context, userID uint64, content string) error {
	var channel struct {
		ID string `json:"id"`
	}
	body := map[string]string{"recipient_id": formatSnowflake(userID)}
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", body, &channel); err != nil {
		return err
	}
	return c.SendMessage(ctx, parseSnowflake(channel.ID), content)
}

// DeleteMessage removes a message from a channel.
func (c *RestClient) DeleteMessage(ctx context.Context, channelID, messageID uint64) error {
	path := fmt.Sprintf("/channels/%d/messages/%d", channelID, messageID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// React adds the bot's reaction to a message.
func (c *RestClient) React(ctx context.Context, channelID, messageID uint64, emoji string) error {
	path := fmt.Sprintf("/channels/%d/messages/%d/reactions/%s/@me",
		channelID, messageID, url.PathEscape(emoji))
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// ChannelGuild resolves the guild owning a channel. DM channels have no
// guild and report ErrNotFound.
func (c *RestClient) ChannelGuild(ctx context.Context, channelID uint64) (uint64, error) {
	var channel struct {
		GuildID string `json:"guild_id"`
	}
	path := fmt.Sprintf("/channels/%d", channelID)
	if err := c.do(ctx, http.MethodGet, path, nil, &channel); err != nil {
		return 0, err
	}
	if channel.GuildID == "" {
		return 0, ErrNotFound
	}
	return parseSnowflake(channel.GuildID), nil
}

// Member looks up a guild member.
func (c *RestClient) Member(ctx context.Context, guildID, userID uint64) (*Member, error) {
	var member struct {
		User struct {
			ID string `json:"id"`
		} `json:"user"`
		Roles []string `json:"roles"`
	}
	path := fmt.Sprintf("/guilds/%d/members/%d", guildID, userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &member); err != nil {
		return nil, err
	}

	roleIDs := make([]uint64, 0, len(member.Roles))
	for _, r := range member.Roles {
		roleIDs = append(roleIDs, parseSnowflake(r))
	}
	return &Member{UserID: parseSnowflake(member.User.ID), RoleIDs: roleIDs}, nil
}

// GuildRoles lists the roles that currently exist in a guild.
func (c *RestClient) GuildRoles(ctx context.Context, guildID uint64) ([]Role, error) {
	var wire []struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Permissions string `json:"permissions"`
	}
	path := fmt.Sprintf("/guilds/%d/roles", guildID)
	if err := c.do(ctx, http.MethodGet, path, nil, &wire); err != nil {
		return nil, err
	}

	roles := make([]Role, 0, len(wire))
	for _, r := range wire {
		perms, _ := strconv.ParseUint(r.Permissions, 10, 64)
		roles = append(roles, Role{ID: parseSnowflake(r.ID), Name: r.Name, Permissions: perms})
	}
	return roles, nil
}

// AddRoles grants roles to a member one at a time; each call is an
// idempotent set-union operation. Roles or members deleted mid-loop are
// skipped.
func (c *RestClient) AddRoles(ctx context.Context, guildID, userID uint64, roleIDs []uint64) error {
	for _, roleID := range roleIDs {
		path := fmt.Sprintf("/guilds/%d/members/%d/roles/%d", guildID, userID, roleID)
		if err := c.do(ctx, http.MethodPut, path, nil, nil); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}

// RemoveRoles revokes roles from a member; the idempotent set-difference
// counterpart of AddRoles.
func (c *RestClient) RemoveRoles(ctx context.Context, guildID, userID uint64, roleIDs []uint64) error {
	for _, roleID := range roleIDs {
		path := fmt.Sprintf("/guilds/%d/members/%d/roles/%d", guildID, userID, roleID)
		if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}
