package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway opcodes.
const (
	opDispatch     = 0
	opHeartbeat    = 1
	opIdentify     = 2
	opHello        = 10
	opHeartbeatACK = 11
)

// Intents: guilds, guild members, guild messages, message content.
const gatewayIntents = (1 << 0) | (1 << 1) | (1 << 9) | (1 << 15)

// Gateway consumes the platform's websocket event stream and feeds decoded
// events to a Handler. Dispatch is sequential: one handler call completes
// before the next event is read.
type Gateway struct {
	URL     string
	Token   string
	handler Handler
	logger  zerolog.Logger

	ready     chan struct{}
	readyOnce sync.Once

	mu   sync.Mutex // guards writes to the connection
	conn *websocket.Conn
	seq  int64
}

// NewGateway creates a gateway consumer. If gatewayURL is empty the public
// gateway endpoint is used.
func NewGateway(token, gatewayURL string, handler Handler, logger zerolog.Logger) *Gateway {
	if gatewayURL == "" {
		gatewayURL = defaultGatewayURL
	}
	return &Gateway{
		URL:     gatewayURL,
		Token:   token,
		handler: handler,
		logger:  logger,
		ready:   make(chan struct{}),
	}
}

// Ready is closed once the gateway session is established. The expiry
// sweeper gates its first sweep on this.
func (g *Gateway) Ready() <-chan struct{} {
	return g.ready
}

type payload struct {
	Op int             `json:"op"`
	T  string          `json:"t,omitempty"`
	S  *int64          `json:"s,omitempty"`
	D  json.RawMessage `json:"d,omitempty"`
}

func (g *Gateway) writeJSON(v any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn.WriteJSON(v)
}

func (g *Gateway) sendHeartbeat() error {
	g.mu.Lock()
	seq := g.seq
	g.mu.Unlock()
	return g.writeJSON(map[string]any{"op": opHeartbeat, "d": seq})
}

// Run connects, identifies, and pumps events until the context is canceled
// or the connection drops. It does not reconnect: a torn-down connection
// ends event ingestion for the process lifetime.
func (g *Gateway) Run(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, g.URL, nil)
	if err != nil {
		return fmt.Errorf("gateway dial: %w", err)
	}
	g.conn = conn

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	// The first payload is HELLO with the heartbeat interval.
	var hello payload
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("gateway hello: %w", err)
	}
	if hello.Op != opHello {
		return fmt.Errorf("gateway hello: unexpected opcode %d", hello.Op)
	}
	var helloData struct {
		HeartbeatInterval int64 `json:"heartbeat_interval"`
	}
	if err := json.Unmarshal(hello.D, &helloData); err != nil {
		return fmt.Errorf("gateway hello: %w", err)
	}

	identify := map[string]any{
		"op": opIdentify,
		"d": map[string]any{
			"token":   g.Token,
			"intents": gatewayIntents,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "standupd",
				"device":  "standupd",
			},
		},
	}
	if err := g.writeJSON(identify); err != nil {
		return fmt.Errorf("gateway identify: %w", err)
	}

	heartbeat := time.NewTicker(time.Duration(helloData.HeartbeatInterval) * time.Millisecond)
	defer heartbeat.Stop()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-heartbeat.C:
				if err := g.sendHeartbeat(); err != nil {
					g.logger.Warn().Err(err).Msg("gateway heartbeat failed")
					return
				}
			}
		}
	}()

	for {
		var p payload
		if err := conn.ReadJSON(&p); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("gateway read: %w", err)
		}

		if p.S != nil {
			g.mu.Lock()
			g.seq = *p.S
			g.mu.Unlock()
		}

		switch p.Op {
		case opDispatch:
			g.dispatch(ctx, p.T, p.D)
		case opHeartbeat:
			// Server-requested heartbeat.
			if err := g.sendHeartbeat(); err != nil {
				g.logger.Warn().Err(err).Msg("gateway heartbeat failed")
			}
		case opHeartbeatACK:
		default:
			g.logger.Debug().Int("op", p.Op).Msg("unhandled gateway opcode")
		}
	}
}

// Wire shapes for dispatched events. Snowflakes arrive as decimal strings.
type wireUser struct {
	ID  string `json:"id"`
	Bot bool   `json:"bot"`
}

type wireMessage struct {
	ID        string   `json:"id"`
	ChannelID string   `json:"channel_id"`
	GuildID   string   `json:"guild_id"`
	Author    wireUser `json:"author"`
	Content   string   `json:"content"`
}

type wireMember struct {
	GuildID string   `json:"guild_id"`
	User    wireUser `json:"user"`
	Roles   []string `json:"roles"`
}

func (m *wireMember) member() Member {
	roleIDs := make([]uint64, 0, len(m.Roles))
	for _, r := range m.Roles {
		roleIDs = append(roleIDs, parseSnowflake(r))
	}
	return Member{UserID: parseSnowflake(m.User.ID), RoleIDs: roleIDs}
}

func (g *Gateway) dispatch(ctx context.Context, event string, data json.RawMessage) {
	switch event {
	case "READY":
		var d struct {
			User wireUser `json:"user"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			g.logger.Warn().Err(err).Str("event", event).Msg("gateway decode failed")
			return
		}
		g.handler.Ready(parseSnowflake(d.User.ID))
		g.readyOnce.Do(func() { close(g.ready) })

	case "MESSAGE_CREATE":
		var d wireMessage
		if err := json.Unmarshal(data, &d); err != nil {
			g.logger.Warn().Err(err).Str("event", event).Msg("gateway decode failed")
			return
		}
		g.handler.MessageCreate(ctx, Message{
			ID:        parseSnowflake(d.ID),
			ChannelID: parseSnowflake(d.ChannelID),
			GuildID:   parseSnowflake(d.GuildID),
			AuthorID:  parseSnowflake(d.Author.ID),
			AuthorBot: d.Author.Bot,
			Content:   d.Content,
		})

	case "MESSAGE_DELETE":
		var d struct {
			ID        string `json:"id"`
			ChannelID string `json:"channel_id"`
		}
		if err := json.Unmarshal(data, &d); err != nil {
			g.logger.Warn().Err(err).Str("event", event).Msg("gateway decode failed")
			return
		}
		g.handler.MessageDelete(ctx, parseSnowflake(d.ChannelID), parseSnowflake(d.ID))

	case "GUILD_MEMBER_UPDATE":
		var d wireMember
		if err := json.Unmarshal(data, &d); err != nil {
			g.logger.Warn().Err(err).Str("event", event).Msg("gateway decode failed")
			return
		}
		g.handler.MemberUpdate(ctx, parseSnowflake(d.GuildID), d.member())

	case "GUILD_MEMBER_ADD":
		var d wireMember
		if err := json.Unmarshal(data, &d); err != nil {
			g.logger.Warn().Err(err).Str("event", event).Msg("gateway decode failed")
			return
		}
		g.handler.MemberJoin(ctx, parseSnowflake(d.GuildID), d.member())
	}
}
