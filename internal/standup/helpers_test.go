package standup

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/skippi/standup/internal/platform"
	"github.com/skippi/standup/internal/store"
)

const (
	testGuildID   uint64 = 1
	testChannelID uint64 = 100
	testUserID    uint64 = 42
	testBotID     uint64 = 999
)

type sentMessage struct {
	channelID uint64
	content   string
}

type sentDM struct {
	userID  uint64
	content string
}

type deletedMessage struct {
	channelID uint64
	messageID uint64
}

type reaction struct {
	messageID uint64
	emoji     string
}

// fakeClient is an in-memory platform.Client. Role grants and revokes
// mutate the held member records, so tests can observe the net effect of a
// grant/revoke sequence.
type fakeClient struct {
	guildRoles    map[uint64][]platform.Role
	members       map[uint64]map[uint64]*platform.Member
	channelGuilds map[uint64]uint64

	messages  []sentMessage
	dms       []sentDM
	deleted   []deletedMessage
	reactions []reaction

	sendErr   error
	deleteErr error
	addErr    error
	removeErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		guildRoles:    make(map[uint64][]platform.Role),
		members:       make(map[uint64]map[uint64]*platform.Member),
		channelGuilds: make(map[uint64]uint64),
	}
}

func (f *fakeClient) addMember(guildID uint64, m *platform.Member) {
	if f.members[guildID] == nil {
		f.members[guildID] = make(map[uint64]*platform.Member)
	}
	f.members[guildID][m.UserID] = m
}

func (f *fakeClient) SendMessage(ctx context.Context, channelID uint64, content string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages = append(f.messages, sentMessage{channelID, content})
	return nil
}

func (f *fakeClient) SendDM(ctx context.Context, userID uint64, content string) error {
	f.dms = append(f.dms, sentDM{userID, content})
	return nil
}

func (f *fakeClient) DeleteMessage(ctx context.Context, channelID, messageID uint64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, deletedMessage{channelID, messageID})
	return nil
}

func (f *fakeClient) React(ctx context.Context, channelID, messageID uint64, emoji string) error {
	f.reactions = append(f.reactions, reaction{messageID, emoji})
	return nil
}

func (f *fakeClient) ChannelGuild(ctx context.Context, channelID uint64) (uint64, error) {
	guildID, ok := f.channelGuilds[channelID]
	if !ok {
		return 0, platform.ErrNotFound
	}
	return guildID, nil
}

func (f *fakeClient) Member(ctx context.Context, guildID, userID uint64) (*platform.Member, error) {
	m := f.members[guildID][userID]
	if m == nil {
		return nil, platform.ErrNotFound
	}
	return m, nil
}

func (f *fakeClient) GuildRoles(ctx context.Context, guildID uint64) ([]platform.Role, error) {
	return f.guildRoles[guildID], nil
}

func (f *fakeClient) AddRoles(ctx context.Context, guildID, userID uint64, roleIDs []uint64) error {
	if f.addErr != nil {
		return f.addErr
	}
	m := f.members[guildID][userID]
	if m == nil {
		return platform.ErrNotFound
	}
	for _, id := range roleIDs {
		if !m.HasRole(id) {
			m.RoleIDs = append(m.RoleIDs, id)
		}
	}
	return nil
}

func (f *fakeClient) RemoveRoles(ctx context.Context, guildID, userID uint64, roleIDs []uint64) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	m := f.members[guildID][userID]
	if m == nil {
		return platform.ErrNotFound
	}
	for _, id := range roleIDs {
		for i, held := range m.RoleIDs {
			if held == id {
				m.RoleIDs = append(m.RoleIDs[:i], m.RoleIDs[i+1:]...)
				break
			}
		}
	}
	return nil
}

type fixture struct {
	client     *fakeClient
	store      store.DataStore
	reconciler *Reconciler
	manager    *Manager
	commander  *Commander
	dispatcher *Dispatcher
}

// newFixture wires the engine against a fake platform and an in-memory
// SQLite store: one guild with roles 11 and 12, one room channel, one
// member with no roles.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)

	client := newFakeClient()
	client.guildRoles[testGuildID] = []platform.Role{
		{ID: 11, Name: "standup"},
		{ID: 12, Name: "active"},
	}
	client.channelGuilds[testChannelID] = testGuildID
	client.addMember(testGuildID, &platform.Member{UserID: testUserID})

	logger := zerolog.Nop()
	reconciler := NewReconciler(client, st, logger)
	manager := NewManager(st, reconciler, client, logger)
	commander := NewCommander(st, manager, client, logger)
	dispatcher := NewDispatcher(st, manager, client, commander, nil, logger)
	dispatcher.Ready(testBotID)

	return &fixture{
		client:     client,
		store:      st,
		reconciler: reconciler,
		manager:    manager,
		commander:  commander,
		dispatcher: dispatcher,
	}
}

// addRoom configures the test channel as a room with the given roles.
func (f *fixture) addRoom(t *testing.T, cooldown int64, roleIDs ...uint64) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.store.CreateRoom(ctx, testChannelID, cooldown); err != nil {
		t.Fatal(err)
	}
	if err := f.store.ReplaceRoles(ctx, testChannelID, roleIDs); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) member(t *testing.T) *platform.Member {
	t.Helper()
	m := f.client.members[testGuildID][testUserID]
	if m == nil {
		t.Fatal("test member missing")
	}
	return m
}

const validStandup = "Yesterday I: reviewed the queue\n" +
	"Today I will: ship the sweeper\n" +
	"Potential hard problems: none"

func memberHasRoles(m *platform.Member, roleIDs ...uint64) bool {
	for _, id := range roleIDs {
		if !m.HasRole(id) {
			return false
		}
	}
	return true
}
