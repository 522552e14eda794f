package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/skippi/standup/internal/platform"
	"github.com/skippi/standup/internal/standup"
	"github.com/skippi/standup/internal/store"
)

// noopClient satisfies platform.Client for handlers that never reach the
// platform in these tests.
type noopClient struct{}

func (noopClient) SendMessage(ctx context.Context, channelID uint64, content string) error {
	return nil
}
func (noopClient) SendDM(ctx context.Context, userID uint64, content string) error { return nil }
func (noopClient) DeleteMessage(ctx context.Context, channelID, messageID uint64) error {
	return nil
}
func (noopClient) React(ctx context.Context, channelID, messageID uint64, emoji string) error {
	return nil
}
func (noopClient) ChannelGuild(ctx context.Context, channelID uint64) (uint64, error) {
	return 0, platform.ErrNotFound
}
func (noopClient) Member(ctx context.Context, guildID, userID uint64) (*platform.Member, error) {
	return nil, platform.ErrNotFound
}
func (noopClient) GuildRoles(ctx context.Context, guildID uint64) ([]platform.Role, error) {
	return nil, nil
}
func (noopClient) AddRoles(ctx context.Context, guildID, userID uint64, roleIDs []uint64) error {
	return nil
}
func (noopClient) RemoveRoles(ctx context.Context, guildID, userID uint64, roleIDs []uint64) error {
	return nil
}

const testToken = "s3cret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st, err := store.NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)

	logger := zerolog.Nop()
	client := noopClient{}
	manager := standup.NewManager(st, standup.NewReconciler(client, st, logger), client, logger)

	hash, err := bcrypt.GenerateFromPassword([]byte(testToken), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(NewRouter(logger, NewHandler(st, manager, nil), string(hash)))
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, method, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/health", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "healthy" {
		t.Fatalf("status = %q, want healthy", health.Status)
	}
	if health.Checks["store"].Status != "pass" {
		t.Fatalf("store check = %+v, want pass", health.Checks["store"])
	}
	if _, ok := health.Checks["redis"]; ok {
		t.Fatal("redis check should be absent when redis is not configured")
	}
}

func TestAdminRequiresToken(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/rooms", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/rooms", "wrong", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAdminDisabledWithoutHash(t *testing.T) {
	st, err := store.NewSQLiteStore(context.Background(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(st.Close)

	logger := zerolog.Nop()
	client := noopClient{}
	manager := standup.NewManager(st, standup.NewReconciler(client, st, logger), client, logger)
	srv := httptest.NewServer(NewRouter(logger, NewHandler(st, manager, nil), ""))
	t.Cleanup(srv.Close)

	resp := doRequest(t, http.MethodGet, srv.URL+"/rooms", testToken, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestRoomAdminFlow(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/rooms", testToken,
		`{"channel_id":"100","cooldown":600}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}
	var created RoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.ChannelID != "100" || created.Cooldown != 600 {
		t.Fatalf("created = %+v", created)
	}

	// Duplicate creation conflicts.
	resp = doRequest(t, http.MethodPost, srv.URL+"/rooms", testToken,
		`{"channel_id":"100"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPut, srv.URL+"/rooms/100/roles", testToken,
		`{"role_ids":["11","12"]}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("roles status = %d, want 204", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPut, srv.URL+"/rooms/100/cooldown", testToken,
		`{"cooldown":1200}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("cooldown status = %d, want 204", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/rooms", testToken, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d, want 200", resp.StatusCode)
	}
	var rooms []RoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&rooms); err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 1 {
		t.Fatalf("rooms = %d, want 1", len(rooms))
	}
	if rooms[0].Cooldown != 1200 || len(rooms[0].RoleIDs) != 2 {
		t.Fatalf("room = %+v", rooms[0])
	}

	resp = doRequest(t, http.MethodDelete, srv.URL+"/rooms/100", testToken, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", resp.StatusCode)
	}
	resp = doRequest(t, http.MethodDelete, srv.URL+"/rooms/100", testToken, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateRoomValidation(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/rooms", testToken, `{"channel_id":"nope"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	resp = doRequest(t, http.MethodPost, srv.URL+"/rooms", testToken, `not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestStats(t *testing.T) {
	srv := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/rooms", testToken, `{"channel_id":"100"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/stats", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var stats StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Rooms != 1 || stats.Posts != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}
