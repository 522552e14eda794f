package standup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/skippi/standup/internal/models"
	"github.com/skippi/standup/internal/platform"
)

func submitMessage(content string) platform.Message {
	return platform.Message{
		ID:        7,
		ChannelID: testChannelID,
		GuildID:   testGuildID,
		AuthorID:  testUserID,
		Content:   content,
	}
}

func TestSubmitCreatesPostAndGrantsRoles(t *testing.T) {
	f := newFixture(t)
	f.addRoom(t, 600, 11, 12)
	ctx := context.Background()

	room, err := f.store.GetRoom(ctx, testChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.Submit(ctx, room, submitMessage(validStandup)); err != nil {
		t.Fatal(err)
	}

	posts, err := f.store.PostsByMessage(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 {
		t.Fatalf("posts = %d, want 1", len(posts))
	}
	if !memberHasRoles(f.member(t), 11, 12) {
		t.Fatalf("member roles = %v, want 11 and 12", f.member(t).RoleIDs)
	}
}

func TestSubmitMalformedDeletesMessageAndDMsHelp(t *testing.T) {
	f := newFixture(t)
	f.addRoom(t, 600, 11)
	ctx := context.Background()

	room, err := f.store.GetRoom(ctx, testChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.Submit(ctx, room, submitMessage("good morning")); err != nil {
		t.Fatal(err)
	}

	posts, err := f.store.PostsByMessage(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 0 {
		t.Fatal("malformed submission must not create a post")
	}
	if len(f.client.deleted) != 1 || f.client.deleted[0].messageID != 7 {
		t.Fatalf("deleted = %v, want message 7 deleted", f.client.deleted)
	}
	if len(f.client.dms) != 1 || f.client.dms[0].userID != testUserID {
		t.Fatalf("dms = %v, want one DM to author", f.client.dms)
	}
	if !strings.Contains(f.client.dms[0].content, "Today I will:") {
		t.Fatalf("DM should contain the template, got %q", f.client.dms[0].content)
	}
	if f.member(t).HasRole(11) {
		t.Fatal("malformed submission must not grant roles")
	}
}

func TestSubmitMalformedSurvivesVanishedMessage(t *testing.T) {
	f := newFixture(t)
	f.addRoom(t, 600, 11)
	f.client.deleteErr = platform.ErrNotFound
	ctx := context.Background()

	room, err := f.store.GetRoom(ctx, testChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.Submit(ctx, room, submitMessage("nope")); err != nil {
		t.Fatal(err)
	}
	if len(f.client.dms) != 1 {
		t.Fatal("author should still be DMed when the message is already gone")
	}
}

func TestSubmitKeepsPostWhenGrantFails(t *testing.T) {
	f := newFixture(t)
	f.addRoom(t, 600, 11)
	f.client.addErr = errors.New("rate limited")
	ctx := context.Background()

	room, err := f.store.GetRoom(ctx, testChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.Submit(ctx, room, submitMessage(validStandup)); err != nil {
		t.Fatal(err)
	}

	posts, err := f.store.PostsByMessage(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 {
		t.Fatal("post must survive a failed role grant")
	}
	if f.member(t).HasRole(11) {
		t.Fatal("grant failed, role must not be held")
	}
}

func TestSubmitSkipsStaleConfiguredRoles(t *testing.T) {
	f := newFixture(t)
	// Role 13 does not exist in the guild.
	f.addRoom(t, 600, 11, 13)
	ctx := context.Background()

	room, err := f.store.GetRoom(ctx, testChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.Submit(ctx, room, submitMessage(validStandup)); err != nil {
		t.Fatal(err)
	}

	m := f.member(t)
	if !m.HasRole(11) {
		t.Fatal("existing role should be granted")
	}
	if m.HasRole(13) {
		t.Fatal("stale role must be skipped")
	}
}

func TestInvalidateRevokesAndDeletes(t *testing.T) {
	f := newFixture(t)
	f.addRoom(t, 600, 11, 12)
	ctx := context.Background()

	// Pre-held role unrelated to the room stays put.
	f.member(t).RoleIDs = []uint64{77}

	room, err := f.store.GetRoom(ctx, testChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.Submit(ctx, room, submitMessage(validStandup)); err != nil {
		t.Fatal(err)
	}
	posts, err := f.store.PostsByMessage(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}

	if err := f.manager.Invalidate(ctx, &posts[0], "expired"); err != nil {
		t.Fatal(err)
	}

	remaining, err := f.store.PostsByMessage(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Fatal("invalidated post row should be gone")
	}
	m := f.member(t)
	if m.HasRole(11) || m.HasRole(12) {
		t.Fatalf("room roles should be revoked, got %v", m.RoleIDs)
	}
	if !m.HasRole(77) {
		t.Fatal("unrelated role must survive revocation")
	}

	// A second invalidation of the same post is a no-op.
	if err := f.manager.Invalidate(ctx, &posts[0], "expired"); err != nil {
		t.Fatal(err)
	}
}

func TestInvalidateDeletesRowDespiteRevokeFailure(t *testing.T) {
	f := newFixture(t)
	f.addRoom(t, 600, 11)
	ctx := context.Background()

	room, err := f.store.GetRoom(ctx, testChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.Submit(ctx, room, submitMessage(validStandup)); err != nil {
		t.Fatal(err)
	}
	posts, err := f.store.PostsByMessage(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}

	f.client.removeErr = errors.New("rate limited")
	if err := f.manager.Invalidate(ctx, &posts[0], "expired"); err != nil {
		t.Fatal(err)
	}

	remaining, err := f.store.PostsByMessage(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Fatal("row delete must proceed even when the revoke fails")
	}
}

func TestReinstateIfActive(t *testing.T) {
	f := newFixture(t)
	f.addRoom(t, 10, 11)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	post, err := f.store.CreatePost(ctx, &models.Post{
		ChannelID: testChannelID, UserID: testUserID, MessageID: 7, Timestamp: base,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := f.manager.ReinstateIfActive(ctx, post, base.Add(5*time.Second)); err != nil {
		t.Fatal(err)
	}
	if !f.member(t).HasRole(11) {
		t.Fatal("active post should be reinstated")
	}

	f.member(t).RoleIDs = nil
	if err := f.manager.ReinstateIfActive(ctx, post, base.Add(15*time.Second)); err != nil {
		t.Fatal(err)
	}
	if f.member(t).HasRole(11) {
		t.Fatal("expired post must not be reinstated")
	}
}

func TestRemoveRoomInvalidatesPostsFirst(t *testing.T) {
	f := newFixture(t)
	f.addRoom(t, 600, 11)
	ctx := context.Background()

	room, err := f.store.GetRoom(ctx, testChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.manager.Submit(ctx, room, submitMessage(validStandup)); err != nil {
		t.Fatal(err)
	}

	removed, err := f.manager.RemoveRoom(ctx, testChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("room should report removed")
	}
	if f.member(t).HasRole(11) {
		t.Fatal("room removal must revoke granted roles")
	}
	gone, err := f.store.GetRoom(ctx, testChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Fatal("room should be gone")
	}

	removed, err = f.manager.RemoveRoom(ctx, testChannelID)
	if err != nil {
		t.Fatal(err)
	}
	if removed {
		t.Fatal("removing a missing room should report false")
	}
}
