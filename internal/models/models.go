// Package models defines the domain records shared by the store, the
// lifecycle engine, and the API layer.
package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultCooldown is the room cooldown, in seconds, applied when none is
// given.
const DefaultCooldown int64 = 86400

// Room is a channel configured to accept standup posts. RoleIDs is the
// set of roles a valid post grants for the duration of the cooldown.
type Room struct {
	ChannelID uint64
	Cooldown  int64 // seconds
	RoleIDs   []uint64
}

// CooldownDuration returns the room's cooldown as a time.Duration.
func (r *Room) CooldownDuration() time.Duration {
	return time.Duration(r.Cooldown) * time.Second
}

// FormatForListing renders the room for the admin listing output, e.g.
// "100 | Cooldown: 86400 | Roles: {11, 12}".
func (r *Room) FormatForListing() string {
	ids := make([]uint64, len(r.RoleIDs))
	copy(ids, r.RoleIDs)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("%d | Cooldown: %d | Roles: {%s}",
		r.ChannelID, r.Cooldown, strings.Join(parts, ", "))
}

// Post is a single accepted standup submission. Timestamp is stored with
// second precision.
type Post struct {
	ID        int64
	ChannelID uint64
	UserID    uint64
	MessageID uint64
	Timestamp time.Time
}

// Active reports whether the post is still inside its room's cooldown at
// the given instant. A post exactly at the cooldown boundary is expired.
func (p *Post) Active(cooldown time.Duration, now time.Time) bool {
	return now.Sub(p.Timestamp) < cooldown
}
