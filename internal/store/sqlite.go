package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/skippi/standup/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/standup.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/standup.db"
	}

	inMemory := strings.Contains(dbPath, ":memory:")
	if !inMemory {
		// Ensure directory exists
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	if inMemory {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist. Snowflakes are stored as
// TEXT: they are opaque full-range 64-bit identifiers, not numbers.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		channel_id TEXT PRIMARY KEY,
		cooldown INTEGER NOT NULL DEFAULT 86400
	);

	CREATE TABLE IF NOT EXISTS room_roles (
		room_channel_id TEXT NOT NULL REFERENCES rooms(channel_id) ON DELETE CASCADE,
		role_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_channel_id TEXT NOT NULL REFERENCES rooms(channel_id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_room_roles_room ON room_roles(room_channel_id);
	CREATE INDEX IF NOT EXISTS idx_posts_message ON posts(message_id);
	CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(user_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func snowflakeString(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func parseSnowflake(s string) uint64 {
	id, _ := strconv.ParseUint(s, 10, 64)
	return id
}

// CreateRoom creates a new room record.
func (s *SQLiteStore) CreateRoom(ctx context.Context, channelID uint64, cooldown int64) (*models.Room, error) {
	if cooldown <= 0 {
		cooldown = models.DefaultCooldown
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (channel_id, cooldown) VALUES (?, ?)
	`, snowflakeString(channelID), cooldown)
	if err != nil {
		return nil, err
	}

	return &models.Room{ChannelID: channelID, Cooldown: cooldown}, nil
}

// GetRoom retrieves a room by channel ID, with its role set loaded.
func (s *SQLiteStore) GetRoom(ctx context.Context, channelID uint64) (*models.Room, error) {
	room := &models.Room{ChannelID: channelID}
	err := s.db.QueryRowContext(ctx, `
		SELECT cooldown FROM rooms WHERE channel_id = ?
	`, snowflakeString(channelID)).Scan(&room.Cooldown)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	roleIDs, err := s.roomRoles(ctx, channelID)
	if err != nil {
		return nil, err
	}
	room.RoleIDs = roleIDs
	return room, nil
}

func (s *SQLiteStore) roomRoles(ctx context.Context, channelID uint64) ([]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role_id FROM room_roles WHERE room_channel_id = ?
	`, snowflakeString(channelID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roleIDs []uint64
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		roleIDs = append(roleIDs, parseSnowflake(idStr))
	}
	return roleIDs, rows.Err()
}

// ListRooms retrieves all rooms with their role sets.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, cooldown FROM rooms ORDER BY channel_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		var idStr string
		if err := rows.Scan(&idStr, &room.Cooldown); err != nil {
			return nil, err
		}
		room.ChannelID = parseSnowflake(idStr)
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range rooms {
		roleIDs, err := s.roomRoles(ctx, rooms[i].ChannelID)
		if err != nil {
			return nil, err
		}
		rooms[i].RoleIDs = roleIDs
	}
	return rooms, nil
}

// DeleteRoom removes a room; role rows and post rows cascade.
func (s *SQLiteStore) DeleteRoom(ctx context.Context, channelID uint64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM rooms WHERE channel_id = ?
	`, snowflakeString(channelID))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetCooldown updates a room's cooldown in seconds.
func (s *SQLiteStore) SetCooldown(ctx context.Context, channelID uint64, cooldown int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE rooms SET cooldown = ? WHERE channel_id = ?
	`, cooldown, snowflakeString(channelID))
	return err
}

// ReplaceRoles replaces the room's whole role set in one transaction.
func (s *SQLiteStore) ReplaceRoles(ctx context.Context, channelID uint64, roleIDs []uint64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM room_roles WHERE room_channel_id = ?
	`, snowflakeString(channelID)); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO room_roles (room_channel_id, role_id) VALUES (?, ?)
		`, snowflakeString(channelID), snowflakeString(roleID)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// CreatePost creates a new post record. The timestamp is truncated to
// second precision, as stored.
func (s *SQLiteStore) CreatePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	ts := post.Timestamp.UTC().Truncate(time.Second)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (room_channel_id, user_id, message_id, timestamp)
		VALUES (?, ?, ?, ?)
	`, snowflakeString(post.ChannelID), snowflakeString(post.UserID),
		snowflakeString(post.MessageID), ts.Unix())
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	created := *post
	created.ID = id
	created.Timestamp = ts
	return &created, nil
}

// DeletePost removes a post row. Deleting a nonexistent row is a no-op.
func (s *SQLiteStore) DeletePost(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) scanPosts(rows *sql.Rows) ([]models.Post, error) {
	defer rows.Close()

	var posts []models.Post
	for rows.Next() {
		var post models.Post
		var channelStr, userStr, messageStr string
		var unix int64
		if err := rows.Scan(&post.ID, &channelStr, &userStr, &messageStr, &unix); err != nil {
			return nil, err
		}
		post.ChannelID = parseSnowflake(channelStr)
		post.UserID = parseSnowflake(userStr)
		post.MessageID = parseSnowflake(messageStr)
		post.Timestamp = time.Unix(unix, 0).UTC()
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// PostsByMessage retrieves posts correlated with a message ID.
func (s *SQLiteStore) PostsByMessage(ctx context.Context, messageID uint64) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_channel_id, user_id, message_id, timestamp
		FROM posts WHERE message_id = ?
	`, snowflakeString(messageID))
	if err != nil {
		return nil, err
	}
	return s.scanPosts(rows)
}

// PostsByRoom retrieves all posts belonging to a room, expired or not.
func (s *SQLiteStore) PostsByRoom(ctx context.Context, channelID uint64) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_channel_id, user_id, message_id, timestamp
		FROM posts WHERE room_channel_id = ?
	`, snowflakeString(channelID))
	if err != nil {
		return nil, err
	}
	return s.scanPosts(rows)
}

// ActivePostsByUser retrieves a user's posts that are still inside their
// room's cooldown at `now`.
func (s *SQLiteStore) ActivePostsByUser(ctx context.Context, userID uint64, now time.Time) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.room_channel_id, p.user_id, p.message_id, p.timestamp
		FROM posts p
		JOIN rooms r ON p.room_channel_id = r.channel_id
		WHERE p.user_id = ? AND ? - p.timestamp < r.cooldown
	`, snowflakeString(userID), now.UTC().Unix())
	if err != nil {
		return nil, err
	}
	return s.scanPosts(rows)
}

// ExpiredPosts retrieves posts whose age meets or exceeds their room's
// cooldown at `now`.
func (s *SQLiteStore) ExpiredPosts(ctx context.Context, now time.Time) ([]models.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.room_channel_id, p.user_id, p.message_id, p.timestamp
		FROM posts p
		JOIN rooms r ON p.room_channel_id = r.channel_id
		WHERE p.timestamp + r.cooldown <= ?
	`, now.UTC().Unix())
	if err != nil {
		return nil, err
	}
	return s.scanPosts(rows)
}

// CountRooms returns the total number of configured rooms.
func (s *SQLiteStore) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

// CountPosts returns the total number of post rows, swept or not.
func (s *SQLiteStore) CountPosts(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count)
	return count, err
}
