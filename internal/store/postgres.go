package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skippi/standup/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// initSchema creates tables if they don't exist. Same layout as the SQLite
// schema: snowflakes as TEXT, timestamps as unix seconds.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		channel_id TEXT PRIMARY KEY,
		cooldown BIGINT NOT NULL DEFAULT 86400
	);

	CREATE TABLE IF NOT EXISTS room_roles (
		room_channel_id TEXT NOT NULL REFERENCES rooms(channel_id) ON DELETE CASCADE,
		role_id TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS posts (
		id BIGSERIAL PRIMARY KEY,
		room_channel_id TEXT NOT NULL REFERENCES rooms(channel_id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		timestamp BIGINT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_room_roles_room ON room_roles(room_channel_id);
	CREATE INDEX IF NOT EXISTS idx_posts_message ON posts(message_id);
	CREATE INDEX IF NOT EXISTS idx_posts_user ON posts(user_id);
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateRoom creates a new room record.
func (s *PostgresStore) CreateRoom(ctx context.Context, channelID uint64, cooldown int64) (*models.Room, error) {
	if cooldown <= 0 {
		cooldown = models.DefaultCooldown
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO rooms (channel_id, cooldown) VALUES ($1, $2)
	`, snowflakeString(channelID), cooldown)
	if err != nil {
		return nil, err
	}

	return &models.Room{ChannelID: channelID, Cooldown: cooldown}, nil
}

// GetRoom retrieves a room by channel ID, with its role set loaded.
func (s *PostgresStore) GetRoom(ctx context.Context, channelID uint64) (*models.Room, error) {
	room := &models.Room{ChannelID: channelID}
	err := s.pool.QueryRow(ctx, `
		SELECT cooldown FROM rooms WHERE channel_id = $1
	`, snowflakeString(channelID)).Scan(&room.Cooldown)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) roomRoles(ctx context.Context, channelID uint64) ([]uint64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role_id FROM room_roles WHERE room_channel_id = $1
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
func (s *PostgresStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT channel_id, cooldown FROM rooms ORDER BY channel_id
	`)
	if err != nil {
		return nil, err
	}

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		var idStr string
		if err := rows.Scan(&idStr, &room.Cooldown); err != nil {
			rows.Close()
			return nil, err
		}
		room.ChannelID = parseSnowflake(idStr)
		rooms = append(rooms, room)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

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
func (s *PostgresStore) DeleteRoom(ctx context.Context, channelID uint64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM rooms WHERE channel_id = $1
	`, snowflakeString(channelID))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetCooldown updates a room's cooldown in seconds.
func (s *PostgresStore) SetCooldown(ctx context.Context, channelID uint64, cooldown int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE rooms SET cooldown = $1 WHERE channel_id = $2
	`, cooldown, snowflakeString(channelID))
	return err
}

// ReplaceRoles replaces the room's whole role set in one transaction.
func (s *PostgresStore) ReplaceRoles(ctx context.Context, channelID uint64, roleIDs []uint64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM room_roles WHERE room_channel_id = $1
	`, snowflakeString(channelID)); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO room_roles (room_channel_id, role_id) VALUES ($1, $2)
		`, snowflakeString(channelID), snowflakeString(roleID)); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// CreatePost creates a new post record.
func (s *PostgresStore) CreatePost(ctx context.Context, post *models.Post) (*models.Post, error) {
	ts := post.Timestamp.UTC().Truncate(time.Second)

	created := *post
	created.Timestamp = ts
	err := s.pool.QueryRow(ctx, `
		INSERT INTO posts (room_channel_id, user_id, message_id, timestamp)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, snowflakeString(post.ChannelID), snowflakeString(post.UserID),
		snowflakeString(post.MessageID), ts.Unix()).Scan(&created.ID)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// DeletePost removes a post row. Deleting a nonexistent row is a no-op.
func (s *PostgresStore) DeletePost(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanPgPosts(rows pgx.Rows) ([]models.Post, error) {
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
func (s *PostgresStore) PostsByMessage(ctx context.Context, messageID uint64) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, room_channel_id, user_id, message_id, timestamp
		FROM posts WHERE message_id = $1
	`, snowflakeString(messageID))
	if err != nil {
		return nil, err
	}
	return scanPgPosts(rows)
}

// PostsByRoom retrieves all posts belonging to a room, expired or not.
func (s *PostgresStore) PostsByRoom(ctx context.Context, channelID uint64) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, room_channel_id, user_id, message_id, timestamp
		FROM posts WHERE room_channel_id = $1
	`, snowflakeString(channelID))
	if err != nil {
		return nil, err
	}
	return scanPgPosts(rows)
}

// ActivePostsByUser retrieves a user's posts that are still inside their
// room's cooldown at `now`.
func (s *PostgresStore) ActivePostsByUser(ctx context.Context, userID uint64, now time.Time) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.room_channel_id, p.user_id, p.message_id, p.timestamp
		FROM posts p
		JOIN rooms r ON p.room_channel_id = r.channel_id
		WHERE p.user_id = $1 AND $2 - p.timestamp < r.cooldown
	`, snowflakeString(userID), now.UTC().Unix())
	if err != nil {
		return nil, err
	}
	return scanPgPosts(rows)
}

// ExpiredPosts retrieves posts whose age meets or exceeds their room's
// cooldown at `now`.
func (s *PostgresStore) ExpiredPosts(ctx context.Context, now time.Time) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.room_channel_id, p.user_id, p.message_id, p.timestamp
		FROM posts p
		JOIN rooms r ON p.room_channel_id = r.channel_id
		WHERE p.timestamp + r.cooldown <= $1
	`, now.UTC().Unix())
	if err != nil {
		return nil, err
	}
	return scanPgPosts(rows)
}

// CountRooms returns the total number of configured rooms.
func (s *PostgresStore) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

// CountPosts returns the total number of post rows, swept or not.
func (s *PostgresStore) CountPosts(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&count)
	return count, err
}
