package scrobbler

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jfmyers9/webscrobbler/internal/storage"
	"github.com/jfmyers9/webscrobbler/pkg/lastfm"
)

// MaxScrobbleAge is how far back the service accepts scrobbles.
const MaxScrobbleAge = 14 * 24 * time.Hour

// Queue is a persistent queue of scrobbles waiting to be submitted, keyed
// by service label.
type Queue struct {
	db *sql.DB
}

// QueuedScrobble is one queued play.
type QueuedScrobble struct {
	ID        int64
	Label     string
	Song      lastfm.Song
	Scrobbled bool
	Error     string
	Attempts  int
}

const queueSchema = `
	CREATE TABLE IF NOT EXISTS scrobbles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		label TEXT NOT NULL,
		track_name TEXT NOT NULL,
		artist TEXT NOT NULL,
		album TEXT NOT NULL DEFAULT '',
		album_artist TEXT NOT NULL DEFAULT '',
		duration INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL,
		scrobbled BOOLEAN DEFAULT 0,
		error TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
	);

	CREATE INDEX IF NOT EXISTS idx_label_scrobbled ON scrobbles(label, scrobbled, timestamp);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON scrobbles(timestamp);
`

// NewQueue opens the queue database at dbPath.
func NewQueue(dbPath string) (*Queue, error) {
	db, err := storage.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(queueSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Queue{db: db}, nil
}

// Close closes the database connection
func (q *Queue) Close() error {
	if q.db != nil {
		return q.db.Close()
	}
	return nil
}

// Add queues song for label.
func (q *Queue) Add(ctx context.Context, label string, song lastfm.Song) (int64, error) {
	query := `
		INSERT INTO scrobbles (label, track_name, artist, album, album_artist, duration, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := q.db.ExecContext(ctx, query,
		label,
		song.Track,
		song.Artist,
		song.Album,
		song.AlbumArtist,
		int64(song.Duration.Seconds()),
		song.StartTimestamp.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert scrobble: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert id: %w", err)
	}

	return id, nil
}

// MarkScrobbledBatch marks several scrobbles as submitted in one transaction.
func (q *Queue) MarkScrobbledBatch(ctx context.Context, ids []int64) error {
	return q.updateBatch(ctx, ids, "UPDATE scrobbles SET scrobbled = 1, error = NULL WHERE id = ?")
}

// MarkErrorBatch records a failed attempt for several scrobbles.
func (q *Queue) MarkErrorBatch(ctx context.Context, ids []int64, errMsg string) error {
	return q.updateBatch(ctx, ids, "UPDATE scrobbles SET error = ?, attempts = attempts + 1 WHERE id = ?", errMsg)
}

func (q *Queue) updateBatch(ctx context.Context, ids []int64, query string, args ...any) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, append(args, id)...); err != nil {
			return fmt.Errorf("failed to update scrobble %d: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const selectColumns = `
	SELECT id, label, track_name, artist, album, album_artist, duration, timestamp, scrobbled, COALESCE(error, ''), attempts
	FROM scrobbles
`

// GetPending returns unsubmitted scrobbles for label, oldest first. An
// empty label matches every label; limit <= 0 means no limit.
func (q *Queue) GetPending(ctx context.Context, label string, limit int) ([]QueuedScrobble, error) {
	var (
		where []string
		args  []any
	)
	where = append(where, "scrobbled = 0")
	if label != "" {
		where = append(where, "label = ?")
		args = append(args, label)
	}

	query := selectColumns + " WHERE " + strings.Join(where, " AND ") + " ORDER BY timestamp ASC, id ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	return q.query(ctx, query, args...)
}

// GetAll returns every row, newest first.
func (q *Queue) GetAll(ctx context.Context) ([]QueuedScrobble, error) {
	return q.query(ctx, selectColumns+" ORDER BY timestamp DESC, id DESC")
}

func (q *Queue) query(ctx context.Context, query string, args ...any) ([]QueuedScrobble, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrobbles: %w", err)
	}
	defer rows.Close()

	var scrobbles []QueuedScrobble
	for rows.Next() {
		var (
			s             QueuedScrobble
			durationSecs  int64
			timestampUnix int64
		)

		err := rows.Scan(
			&s.ID,
			&s.Label,
			&s.Song.Track,
			&s.Song.Artist,
			&s.Song.Album,
			&s.Song.AlbumArtist,
			&durationSecs,
			&timestampUnix,
			&s.Scrobbled,
			&s.Error,
			&s.Attempts,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scrobble: %w", err)
		}

		s.Song.Duration = time.Duration(durationSecs) * time.Second
		s.Song.StartTimestamp = time.Unix(timestampUnix, 0)

		scrobbles = append(scrobbles, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scrobbles: %w", err)
	}

	return scrobbles, nil
}

// Cleanup deletes submitted scrobbles older than maxAge. Pending ones are
// kept.
func (q *Queue) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	result, err := q.db.ExecContext(ctx, "DELETE FROM scrobbles WHERE scrobbled = 1 AND timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old scrobbles: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// CleanupExpired deletes unsubmitted scrobbles older than MaxScrobbleAge,
// which the service would ignore. Whether an attempt was recorded does not
// matter: entries held back by an auth error never get one.
func (q *Queue) CleanupExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-MaxScrobbleAge).Unix()

	result, err := q.db.ExecContext(ctx, "DELETE FROM scrobbles WHERE scrobbled = 0 AND timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired scrobbles: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}

// Count returns the number of rows for label (all labels when empty).
// Submitted rows are only counted when includeScrobbled is set.
func (q *Queue) Count(ctx context.Context, label string, includeScrobbled bool) (int, error) {
	var (
		where []string
		args  []any
	)
	if !includeScrobbled {
		where = append(where, "scrobbled = 0")
	}
	if label != "" {
		where = append(where, "label = ?")
		args = append(args, label)
	}

	query := "SELECT COUNT(*) FROM scrobbles"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}

	var count int
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count scrobbles: %w", err)
	}

	return count, nil
}
