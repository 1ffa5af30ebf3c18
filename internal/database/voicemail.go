package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/autovox/autovox/internal/database/models"
)

// voicemailMessageRepo implements VoicemailMessageRepository.
type voicemailMessageRepo struct {
	db *DB
}

// NewVoicemailMessageRepository creates a new VoicemailMessageRepository.
func NewVoicemailMessageRepository(db *DB) VoicemailMessageRepository {
	return &voicemailMessageRepo{db: db}
}

// SaveVoicemail inserts the metadata row for a stored voicemail file.
func (r *voicemailMessageRepo) SaveVoicemail(ctx context.Context, callID, callerNumber, path string, duration time.Duration) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO voicemail_messages (call_id, caller_id_num, timestamp,
		 duration, file_path, read, read_at)
		 VALUES (?, ?, ?, ?, ?, 0, NULL)`,
		callID, callerNumber, time.Now().UTC(), int(duration.Seconds()), path,
	)
	if err != nil {
		return fmt.Errorf("inserting voicemail message: %w", err)
	}
	return nil
}

// GetByID returns a voicemail message by ID, or nil if absent.
func (r *voicemailMessageRepo) GetByID(ctx context.Context, id int64) (*models.VoicemailMessage, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, call_id, caller_id_num, timestamp, duration,
		 file_path, read, read_at, created_at
		 FROM voicemail_messages WHERE id = ?`, id,
	))
}

// List returns voicemail messages ordered by timestamp descending. When
// unreadOnly is set, only unread messages are returned.
func (r *voicemailMessageRepo) List(ctx context.Context, unreadOnly bool) ([]models.VoicemailMessage, error) {
	query := `SELECT id, call_id, caller_id_num, timestamp, duration,
		 file_path, read, read_at, created_at
		 FROM voicemail_messages`
	if unreadOnly {
		query += " WHERE read = 0"
	}
	query += " ORDER BY timestamp DESC"

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying voicemail messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.VoicemailMessage
	for rows.Next() {
		var m models.VoicemailMessage
		if err := rows.Scan(&m.ID, &m.CallID, &m.CallerIDNum, &m.Timestamp,
			&m.Duration, &m.FilePath, &m.Read, &m.ReadAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning voicemail row: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating voicemail rows: %w", err)
	}
	return msgs, nil
}

// MarkRead flags a voicemail message as read.
func (r *voicemailMessageRepo) MarkRead(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE voicemail_messages SET read = 1, read_at = datetime('now') WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking voicemail read: %w", err)
	}
	return nil
}

// Delete removes a voicemail message row and returns its file path so the
// caller can remove the WAV from disk.
func (r *voicemailMessageRepo) Delete(ctx context.Context, id int64) (string, error) {
	var path string
	err := r.db.QueryRowContext(ctx,
		`SELECT file_path FROM voicemail_messages WHERE id = ?`, id).Scan(&path)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("voicemail message %d not found", id)
	}
	if err != nil {
		return "", fmt.Errorf("querying voicemail path: %w", err)
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM voicemail_messages WHERE id = ?`, id); err != nil {
		return "", fmt.Errorf("deleting voicemail message: %w", err)
	}
	return path, nil
}

// CountUnread returns the number of unread voicemail messages.
func (r *voicemailMessageRepo) CountUnread(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM voicemail_messages WHERE read = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread voicemail: %w", err)
	}
	return count, nil
}

func (r *voicemailMessageRepo) scanOne(row *sql.Row) (*models.VoicemailMessage, error) {
	var m models.VoicemailMessage
	err := row.Scan(&m.ID, &m.CallID, &m.CallerIDNum, &m.Timestamp,
		&m.Duration, &m.FilePath, &m.Read, &m.ReadAt, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning voicemail message: %w", err)
	}
	return &m, nil
}
