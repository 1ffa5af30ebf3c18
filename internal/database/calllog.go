package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/autovox/autovox/internal/call"
	"github.com/autovox/autovox/internal/database/models"
)

// callLogRepo implements CallLogRepository.
type callLogRepo struct {
	db *DB
}

// NewCallLogRepository creates a new CallLogRepository.
func NewCallLogRepository(db *DB) CallLogRepository {
	return &callLogRepo{db: db}
}

// Record inserts the call detail record written at call end.
func (r *callLogRepo) Record(ctx context.Context, entry call.LogEntry) error {
	duration := int(entry.EndedAt.Sub(entry.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO call_log (call_id, caller_id_name, caller_id_num,
		 start_time, end_time, duration, digits, recording_file, voicemail_file)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.CallID, entry.CallerName, entry.CallerNumber,
		entry.StartedAt.UTC(), entry.EndedAt.UTC(), duration,
		entry.Digits, entry.RecordingPath, entry.VoicemailPath,
	)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}
	return nil
}

// GetByCallID returns a call record by SIP Call-ID, or nil if absent.
func (r *callLogRepo) GetByCallID(ctx context.Context, callID string) (*models.CallRecord, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, call_id, caller_id_name, caller_id_num, start_time,
		 end_time, duration, digits, recording_file, voicemail_file, created_at
		 FROM call_log WHERE call_id = ?`, callID,
	))
}

// List returns call records matching the filter, along with the total count.
func (r *callLogRepo) List(ctx context.Context, filter CallLogListFilter) ([]models.CallRecord, int, error) {
	where := "1=1"
	args := []any{}

	if filter.Search != "" {
		where += " AND (caller_id_name LIKE ? OR caller_id_num LIKE ?)"
		s := "%" + filter.Search + "%"
		args = append(args, s, s)
	}
	if filter.StartDate != "" {
		where += " AND start_time >= ?"
		args = append(args, filter.StartDate)
	}
	if filter.EndDate != "" {
		where += " AND start_time <= ?"
		args = append(args, filter.EndDate)
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM call_log WHERE " + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting call records: %w", err)
	}

	query := `SELECT id, call_id, caller_id_name, caller_id_num, start_time,
		 end_time, duration, digits, recording_file, voicemail_file, created_at
		 FROM call_log WHERE ` + where + ` ORDER BY start_time DESC LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("listing call records: %w", err)
	}
	defer rows.Close()

	records, err := scanCallRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListRecent returns the most recent call records up to the given limit.
func (r *callLogRepo) ListRecent(ctx context.Context, limit int) ([]models.CallRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, call_id, caller_id_name, caller_id_num, start_time,
		 end_time, duration, digits, recording_file, voicemail_file, created_at
		 FROM call_log ORDER BY start_time DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent call records: %w", err)
	}
	defer rows.Close()

	return scanCallRecords(rows)
}

func scanCallRecords(rows *sql.Rows) ([]models.CallRecord, error) {
	var records []models.CallRecord
	for rows.Next() {
		var c models.CallRecord
		if err := rows.Scan(&c.ID, &c.CallID, &c.CallerIDName, &c.CallerIDNum,
			&c.StartTime, &c.EndTime, &c.Duration, &c.Digits,
			&c.RecordingFile, &c.VoicemailFile, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning call record row: %w", err)
		}
		records = append(records, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating call record rows: %w", err)
	}
	return records, nil
}

func (r *callLogRepo) scanOne(row *sql.Row) (*models.CallRecord, error) {
	var c models.CallRecord
	err := row.Scan(&c.ID, &c.CallID, &c.CallerIDName, &c.CallerIDNum,
		&c.StartTime, &c.EndTime, &c.Duration, &c.Digits,
		&c.RecordingFile, &c.VoicemailFile, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call record: %w", err)
	}
	return &c, nil
}
