package database

import (
	"context"
	"time"

	"github.com/autovox/autovox/internal/call"
	"github.com/autovox/autovox/internal/database/models"
)

// CallLogListFilter selects and paginates call log rows.
type CallLogListFilter struct {
	Search    string // matches caller name or number
	StartDate string // inclusive, RFC 3339 or YYYY-MM-DD
	EndDate   string // inclusive
	Limit     int
	Offset    int
}

// CallLogRepository persists call detail records. Record satisfies the
// session controller's CallLog interface.
type CallLogRepository interface {
	Record(ctx context.Context, entry call.LogEntry) error
	GetByCallID(ctx context.Context, callID string) (*models.CallRecord, error)
	List(ctx context.Context, filter CallLogListFilter) ([]models.CallRecord, int, error)
	ListRecent(ctx context.Context, limit int) ([]models.CallRecord, error)
}

// VoicemailMessageRepository persists voicemail metadata. SaveVoicemail
// satisfies the session controller's VoicemailSink interface.
type VoicemailMessageRepository interface {
	SaveVoicemail(ctx context.Context, callID, callerNumber, path string, duration time.Duration) error
	GetByID(ctx context.Context, id int64) (*models.VoicemailMessage, error)
	List(ctx context.Context, unreadOnly bool) ([]models.VoicemailMessage, error)
	MarkRead(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) (string, error)
	CountUnread(ctx context.Context) (int, error)
}
