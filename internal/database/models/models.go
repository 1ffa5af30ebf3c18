// Package models defines the database row types.
package models

import "time"

// CallRecord is one row of the call log.
type CallRecord struct {
	ID            int64     `json:"id"`
	CallID        string    `json:"call_id"`
	CallerIDName  string    `json:"caller_id_name"`
	CallerIDNum   string    `json:"caller_id_num"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Duration      int       `json:"duration"`
	Digits        string    `json:"digits"`
	RecordingFile string    `json:"recording_file"`
	VoicemailFile string    `json:"voicemail_file"`
	CreatedAt     time.Time `json:"created_at"`
}

// VoicemailMessage is one stored voicemail.
type VoicemailMessage struct {
	ID          int64      `json:"id"`
	CallID      string     `json:"call_id"`
	CallerIDNum string     `json:"caller_id_num"`
	Timestamp   time.Time  `json:"timestamp"`
	Duration    int        `json:"duration"`
	FilePath    string     `json:"file_path"`
	Read        bool       `json:"read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
