package models

import "time"

// UploadedFile is one immutable row of the durable file store.
type UploadedFile struct {
	ID         int64     `json:"id"`
	FileName   string    `json:"filename"`
	MimeType   string    `json:"mimetype,omitempty"`
	Data       []byte    `json:"-"`
	Size       int64     `json:"file_size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// FileStatus is the per-request verdict for one attachment.
type FileStatus string

const (
	FileStatusStaged    FileStatus = "staged"
	FileStatusPersisted FileStatus = "persisted"
	FileStatusSkipped   FileStatus = "skipped"
	FileStatusFailed    FileStatus = "failed"
)

// FileOutcome records what happened to one attachment while a request was handled.
type FileOutcome struct {
	FileName     string     `json:"filename"`
	MimeType     string     `json:"mimetype,omitempty"`
	Size         int64      `json:"size"`
	RecordID     int64      `json:"record_id,omitempty"`
	UploadedAt   *time.Time `json:"uploaded_at,omitempty"`
	Status       FileStatus `json:"status"`
	Persisted    bool       `json:"persisted"`
	Staged       bool       `json:"staged"`
	PersistError string     `json:"persist_error,omitempty"`
	StageError   string     `json:"stage_error,omitempty"`
}

// Resolve derives Status from the persisted/staged flags.
func (o *FileOutcome) Resolve() {
	switch {
	case o.Status == FileStatusSkipped:
	case o.Staged:
		o.Status = FileStatusStaged
	case o.Persisted:
		o.Status = FileStatusPersisted
	default:
		o.Status = FileStatusFailed
	}
}
