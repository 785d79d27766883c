package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"gymchat/internal/models"
	"gymchat/internal/service/ai"
)

var (
	// ErrEmptyRequest is returned when nothing usable reached the turn.
	ErrEmptyRequest = errors.New("request has no message and no usable files")
	// ErrFileProcessing aborts the request when an attachment cannot be read.
	ErrFileProcessing = errors.New("process files")
	// ErrInference wraps failures reported by the conversation.
	ErrInference = errors.New("ai inference")
)

// FileStore appends uploaded files to durable storage.
type FileStore interface {
	Persist(ctx context.Context, file *models.UploadedFile) (int64, error)
}

// Stager makes a payload addressable by the AI provider.
type Stager interface {
	Stage(ctx context.Context, data []byte, displayName, mimeType string) (*models.FileReference, error)
}

// Conversation is the AI session the turn is sent to.
type Conversation interface {
	Ready() error
	Send(ctx context.Context, sessionID string, turn *models.ChatTurn) (string, error)
}

// Attachment is one uploaded part as received, before it is read.
type Attachment struct {
	Filename string
	MimeType string
	Open     func() (io.ReadCloser, error)
}

type Request struct {
	ID          string
	SessionID   string
	Message     string
	Attachments []Attachment
}

// Result is returned for every request, also alongside an error, so callers
// can report what happened to each file.
type Result struct {
	Reply string               `json:"response"`
	Files []models.FileOutcome `json:"files"`
}

// Service runs the chat pipeline: persist and stage every attachment, then
// send the assembled turn.
type Service struct {
	files  FileStore
	stager Stager
	conv   Conversation
}

func NewService(files FileStore, stager Stager, conv Conversation) *Service {
	if conv == nil {
		conv = ai.DisabledSession{}
	}
	return &Service{files: files, stager: stager, conv: conv}
}

// Handle processes one request. Persistence and staging failures are
// recorded per file and never abort the request.
func (s *Service) Handle(ctx context.Context, req Request) (*Result, error) {
	res := &Result{Files: make([]models.FileOutcome, 0, len(req.Attachments))}
	turn := &models.ChatTurn{}
	if req.Message != "" {
		turn.AddText(req.Message)
	}

	readyErr := s.conv.Ready()
	for i, att := range req.Attachments {
		outcome, ref, err := s.processAttachment(ctx, req.ID, att, readyErr == nil)
		if err != nil {
			log.Printf("[chat %s] attachment %d (%s): %v", req.ID, i, att.Filename, err)
			return res, fmt.Errorf("%w: %s: %w", ErrFileProcessing, att.Filename, err)
		}
		res.Files = append(res.Files, outcome)
		turn.AddFile(ref)
	}

	if readyErr != nil {
		return res, readyErr
	}
	if turn.Empty() {
		return res, ErrEmptyRequest
	}

	reply, err := s.conv.Send(ctx, req.SessionID, turn)
	if err != nil {
		log.Printf("[chat %s] send failed: %v", req.ID, err)
		return res, fmt.Errorf("%w: %w", ErrInference, err)
	}
	res.Reply = reply
	return res, nil
}

// processAttachment reads one attachment, persists it and, when stage is
// set, stages it. Only a read failure is returned as an error.
func (s *Service) processAttachment(ctx context.Context, reqID string, att Attachment, stage bool) (models.FileOutcome, *models.FileReference, error) {
	if strings.TrimSpace(att.Filename) == "" {
		return models.FileOutcome{Status: models.FileStatusSkipped}, nil, nil
	}
	data, err := readAttachment(att)
	if err != nil {
		return models.FileOutcome{}, nil, err
	}

	name := sanitizeFileName(att.Filename)
	mimeType := strings.TrimSpace(att.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = detectMimeType(data)
	}
	outcome := models.FileOutcome{
		FileName: name,
		MimeType: mimeType,
		Size:     int64(len(data)),
	}

	record := &models.UploadedFile{
		FileName: name,
		MimeType: mimeType,
		Data:     data,
		Size:     int64(len(data)),
	}
	if s.files == nil {
		outcome.PersistError = "file store unavailable"
	} else if id, err := s.files.Persist(ctx, record); err != nil {
		log.Printf("[chat %s] persist %s failed: %v", reqID, name, err)
		outcome.PersistError = err.Error()
	} else {
		outcome.Persisted = true
		outcome.RecordID = id
		if !record.UploadedAt.IsZero() {
			uploadedAt := record.UploadedAt
			outcome.UploadedAt = &uploadedAt
		}
	}

	var ref *models.FileReference
	if stage {
		if s.stager == nil {
			outcome.StageError = "staging unavailable"
		} else if ref, err = s.stager.Stage(ctx, data, name, mimeType); err != nil {
			log.Printf("[chat %s] stage %s failed: %v", reqID, name, err)
			outcome.StageError = err.Error()
			ref = nil
		} else {
			outcome.Staged = true
		}
	}
	outcome.Resolve()
	return outcome, ref, nil
}

func readAttachment(att Attachment) ([]byte, error) {
	if att.Open == nil {
		return nil, errors.New("attachment has no content")
	}
	rc, err := att.Open()
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	return data, nil
}
