package staging

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"google.golang.org/genai"

	"gymchat/internal/models"
)

// GenaiUploader sends staged files to the Gemini Files API.
type GenaiUploader struct {
	client *genai.Client
}

func NewGenaiUploader(client *genai.Client) *GenaiUploader {
	return &GenaiUploader{client: client}
}

func (u *GenaiUploader) Upload(ctx context.Context, path, mimeType, displayName string) (*models.FileReference, error) {
	if u == nil || u.client == nil {
		return nil, errors.New("genai client not initialized")
	}
	file, err := u.client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{
		MIMEType:    mimeType,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, err
	}
	ref := &models.FileReference{
		Name:        file.Name,
		URI:         file.URI,
		MIMEType:    file.MIMEType,
		DisplayName: file.DisplayName,
	}
	if ref.MIMEType == "" {
		ref.MIMEType = mimeType
	}
	return ref, nil
}

// DefaultInlineLimit mirrors the request size most chat APIs accept for inline data.
const DefaultInlineLimit = 20 << 20

// InlineUploader is used for providers without a file API: the staged file is
// read back and embedded as a data URL. Accept, when set, limits the content
// types handed to the provider.
type InlineUploader struct {
	MaxBytes int64
	Accept   func(mimeType string) bool
}

func (u InlineUploader) Accepts(mimeType string) bool {
	return u.Accept == nil || u.Accept(mimeType)
}

func (u InlineUploader) Upload(_ context.Context, path, mimeType, displayName string) (*models.FileReference, error) {
	limit := u.MaxBytes
	if limit <= 0 {
		limit = DefaultInlineLimit
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("file too large for inline upload: %d > %d bytes", info.Size(), limit)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return &models.FileReference{
		Name:        "inline:" + displayName,
		URI:         fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data)),
		MIMEType:    mimeType,
		DisplayName: displayName,
	}, nil
}
