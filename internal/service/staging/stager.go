package staging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gymchat/internal/models"
)

var (
	// ErrStage wraps every failure to hand a payload to the AI provider.
	ErrStage           = errors.New("stage file")
	ErrUnsupportedType = errors.New("content type not accepted by the AI provider")
)

const stagePrefix = "stage-"

// Uploader registers a file on disk with the AI provider.
type Uploader interface {
	Upload(ctx context.Context, path, mimeType, displayName string) (*models.FileReference, error)
}

// typeFilter is implemented by uploaders whose provider only takes some
// content types.
type typeFilter interface {
	Accepts(mimeType string) bool
}

// Stager writes payloads to a transient file, uploads it, and always removes
// the transient file before returning.
type Stager struct {
	dir      string
	uploader Uploader
}

func New(dir string, uploader Uploader) (*Stager, error) {
	if uploader == nil {
		return nil, errors.New("uploader required")
	}
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "gymchat-staging")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Stager{dir: dir, uploader: uploader}, nil
}

// Stage uploads data under displayName. The suffix of displayName is kept on
// the transient file so providers that sniff extensions see the right type.
func (s *Stager) Stage(ctx context.Context, data []byte, displayName, mimeType string) (*models.FileReference, error) {
	if f, ok := s.uploader.(typeFilter); ok && !f.Accepts(mimeType) {
		return nil, fmt.Errorf("%w: %s is %s: %w", ErrStage, displayName, mimeType, ErrUnsupportedType)
	}
	suffix := sanitizeSuffix(filepath.Ext(displayName))
	tmp, err := os.CreateTemp(s.dir, stagePrefix+"*"+suffix)
	if err != nil {
		return nil, fmt.Errorf("%w: create transient file: %w", ErrStage, err)
	}
	path := tmp.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("remove staged file %s failed: %v", path, err)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%w: write transient file: %w", ErrStage, err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("%w: close transient file: %w", ErrStage, err)
	}

	ref, err := s.uploader.Upload(ctx, path, mimeType, displayName)
	if err != nil {
		return nil, fmt.Errorf("%w: upload %q: %w", ErrStage, displayName, err)
	}
	if ref == nil {
		return nil, fmt.Errorf("%w: upload %q returned no reference", ErrStage, displayName)
	}
	if ref.DisplayName == "" {
		ref.DisplayName = displayName
	}
	return ref, nil
}

func sanitizeSuffix(ext string) string {
	if ext == "" || len(ext) > 16 || strings.ContainsAny(ext, `/\*`) {
		return ""
	}
	return ext
}
