package filestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"gymchat/internal/models"
	"gymchat/internal/storage"
)

var (
	// ErrPersist wraps every failure to append an uploaded file.
	ErrPersist = errors.New("persist uploaded file")
	// ErrSizeMismatch is returned when the declared size disagrees with the payload.
	ErrSizeMismatch = errors.New("file size does not match payload length")
)

// Store appends uploaded files to the uploaded_files table. Rows are never
// read back, updated or deleted through it.
type Store struct {
	db     *sql.DB
	driver string
}

func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Persist writes one immutable row and returns the identifier assigned by the
// database. Each call takes its own connection and a single-statement
// transaction; both are released before returning.
func (s *Store) Persist(ctx context.Context, file *models.UploadedFile) (id int64, err error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("%w: database unavailable", ErrPersist)
	}
	if file == nil || file.FileName == "" {
		return 0, fmt.Errorf("%w: filename is required", ErrPersist)
	}
	if file.Size != int64(len(file.Data)) {
		return 0, fmt.Errorf("%w: %w (size=%d, payload=%d)", ErrPersist, ErrSizeMismatch, file.Size, len(file.Data))
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: acquire connection: %w", ErrPersist, err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx: %w", ErrPersist, err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	id, err = s.insert(ctx, tx, file)
	if err != nil {
		return 0, fmt.Errorf("%w: insert %q: %w", ErrPersist, file.FileName, err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit: %w", ErrPersist, err)
	}
	file.ID = id
	log.Printf("file %q saved to database (id=%d, %d bytes)", file.FileName, id, file.Size)
	return id, nil
}

func (s *Store) insert(ctx context.Context, tx *sql.Tx, file *models.UploadedFile) (int64, error) {
	mimeType := sql.NullString{String: file.MimeType, Valid: file.MimeType != ""}
	var id int64
	switch s.driver {
	case storage.DriverPostgres:
		err := tx.QueryRowContext(ctx,
			`INSERT INTO uploaded_files (filename, mimetype, file_data, file_size, uploaded_at) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			file.FileName, mimeType, file.Data, file.Size, file.UploadedAt,
		).Scan(&id)
		return id, err
	case storage.DriverSQLite:
		err := tx.QueryRowContext(ctx,
			`INSERT INTO uploaded_files (filename, mimetype, file_data, file_size, uploaded_at) VALUES (?, ?, ?, ?, ?) RETURNING id`,
			file.FileName, mimeType, file.Data, file.Size, file.UploadedAt,
		).Scan(&id)
		return id, err
	case storage.DriverMySQL:
		res, err := tx.ExecContext(ctx,
			`INSERT INTO uploaded_files (filename, mimetype, file_data, file_size, uploaded_at) VALUES (?, ?, ?, ?, ?)`,
			file.FileName, mimeType, file.Data, file.Size, file.UploadedAt,
		)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	default:
		return 0, fmt.Errorf("unsupported driver: %s", s.driver)
	}
}
