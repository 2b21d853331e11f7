package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/satchelwiki/satchel/internal/model"
)

// attachmentChunkSize bounds how much payload is held in memory at once
// on either side of a blob transfer.
const attachmentChunkSize = 64 * 1024

// SaveTiddlerBlob appends a revision whose payload is streamed from r
// into chunked attachment rows, never holding more than one chunk in
// memory. The revision's field map carries only title and type; the
// bytes live behind the attachment id (a UUIDv7).
func (s *Store) SaveTiddlerBlob(ctx context.Context, bag, title, contentType string, r io.Reader) (*model.Revision, error) {
	title = model.NormalizeTitle(title)
	if title == "" {
		return nil, model.NewValidationError("title", "title must be non-empty")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	fields := model.Fields{"title": title, "type": contentType}
	fieldsJSON, err := marshalFields(fields)
	if err != nil {
		return nil, fmt.Errorf("save tiddler blob: %w", err)
	}

	attachmentID := uuid.Must(uuid.NewV7()).String()

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("save tiddler blob: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	exists, err := bagExistsTx(ctx, tx, bag)
	if err != nil {
		return nil, fmt.Errorf("save tiddler blob: %w", err)
	}
	if !exists {
		return nil, model.NewNotFoundError("bag", bag)
	}

	if err := writeChunks(ctx, tx, attachmentID, r); err != nil {
		return nil, fmt.Errorf("save tiddler blob: %w", err)
	}

	id, err := nextRevisionID(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("save tiddler blob: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO revisions (revision_id, bag_name, title, type, fields, is_deleted, attachment_id)
		VALUES (?, ?, ?, ?, ?, 0, ?)
	`, id, bag, title, contentType, fieldsJSON, attachmentID); err != nil {
		return nil, fmt.Errorf("save tiddler blob: insert revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save tiddler blob: commit: %w", err)
	}

	return &model.Revision{
		ID:           id,
		Bag:          bag,
		Title:        title,
		Type:         contentType,
		Fields:       fields,
		AttachmentID: attachmentID,
	}, nil
}

// GetTiddlerStream returns the current revision of a title together with
// a reader over its payload. Attachment-backed revisions stream chunk by
// chunk; inline revisions read from the text field. Returns (nil, nil,
// nil) when the title is absent or tombstoned.
//
// The caller must close the returned reader.
func (s *Store) GetTiddlerStream(ctx context.Context, bag, title string) (*model.Revision, io.ReadCloser, error) {
	rev, err := s.GetCurrentTiddler(ctx, bag, title)
	if err != nil {
		return nil, nil, err
	}
	if rev == nil {
		return nil, nil, nil
	}

	if rev.AttachmentID == "" {
		return rev, io.NopCloser(strings.NewReader(rev.Fields["text"])), nil
	}
	return rev, &chunkReader{ctx: ctx, db: s.db, attachmentID: rev.AttachmentID}, nil
}

// writeChunks drains r into attachment_chunks rows inside an open
// transaction.
func writeChunks(ctx context.Context, tx *sql.Tx, attachmentID string, r io.Reader) error {
	buf := make([]byte, attachmentChunkSize)
	seq := 0
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if _, execErr := tx.ExecContext(ctx, `
				INSERT INTO attachment_chunks (attachment_id, seq, content)
				VALUES (?, ?, ?)
			`, attachmentID, seq, chunk); execErr != nil {
				return fmt.Errorf("write chunk %d: %w", seq, execErr)
			}
			seq++
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read payload: %w", err)
		}
	}
}

// chunkReader streams attachment chunks one query at a time. The
// connection is released between chunks, so a slow consumer never pins
// the single-writer pool.
type chunkReader struct {
	ctx          context.Context
	db           *sql.DB
	attachmentID string
	seq          int
	pending      []byte
	done         bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 && !r.done {
		var content []byte
		err := r.db.QueryRowContext(r.ctx, `
			SELECT content FROM attachment_chunks
			WHERE attachment_id = ? AND seq = ?
		`, r.attachmentID, r.seq).Scan(&content)
		if errors.Is(err, sql.ErrNoRows) {
			r.done = true
		} else if err != nil {
			return 0, fmt.Errorf("read chunk %d: %w", r.seq, err)
		} else {
			r.pending = content
			r.seq++
		}
	}

	if len(r.pending) == 0 {
		return 0, io.EOF
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *chunkReader) Close() error {
	r.pending = nil
	r.done = true
	return nil
}
