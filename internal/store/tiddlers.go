package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/satchelwiki/satchel/internal/model"
)

// SaveTiddler appends a new revision of a tiddler to a bag.
//
// The field map must carry a non-empty title (model.ValidationError
// otherwise); the title is NFC-normalized before storage. The revision id
// is allocated inside the same transaction as the row insert, so commit
// order equals id order and no id exists without a committed row.
//
// Returns model.NotFoundError if the bag does not exist.
func (s *Store) SaveTiddler(ctx context.Context, bag string, fields model.Fields) (*model.Revision, error) {
	title, err := model.ValidateFields(fields)
	if err != nil {
		return nil, err
	}

	fields = fields.Clone()
	fields["title"] = title

	rev := model.Revision{
		Bag:    bag,
		Title:  title,
		Type:   model.TiddlerType(fields),
		Fields: fields,
	}
	if err := s.appendRevision(ctx, &rev); err != nil {
		return nil, fmt.Errorf("save tiddler: %w", err)
	}
	return &rev, nil
}

// DeleteTiddler appends a tombstone revision for a title. The tombstone
// takes a fresh revision id through the same allocation path as saves, so
// deletes participate in delta queries.
//
// Deleting a title that never existed still writes a tombstone; callers
// that need to distinguish must check existence first.
func (s *Store) DeleteTiddler(ctx context.Context, bag, title string) (*model.Revision, error) {
	title = model.NormalizeTitle(title)
	if title == "" {
		return nil, model.NewValidationError("title", "title must be non-empty")
	}

	rev := model.Revision{
		Bag:       bag,
		Title:     title,
		Type:      model.DefaultTiddlerType,
		Fields:    model.Fields{"title": title},
		IsDeleted: true,
	}
	if err := s.appendRevision(ctx, &rev); err != nil {
		return nil, fmt.Errorf("delete tiddler: %w", err)
	}
	return &rev, nil
}

// appendRevision runs the shared insert transaction: verify the bag,
// allocate the next store-wide id, insert the row, commit. On success the
// revision's ID field is filled in.
func (s *Store) appendRevision(ctx context.Context, rev *model.Revision) error {
	fieldsJSON, err := marshalFields(rev.Fields)
	if err != nil {
		return err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() // No-op if committed

	exists, err := bagExistsTx(ctx, tx, rev.Bag)
	if err != nil {
		return err
	}
	if !exists {
		return model.NewNotFoundError("bag", rev.Bag)
	}

	id, err := nextRevisionID(ctx, tx)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO revisions (revision_id, bag_name, title, type, fields, is_deleted, attachment_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, rev.Bag, rev.Title, rev.Type, fieldsJSON, rev.IsDeleted, nullable(rev.AttachmentID)); err != nil {
		return fmt.Errorf("insert revision: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	rev.ID = id
	return nil
}

// nextRevisionID allocates the next store-wide monotonic revision id
// inside an open transaction. The single-connection pool serializes
// writers, so no two transactions can observe the same MAX.
func nextRevisionID(ctx context.Context, tx *sql.Tx) (int64, error) {
	var id int64
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(revision_id), 0) + 1 FROM revisions
	`).Scan(&id); err != nil {
		return 0, fmt.Errorf("allocate revision id: %w", err)
	}
	return id, nil
}

// GetCurrentTiddler returns the latest non-tombstoned revision of a title
// in a bag, or nil if the title is absent or currently deleted.
func (s *Store) GetCurrentTiddler(ctx context.Context, bag, title string) (*model.Revision, error) {
	rev, err := s.GetLatestRevision(ctx, bag, title)
	if err != nil {
		return nil, err
	}
	if rev == nil || rev.IsDeleted {
		return nil, nil
	}
	return rev, nil
}

// GetLatestRevision returns the highest-id revision of a title in a bag,
// tombstone or not, or nil if the bag holds no revision of the title.
// Recipe resolution uses this: a tombstone still claims the title for its
// bag's layer.
func (s *Store) GetLatestRevision(ctx context.Context, bag, title string) (*model.Revision, error) {
	title = model.NormalizeTitle(title)
	row := s.db.QueryRowContext(ctx, `
		SELECT revision_id, bag_name, title, type, fields, is_deleted, attachment_id
		FROM revisions
		WHERE bag_name = ? AND title = ?
		ORDER BY revision_id DESC
		LIMIT 1
	`, bag, title)

	rev, err := scanRevision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest revision: %w", err)
	}
	return rev, nil
}

// ListCurrentTiddlers returns the current (highest-id, non-tombstoned)
// revision of every live title in a bag, ordered by title.
// Returns an empty slice (not nil) when the bag has no live titles.
func (s *Store) ListCurrentTiddlers(ctx context.Context, bag string) ([]model.Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.revision_id, r.bag_name, r.title, r.type, r.fields, r.is_deleted, r.attachment_id
		FROM revisions r
		JOIN (
			SELECT title, MAX(revision_id) AS max_id
			FROM revisions
			WHERE bag_name = ?
			GROUP BY title
		) m ON r.title = m.title AND r.revision_id = m.max_id
		WHERE r.bag_name = ? AND r.is_deleted = 0
		ORDER BY r.title ASC
	`, bag, bag)
	if err != nil {
		return nil, fmt.Errorf("list current tiddlers: %w", err)
	}
	defer rows.Close()

	return collectRevisions(rows)
}

// ListLatestRevisions returns the highest-id revision of every title in
// a bag, tombstones included, ordered by title. Recipe resolution merges
// these layer by layer: a tombstone row evicts the title from lower
// layers instead of contributing a document.
func (s *Store) ListLatestRevisions(ctx context.Context, bag string) ([]model.Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.revision_id, r.bag_name, r.title, r.type, r.fields, r.is_deleted, r.attachment_id
		FROM revisions r
		JOIN (
			SELECT title, MAX(revision_id) AS max_id
			FROM revisions
			WHERE bag_name = ?
			GROUP BY title
		) m ON r.title = m.title AND r.revision_id = m.max_id
		WHERE r.bag_name = ?
		ORDER BY r.title ASC
	`, bag, bag)
	if err != nil {
		return nil, fmt.Errorf("list latest revisions: %w", err)
	}
	defer rows.Close()

	return collectRevisions(rows)
}

// ChangesSince returns every revision across the given bags with id
// greater than cursor, ascending by id. Tombstones are included only when
// includeDeleted is set. Used by both delta listings and feed backlog
// replay; exactness depends on commit order equalling id order.
func (s *Store) ChangesSince(ctx context.Context, bags []string, cursor int64, includeDeleted bool) ([]model.Revision, error) {
	if len(bags) == 0 {
		return []model.Revision{}, nil
	}

	placeholders := strings.Repeat("?, ", len(bags)-1) + "?"
	args := make([]any, 0, len(bags)+1)
	args = append(args, cursor)
	for _, bag := range bags {
		args = append(args, bag)
	}

	query := fmt.Sprintf(`
		SELECT revision_id, bag_name, title, type, fields, is_deleted, attachment_id
		FROM revisions
		WHERE revision_id > ? AND bag_name IN (%s)
	`, placeholders)
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}
	query += ` ORDER BY revision_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("changes since: %w", err)
	}
	defer rows.Close()

	return collectRevisions(rows)
}

// LastRevisionID returns the highest allocated revision id, or 0 for an
// empty store.
func (s *Store) LastRevisionID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(revision_id), 0) FROM revisions
	`).Scan(&id); err != nil {
		return 0, fmt.Errorf("last revision id: %w", err)
	}
	return id, nil
}

func collectRevisions(rows *sql.Rows) ([]model.Revision, error) {
	revs := []model.Revision{}
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		revs = append(revs, *rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	return revs, nil
}

func scanRevision(row rowScanner) (*model.Revision, error) {
	var rev model.Revision
	var fieldsJSON string
	var attachment sql.NullString
	if err := row.Scan(&rev.ID, &rev.Bag, &rev.Title, &rev.Type, &fieldsJSON, &rev.IsDeleted, &attachment); err != nil {
		return nil, err
	}
	fields, err := unmarshalFields(fieldsJSON)
	if err != nil {
		return nil, err
	}
	rev.Fields = fields
	rev.AttachmentID = attachment.String
	return &rev, nil
}

func marshalFields(fields model.Fields) (string, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

func unmarshalFields(data string) (model.Fields, error) {
	var fields model.Fields
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return fields, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
