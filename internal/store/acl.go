package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/satchelwiki/satchel/internal/model"
)

// CreateACL inserts an ACL record. Returns model.ConflictError when the
// (entity_type, entity_name, role_id, permission) tuple already exists.
func (s *Store) CreateACL(ctx context.Context, rec model.ACLRecord) (*model.ACLRecord, error) {
	if rec.EntityType != model.EntityTypeBag && rec.EntityType != model.EntityTypeRecipe {
		return nil, model.NewValidationError("entity_type", "must be bag or recipe")
	}
	if rec.EntityName == "" {
		return nil, model.NewValidationError("entity_name", "entity name must be non-empty")
	}
	if rec.Permission != model.PermissionRead && rec.Permission != model.PermissionWrite {
		return nil, model.NewValidationError("permission", "must be READ or WRITE")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO acl (entity_type, entity_name, role_id, permission)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, string(rec.EntityType), rec.EntityName, rec.RoleID, string(rec.Permission))
	if err != nil {
		return nil, fmt.Errorf("create acl: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("create acl: rows affected: %w", err)
	}
	if affected == 0 {
		return nil, model.NewConflictError("acl record", fmt.Sprintf("%s/%s", rec.EntityType, rec.EntityName))
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create acl: last insert id: %w", err)
	}
	rec.ID = id
	return &rec, nil
}

// DeleteACL removes an ACL record by id.
// Returns model.NotFoundError if absent.
func (s *Store) DeleteACL(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM acl WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete acl: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete acl: rows affected: %w", err)
	}
	if affected == 0 {
		return model.NewNotFoundError("acl record", fmt.Sprintf("#%d", id))
	}
	return nil
}

// ListACL returns all ACL records, optionally filtered to one entity.
// Pass empty entityName for no filter.
func (s *Store) ListACL(ctx context.Context, entityType model.EntityType, entityName string) ([]model.ACLRecord, error) {
	query := `SELECT id, entity_type, entity_name, role_id, permission FROM acl`
	args := []any{}
	if entityName != "" {
		query += ` WHERE entity_type = ? AND entity_name = ?`
		args = append(args, string(entityType), entityName)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list acl: %w", err)
	}
	defer rows.Close()

	recs := []model.ACLRecord{}
	for rows.Next() {
		var rec model.ACLRecord
		var et, perm string
		if err := rows.Scan(&rec.ID, &et, &rec.EntityName, &rec.RoleID, &perm); err != nil {
			return nil, fmt.Errorf("list acl: %w", err)
		}
		rec.EntityType = model.EntityType(et)
		rec.Permission = model.Permission(perm)
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate acl: %w", err)
	}
	return recs, nil
}

// HasACL reports whether any of the given roles holds the permission on
// the entity. The join against roles drops ACL rows orphaned by role
// deletion, so they can never grant access.
func (s *Store) HasACL(ctx context.Context, entityType model.EntityType, entityName string, roleIDs []int64, perm model.Permission) (bool, error) {
	if len(roleIDs) == 0 {
		return false, nil
	}

	placeholders := strings.Repeat("?, ", len(roleIDs)-1) + "?"
	args := []any{string(entityType), entityName, string(perm)}
	for _, id := range roleIDs {
		args = append(args, id)
	}

	var count int
	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM acl a
		JOIN roles r ON a.role_id = r.id
		WHERE a.entity_type = ? AND a.entity_name = ? AND a.permission = ? AND a.role_id IN (%s)
	`, placeholders)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check acl: %w", err)
	}
	return count > 0, nil
}
