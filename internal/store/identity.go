package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/satchelwiki/satchel/internal/model"
)

// CreateUser inserts a new user and returns it with the assigned id.
// Returns model.ConflictError when username or email is taken.
func (s *Store) CreateUser(ctx context.Context, user model.User) (*model.User, error) {
	if user.Username == "" {
		return nil, model.NewValidationError("username", "username must be non-empty")
	}
	if user.Email == "" {
		return nil, model.NewValidationError("email", "email must be non-empty")
	}
	if len(user.Verifier) == 0 {
		return nil, model.NewValidationError("verifier", "password verifier must be non-empty")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, email, verifier, is_admin)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, user.Username, user.Email, user.Verifier, user.IsAdmin)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("create user: rows affected: %w", err)
	}
	if affected == 0 {
		return nil, model.NewConflictError("user", user.Username)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create user: last insert id: %w", err)
	}
	user.ID = id
	return &user, nil
}

// UpdateUser replaces a user's email, verifier, and admin flag.
// Returns model.NotFoundError for unknown usernames.
func (s *Store) UpdateUser(ctx context.Context, user model.User) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = ?, verifier = ?, is_admin = ? WHERE username = ?
	`, user.Email, user.Verifier, user.IsAdmin, user.Username)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user: rows affected: %w", err)
	}
	if affected == 0 {
		return model.NewNotFoundError("user", user.Username)
	}
	return nil
}

// GetUserByName retrieves a user by username.
// Returns model.NotFoundError if absent.
func (s *Store) GetUserByName(ctx context.Context, username string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, verifier, is_admin FROM users WHERE username = ?
	`, username)
	return scanUser(row, username)
}

// GetUserByID retrieves a user by id.
// Returns model.NotFoundError if absent.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, verifier, is_admin FROM users WHERE id = ?
	`, id)
	return scanUser(row, fmt.Sprintf("#%d", id))
}

// CountUsers returns the number of user accounts. Zero means the store is
// in first-guest bootstrap mode.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return count, nil
}

// ListUsers returns all users ordered by username.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, verifier, is_admin FROM users ORDER BY username ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Username, &u.Email, &u.Verifier, &u.IsAdmin); err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func scanUser(row rowScanner, name string) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Verifier, &u.IsAdmin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("user", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CreateRole inserts a role and returns it with the assigned id.
// Returns model.ConflictError when the name is taken.
func (s *Store) CreateRole(ctx context.Context, role model.Role) (*model.Role, error) {
	if role.Name == "" {
		return nil, model.NewValidationError("name", "role name must be non-empty")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (name, description)
		VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, role.Name, role.Description)
	if err != nil {
		return nil, fmt.Errorf("create role: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("create role: rows affected: %w", err)
	}
	if affected == 0 {
		return nil, model.NewConflictError("role", role.Name)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create role: last insert id: %w", err)
	}
	role.ID = id
	return &role, nil
}

// GetRoleByName retrieves a role by name.
// Returns model.NotFoundError if absent.
func (s *Store) GetRoleByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description FROM roles WHERE name = ?
	`, name).Scan(&role.ID, &role.Name, &role.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("role", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get role: %w", err)
	}
	return &role, nil
}

// DeleteRole removes a role by name. The user_roles foreign key cascades
// the user-role links; ACL rows referencing the role are intentionally
// left in place and ignored at check time.
func (s *Store) DeleteRole(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete role: rows affected: %w", err)
	}
	if affected == 0 {
		return model.NewNotFoundError("role", name)
	}
	return nil
}

// AssignRole links a user to a role. Idempotent.
func (s *Store) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, userID, roleID)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// RemoveRole unlinks a user from a role. No-op if the link is absent.
func (s *Store) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM user_roles WHERE user_id = ? AND role_id = ?
	`, userID, roleID)
	if err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	return nil
}

// RoleIDsForUser returns the ids of all roles held by a user, ascending.
// Returns an empty slice (not nil) for users with no roles.
func (s *Store) RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role_id FROM user_roles WHERE user_id = ? ORDER BY role_id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("roles for user: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("roles for user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}
	return ids, nil
}
