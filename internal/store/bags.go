package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/satchelwiki/satchel/internal/model"
)

// CreateBag inserts a new bag. Returns model.ConflictError if a bag with
// the same name already exists. Bag names are immutable once created.
func (s *Store) CreateBag(ctx context.Context, bag model.Bag) error {
	if bag.Name == "" {
		return model.NewValidationError("name", "bag name must be non-empty")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bags (name, description, title_prefix, everyone_readable, normally_writable)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING
	`, bag.Name, bag.Description, prefixValue(bag.Partition), flagValue(bag.Partition, true), flagValue(bag.Partition, false))
	if err != nil {
		return fmt.Errorf("create bag: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create bag: rows affected: %w", err)
	}
	if affected == 0 {
		return model.NewConflictError("bag", bag.Name)
	}
	return nil
}

// UpdateBag replaces a bag's description and partition policy.
// The name is immutable. Returns model.NotFoundError for unknown bags.
func (s *Store) UpdateBag(ctx context.Context, bag model.Bag) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bags
		SET description = ?, title_prefix = ?, everyone_readable = ?, normally_writable = ?
		WHERE name = ?
	`, bag.Description, prefixValue(bag.Partition), flagValue(bag.Partition, true), flagValue(bag.Partition, false), bag.Name)
	if err != nil {
		return fmt.Errorf("update bag: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update bag: rows affected: %w", err)
	}
	if affected == 0 {
		return model.NewNotFoundError("bag", bag.Name)
	}
	return nil
}

// GetBag retrieves a bag by name. Returns model.NotFoundError if absent.
func (s *Store) GetBag(ctx context.Context, name string) (*model.Bag, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, description, title_prefix, everyone_readable, normally_writable
		FROM bags
		WHERE name = ?
	`, name)

	bag, err := scanBag(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewNotFoundError("bag", name)
		}
		return nil, fmt.Errorf("get bag: %w", err)
	}
	return bag, nil
}

// ListBags returns all bags ordered by name.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListBags(ctx context.Context) ([]model.Bag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, title_prefix, everyone_readable, normally_writable
		FROM bags
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list bags: %w", err)
	}
	defer rows.Close()

	bags := []model.Bag{}
	for rows.Next() {
		bag, err := scanBag(rows)
		if err != nil {
			return nil, fmt.Errorf("list bags: %w", err)
		}
		bags = append(bags, *bag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bags: %w", err)
	}
	return bags, nil
}

// bagExistsTx checks a bag exists inside an open transaction.
func bagExistsTx(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM bags WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check bag: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBag(row rowScanner) (*model.Bag, error) {
	var bag model.Bag
	var prefix sql.NullString
	var readable, writable bool
	if err := row.Scan(&bag.Name, &bag.Description, &prefix, &readable, &writable); err != nil {
		return nil, err
	}
	if prefix.Valid || readable || writable {
		bag.Partition = &model.PartitionPolicy{
			TitlePrefix:      prefix.String,
			EveryoneReadable: readable,
			NormallyWritable: writable,
		}
	}
	return &bag, nil
}

func prefixValue(p *model.PartitionPolicy) any {
	if p == nil || p.TitlePrefix == "" {
		return nil
	}
	return p.TitlePrefix
}

func flagValue(p *model.PartitionPolicy, readable bool) bool {
	if p == nil {
		return false
	}
	if readable {
		return p.EveryoneReadable
	}
	return p.NormallyWritable
}
