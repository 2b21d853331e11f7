package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/satchelwiki/satchel/internal/model"
)

// CreateRecipe inserts a recipe and its ordered bag list atomically.
// The recipe must reference at least one existing bag. Returns
// model.ConflictError if the name is taken and model.NotFoundError if a
// referenced bag does not exist.
func (s *Store) CreateRecipe(ctx context.Context, recipe model.Recipe) error {
	if recipe.Name == "" {
		return model.NewValidationError("name", "recipe name must be non-empty")
	}
	if err := validateRecipeBags(recipe.Bags); err != nil {
		return err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("create recipe: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO recipes (name, description)
		VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, recipe.Name, recipe.Description)
	if err != nil {
		return fmt.Errorf("create recipe: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create recipe: rows affected: %w", err)
	}
	if affected == 0 {
		return model.NewConflictError("recipe", recipe.Name)
	}

	if err := insertRecipeBags(ctx, tx, recipe); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create recipe: commit: %w", err)
	}
	return nil
}

// UpdateRecipe replaces a recipe's description and bag list atomically.
// Returns model.NotFoundError for unknown recipes.
func (s *Store) UpdateRecipe(ctx context.Context, recipe model.Recipe) error {
	if err := validateRecipeBags(recipe.Bags); err != nil {
		return err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("update recipe: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE recipes SET description = ? WHERE name = ?
	`, recipe.Description, recipe.Name)
	if err != nil {
		return fmt.Errorf("update recipe: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update recipe: rows affected: %w", err)
	}
	if affected == 0 {
		return model.NewNotFoundError("recipe", recipe.Name)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_bags WHERE recipe_name = ?`, recipe.Name); err != nil {
		return fmt.Errorf("update recipe: clear bag list: %w", err)
	}
	if err := insertRecipeBags(ctx, tx, recipe); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update recipe: commit: %w", err)
	}
	return nil
}

// GetRecipe retrieves a recipe with its bag list in ascending position
// order. Returns model.NotFoundError if absent.
func (s *Store) GetRecipe(ctx context.Context, name string) (*model.Recipe, error) {
	var recipe model.Recipe
	err := s.db.QueryRowContext(ctx, `
		SELECT name, description FROM recipes WHERE name = ?
	`, name).Scan(&recipe.Name, &recipe.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NewNotFoundError("recipe", name)
	}
	if err != nil {
		return nil, fmt.Errorf("get recipe: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT bag_name, position
		FROM recipe_bags
		WHERE recipe_name = ?
		ORDER BY position ASC
	`, name)
	if err != nil {
		return nil, fmt.Errorf("get recipe: bag list: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rb model.RecipeBag
		if err := rows.Scan(&rb.Bag, &rb.Position); err != nil {
			return nil, fmt.Errorf("get recipe: scan bag: %w", err)
		}
		recipe.Bags = append(recipe.Bags, rb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipe bags: %w", err)
	}

	return &recipe, nil
}

// ListRecipes returns all recipes (with bag lists) ordered by name.
func (s *Store) ListRecipes(ctx context.Context) ([]model.Recipe, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM recipes ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list recipes: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list recipes: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipes: %w", err)
	}

	recipes := []model.Recipe{}
	for _, name := range names {
		recipe, err := s.GetRecipe(ctx, name)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, *recipe)
	}
	return recipes, nil
}

// validateRecipeBags enforces the non-empty bag list invariant and
// rejects duplicate positions or duplicate bag names.
func validateRecipeBags(bags []model.RecipeBag) error {
	if len(bags) == 0 {
		return model.NewValidationError("bags", "recipe must reference at least one bag")
	}

	positions := make(map[int]bool, len(bags))
	names := make(map[string]bool, len(bags))
	for _, rb := range bags {
		if rb.Bag == "" {
			return model.NewValidationError("bags", "bag name must be non-empty")
		}
		if positions[rb.Position] {
			return model.NewValidationError("bags", fmt.Sprintf("duplicate position %d", rb.Position))
		}
		if names[rb.Bag] {
			return model.NewValidationError("bags", fmt.Sprintf("duplicate bag %q", rb.Bag))
		}
		positions[rb.Position] = true
		names[rb.Bag] = true
	}
	return nil
}

// insertRecipeBags writes the bag list rows inside an open transaction,
// verifying each referenced bag exists.
func insertRecipeBags(ctx context.Context, tx *sql.Tx, recipe model.Recipe) error {
	bags := make([]model.RecipeBag, len(recipe.Bags))
	copy(bags, recipe.Bags)
	sort.Slice(bags, func(i, j int) bool { return bags[i].Position < bags[j].Position })

	for _, rb := range bags {
		exists, err := bagExistsTx(ctx, tx, rb.Bag)
		if err != nil {
			return err
		}
		if !exists {
			return model.NewNotFoundError("bag", rb.Bag)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO recipe_bags (recipe_name, bag_name, position)
			VALUES (?, ?, ?)
		`, recipe.Name, rb.Bag, rb.Position); err != nil {
			return fmt.Errorf("insert recipe bag: %w", err)
		}
	}
	return nil
}
