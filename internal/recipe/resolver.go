// Package recipe merges a recipe's ordered bag layers into one logical
// document set and computes incremental deltas for live sync.
//
// Full-merge resolution (Resolve, ResolveOne) serves point-in-time reads.
// Delta queries (ChangesSince) serve the live feed: they deliver every
// relevant revision in ascending id order exactly once, even when a later
// revision supersedes an earlier one - superseding is a client concern.
package recipe

import (
	"context"
	"fmt"

	"github.com/satchelwiki/satchel/internal/model"
)

// BagReader is the slice of the store the resolver needs.
type BagReader interface {
	GetRecipe(ctx context.Context, name string) (*model.Recipe, error)
	ListLatestRevisions(ctx context.Context, bag string) ([]model.Revision, error)
	GetLatestRevision(ctx context.Context, bag, title string) (*model.Revision, error)
	ChangesSince(ctx context.Context, bags []string, cursor int64, includeDeleted bool) ([]model.Revision, error)
}

// Resolver composes bag layers by position: higher positions win.
type Resolver struct {
	bags BagReader
}

// NewResolver creates a resolver reading through the given store.
func NewResolver(bags BagReader) *Resolver {
	return &Resolver{bags: bags}
}

// Resolve computes the full merged view of a recipe: for each title, the
// current revision from the highest-position bag holding any revision of
// that title. A title whose winning bag currently holds a tombstone is
// absent from the result - a live copy in a lower bag stays shadowed.
func (r *Resolver) Resolve(ctx context.Context, recipeName string) (map[string]model.Revision, error) {
	recipe, err := r.bags.GetRecipe(ctx, recipeName)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]model.Revision)
	// Ascending position: later bags overwrite earlier ones. A higher
	// bag's tombstone evicts the title even when a lower bag holds a
	// live copy - the higher layer owns the title either way.
	for _, rb := range recipe.Bags {
		revs, err := r.bags.ListLatestRevisions(ctx, rb.Bag)
		if err != nil {
			return nil, fmt.Errorf("resolve %q: %w", recipeName, err)
		}
		for _, rev := range revs {
			if rev.IsDeleted {
				delete(merged, rev.Title)
				continue
			}
			merged[rev.Title] = rev
		}
	}
	return merged, nil
}

// ResolveOne resolves a single title: bags are scanned from highest to
// lowest position, and the first bag holding any revision of the title
// decides. Returns nil when no bag holds the title or the deciding bag's
// current revision is a tombstone.
func (r *Resolver) ResolveOne(ctx context.Context, recipeName, title string) (*model.Revision, error) {
	recipe, err := r.bags.GetRecipe(ctx, recipeName)
	if err != nil {
		return nil, err
	}
	title = model.NormalizeTitle(title)

	for i := len(recipe.Bags) - 1; i >= 0; i-- {
		latest, err := r.bags.GetLatestRevision(ctx, recipe.Bags[i].Bag, title)
		if err != nil {
			return nil, fmt.Errorf("resolve %q/%q: %w", recipeName, title, err)
		}
		if latest == nil {
			continue
		}
		if latest.IsDeleted {
			return nil, nil
		}
		return latest, nil
	}
	return nil, nil
}

// ChangesSince returns every revision across the recipe's bags with id
// greater than cursor, ascending. Tombstones are included only when
// includeDeleted is set. The feed uses this directly rather than
// recomputing the full merge per change.
func (r *Resolver) ChangesSince(ctx context.Context, recipeName string, cursor int64, includeDeleted bool) ([]model.Revision, error) {
	recipe, err := r.bags.GetRecipe(ctx, recipeName)
	if err != nil {
		return nil, err
	}
	return r.bags.ChangesSince(ctx, recipe.BagNames(), cursor, includeDeleted)
}
