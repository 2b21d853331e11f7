package recipe

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satchelwiki/satchel/internal/model"
	"github.com/satchelwiki/satchel/internal/store"
)

// fixture builds a store with bags base(pos 0) and over(pos 1) composed
// into recipe "r".
func fixture(t *testing.T) (*Resolver, *store.Store) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.CreateBag(ctx, model.Bag{Name: "base"}))
	require.NoError(t, s.CreateBag(ctx, model.Bag{Name: "over"}))
	require.NoError(t, s.CreateRecipe(ctx, model.Recipe{
		Name: "r",
		Bags: []model.RecipeBag{{Bag: "base", Position: 0}, {Bag: "over", Position: 1}},
	}))
	return NewResolver(s), s
}

func save(t *testing.T, s *store.Store, bag, title, text string) *model.Revision {
	t.Helper()
	rev, err := s.SaveTiddler(context.Background(), bag, model.Fields{"title": title, "text": text})
	require.NoError(t, err)
	return rev
}

func TestResolveOne_SingleBag(t *testing.T) {
	r, s := fixture(t)
	ctx := context.Background()

	saved := save(t, s, "base", "Hello", "world")

	got, err := r.ResolveOne(ctx, "r", "Hello")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, "base", got.Bag)
}

func TestResolveOne_HigherPositionWins(t *testing.T) {
	r, s := fixture(t)
	ctx := context.Background()

	save(t, s, "base", "X", "from base")
	overRev := save(t, s, "over", "X", "from over")

	got, err := r.ResolveOne(ctx, "r", "X")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, overRev.ID, got.ID)
	assert.Equal(t, "from over", got.Fields["text"])
}

func TestResolveOne_TombstoneInWinningBagShadows(t *testing.T) {
	r, s := fixture(t)
	ctx := context.Background()

	save(t, s, "base", "X", "still live below")
	save(t, s, "over", "X", "soon gone")
	_, err := s.DeleteTiddler(ctx, "over", "X")
	require.NoError(t, err)

	// The higher bag still holds revisions of X, so it decides - and its
	// current state is deleted. The live copy in base stays shadowed.
	got, err := r.ResolveOne(ctx, "r", "X")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestResolveOne_TombstoneInLowerBagIrrelevant(t *testing.T) {
	r, s := fixture(t)
	ctx := context.Background()

	save(t, s, "base", "X", "v1")
	_, err := s.DeleteTiddler(ctx, "base", "X")
	require.NoError(t, err)
	overRev := save(t, s, "over", "X", "alive above")

	got, err := r.ResolveOne(ctx, "r", "X")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, overRev.ID, got.ID)
}

func TestResolveOne_Unknown(t *testing.T) {
	r, _ := fixture(t)

	got, err := r.ResolveOne(context.Background(), "r", "Nope")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = r.ResolveOne(context.Background(), "ghost", "X")
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestResolve_FullMerge(t *testing.T) {
	r, s := fixture(t)
	ctx := context.Background()

	save(t, s, "base", "OnlyBase", "b")
	save(t, s, "base", "Shared", "base copy")
	save(t, s, "over", "Shared", "over copy")
	save(t, s, "over", "OnlyOver", "o")

	merged, err := r.Resolve(ctx, "r")
	require.NoError(t, err)
	require.Len(t, merged, 3)
	assert.Equal(t, "b", merged["OnlyBase"].Fields["text"])
	assert.Equal(t, "over copy", merged["Shared"].Fields["text"])
	assert.Equal(t, "o", merged["OnlyOver"].Fields["text"])
}

func TestResolve_TombstoneEvictsLowerLayer(t *testing.T) {
	r, s := fixture(t)
	ctx := context.Background()

	save(t, s, "base", "X", "live below")
	save(t, s, "over", "X", "temp")
	_, err := s.DeleteTiddler(ctx, "over", "X")
	require.NoError(t, err)

	merged, err := r.Resolve(ctx, "r")
	require.NoError(t, err)
	_, present := merged["X"]
	assert.False(t, present)
}

func TestChangesSince_RecipeBagScope(t *testing.T) {
	r, s := fixture(t)
	ctx := context.Background()
	require.NoError(t, s.CreateBag(ctx, model.Bag{Name: "unrelated"}))

	r1 := save(t, s, "base", "A", "1")
	save(t, s, "unrelated", "Z", "1")
	r3 := save(t, s, "over", "B", "1")

	changes, err := r.ChangesSince(ctx, "r", 0, true)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, r1.ID, changes[0].ID)
	assert.Equal(t, r3.ID, changes[1].ID)

	// Cursor excludes everything at or before it.
	changes, err = r.ChangesSince(ctx, "r", r1.ID, true)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, r3.ID, changes[0].ID)
}
