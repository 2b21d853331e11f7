package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satchelwiki/satchel/internal/model"
)

func TestCreateRecipe_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateBag(t, s, "base")
	mustCreateBag(t, s, "over")

	err := s.CreateRecipe(ctx, model.Recipe{
		Name:        "r1",
		Description: "layered",
		Bags:        []model.RecipeBag{{Bag: "over", Position: 1}, {Bag: "base", Position: 0}},
	})
	require.NoError(t, err)

	got, err := s.GetRecipe(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "layered", got.Description)
	// Bag list comes back in ascending position order regardless of input order.
	require.Len(t, got.Bags, 2)
	assert.Equal(t, model.RecipeBag{Bag: "base", Position: 0}, got.Bags[0])
	assert.Equal(t, model.RecipeBag{Bag: "over", Position: 1}, got.Bags[1])
}

func TestCreateRecipe_RequiresBags(t *testing.T) {
	s := openTestStore(t)

	err := s.CreateRecipe(context.Background(), model.Recipe{Name: "empty"})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestCreateRecipe_UnknownBagRollsBack(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateBag(t, s, "base")

	err := s.CreateRecipe(ctx, model.Recipe{
		Name: "r1",
		Bags: []model.RecipeBag{{Bag: "base", Position: 0}, {Bag: "ghost", Position: 1}},
	})
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))

	// The whole transaction rolled back - no half-created recipe.
	_, err = s.GetRecipe(ctx, "r1")
	assert.True(t, model.IsNotFound(err))
}

func TestCreateRecipe_DuplicateName(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateBag(t, s, "base")

	recipe := model.Recipe{Name: "r1", Bags: []model.RecipeBag{{Bag: "base", Position: 0}}}
	require.NoError(t, s.CreateRecipe(ctx, recipe))

	err := s.CreateRecipe(ctx, recipe)
	require.Error(t, err)
	assert.True(t, model.IsConflict(err))
}

func TestCreateRecipe_DuplicatePositions(t *testing.T) {
	s := openTestStore(t)
	mustCreateBag(t, s, "a")
	mustCreateBag(t, s, "b")

	err := s.CreateRecipe(context.Background(), model.Recipe{
		Name: "r1",
		Bags: []model.RecipeBag{{Bag: "a", Position: 0}, {Bag: "b", Position: 0}},
	})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestUpdateRecipe_ReplacesBagList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateBag(t, s, "a")
	mustCreateBag(t, s, "b")
	mustCreateBag(t, s, "c")

	require.NoError(t, s.CreateRecipe(ctx, model.Recipe{
		Name: "r1",
		Bags: []model.RecipeBag{{Bag: "a", Position: 0}},
	}))

	require.NoError(t, s.UpdateRecipe(ctx, model.Recipe{
		Name:        "r1",
		Description: "updated",
		Bags:        []model.RecipeBag{{Bag: "b", Position: 0}, {Bag: "c", Position: 1}},
	}))

	got, err := s.GetRecipe(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Description)
	assert.Equal(t, []string{"b", "c"}, got.BagNames())
}

func TestUpdateRecipe_Unknown(t *testing.T) {
	s := openTestStore(t)
	mustCreateBag(t, s, "a")

	err := s.UpdateRecipe(context.Background(), model.Recipe{
		Name: "ghost",
		Bags: []model.RecipeBag{{Bag: "a", Position: 0}},
	})
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestListRecipes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateBag(t, s, "a")

	require.NoError(t, s.CreateRecipe(ctx, model.Recipe{Name: "r2", Bags: []model.RecipeBag{{Bag: "a", Position: 0}}}))
	require.NoError(t, s.CreateRecipe(ctx, model.Recipe{Name: "r1", Bags: []model.RecipeBag{{Bag: "a", Position: 0}}}))

	recipes, err := s.ListRecipes(ctx)
	require.NoError(t, err)
	require.Len(t, recipes, 2)
	assert.Equal(t, "r1", recipes[0].Name)
	assert.Equal(t, "r2", recipes[1].Name)
}
