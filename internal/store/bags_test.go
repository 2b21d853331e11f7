package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satchelwiki/satchel/internal/model"
)

func TestCreateBag_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.CreateBag(ctx, model.Bag{
		Name:        "notes",
		Description: "shared notes",
		Partition: &model.PartitionPolicy{
			TitlePrefix:      "$:/drafts/",
			EveryoneReadable: true,
		},
	})
	require.NoError(t, err)

	bag, err := s.GetBag(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, "notes", bag.Name)
	assert.Equal(t, "shared notes", bag.Description)
	require.NotNil(t, bag.Partition)
	assert.Equal(t, "$:/drafts/", bag.Partition.TitlePrefix)
	assert.True(t, bag.Partition.EveryoneReadable)
	assert.False(t, bag.Partition.NormallyWritable)

	// Plain bags come back with no policy at all.
	mustCreateBag(t, s, "plain")
	plain, err := s.GetBag(ctx, "plain")
	require.NoError(t, err)
	assert.Nil(t, plain.Partition)
}

func TestCreateBag_Duplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBag(ctx, model.Bag{Name: "b1"}))
	err := s.CreateBag(ctx, model.Bag{Name: "b1", Description: "again"})
	require.Error(t, err)
	assert.True(t, model.IsConflict(err))
}

func TestCreateBag_EmptyName(t *testing.T) {
	s := openTestStore(t)

	err := s.CreateBag(context.Background(), model.Bag{})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestUpdateBag(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateBag(t, s, "b1")

	err := s.UpdateBag(ctx, model.Bag{
		Name:        "b1",
		Description: "revised",
		Partition:   &model.PartitionPolicy{NormallyWritable: true},
	})
	require.NoError(t, err)

	bag, err := s.GetBag(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "revised", bag.Description)
	require.NotNil(t, bag.Partition)
	assert.True(t, bag.Partition.NormallyWritable)

	err = s.UpdateBag(ctx, model.Bag{Name: "ghost"})
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestGetBag_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetBag(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestListBags(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	bags, err := s.ListBags(ctx)
	require.NoError(t, err)
	assert.Empty(t, bags)

	mustCreateBag(t, s, "zeta")
	mustCreateBag(t, s, "alpha")

	bags, err = s.ListBags(ctx)
	require.NoError(t, err)
	require.Len(t, bags, 2)
	assert.Equal(t, "alpha", bags[0].Name)
	assert.Equal(t, "zeta", bags[1].Name)
}
