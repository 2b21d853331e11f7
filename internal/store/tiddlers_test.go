package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satchelwiki/satchel/internal/model"
)

func TestSaveTiddler_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateBag(t, s, "b1")

	saved, err := s.SaveTiddler(ctx, "b1", model.Fields{"title": "Hello", "text": "world"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.ID)
	assert.Equal(t, "b1", saved.Bag)
	assert.Equal(t, "Hello", saved.Title)

	got, err := s.GetCurrentTiddler(ctx, "b1", "Hello")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, "world", got.Fields["text"])
	assert.Equal(t, "Hello", got.Fields["title"])
	assert.Equal(t, model.DefaultTiddlerType, got.Type)
}

func TestSaveTiddler_UnknownBag(t *testing.T) {
	s := openTestStore(t)

	_, err := s.SaveTiddler(context.Background(), "missing", model.Fields{"title": "X"})
	require.Error(t, err)
	assert.True(t, model.IsNotFound(err))
}

func TestSaveTiddler_MissingTitle(t *testing.T) {
	s := openTestStore(t)
	mustCreateBag(t, s, "b1")

	_, err := s.SaveTiddler(context.Background(), "b1", model.Fields{"text": "no title"})
	require.Error(t, err)
	assert.True(t, model.IsValidation(err))
}

func TestSaveTiddler_MonotonicIDsAcrossBags(t *testing.T) {
	s := openTestStore(t)
	mustCreateBag(t, s, "b1")
	mustCreateBag(t, s, "b2")

	// Interleave writes across bags; ids must strictly increase store-wide.
	var last int64
	for i := 0; i < 5; i++ {
		r1 := mustSave(t, s, "b1", "A", "v")
		r2 := mustSave(t, s, "b2", "B", "v")
		assert.Greater(t, r1.ID, last)
		assert.Greater(t, r2.ID, r1.ID)
		last = r2.ID
	}

	lastID, err := s.LastRevisionID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, last, lastID)
}

func TestSaveTiddler_NewRevisionPerSave(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateBag(t, s, "b1")

	r1 := mustSave(t, s, "b1", "Doc", "v1")
	r2 := mustSave(t, s, "b1", "Doc", "v2")
	assert.Greater(t, r2.ID, r1.ID)

	// Current is the highest-id row; history remains in the log.
	got, err := s.GetCurrentTiddler(ctx, "b1", "Doc")
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Fields["text"])

	changes, err := s.ChangesSince(ctx, []string{"b1"}, 0, true)
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

func TestSaveTiddler_NormalizesTitle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateBag(t, s, "b1")

	// Save with a decomposed title, read back with the precomposed form.
	_, err := s.SaveTiddler(ctx, "b1", model.Fields{"title": "Café", "text": "x"})
	require.NoError(t, err)

	got, err := s.GetCurrentTiddler(ctx, "b1", "Café")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Café", got.Title)
}

func TestDeleteTiddler_Tombstone(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateBag(t, s, "b1")

	saved := mustSave(t, s, "b1", "Doomed", "x")

	tomb, err := s.DeleteTiddler(ctx, "b1", "Doomed")
	require.NoError(t, err)
	assert.True(t, tomb.IsDeleted)
	assert.Greater(t, tomb.ID, saved.ID)

	// Current view hides the title.
	got, err := s.GetCurrentTiddler(ctx, "b1", "Doomed")
	require.NoError(t, err)
	assert.Nil(t, got)

	// The latest revision (tombstones included) is the tombstone.
	latest, err := s.GetLatestRevision(ctx, "b1", "Doomed")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.IsDeleted)
}

func TestListCurrentTiddlers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateBag(t, s, "b1")

	mustSave(t, s, "b1", "Alpha", "1")
	mustSave(t, s, "b1", "Beta", "1")
	mustSave(t, s, "b1", "Alpha", "2")
	_, err := s.DeleteTiddler(ctx, "b1", "Beta")
	require.NoError(t, err)

	revs, err := s.ListCurrentTiddlers(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, "Alpha", revs[0].Title)
	assert.Equal(t, "2", revs[0].Fields["text"])
}

func TestListCurrentTiddlers_EmptyBag(t *testing.T) {
	s := openTestStore(t)
	mustCreateBag(t, s, "b1")

	revs, err := s.ListCurrentTiddlers(context.Background(), "b1")
	require.NoError(t, err)
	assert.NotNil(t, revs)
	assert.Empty(t, revs)
}

func TestChangesSince_CursorExactness(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateBag(t, s, "b1")
	mustCreateBag(t, s, "b2")
	mustCreateBag(t, s, "other")

	r1 := mustSave(t, s, "b1", "A", "1") // id 1
	mustSave(t, s, "other", "X", "1")    // id 2, not in bag set
	r3 := mustSave(t, s, "b2", "B", "1") // id 3
	r4 := mustSave(t, s, "b1", "A", "2") // id 4

	changes, err := s.ChangesSince(ctx, []string{"b1", "b2"}, r1.ID, true)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, r3.ID, changes[0].ID)
	assert.Equal(t, r4.ID, changes[1].ID)
}

func TestChangesSince_TombstoneVisibility(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	mustCreateBag(t, s, "b1")

	mustSave(t, s, "b1", "Hello", "x")
	tomb, err := s.DeleteTiddler(ctx, "b1", "Hello")
	require.NoError(t, err)

	visible, err := s.ChangesSince(ctx, []string{"b1"}, 0, false)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.False(t, visible[0].IsDeleted)

	all, err := s.ChangesSince(ctx, []string{"b1"}, 0, true)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, tomb.ID, all[1].ID)
	assert.True(t, all[1].IsDeleted)
}

func TestChangesSince_EmptyBagSet(t *testing.T) {
	s := openTestStore(t)

	changes, err := s.ChangesSince(context.Background(), nil, 0, true)
	require.NoError(t, err)
	assert.NotNil(t, changes)
	assert.Empty(t, changes)
}

func TestLastRevisionID_EmptyStore(t *testing.T) {
	s := openTestStore(t)

	id, err := s.LastRevisionID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), id)
}

func TestRevisionIDs_SurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/test.db"

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.CreateBag(context.Background(), model.Bag{Name: "b1"}))
	r1, err := s1.SaveTiddler(context.Background(), "b1", model.Fields{"title": "A"})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	r2, err := s2.SaveTiddler(context.Background(), "b1", model.Fields{"title": "B"})
	require.NoError(t, err)
	assert.Greater(t, r2.ID, r1.ID)
}
