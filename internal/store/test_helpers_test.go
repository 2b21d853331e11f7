package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/satchelwiki/satchel/internal/model"
)

// openTestStore creates a fresh store in a temp dir, cleaned up with the test.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// mustCreateBag creates a plain bag or fails the test.
func mustCreateBag(t *testing.T, s *Store, name string) {
	t.Helper()
	require.NoError(t, s.CreateBag(context.Background(), model.Bag{Name: name}))
}

// mustSave appends a simple text tiddler and returns its revision.
func mustSave(t *testing.T, s *Store, bag, title, text string) *model.Revision {
	t.Helper()
	rev, err := s.SaveTiddler(context.Background(), bag, model.Fields{"title": title, "text": text})
	require.NoError(t, err)
	return rev
}
