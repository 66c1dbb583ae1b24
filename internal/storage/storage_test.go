package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestPutGetRoundTrip(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	in := doc{Name: "threads", Count: 3}
	require.NoError(t, store.Put(ctx, []string{"state", "threads"}, in))

	var out doc
	require.NoError(t, store.Get(ctx, []string{"state", "threads"}, &out))
	assert.Equal(t, in, out)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := New(t.TempDir())
	var out doc
	err := store.Get(context.Background(), []string{"nope"}, &out)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutIsAtomic(t *testing.T) {
	dir := t.TempDir()
	store := New(dir)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, []string{"a"}, doc{Name: "v1"}))
	require.NoError(t, store.Put(ctx, []string{"a"}, doc{Name: "v2"}))

	// No temp file left behind after the rename.
	_, err := os.Stat(filepath.Join(dir, "a.json.tmp"))
	assert.True(t, os.IsNotExist(err))

	var out doc
	require.NoError(t, store.Get(ctx, []string{"a"}, &out))
	assert.Equal(t, "v2", out.Name)
}

func TestDeleteIdempotent(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, []string{"rules", "r1"}, doc{}))
	require.NoError(t, store.Delete(ctx, []string{"rules", "r1"}))
	require.NoError(t, store.Delete(ctx, []string{"rules", "r1"}))
	assert.False(t, store.Exists(ctx, []string{"rules", "r1"}))
}

func TestListAndScanSorted(t *testing.T) {
	store := New(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, []string{"rules", "b"}, doc{Name: "b"}))
	require.NoError(t, store.Put(ctx, []string{"rules", "a"}, doc{Name: "a"}))
	require.NoError(t, store.Put(ctx, []string{"rules", "c"}, doc{Name: "c"}))

	keys, err := store.List(ctx, []string{"rules"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, keys)

	var seen []string
	err = store.Scan(ctx, []string{"rules"}, func(key string, data json.RawMessage) error {
		var d doc
		require.NoError(t, json.Unmarshal(data, &d))
		seen = append(seen, d.Name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
}

func TestListMissingDir(t *testing.T) {
	store := New(t.TempDir())
	keys, err := store.List(context.Background(), []string{"empty"})
	require.NoError(t, err)
	assert.Empty(t, keys)
}
