package archive_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modestbitboard/breadbox"
	"github.com/modestbitboard/breadbox/archive"
)

func newTestStore(t *testing.T) *archive.Store {
	t.Helper()
	store, err := archive.NewStore("games", t.TempDir(), nil)
	assert.NoError(t, err)
	return store
}

func writeMarker(t *testing.T, root string, id string, content string) {
	t.Helper()
	dir := filepath.Join(root, id)
	assert.NoError(t, os.MkdirAll(dir, 0o750))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "crumb.json"), []byte(content), 0o640))
}

func TestNewStore_CreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "archive", "games")

	_, err := archive.NewStore("games", root, nil)
	assert.NoError(t, err)

	info, statErr := os.Stat(root)
	assert.NoError(t, statErr)
	assert.True(t, info.IsDir())
}

func TestNewStore_RootIsFile(t *testing.T) {
	root := filepath.Join(t.TempDir(), "games")
	assert.NoError(t, os.WriteFile(root, []byte("oops"), 0o640))

	_, err := archive.NewStore("games", root, nil)
	assert.Error(t, err)
}

func TestNewStore_InvalidName(t *testing.T) {
	_, err := archive.NewStore("two words", t.TempDir(), nil)
	assert.Error(t, err)
}

func TestStore_ListItems(t *testing.T) {
	root := t.TempDir()
	store, err := archive.NewStore("games", root, nil)
	assert.NoError(t, err)

	writeMarker(t, root, "3", `{"title": "c"}`)
	writeMarker(t, root, "1", `{"title": "a"}`)
	writeMarker(t, root, "2", `{"title": "b"}`)

	// Non-numeric directory, even with a marker, is excluded.
	writeMarker(t, root, "abc", `{}`)
	// Numeric directory without a marker is incomplete and excluded.
	assert.NoError(t, os.MkdirAll(filepath.Join(root, "7"), 0o750))
	// Stray file at the top level is ignored.
	assert.NoError(t, os.WriteFile(filepath.Join(root, "5"), []byte("not a dir"), 0o640))

	ids, err := store.ListItems()
	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)
}

func TestStore_ListItems_Empty(t *testing.T) {
	store := newTestStore(t)

	ids, err := store.ListItems()
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func TestStore_CheckItem(t *testing.T) {
	root := t.TempDir()
	store, err := archive.NewStore("games", root, nil)
	assert.NoError(t, err)

	assert.False(t, store.CheckItem(1))
	writeMarker(t, root, "1", `{}`)
	assert.True(t, store.CheckItem(1))
}

func TestStore_GetItemInfo_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetItemInfo(99)
	assert.ErrorIs(t, err, breadbox.ErrNotFound)
}

func TestStore_SetThenGet(t *testing.T) {
	store := newTestStore(t)

	data := map[string]any{
		"title":    "Super Mario Galaxy 2",
		"platform": "wii",
		"external": map[string]any{"wikipedia": "https://en.wikipedia.org/wiki/Super_Mario_Galaxy_2"},
	}

	assert.NoError(t, store.SetItemInfo(4, data))
	assert.True(t, store.CheckItem(4))

	got, err := store.GetItemInfo(4)
	assert.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestStore_MarkerIsPrettyPrinted(t *testing.T) {
	root := t.TempDir()
	store, err := archive.NewStore("games", root, nil)
	assert.NoError(t, err)

	assert.NoError(t, store.SetItemInfo(1, map[string]any{"title": "x"}))

	raw, readErr := os.ReadFile(filepath.Join(root, "1", "crumb.json"))
	assert.NoError(t, readErr)
	assert.Contains(t, string(raw), "\n  \"title\"")
}

func TestStore_Merge_CreatesItem(t *testing.T) {
	store := newTestStore(t)

	created, err := store.Merge(1, map[string]any{"title": "a"})
	assert.NoError(t, err)
	assert.True(t, created)

	got, err := store.GetItemInfo(1)
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "a"}, got)
}

func TestStore_Merge_ShallowOverwrite(t *testing.T) {
	store := newTestStore(t)

	assert.NoError(t, store.SetItemInfo(1, map[string]any{
		"title":    "old",
		"platform": "wii",
		"external": map[string]any{"wikipedia": "w"},
	}))

	created, err := store.Merge(1, map[string]any{
		"title":    "new",
		"external": map[string]any{"igdb": "i"},
	})
	assert.NoError(t, err)
	assert.False(t, created)

	got, err := store.GetItemInfo(1)
	assert.NoError(t, err)
	assert.Equal(t, map[string]any{
		"title":    "new",
		"platform": "wii",
		// Top-level overwrite: the nested map is replaced, not merged.
		"external": map[string]any{"igdb": "i"},
	}, got)
}

func TestStore_Merge_SchemaRejectsUnknownField(t *testing.T) {
	schema, err := archive.ParseSchema(map[string]string{"title": "string"})
	assert.NoError(t, err)

	store, err := archive.NewStore("games", t.TempDir(), schema)
	assert.NoError(t, err)

	_, mergeErr := store.Merge(1, map[string]any{"rating": "E"})
	assert.ErrorIs(t, mergeErr, breadbox.ErrInvalidInput)
	assert.False(t, store.CheckItem(1))
}

func TestStore_Merge_Concurrent(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.SetItemInfo(1, map[string]any{}))

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Merge(1, map[string]any{key: true})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.GetItemInfo(1)
	assert.NoError(t, err)
	for _, key := range keys {
		assert.Contains(t, got, key)
	}
}

func TestParseSchema(t *testing.T) {
	schema, err := archive.ParseSchema(map[string]string{
		"title":    "string",
		"episodes": "integer",
		"audio":    "list",
		"external": "object",
	})
	assert.NoError(t, err)
	assert.Len(t, schema, 4)

	_, err = archive.ParseSchema(map[string]string{"title": "varchar"})
	assert.Error(t, err)
}

func TestSchema_Validate(t *testing.T) {
	schema, err := archive.ParseSchema(map[string]string{
		"title":    "string",
		"episodes": "integer",
		"score":    "number",
		"dubbed":   "boolean",
		"audio":    "list",
		"external": "object",
	})
	assert.NoError(t, err)

	tests := []struct {
		name    string
		data    map[string]any
		wantErr bool
	}{
		{name: "valid full record", data: map[string]any{
			"title": "Senko-san", "episodes": float64(12), "score": 8.5,
			"dubbed": true, "audio": []any{"japanese"}, "external": map[string]any{},
		}},
		{name: "null accepted", data: map[string]any{"title": nil}},
		{name: "unknown key", data: map[string]any{"torrent": "x"}, wantErr: true},
		{name: "wrong kind", data: map[string]any{"title": float64(3)}, wantErr: true},
		{name: "fractional integer", data: map[string]any{"episodes": 12.5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := schema.Validate(tt.data)
			if tt.wantErr {
				assert.ErrorIs(t, err, breadbox.ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchema_NilAcceptsAnything(t *testing.T) {
	var schema archive.Schema
	assert.NoError(t, schema.Validate(map[string]any{"whatever": 1}))
}
