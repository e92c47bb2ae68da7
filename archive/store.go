package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/modestbitboard/breadbox"
)

// MarkerFile is the per-item metadata file. Its presence defines the item.
const MarkerFile = "crumb.json"

// Store is the item store for one collection, rooted at a single directory.
//
// Metadata reads and plain writes perform no locking; Merge serializes
// read-modify-write updates per item so concurrent merges do not lose keys.
type Store struct {
	name   string
	path   string
	schema Schema

	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

// NewStore opens (creating if necessary) the collection rooted at path.
func NewStore(name, path string, schema Schema) (*Store, error) {
	if !breadbox.IsValidName(name) {
		return nil, fmt.Errorf("new store: invalid collection name %q", name)
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(path, 0o750); mkErr != nil {
			return nil, fmt.Errorf("new store: create root: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("new store: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("new store: archive path %s is a file", path)
	}

	return &Store{
		name:   name,
		path:   path,
		schema: schema,
		locks:  make(map[int]*sync.Mutex),
	}, nil
}

// Name returns the collection name.
func (s *Store) Name() string {
	return s.name
}

// Schema returns the collection's metadata schema (possibly nil).
func (s *Store) Schema() Schema {
	return s.schema
}

// ListItems enumerates item ids ascending. Only numeric directories that
// contain the metadata marker count; the listing is recomputed from live
// storage on every call.
func (s *Store) ListItems() ([]int, error) {
	entries, err := os.ReadDir(s.path)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	ids := make([]int, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, convErr := strconv.Atoi(entry.Name())
		if convErr != nil || id < 0 {
			continue
		}
		if s.CheckItem(id) {
			ids = append(ids, id)
		}
	}

	sort.Ints(ids)
	return ids, nil
}

// CheckItem reports whether the item's metadata marker exists.
func (s *Store) CheckItem(id int) bool {
	info, err := os.Stat(s.markerPath(id))
	return err == nil && info.Mode().IsRegular()
}

// GetItemInfo reads the item's metadata. Returns breadbox.ErrNotFound when
// the marker is absent.
func (s *Store) GetItemInfo(id int) (map[string]any, error) {
	raw, err := os.ReadFile(s.markerPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, breadbox.ErrNotFound
		}
		return nil, fmt.Errorf("get item info %d: %w", id, err)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("get item info %d: corrupt marker: %w", id, err)
	}
	return data, nil
}

// SetItemInfo writes the full metadata mapping, creating the item directory
// if needed. Callers wanting merge semantics should use Merge instead.
func (s *Store) SetItemInfo(id int, data map[string]any) error {
	itemPath := s.itemPath(id)
	if err := os.MkdirAll(itemPath, 0o750); err != nil {
		return fmt.Errorf("set item info %d: %w", id, err)
	}

	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("set item info %d: %w", id, err)
	}

	if err := os.WriteFile(s.markerPath(id), raw, 0o640); err != nil {
		return fmt.Errorf("set item info %d: %w", id, err)
	}
	return nil
}

// Merge applies a shallow, top-level merge of patch onto the item's existing
// metadata and writes the result, creating the item when absent. The
// read-modify-write runs under a per-item lock. Returns true when the item
// was created by this call.
func (s *Store) Merge(id int, patch map[string]any) (bool, error) {
	if err := s.schema.Validate(patch); err != nil {
		return false, err
	}

	lock := s.itemLock(id)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.GetItemInfo(id)
	if errors.Is(err, breadbox.ErrNotFound) {
		if setErr := s.SetItemInfo(id, patch); setErr != nil {
			return false, setErr
		}
		return true, nil
	}
	if err != nil {
		return false, err
	}

	for k, v := range patch {
		existing[k] = v
	}
	if setErr := s.SetItemInfo(id, existing); setErr != nil {
		return false, setErr
	}
	return false, nil
}

func (s *Store) itemLock(id int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

func (s *Store) itemPath(id int) string {
	return filepath.Join(s.path, strconv.Itoa(id))
}

func (s *Store) markerPath(id int) string {
	return filepath.Join(s.itemPath(id), MarkerFile)
}

func (s *Store) branchPath(id int, branch string) string {
	return filepath.Join(s.itemPath(id), branch)
}
