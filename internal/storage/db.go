// Package storage keeps the index of past searches.
package storage

import (
	"bufio"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

var (
	// ErrNoMatches is returned when no search matches the query.
	ErrNoMatches = errors.New("no searches found")
	// ErrManyMatches is returned when several searches match the query.
	ErrManyMatches = errors.New("multiple searches matched the input")
)

const (
	indexFileName      = "searches.jsonl"
	lockFileName       = "searches.lock"
	compactMinOps      = 256
	compactScaleFactor = 4
)

const (
	opUpsert = "upsert"
	opDelete = "delete"
)

type searchEvent struct {
	Op     string  `json:"op"`
	ID     string  `json:"id,omitempty"`
	Search *Search `json:"search,omitempty"`
}

// Search is the metadata of a saved search. The report itself lives in the
// report cache under the same ID.
type Search struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Agent     string    `json:"agent"`
	API       string    `json:"api,omitempty"`
	Model     string    `json:"model,omitempty"`
	Articles  int       `json:"articles"`
	Steps     int       `json:"steps"`
	CreatedAt time.Time `json:"created_at"`
}

// DB is an append-only JSONL index of searches, shared between processes
// through a lock file.
type DB struct {
	mu        sync.RWMutex
	indexPath string
	lock      *flock.Flock
	searches  map[string]Search
	ops       int
	tempDir   string
}

// Open loads the index stored in dir. The special value ":memory:" creates
// a throwaway store in a temporary directory.
func Open(dir string) (*DB, error) {
	var tempDir string
	if dir == ":memory:" {
		tmp, err := os.MkdirTemp("", "newsagent-searches-*")
		if err != nil {
			return nil, fmt.Errorf("could not create temp store directory: %w", err)
		}
		dir, tempDir = tmp, tmp
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create store directory: %w", err)
	}

	db := &DB{
		indexPath: filepath.Join(dir, indexFileName),
		lock:      flock.New(filepath.Join(dir, lockFileName)),
		searches:  map[string]Search{},
		tempDir:   tempDir,
	}
	if err := db.load(); err != nil {
		return nil, err
	}
	return db, nil
}

// Dir is the directory holding the index.
func (db *DB) Dir() string {
	return filepath.Dir(db.indexPath)
}

// Close releases the temporary directory of a ":memory:" store.
func (db *DB) Close() error {
	if db.tempDir == "" {
		return nil
	}
	if err := os.RemoveAll(db.tempDir); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// Save records a search, replacing any previous record with the same ID.
// A zero CreatedAt is set to the current time.
func (db *DB) Save(s Search) error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("save: %w", errors.New("empty id"))
	}
	if strings.TrimSpace(s.Topic) == "" {
		return fmt.Errorf("save: %w", errors.New("empty topic"))
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	s.CreatedAt = s.CreatedAt.UTC()

	if err := db.commit(searchEvent{Op: opUpsert, Search: &s}); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}

// Delete removes a search. Deleting an unknown ID is not an error.
func (db *DB) Delete(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("delete: %w", errors.New("empty id"))
	}

	if err := db.commit(searchEvent{Op: opDelete, ID: id}); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// List returns every search, latest first.
func (db *DB) List() []Search {
	db.mu.RLock()
	list := slices.Collect(maps.Values(db.searches))
	db.mu.RUnlock()

	sortLatestFirst(list)
	return list
}

// OlderThan returns the searches made before now minus d, latest first.
func (db *DB) OlderThan(d time.Duration) []Search {
	cutoff := time.Now().Add(-d)
	var list []Search
	for _, s := range db.List() {
		if s.CreatedAt.Before(cutoff) {
			list = append(list, s)
		}
	}
	return list
}

// Latest returns the most recent search.
func (db *DB) Latest() (Search, error) {
	list := db.List()
	if len(list) == 0 {
		return Search{}, fmt.Errorf("latest: %w", ErrNoMatches)
	}
	return list[0], nil
}

// Find resolves a search by ID prefix or exact topic. Inputs shorter than
// MinPrefix only match topics.
func (db *DB) Find(in string) (Search, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var found []Search
	for _, s := range db.searches {
		if s.Topic == in || (len(in) >= MinPrefix && strings.HasPrefix(s.ID, in)) {
			found = append(found, s)
		}
	}
	switch len(found) {
	case 0:
		return Search{}, fmt.Errorf("%w: %s", ErrNoMatches, in)
	case 1:
		return found[0], nil
	default:
		return Search{}, fmt.Errorf("%w: %s", ErrManyMatches, in)
	}
}

// Completions returns shell completion candidates for IDs and topics.
func (db *DB) Completions(in string) []string {
	set := map[string]struct{}{}

	db.mu.RLock()
	for _, s := range db.searches {
		if strings.HasPrefix(s.ID, in) {
			id := s.ID
			if len(in) < ShortLen {
				id = ShortID(id)
			}
			set[id+"\t"+s.Topic] = struct{}{}
		}
		if strings.HasPrefix(s.Topic, in) {
			set[s.Topic+"\t"+ShortID(s.ID)] = struct{}{}
		}
	}
	db.mu.RUnlock()

	return slices.Sorted(maps.Keys(set))
}

func (db *DB) load() error {
	if err := db.lock.RLock(); err != nil {
		return fmt.Errorf("could not lock index: %w", err)
	}
	defer db.lock.Unlock() //nolint:errcheck

	searches, ops, err := readIndex(db.indexPath)
	if err != nil {
		return err
	}
	db.searches, db.ops = searches, ops
	return nil
}

// commit writes evt under the exclusive index lock. The index is replayed
// first so records appended by other processes survive, and the in-memory
// view only changes once the event is on disk.
func (db *DB) commit(evt searchEvent) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.lock.Lock(); err != nil {
		return fmt.Errorf("lock index: %w", err)
	}
	defer db.lock.Unlock() //nolint:errcheck

	searches, ops, err := readIndex(db.indexPath)
	if err != nil {
		return err
	}
	if _, ok := searches[evt.ID]; evt.Op == opDelete && !ok {
		db.searches, db.ops = searches, ops
		return nil
	}
	if err := appendEvent(db.indexPath, evt); err != nil {
		return err
	}
	if err := apply(searches, evt); err != nil {
		return err
	}
	db.searches, db.ops = searches, ops+1

	if db.ops < compactMinOps || db.ops < len(db.searches)*compactScaleFactor {
		return nil
	}
	return db.compactLocked()
}

// readIndex replays the index file. A missing file is an empty index.
func readIndex(path string) (map[string]Search, int, error) {
	searches := map[string]Search{}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return searches, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("could not open index: %w", err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	line, ops := 0, 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var evt searchEvent
		if err := json.Unmarshal([]byte(text), &evt); err != nil {
			return nil, 0, fmt.Errorf("could not parse index line %d: %w", line, err)
		}
		if err := apply(searches, evt); err != nil {
			return nil, 0, fmt.Errorf("index line %d: %w", line, err)
		}
		ops++
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("could not read index: %w", err)
	}
	return searches, ops, nil
}

func apply(searches map[string]Search, evt searchEvent) error {
	switch evt.Op {
	case opUpsert:
		if evt.Search == nil || strings.TrimSpace(evt.Search.ID) == "" {
			return errors.New("invalid upsert event")
		}
		searches[evt.Search.ID] = *evt.Search
	case opDelete:
		if strings.TrimSpace(evt.ID) == "" {
			return errors.New("invalid delete event")
		}
		delete(searches, evt.ID)
	default:
		return fmt.Errorf("unknown index op %q", evt.Op)
	}
	return nil
}

func appendEvent(path string, evt searchEvent) error {
	bts, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal index event: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	if _, err := f.Write(append(bts, '\n')); err != nil {
		_ = f.Close()
		return fmt.Errorf("write index: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	return nil
}

// compactLocked rewrites the index from the in-memory records. The caller
// holds the exclusive index lock and has just replayed the file.
func (db *DB) compactLocked() error {
	list := slices.SortedFunc(maps.Values(db.searches), func(a, b Search) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), strings.Compare(a.ID, b.ID))
	})

	tmp, err := os.CreateTemp(filepath.Dir(db.indexPath), ".searches-*")
	if err != nil {
		return fmt.Errorf("compact index: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	enc := json.NewEncoder(tmp)
	for _, s := range list {
		if err := enc.Encode(searchEvent{Op: opUpsert, Search: &s}); err != nil {
			_ = tmp.Close()
			return fmt.Errorf("compact index: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("compact index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("compact index: %w", err)
	}
	if err := os.Rename(tmp.Name(), db.indexPath); err != nil {
		return fmt.Errorf("compact index: %w", err)
	}
	db.ops = len(list)
	return nil
}

func sortLatestFirst(list []Search) {
	slices.SortFunc(list, func(a, b Search) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), strings.Compare(a.ID, b.ID))
	})
}
