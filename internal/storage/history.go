package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/dotcommander/newsagent/internal/newsagent"
	"github.com/dotcommander/newsagent/internal/proto"
	"github.com/dotcommander/newsagent/internal/storage/cache"
)

// Report is everything saved about one search.
type Report struct {
	Search   Search              `json:"search"`
	Output   string              `json:"output"`
	Articles []newsagent.Article `json:"articles,omitempty"`
	State    map[string]string   `json:"state,omitempty"`
	Messages []proto.Message     `json:"messages,omitempty"`
}

// History pairs the search index with the report cache.
type History struct {
	DB      *DB
	reports *cache.Cache[Report]
}

// OpenHistory opens the history kept under dir.
func OpenHistory(dir string) (*History, error) {
	db, err := Open(dir)
	if err != nil {
		return nil, err
	}
	reports, err := cache.New[Report](db.Dir(), cache.Reports)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &History{DB: db, reports: reports}, nil
}

// Close closes the index.
func (h *History) Close() error {
	return h.DB.Close()
}

// Add stores the report and then indexes it, so an indexed search always
// has a report.
func (h *History) Add(r Report) error {
	if r.Search.CreatedAt.IsZero() {
		r.Search.CreatedAt = time.Now().UTC()
	}
	if err := h.reports.Put(r.Search.ID, r); err != nil {
		return fmt.Errorf("add report: %w", err)
	}
	if err := h.DB.Save(r.Search); err != nil {
		_ = h.reports.Delete(r.Search.ID)
		return err
	}
	return nil
}

// Get finds a search by ID prefix or topic and loads its report.
func (h *History) Get(in string) (Report, error) {
	s, err := h.DB.Find(in)
	if err != nil {
		return Report{}, err
	}
	r, err := h.reports.Get(s.ID)
	if errors.Is(err, fs.ErrNotExist) {
		return Report{Search: s}, fmt.Errorf("report of %s is missing: %w", ShortID(s.ID), err)
	}
	if err != nil {
		return Report{}, fmt.Errorf("load report: %w", err)
	}
	r.Search = s
	return r, nil
}

// Remove deletes a search and its report, returning the bytes freed.
func (h *History) Remove(id string) (int64, error) {
	size, _ := h.reports.Size(id)
	if err := h.DB.Delete(id); err != nil {
		return 0, err
	}
	if err := h.reports.Delete(id); err != nil {
		return 0, fmt.Errorf("remove report: %w", err)
	}
	return size, nil
}

// Prune removes the searches older than d. It returns what was removed and
// the bytes freed.
func (h *History) Prune(d time.Duration) ([]Search, int64, error) {
	old := h.DB.OlderThan(d)
	var freed int64
	for i, s := range old {
		n, err := h.Remove(s.ID)
		if err != nil {
			return old[:i], freed, err
		}
		freed += n
	}
	return old, freed, nil
}
