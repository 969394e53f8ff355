package stats

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strconv"
	"sync"
	"time"
)

// hourLayout renders local date-hour labels such as "5/8/2025-3pm".
const hourLayout = "1/2/2006-3pm"

// PullStats is the persisted run statistics document.
type PullStats struct {
	Pulls       int            `json:"pulls"`
	FiveStars   map[string]int `json:"fiveStars"`
	HourlyPulls map[string]int `json:"hourlyPulls"`
}

func (s PullStats) clone() PullStats {
	return PullStats{Pulls: s.Pulls, FiveStars: maps.Clone(s.FiveStars), HourlyPulls: maps.Clone(s.HourlyPulls)}
}

// HourKey returns the hourly bucket label for t in its own location.
func HourKey(t time.Time) string { return t.Format(hourLayout) }

// Store owns the stats document and writes it back on Flush.
type Store struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	data  PullStats
	dirty bool
}

// Open reads path. A missing or unreadable document yields empty stats; the
// file is only written on the first Flush.
func Open(path string, logger *slog.Logger) *Store {
	s := &Store{path: path, logger: logger}
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		s.warn("read stats", err)
	default:
		if err := json.Unmarshal(raw, &s.data); err != nil {
			s.warn("parse stats", err)
			s.data = PullStats{}
		}
	}
	if s.data.FiveStars == nil {
		s.data.FiveStars = map[string]int{}
	}
	if s.data.HourlyPulls == nil {
		s.data.HourlyPulls = map[string]int{}
	}
	return s
}

func (s *Store) warn(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn(msg, "path", s.path, "error", err)
	}
}

// RecordPull counts one confirmed pull in the total and in the hour bucket of at.
func (s *Store) RecordPull(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Pulls++
	s.data.HourlyPulls[HourKey(at)]++
	s.dirty = true
}

// RecordCycle adds one cycle whose rare-outcome count was n to the histogram.
func (s *Store) RecordCycle(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.FiveStars[strconv.Itoa(n)]++
	s.dirty = true
}

// Dirty reports whether there are unflushed changes.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Flush writes the document if it changed since the last flush.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	if err := os.WriteFile(s.path, b, 0o644); err != nil {
		return fmt.Errorf("write stats %s: %w", s.path, err)
	}
	s.dirty = false
	return nil
}

// Snapshot returns a copy of the current document.
func (s *Store) Snapshot() PullStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}
