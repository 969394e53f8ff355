package stats

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHourKey(t *testing.T) {
	loc := time.FixedZone("test", 2*3600)
	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Date(2025, 5, 8, 15, 4, 0, 0, loc), "5/8/2025-3pm"},
		{time.Date(2025, 12, 31, 0, 30, 0, 0, loc), "12/31/2025-12am"},
		{time.Date(2025, 1, 2, 12, 0, 0, 0, loc), "1/2/2025-12pm"},
		{time.Date(2025, 1, 2, 9, 59, 0, 0, loc), "1/2/2025-9am"},
	}
	for _, c := range cases {
		if got := HourKey(c.at); got != c.want {
			t.Errorf("HourKey(%v)=%q want %q", c.at, got, c.want)
		}
	}
}

func TestRecordAndFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	if err := os.WriteFile(path, []byte(`{"pulls":5,"fiveStars":{"0":3,"1":2}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	s := Open(path, nil)
	now := time.Date(2025, 5, 8, 15, 0, 0, 0, time.Local)
	s.RecordPull(now)
	s.RecordCycle(1)
	if err := s.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "\n  \"pulls\": 6") {
		t.Fatalf("expected two-space indentation:\n%s", raw)
	}
	var got PullStats
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Pulls != 6 {
		t.Fatalf("pulls=%d", got.Pulls)
	}
	if len(got.FiveStars) != 2 || got.FiveStars["0"] != 3 || got.FiveStars["1"] != 3 {
		t.Fatalf("fiveStars=%v", got.FiveStars)
	}
	if len(got.HourlyPulls) != 1 || got.HourlyPulls[HourKey(now)] != 1 {
		t.Fatalf("hourlyPulls=%v", got.HourlyPulls)
	}
}

func TestOpenMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	missing := Open(filepath.Join(dir, "absent.txt"), nil)
	snap := missing.Snapshot()
	if snap.Pulls != 0 || snap.FiveStars == nil || snap.HourlyPulls == nil {
		t.Fatalf("defaults %+v", snap)
	}
	if _, err := os.Stat(filepath.Join(dir, "absent.txt")); !os.IsNotExist(err) {
		t.Fatalf("open should not create the file")
	}

	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if snap := Open(bad, nil).Snapshot(); snap.Pulls != 0 || len(snap.FiveStars) != 0 {
		t.Fatalf("corrupt should reset: %+v", snap)
	}
}

func TestFlushOnlyWhenDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	s := Open(path, nil)
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("clean flush should not write")
	}
	s.RecordCycle(0)
	if !s.Dirty() {
		t.Fatalf("expected dirty")
	}
	if err := s.Flush(); err != nil {
		t.Fatal(err)
	}
	if s.Dirty() {
		t.Fatalf("expected clean after flush")
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "log.txt"), nil)
	s.RecordCycle(2)
	snap := s.Snapshot()
	snap.FiveStars["2"] = 99
	if s.Snapshot().FiveStars["2"] != 1 {
		t.Fatalf("snapshot aliases store")
	}
}
