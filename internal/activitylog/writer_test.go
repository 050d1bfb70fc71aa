package activitylog

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tools.zach/dev/presencewatch/internal/presence"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parsing csv: %v", err)
	}
	return rows
}

func TestAppendWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.csv")
	w := New(path)
	at := time.Date(2024, 4, 25, 12, 0, 0, 0, time.Local)

	if err := w.Append(presence.StatusRecord{State: presence.Online, Time: at}, presence.Totals{}); err != nil {
		t.Fatal(err)
	}
	totals := presence.Totals{OnlineSeconds: 125.7, GamesPlayed: 1}
	if err := w.Append(presence.StatusRecord{State: presence.Online, Game: "Halo, Infinite", Time: at.Add(2 * time.Minute)}, totals); err != nil {
		t.Fatal(err)
	}

	rows := readRows(t, path)
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3: %v", len(rows), rows)
	}
	if rows[0][0] != "Date" || rows[0][4] != "GamesPlayed" {
		t.Errorf("header = %v", rows[0])
	}
	want := []string{"2024-04-25 12:02:00", "online", "Halo, Infinite", "125", "1"}
	for i := range want {
		if rows[2][i] != want[i] {
			t.Errorf("row[2][%d] = %q, want %q", i, rows[2][i], want[i])
		}
	}
}

func TestAppendExistingFileNoHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.csv")
	os.WriteFile(path, []byte("Date,Status,Game,OnlineSeconds,GamesPlayed\n"), 0o644)

	if err := New(path).Append(presence.StatusRecord{State: presence.Offline}, presence.Totals{}); err != nil {
		t.Fatal(err)
	}
	rows := readRows(t, path)
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	if rows[1][1] != "offline" {
		t.Errorf("status = %q, want offline", rows[1][1])
	}
}

func TestAppendRecreatesDeletedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "activity.csv")
	w := New(path)
	w.Append(presence.StatusRecord{State: presence.Online}, presence.Totals{})
	os.Remove(path)
	w.Append(presence.StatusRecord{State: presence.Away}, presence.Totals{})

	rows := readRows(t, path)
	if len(rows) != 2 || rows[0][0] != "Date" || rows[1][1] != "away" {
		t.Errorf("rows = %v", rows)
	}
}

func TestAppendMissingDir(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "nope", "activity.csv"))
	if err := w.Append(presence.StatusRecord{State: presence.Online}, presence.Totals{}); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
