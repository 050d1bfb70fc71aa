// Package activitylog appends one CSV row per confirmed transition.
package activitylog

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"tools.zach/dev/presencewatch/internal/presence"
)

// Header is the first row of every activity log.
var Header = []string{"Date", "Status", "Game", "OnlineSeconds", "GamesPlayed"}

// DateLayout formats the Date column.
const DateLayout = "2006-01-02 15:04:05"

// Writer appends rows to a CSV file. The file is opened per row so that an
// external rotation or deletion is picked up without a restart.
type Writer struct {
	path string
	mu   sync.Mutex
}

// New returns a writer for path. Nothing is created until the first row.
func New(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the log file path.
func (w *Writer) Path() string { return w.path }

// Append writes one row for rec with the session totals t. The header is
// written first when the file is new or empty.
func (w *Writer) Append(rec presence.StatusRecord, t presence.Totals) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat activity log: %w", err)
	}

	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		cw.Write(Header)
	}
	cw.Write(Row(rec, t))
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("writing activity log: %w", err)
	}
	return nil
}

// Row formats one record.
func Row(rec presence.StatusRecord, t presence.Totals) []string {
	at := rec.Time
	if at.IsZero() {
		at = time.Now()
	}
	return []string{
		at.Local().Format(DateLayout),
		rec.State.String(),
		rec.Game,
		strconv.FormatInt(int64(t.OnlineSeconds), 10),
		strconv.Itoa(t.GamesPlayed),
	}
}
