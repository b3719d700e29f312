package csvstore

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/evbalanz/balanzd/internal/model"
)

// sessionsHeader is the exact header required by spec §6.
var sessionsHeader = []string{
	"session_id", "charger_id", "charger_alias", "group_id", "id_tag",
	"user_name", "stop_id_tag", "start_time", "end_time", "duration",
	"energy", "stop_reason", "history",
}

// SessionWriter appends completed Session rows to an append-only CSV file,
// creating it (with header) on first use.
type SessionWriter struct {
	mu   sync.Mutex
	path string
}

// NewSessionWriter returns a writer targeting path. If empty, Write is a
// no-op (session persistence disabled).
func NewSessionWriter(path string) *SessionWriter {
	return &SessionWriter{path: path}
}

// Write appends one completed session as a CSV row.
func (w *SessionWriter) Write(s *model.Session) error {
	if w.path == "" {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return err
	}

	needsHeader := true
	if fi, err := os.Stat(w.path); err == nil && fi.Size() > 0 {
		needsHeader = false
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(sessionsHeader); err != nil {
			return err
		}
	}

	return cw.Write([]string{
		s.SessionID,
		s.ChargerID,
		s.ChargerAlias,
		s.GroupID,
		s.IDTag,
		s.UserName,
		s.StopIDTag,
		s.StartTime.Format("2006-01-02 15:04:05"),
		s.EndTime.Format("2006-01-02 15:04:05"),
		s.Duration.String(),
		fmt.Sprintf("%d", s.Energy),
		s.Reason,
		historyColumn(s.History),
	})
}

func historyColumn(history []model.HistoryEntry) string {
	parts := make([]string, 0, len(history))
	for _, h := range history {
		parts = append(parts, fmt.Sprintf("%s=%gA", h.Timestamp.Format("15:04:05"), h.Offered))
	}
	return strings.Join(parts, ";")
}
