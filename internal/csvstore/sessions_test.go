package csvstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evbalanz/balanzd/internal/model"
)

func TestSessionWriterWritesHeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.csv")
	w := NewSessionWriter(path)

	start := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	session := &model.Session{
		SessionID: "cp1-2026-07-29-09:00:00",
		ChargerID: "cp1", GroupID: "g1", IDTag: "ABC123", UserName: "alice",
		StartTime: start, EndTime: start.Add(30 * time.Minute), Duration: 30 * time.Minute,
		Energy: 500, Reason: "Local",
		History: []model.HistoryEntry{{Timestamp: start, Offered: 16}},
	}

	require.NoError(t, w.Write(session))
	require.NoError(t, w.Write(session))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "session_id,charger_id")
	assert.Equal(t, 1, countOccurrences(content, "session_id,charger_id"))
	assert.Contains(t, content, "cp1-2026-07-29-09:00:00")
}

func TestSessionWriterNoopWhenPathEmpty(t *testing.T) {
	w := NewSessionWriter("")
	require.NoError(t, w.Write(&model.Session{SessionID: "x"}))
}

func TestHistoryColumnFormatsEntries(t *testing.T) {
	history := []model.HistoryEntry{
		{Timestamp: time.Date(2026, 1, 1, 8, 30, 0, 0, time.UTC), Offered: 6},
		{Timestamp: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC), Offered: 16},
	}
	assert.Equal(t, "08:30:00=6A;09:00:00=16A", historyColumn(history))
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
		}
	}
	return count
}
