package db

import (
	"context"
	"database/sql"

	"github.com/evbalanz/balanzd/internal/model"
)

// AuditMirror writes completed sessions into the sessions table as a
// queryable mirror of the CSV session log, kept independently of the
// flat-file log so the two can be cross-checked.
type AuditMirror struct {
	db *sql.DB
}

func NewAuditMirror(db *sql.DB) *AuditMirror {
	return &AuditMirror{db: db}
}

// Record inserts or replaces the row for a completed session.
func (m *AuditMirror) Record(ctx context.Context, s *model.Session) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO sessions (
			session_id, charger_id, charger_alias, group_id, id_tag, user_name,
			stop_id_tag, start_time, end_time, duration_secs, meter_start, meter_stop,
			energy_wh, reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			end_time = excluded.end_time,
			duration_secs = excluded.duration_secs,
			meter_stop = excluded.meter_stop,
			energy_wh = excluded.energy_wh,
			reason = excluded.reason
	`,
		s.SessionID, s.ChargerID, s.ChargerAlias, s.GroupID, s.IDTag, s.UserName,
		s.StopIDTag, s.StartTime, s.EndTime, int(s.Duration.Seconds()), s.MeterStart, s.MeterStop,
		s.Energy, s.Reason,
	)
	return err
}
