package csvstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ExportScheduler periodically copies the live sessions CSV into a
// timestamped snapshot under an export directory, mirroring the teacher's
// LogsScheduler ticker/panic-recovery shape.
type ExportScheduler struct {
	sessionsPath string
	exportDir    string
	interval     time.Duration
	logger       *zap.Logger
}

func NewExportScheduler(sessionsPath, exportDir string, interval time.Duration, logger *zap.Logger) *ExportScheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExportScheduler{sessionsPath: sessionsPath, exportDir: exportDir, interval: interval, logger: logger.Named("csv_export")}
}

// Run blocks until ctx is cancelled, exporting on each tick.
func (s *ExportScheduler) Run(ctx context.Context) {
	if s.exportDir == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("export scheduler panic recovered", zap.Any("panic", r))
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.export(); err != nil {
				s.logger.Error("scheduled export failed", zap.Error(err))
			}
		}
	}
}

func (s *ExportScheduler) export() error {
	src, err := os.Open(s.sessionsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer src.Close()

	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(s.exportDir, fmt.Sprintf("sessions_%s.csv", time.Now().Format("2006-01-02_15-04-05")))
	dst, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	if err == nil {
		s.logger.Info("exported sessions snapshot", zap.String("path", dest))
	}
	return err
}
