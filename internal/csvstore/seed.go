package csvstore

import (
	"encoding/csv"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// SeedDefaults writes a minimal demo groups/chargers/tags CSV set if none
// of the three files exist yet, so a fresh deployment has something to
// connect against instead of an empty store.
func SeedDefaults(groupsPath, chargersPath, tagsPath string, logger *zap.Logger) error {
	if fileExists(groupsPath) || fileExists(chargersPath) || fileExists(tagsPath) {
		return nil
	}

	if err := writeCSV(groupsPath, []string{"group_id", "description", "max_allocation_schedule"}, [][]string{
		{"default", "Demo allocation group", "00:00-23:59>0=24:3=40:5=48"},
	}); err != nil {
		return err
	}
	if err := writeCSV(chargersPath, []string{"charger_id", "alias", "group_id", "priority", "description", "conn_max", "auth_sha", "connector_count"}, [][]string{
		{"CP-001", "Demo Station 1", "default", "1", "Demo station", "32", "", "1"},
		{"CP-002", "Demo Station 2", "default", "3", "Demo station", "32", "", "1"},
	}); err != nil {
		return err
	}
	if err := writeCSV(tagsPath, []string{"id_tag", "user_name", "parent_id_tag", "description", "status", "priority"}, [][]string{
		{"DEMOTAG1", "Demo User", "", "Seeded demo tag", "Activated", ""},
	}); err != nil {
		return err
	}

	logger.Info("seeded demo groups/chargers/tags CSVs")
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}
