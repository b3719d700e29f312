// Package csvstore loads the CSV-backed config entities (groups, chargers,
// tags, users), writes demo config CSVs on first run when none exist (it
// does not write changed entities back), and appends completed sessions to an
// append-only CSV log, grounded on the original balanz Python project's
// Tag.read_csv/write_csv and the teacher's logs export idiom.
package csvstore

import (
	"encoding/csv"
	"os"
	"strconv"

	"github.com/evbalanz/balanzd/internal/model"
)

// LoadGroups reads a groups CSV with header
// group_id,description,max_allocation_schedule into the store.
func LoadGroups(path string, store *model.Store) error {
	return forEachRow(path, func(rec map[string]string) error {
		store.PutGroup(&model.Group{
			GroupID:               rec["group_id"],
			Description:           rec["description"],
			MaxAllocationSchedule: rec["max_allocation_schedule"],
		})
		return nil
	})
}

// LoadChargers reads a chargers CSV with header
// charger_id,alias,group_id,priority,description,conn_max,auth_sha,connector_count
// into the store.
func LoadChargers(path string, store *model.Store) error {
	return forEachRow(path, func(rec map[string]string) error {
		priority, _ := strconv.Atoi(rec["priority"])
		connMax, _ := strconv.ParseFloat(rec["conn_max"], 64)
		connCount, _ := strconv.Atoi(rec["connector_count"])
		if connCount <= 0 {
			connCount = 1
		}
		charger := &model.Charger{
			ChargerID:   rec["charger_id"],
			Alias:       rec["alias"],
			GroupID:     rec["group_id"],
			Priority:    priority,
			Description: rec["description"],
			ConnMax:     connMax,
			AuthSHA:     rec["auth_sha"],
			Connectors:  make(map[int]*model.Connector),
		}
		for i := 1; i <= connCount; i++ {
			charger.Connectors[i] = &model.Connector{
				ChargerID:   charger.ChargerID,
				ConnectorID: i,
				Status:      model.StatusAvailable,
			}
		}
		store.PutCharger(charger)
		return nil
	})
}

// LoadTags reads a tags CSV with header
// id_tag,user_name,parent_id_tag,description,status,priority into the store.
func LoadTags(path string, store *model.Store) error {
	return forEachRow(path, func(rec map[string]string) error {
		tag := &model.Tag{
			IDTag:       rec["id_tag"],
			UserName:    rec["user_name"],
			ParentIDTag: rec["parent_id_tag"],
			Description: rec["description"],
			Status:      model.TagStatus(rec["status"]),
		}
		if p := rec["priority"]; p != "" {
			if n, err := strconv.Atoi(p); err == nil {
				tag.Priority = &n
			}
		}
		if tag.Status == "" {
			tag.Status = model.TagActivated
		}
		store.PutTag(tag)
		return nil
	})
}

// forEachRow opens a CSV file, treats its first row as a header, and
// invokes fn with each subsequent row as a header->value map. A missing
// file is not an error — it is treated as an empty table so a fresh
// deployment can start with no config CSVs present.
func forEachRow(path string, fn func(map[string]string) error) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil // empty file
	}
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		rec := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}
