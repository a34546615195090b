package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// EventFilter narrows ReadEvents. Zero values match everything.
type EventFilter struct {
	Month time.Time // only the year and month are used
	Type  EventType
	Limit int
}

// ReadEvents loads audit records under root, newest first. Unreadable or
// malformed files are skipped.
func ReadEvents(root string, filter EventFilter) ([]SecurityEvent, error) {
	dir := root
	if !filter.Month.IsZero() {
		m := filter.Month.UTC()
		dir = filepath.Join(root, m.Format("2006"), m.Format("01"))
	}

	var events []SecurityEvent
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".tmp-") || filepath.Ext(name) != ".json" {
			return nil
		}
		if filter.Type != "" && !strings.HasPrefix(name, string(filter.Type)+"-") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var ev SecurityEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil
		}
		events = append(events, ev)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if filter.Limit > 0 && len(events) > filter.Limit {
		events = events[:filter.Limit]
	}
	return events, nil
}
