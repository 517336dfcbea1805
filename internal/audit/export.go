/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 * Licensed under the Apache License, Version 2.0
 */

package audit

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// exportJSON exports audit logs to JSON format.
func (m *Manager) exportJSON(filename string, events []Event) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(events); err != nil {
		return fmt.Errorf("encode JSON: %w", err)
	}

	m.logger.Info("exported audit logs to JSON", "filename", filename, "count", fmt.Sprint(len(events)))
	return nil
}

// exportCSV exports audit logs to CSV format.
func (m *Manager) exportCSV(filename string, events []Event) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"ID", "Timestamp", "EventType", "NodeID", "Term", "Role", "PeerID", "Detail", "Status", "Error", "DurationMs"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, event := range events {
		row := []string{
			strconv.FormatInt(event.ID, 10),
			event.Timestamp.Format("2006-01-02 15:04:05"),
			string(event.EventType),
			event.NodeID,
			strconv.FormatUint(event.Term, 10),
			event.Role,
			event.PeerID,
			event.Detail,
			string(event.Status),
			event.Error,
			strconv.FormatInt(event.DurationMs, 10),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}

	m.logger.Info("exported audit logs to CSV", "filename", filename, "count", fmt.Sprint(len(events)))
	return nil
}
