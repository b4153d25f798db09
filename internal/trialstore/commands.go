package trialstore

import (
	"fmt"
	"time"
)

// CommandRecord is one audited command sent to the base.
type CommandRecord struct {
	ID      int64     `json:"id"`
	Command string    `json:"command"`
	Source  string    `json:"source"`
	SentAt  time.Time `json:"sent_at"`
}

// RecordCommand appends a command to the audit log. Source names the
// origin, for example "api" or "cli".
func (s *Store) RecordCommand(command, source string, sentAt time.Time) error {
	_, err := s.Exec(
		`INSERT INTO command_log (command, source, sent_at) VALUES (?, ?, ?)`,
		command, source, sentAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// RecentCommands returns the newest audit entries, newest first.
func (s *Store) RecentCommands(limit int) ([]CommandRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Query(
		`SELECT id, command, source, sent_at FROM command_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CommandRecord
	for rows.Next() {
		var record CommandRecord
		var sent string
		if err := rows.Scan(&record.ID, &record.Command, &record.Source, &sent); err != nil {
			return nil, err
		}
		sentAt, err := time.Parse(timeFormat, sent)
		if err != nil {
			return nil, fmt.Errorf("bad sent_at for command %d: %w", record.ID, err)
		}
		record.SentAt = sentAt
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
