package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/khanzadigithubid/AI-Employee-System/internal/model"
)

// SaveHealthRecord upserts a collector's health record.
func (s *Store) SaveHealthRecord(ctx context.Context, r model.HealthRecord) error {
	times := make([]int64, 0, len(r.RestartTimes))
	for _, t := range r.RestartTimes {
		times = append(times, toNanos(t))
	}
	timesJSON, err := json.Marshal(times)
	if err != nil {
		return fmt.Errorf("write health record: %w", err)
	}

	return retryOnBusy(ctx, defaultBusyRetries, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO health_records
			(name, last_heartbeat, consecutive_failures, error_count, last_error, status,
			 restart_count, restart_times, next_restart_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(name) DO UPDATE SET
				last_heartbeat = excluded.last_heartbeat,
				consecutive_failures = excluded.consecutive_failures,
				error_count = excluded.error_count,
				last_error = excluded.last_error,
				status = excluded.status,
				restart_count = excluded.restart_count,
				restart_times = excluded.restart_times,
				next_restart_at = excluded.next_restart_at,
				updated_at = excluded.updated_at
		`,
			r.Name,
			toNanos(r.LastHeartbeat),
			r.ConsecutiveFailures,
			r.ErrorCount,
			r.LastError,
			string(r.Status),
			r.RestartCount,
			string(timesJSON),
			toNanos(r.NextRestartAt),
			toNanos(r.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("write health record: %w", err)
		}
		return nil
	})
}

// LoadHealthRecords returns every stored health record ordered by name.
// Returns an empty slice (not nil) if there are none.
func (s *Store) LoadHealthRecords(ctx context.Context) ([]model.HealthRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, last_heartbeat, consecutive_failures, error_count, last_error, status,
		       restart_count, restart_times, next_restart_at, updated_at
		FROM health_records
		ORDER BY name COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("read health records: %w", err)
	}
	defer rows.Close()

	records := []model.HealthRecord{}
	for rows.Next() {
		var r model.HealthRecord
		var status, timesJSON string
		var lastHeartbeat, nextRestart, updatedAt int64
		if err := rows.Scan(&r.Name, &lastHeartbeat, &r.ConsecutiveFailures, &r.ErrorCount, &r.LastError, &status,
			&r.RestartCount, &timesJSON, &nextRestart, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan health record: %w", err)
		}
		var times []int64
		if err := json.Unmarshal([]byte(timesJSON), &times); err != nil {
			return nil, fmt.Errorf("unmarshal restart times for %s: %w", r.Name, err)
		}
		r.RestartTimes = make([]time.Time, 0, len(times))
		for _, n := range times {
			r.RestartTimes = append(r.RestartTimes, fromNanos(n))
		}
		r.Status = model.HealthStatus(status)
		r.LastHeartbeat = fromNanos(lastHeartbeat)
		r.NextRestartAt = fromNanos(nextRestart)
		r.UpdatedAt = fromNanos(updatedAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read health records: %w", err)
	}
	return records, nil
}
