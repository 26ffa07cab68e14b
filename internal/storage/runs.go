package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kalambet/pageqa/internal/domain"
)

// runTimeLayout keeps a fixed width so created_at sorts lexically.
const runTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

func (s *Store) SaveRun(ctx context.Context, r Run) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	locators, err := json.Marshal(nonNil(r.Locators))
	if err != nil {
		return err
	}
	queries, err := json.Marshal(nonNil(r.Queries))
	if err != nil {
		return err
	}
	records := r.Records
	if records == nil {
		records = []domain.Record{}
	}
	recs, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding records: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, locators, queries, model_ref, state, error, records, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			error = excluded.error,
			records = excluded.records,
			duration_ms = excluded.duration_ms`,
		r.ID, r.CreatedAt.UTC().Format(runTimeLayout), string(locators), string(queries),
		r.ModelRef, r.State, r.Error, string(recs), r.Duration.Milliseconds(),
	)
	return err
}

func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, locators, queries, model_ref, state, error, records, duration_ms
		FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns returns the newest runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, locators, queries, model_ref, state, error, records, duration_ms
		FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func scanRun(sc rowScanner) (Run, error) {
	var r Run
	var createdAt, locators, queries, records string
	var durationMS int64
	if err := sc.Scan(&r.ID, &createdAt, &locators, &queries, &r.ModelRef, &r.State, &r.Error, &records, &durationMS); err != nil {
		return Run{}, err
	}
	t, err := time.Parse(runTimeLayout, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("parsing created_at: %w", err)
	}
	r.CreatedAt = t
	r.Duration = time.Duration(durationMS) * time.Millisecond
	if err := json.Unmarshal([]byte(locators), &r.Locators); err != nil {
		return Run{}, fmt.Errorf("decoding locators for run %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(queries), &r.Queries); err != nil {
		return Run{}, fmt.Errorf("decoding queries for run %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(records), &r.Records); err != nil {
		return Run{}, fmt.Errorf("decoding records for run %s: %w", r.ID, err)
	}
	return r, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
