package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dd0wney/cluso-waternet/pkg/alerts"
	"github.com/dd0wney/cluso-waternet/pkg/fault"
	"github.com/dd0wney/cluso-waternet/pkg/leaks"
	"github.com/dd0wney/cluso-waternet/pkg/logging"
)

const upsertCase = `
	INSERT INTO leak_cases (id, status, source, severity, dma, node_id, segment_id,
		detected_at, repaired_at, reopened_from, archived_at, payload)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
		status = EXCLUDED.status,
		repaired_at = EXCLUDED.repaired_at,
		archived_at = EXCLUDED.archived_at,
		payload = EXCLUDED.payload
`

const upsertAlert = `
	INSERT INTO alerts (id, sensor_id, type, severity, state, raised_at, updated_at,
		leak_case_id, archived_at, payload)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE SET
		state = EXCLUDED.state,
		updated_at = EXCLUDED.updated_at,
		leak_case_id = EXCLUDED.leak_case_id,
		archived_at = EXCLUDED.archived_at,
		payload = EXCLUDED.payload
`

// ArchiveCase stores a case. Re-archiving the same case replaces the row.
func (s *Store) ArchiveCase(ctx context.Context, c leaks.Case) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal case: %w", err)
	}

	_, err = s.pool.Exec(ctx, upsertCase,
		c.ID,
		c.Status.String(),
		string(c.Source),
		c.Severity.String(),
		nullable(c.DMA),
		nullable(c.Location.NodeID),
		nullable(c.Location.SegmentID),
		c.DetectedAt.UTC(),
		utc(c.RepairedAt),
		nullable(c.ReopenedFrom),
		time.Now().UTC(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to archive case %s: %w", c.ID, err)
	}
	s.logger.Debug("case archived", logging.CaseID(c.ID), logging.String("status", c.Status.String()))
	return nil
}

// ArchiveAlert stores a closed alert
func (s *Store) ArchiveAlert(ctx context.Context, a alerts.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	_, err = s.pool.Exec(ctx, upsertAlert,
		a.ID,
		a.SensorID,
		string(a.Type),
		a.Severity.String(),
		string(a.State),
		a.RaisedAt.UTC(),
		a.UpdatedAt.UTC(),
		nullable(a.LeakCaseID),
		time.Now().UTC(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to archive alert %s: %w", a.ID, err)
	}
	s.logger.Debug("alert archived", logging.AlertID(a.ID))
	return nil
}

// GetCase loads an archived case
func (s *Store) GetCase(ctx context.Context, id string) (leaks.Case, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM leak_cases WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return leaks.Case{}, fault.New("GetCase").Case(id).Cause(fault.ErrUnknownCase).Err()
	}
	if err != nil {
		return leaks.Case{}, fmt.Errorf("failed to get case: %w", err)
	}

	var c leaks.Case
	if err := json.Unmarshal(payload, &c); err != nil {
		return leaks.Case{}, fmt.Errorf("failed to unmarshal case %s: %w", id, err)
	}
	return c, nil
}

// CasesForDMA lists archived cases of a zone, newest first
func (s *Store) CasesForDMA(ctx context.Context, dma string, limit int) ([]leaks.Case, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM leak_cases WHERE dma = $1 ORDER BY detected_at DESC LIMIT $2`, dma, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	defer rows.Close()

	var out []leaks.Case
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan case: %w", err)
		}
		var c leaks.Case
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("failed to unmarshal case: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReopenChain follows reopened_from links back from id and returns the
// chain oldest first
func (s *Store) ReopenChain(ctx context.Context, id string) ([]leaks.Case, error) {
	var chain []leaks.Case
	seen := make(map[string]bool)
	for id != "" && !seen[id] {
		seen[id] = true
		c, err := s.GetCase(ctx, id)
		if err != nil {
			if fault.IsNotFound(err) && len(chain) > 0 {
				break
			}
			return nil, err
		}
		chain = append([]leaks.Case{c}, chain...)
		id = c.ReopenedFrom
	}
	return chain, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
