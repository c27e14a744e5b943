package archive

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS leak_cases (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	source TEXT NOT NULL,
	severity TEXT NOT NULL,
	dma TEXT,
	node_id TEXT,
	segment_id TEXT,
	detected_at TIMESTAMPTZ NOT NULL,
	repaired_at TIMESTAMPTZ,
	reopened_from TEXT,
	archived_at TIMESTAMPTZ NOT NULL,
	payload JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leak_cases_dma ON leak_cases(dma, detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_leak_cases_reopened_from ON leak_cases(reopened_from);

CREATE TABLE IF NOT EXISTS alerts (
	id TEXT PRIMARY KEY,
	sensor_id TEXT NOT NULL,
	type TEXT NOT NULL,
	severity TEXT NOT NULL,
	state TEXT NOT NULL,
	raised_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	leak_case_id TEXT,
	archived_at TIMESTAMPTZ NOT NULL,
	payload JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_sensor ON alerts(sensor_id, raised_at DESC);
`

// Migrate creates the archive tables
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}
