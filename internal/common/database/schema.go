package database

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS scoring_config (
		id                      INTEGER PRIMARY KEY CHECK (id = 1),
		config                  JSONB NOT NULL,
		auto_approval_threshold DOUBLE PRECISION,
		updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`ALTER TABLE scoring_config ALTER COLUMN auto_approval_threshold TYPE DOUBLE PRECISION`,
	`CREATE TABLE IF NOT EXISTS scoring_config_history (
		id             UUID PRIMARY KEY,
		config_version TEXT NOT NULL,
		config         JSONB NOT NULL,
		changed_by     TEXT,
		reason         TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS waitlist_applications (
		id          UUID PRIMARY KEY,
		email       TEXT NOT NULL,
		user_id     TEXT,
		answers     JSONB NOT NULL,
		score       NUMERIC(4,1) NOT NULL DEFAULT 0,
		status      TEXT NOT NULL DEFAULT 'pending',
		email_verified BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		approved_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_waitlist_applications_status_created
		ON waitlist_applications (status, created_at)`,
	`CREATE TABLE IF NOT EXISTS waitlist_capacity (
		id             INTEGER PRIMARY KEY CHECK (id = 1),
		approved_count INTEGER NOT NULL DEFAULT 0
	)`,
	`INSERT INTO waitlist_capacity (id, approved_count) VALUES (1, 0) ON CONFLICT (id) DO NOTHING`,
}
