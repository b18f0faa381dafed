// Package store persists the active scoring config and its change history in
// Postgres.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"teed-waitlist/internal/scoring"
)

// ErrNotFound is returned by Load when the config row has never been written.
var ErrNotFound = stderrors.New("scoring config not found")

// Record is the raw persisted row. Threshold is the standalone column operators
// can set without touching the JSON document.
type Record struct {
	Config    json.RawMessage
	Threshold *float64
	UpdatedAt time.Time
}

// HistoryEntry is one immutable audit row.
type HistoryEntry struct {
	ID            string          `json:"id"`
	ConfigVersion string          `json:"configVersion"`
	Config        *scoring.Config `json:"config,omitempty"`
	ChangedBy     string          `json:"changedBy,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

type ConfigStore struct {
	db *sql.DB
}

func NewConfigStore(db *sql.DB) *ConfigStore {
	return &ConfigStore{db: db}
}

func (s *ConfigStore) Load(ctx context.Context) (*Record, error) {
	query := `
		SELECT config, auto_approval_threshold, updated_at
		FROM scoring_config
		WHERE id = 1
	`

	var (
		rec       Record
		raw       []byte
		threshold sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, query).Scan(&raw, &threshold, &rec.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load scoring config: %w", err)
	}

	rec.Config = raw
	if threshold.Valid {
		v := threshold.Float64
		rec.Threshold = &v
	}
	return &rec, nil
}

// Save upserts the single config row. The threshold column mirrors
// cfg.AutoApproval.Threshold.
func (s *ConfigStore) Save(ctx context.Context, cfg *scoring.Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode scoring config: %w", err)
	}

	query := `
		INSERT INTO scoring_config (id, config, auto_approval_threshold, updated_at)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET config = EXCLUDED.config,
		    auto_approval_threshold = EXCLUDED.auto_approval_threshold,
		    updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, raw, cfg.AutoApproval.Threshold, cfg.Metadata.LastUpdated); err != nil {
		return fmt.Errorf("save scoring config: %w", err)
	}
	return nil
}

type HistoryStore struct {
	db *sql.DB
}

func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Append writes an entry. Empty ID and CreatedAt are filled in.
func (s *HistoryStore) Append(ctx context.Context, e HistoryEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(e.Config)
	if err != nil {
		return fmt.Errorf("encode history config: %w", err)
	}

	query := `
		INSERT INTO scoring_config_history (id, config_version, config, changed_by, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		e.ID, e.ConfigVersion, raw, nullString(e.ChangedBy), nullString(e.Reason), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append scoring history: %w", err)
	}
	return nil
}

// List returns the newest entries first.
func (s *HistoryStore) List(ctx context.Context, limit int) ([]HistoryEntry, error) {
	query := `
		SELECT id, config_version, config, changed_by, reason, created_at
		FROM scoring_config_history
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list scoring history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e         HistoryEntry
			raw       []byte
			changedBy sql.NullString
			reason    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ConfigVersion, &raw, &changedBy, &reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan scoring history: %w", err)
		}
		if len(raw) > 0 {
			var cfg scoring.Config
			if err := json.Unmarshal(raw, &cfg); err == nil {
				e.Config = &cfg
			}
		}
		e.ChangedBy = changedBy.String
		e.Reason = reason.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scoring history: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
