package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	core "homefi-backend/core/project"
)

// PGStore persists ledgers in Postgres as JSONB documents with an
// optimistic version column, plus an append-only event log.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects and initializes the schema.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &PGStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS homefi_projects (
  id TEXT PRIMARY KEY,
  version BIGINT NOT NULL,
  doc JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS homefi_events (
  seq BIGSERIAL PRIMARY KEY,
  project_id TEXT NOT NULL,
  type TEXT NOT NULL,
  data JSONB,
  created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_homefi_events_project ON homefi_events(project_id, seq);
`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// CreateProject stores a new ledger at version 1.
func (s *PGStore) CreateProject(ctx context.Context, p *core.Project) error {
	p.Version = 1
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO homefi_projects (id, version, doc) VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING
`, p.ID, p.Version, doc)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrProjectExists
	}
	return nil
}

// GetProject loads a ledger document.
func (s *PGStore) GetProject(ctx context.Context, id string) (*core.Project, error) {
	var doc []byte
	var version int64
	err := s.pool.QueryRow(ctx, `SELECT version, doc FROM homefi_projects WHERE id = $1`, id).Scan(&version, &doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select project: %w", err)
	}
	var p core.Project
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	p.Version = version
	return &p, nil
}

// ListProjects loads all ledger documents ordered by id.
func (s *PGStore) ListProjects(ctx context.Context) ([]*core.Project, error) {
	rows, err := s.pool.Query(ctx, `SELECT version, doc FROM homefi_projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var out []*core.Project
	for rows.Next() {
		var doc []byte
		var version int64
		if err := rows.Scan(&version, &doc); err != nil {
			return nil, err
		}
		var p core.Project
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("decode project: %w", err)
		}
		p.Version = version
		out = append(out, &p)
	}
	return out, rows.Err()
}

// UpdateProject swaps the document if the caller's version matches.
func (s *PGStore) UpdateProject(ctx context.Context, p *core.Project) error {
	next := p.Version + 1
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode project: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE homefi_projects SET version = $1, doc = $2, updated_at = now()
WHERE id = $3 AND version = $4
`, next, doc, p.ID, p.Version)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT true FROM homefi_projects WHERE id = $1`, p.ID).Scan(&exists); err != nil {
			return ErrProjectNotFound
		}
		return ErrVersionConflict
	}
	p.Version = next
	return nil
}

// AppendEvent records an activity entry.
func (s *PGStore) AppendEvent(ctx context.Context, evt core.Event) error {
	data, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO homefi_events (project_id, type, data, created_at) VALUES ($1, $2, $3, $4)
`, evt.ProjectID, evt.Type, data, evt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns the most recent events for a project, newest last.
func (s *PGStore) ListEvents(ctx context.Context, projectID string, limit int) ([]core.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
SELECT type, data, created_at FROM (
  SELECT seq, type, data, created_at FROM homefi_events
  WHERE project_id = $1 ORDER BY seq DESC LIMIT $2
) sub ORDER BY seq ASC
`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var out []core.Event
	for rows.Next() {
		var evt core.Event
		var data []byte
		if err := rows.Scan(&evt.Type, &data, &evt.CreatedAt); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &evt.Data); err != nil {
				return nil, fmt.Errorf("decode event: %w", err)
			}
		}
		evt.ProjectID = projectID
		out = append(out, evt)
	}
	return out, rows.Err()
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
