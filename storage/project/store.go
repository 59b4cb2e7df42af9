package project

import (
	"context"

	core "homefi-backend/core/project"
)

var (
	ErrProjectNotFound = Err("project not found")
	ErrProjectExists   = Err("project already exists")
	ErrVersionConflict = Err("project version conflict")
)

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

// Store abstracts ledger persistence. UpdateProject performs an optimistic
// compare-and-swap on the stored version.
type Store interface {
	CreateProject(ctx context.Context, p *core.Project) error
	GetProject(ctx context.Context, id string) (*core.Project, error)
	ListProjects(ctx context.Context) ([]*core.Project, error)
	UpdateProject(ctx context.Context, p *core.Project) error
	AppendEvent(ctx context.Context, evt core.Event) error
	ListEvents(ctx context.Context, projectID string, limit int) ([]core.Event, error)
	Close()
}
