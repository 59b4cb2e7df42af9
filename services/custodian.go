package services

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	core "homefi-backend/core/project"
	storage "homefi-backend/storage/project"
)

var (
	ledgerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homefi_ledger_calls_total",
		Help: "Ledger calls by operation and outcome.",
	}, []string{"operation", "outcome"})
	incompleteAllocations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "homefi_incomplete_allocations_total",
		Help: "Allocation passes halted by the step ceiling.",
	})
	transferVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "homefi_transfer_volume_total",
		Help: "Custody transfer volume by direction.",
	}, []string{"direction"})
	allocationBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "homefi_allocation_batch_size",
		Help:    "Tasks allocated per allocation pass.",
		Buckets: prometheus.LinearBuckets(0, 5, 11),
	})
)

// Custodian orchestrates ledger mutations. Every call loads the ledger,
// mutates a clone, settles the resulting custody transfers against the
// vault, and commits the clone only if everything succeeded. A custody
// failure reverts the whole call.
type Custodian struct {
	store    storage.Store
	vault    core.TokenVault
	registry core.CommunityRegistry
	mu       sync.Mutex
}

// NewCustodian wires the orchestrator.
func NewCustodian(store storage.Store, vault core.TokenVault, registry core.CommunityRegistry) *Custodian {
	return &Custodian{store: store, vault: vault, registry: registry}
}

// CreateProject registers a new ledger for a builder.
func (c *Custodian) CreateProject(ctx context.Context, id string, builder core.Address) (*core.Project, error) {
	if id == "" || builder == core.ZeroAddress {
		return nil, core.ErrZeroAddress
	}
	params, err := c.registry.ProjectParams(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve params: %w", err)
	}
	p := core.NewProject(id, builder, params)
	if err := c.store.CreateProject(ctx, p); err != nil {
		ledgerCalls.WithLabelValues("create_project", "rejected").Inc()
		return nil, err
	}
	ledgerCalls.WithLabelValues("create_project", "ok").Inc()
	log.Printf("project %s created for builder %s", id, builder)
	return p, nil
}

// GetProject loads a ledger.
func (c *Custodian) GetProject(ctx context.Context, id string) (*core.Project, error) {
	return c.store.GetProject(ctx, id)
}

// ListProjects loads all ledgers.
func (c *Custodian) ListProjects(ctx context.Context) ([]*core.Project, error) {
	return c.store.ListProjects(ctx)
}

// ListEvents returns recent activity for a project.
func (c *Custodian) ListEvents(ctx context.Context, projectID string, limit int) ([]core.Event, error) {
	return c.store.ListEvents(ctx, projectID, limit)
}

// Params resolves the registry parameters for a project.
func (c *Custodian) Params(ctx context.Context, projectID string) (core.ProjectParams, error) {
	return c.registry.ProjectParams(ctx, projectID)
}

type mutation func(p *core.Project, params core.ProjectParams) ([]core.Event, []core.Transfer, error)

func (c *Custodian) mutate(ctx context.Context, projectID, op string, fn mutation) ([]core.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	params, err := c.registry.ProjectParams(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("resolve params: %w", err)
	}
	current, err := c.store.GetProject(ctx, projectID)
	if err != nil {
		ledgerCalls.WithLabelValues(op, "rejected").Inc()
		return nil, err
	}

	next := current.Clone()
	events, transfers, err := fn(next, params)
	if err != nil {
		ledgerCalls.WithLabelValues(op, "rejected").Inc()
		return nil, err
	}
	if err := next.CheckInvariant(); err != nil {
		ledgerCalls.WithLabelValues(op, "rejected").Inc()
		return nil, err
	}

	if err := c.settle(ctx, transfers); err != nil {
		ledgerCalls.WithLabelValues(op, "custody_failed").Inc()
		return nil, err
	}

	if err := c.store.UpdateProject(ctx, next); err != nil {
		// the clone is discarded; compensate settled transfers so
		// custody matches the stored ledger
		c.compensate(ctx, transfers)
		ledgerCalls.WithLabelValues(op, "conflict").Inc()
		return nil, err
	}

	for _, evt := range events {
		if err := c.store.AppendEvent(ctx, evt); err != nil {
			log.Printf("append event %s for %s: %v", evt.Type, projectID, err)
		}
		switch evt.Type {
		case core.EventIncompleteAllocation:
			incompleteAllocations.Inc()
		case core.EventTasksAllocated:
			if ids, ok := evt.Data["task_ids"].([]int); ok {
				allocationBatchSize.Observe(float64(len(ids)))
			}
		}
	}
	ledgerCalls.WithLabelValues(op, "ok").Inc()
	return events, nil
}

// settle executes transfers in order, compensating any already-executed
// ones when a later transfer fails.
func (c *Custodian) settle(ctx context.Context, transfers []core.Transfer) error {
	done := make([]core.Transfer, 0, len(transfers))
	for _, t := range transfers {
		amount := t.Amount
		if t.EntireBalance {
			bal, err := c.vault.Balance(ctx, t.Token)
			if err != nil {
				c.compensate(ctx, done)
				return fmt.Errorf("custody: %w", err)
			}
			amount = bal
		}
		if amount == 0 {
			continue
		}
		var err error
		if t.From != core.ZeroAddress {
			err = c.vault.Pull(ctx, t.Token, t.From, amount)
			transferVolume.WithLabelValues("pull").Add(float64(amount))
		} else {
			err = c.vault.Push(ctx, t.Token, t.To, amount)
			transferVolume.WithLabelValues("push").Add(float64(amount))
		}
		if err != nil {
			c.compensate(ctx, done)
			return fmt.Errorf("custody: %w", err)
		}
		t.Amount = amount
		done = append(done, t)
	}
	return nil
}

func (c *Custodian) compensate(ctx context.Context, done []core.Transfer) {
	for i := len(done) - 1; i >= 0; i-- {
		t := done[i]
		var err error
		if t.From != core.ZeroAddress {
			err = c.vault.Push(ctx, t.Token, t.From, t.Amount)
		} else {
			err = c.vault.Pull(ctx, t.Token, t.To, t.Amount)
		}
		if err != nil {
			log.Printf("compensation failed for %+v: %v", t, err)
		}
	}
}

// AddTasks appends a signed task batch.
func (c *Custodian) AddTasks(ctx context.Context, projectID string, payload core.AddTasksPayload, sigs []byte) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "add_tasks", func(p *core.Project, _ core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.AddTasks(payload, sigs)
	})
}

// InviteContractor records contractor acceptance.
func (c *Custodian) InviteContractor(ctx context.Context, projectID string, payload core.InviteContractorPayload, sigs []byte) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "invite_contractor", func(p *core.Project, _ core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.InviteContractor(payload, sigs)
	})
}

// DelegateContractor toggles contractor delegation.
func (c *Custodian) DelegateContractor(ctx context.Context, projectID string, delegated bool, sender core.Address) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "delegate_contractor", func(p *core.Project, _ core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.DelegateContractor(delegated, sender)
	})
}

// InviteSC assigns subcontractors to tasks.
func (c *Custodian) InviteSC(ctx context.Context, projectID string, taskIDs []int, subcontractors []core.Address, sender core.Address) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "invite_sc", func(p *core.Project, _ core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.InviteSC(taskIDs, subcontractors, sender)
	})
}

// AcceptInviteSC confirms a batch of subcontractor invites.
func (c *Custodian) AcceptInviteSC(ctx context.Context, projectID string, taskIDs []int, sender core.Address) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "accept_invite_sc", func(p *core.Project, _ core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.AcceptInviteSC(taskIDs, sender)
	})
}

// UpdateProjectHash replaces the project content hash.
func (c *Custodian) UpdateProjectHash(ctx context.Context, projectID string, payload core.UpdateProjectHashPayload, sigs []byte) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "update_project_hash", func(p *core.Project, _ core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.UpdateProjectHash(payload, sigs)
	})
}

// UpdateTaskHash replaces a task content hash.
func (c *Custodian) UpdateTaskHash(ctx context.Context, projectID string, payload core.UpdateTaskHashPayload, sigs []byte) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "update_task_hash", func(p *core.Project, _ core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.UpdateTaskHash(payload, sigs)
	})
}

// ApproveHash records a standing digest approval for the sender.
func (c *Custodian) ApproveHash(ctx context.Context, projectID string, digest []byte, sender core.Address) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "approve_hash", func(p *core.Project, _ core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.ApproveHash(digest, sender)
	})
}

// LendToProject pulls funds into custody and allocates.
func (c *Custodian) LendToProject(ctx context.Context, projectID string, amount int64, sender core.Address) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "lend", func(p *core.Project, params core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.LendToProject(amount, sender, params)
	})
}

// AllocateFunds runs an explicit allocation pass.
func (c *Custodian) AllocateFunds(ctx context.Context, projectID string) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "allocate", func(p *core.Project, _ core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.AllocateFunds()
	})
}

// ChangeOrder reprices or reassigns a task.
func (c *Custodian) ChangeOrder(ctx context.Context, projectID string, payload core.ChangeOrderPayload, sigs []byte) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "change_order", func(p *core.Project, _ core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.ChangeOrder(payload, sigs)
	})
}

// SetComplete settles a finished task.
func (c *Custodian) SetComplete(ctx context.Context, projectID string, payload core.SetCompletePayload, sigs []byte) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "set_complete", func(p *core.Project, params core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.SetComplete(payload, sigs, params)
	})
}

// RecoverTokens returns vault funds to the builder.
func (c *Custodian) RecoverTokens(ctx context.Context, projectID string, token, sender core.Address) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "recover_tokens", func(p *core.Project, _ core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.RecoverTokens(token, sender)
	})
}

// ExecuteDispute applies an adjudicated action.
func (c *Custodian) ExecuteDispute(ctx context.Context, projectID string, res core.DisputeResolution, sender core.Address) ([]core.Event, error) {
	return c.mutate(ctx, projectID, "execute_dispute", func(p *core.Project, params core.ProjectParams) ([]core.Event, []core.Transfer, error) {
		return p.ExecuteDispute(res, sender, params)
	})
}
