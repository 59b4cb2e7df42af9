package project

import "time"

// Event types emitted by ledger operations.
const (
	EventTasksAdded           = "tasks_added"
	EventContractorInvited    = "contractor_invited"
	EventContractorDelegated  = "contractor_delegated"
	EventSubcontractorInvited = "subcontractor_invited"
	EventSubcontractorJoined  = "subcontractor_joined"
	EventProjectHashUpdated   = "project_hash_updated"
	EventTaskHashUpdated      = "task_hash_updated"
	EventHashApproved         = "hash_approved"
	EventLent                 = "lent_to_project"
	EventTasksAllocated       = "tasks_allocated"
	EventIncompleteAllocation = "incomplete_allocation"
	EventChangeOrderCost      = "change_order_cost"
	EventChangeOrderSC        = "change_order_subcontractor"
	EventTaskComplete         = "task_complete"
	EventTokensRecovered      = "tokens_recovered"
	EventDisputeExecuted      = "dispute_executed"
)

// Event is an activity entry recorded for every ledger mutation.
type Event struct {
	Type      string         `json:"type"`
	ProjectID string         `json:"project_id"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (p *Project) event(kind string, data map[string]any) Event {
	return Event{
		Type:      kind,
		ProjectID: p.ID,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}
