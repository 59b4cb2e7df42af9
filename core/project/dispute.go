package project

// Dispute action kinds an arbitrator may execute.
const (
	DisputeActionAddTasks    = "add_tasks"
	DisputeActionChangeOrder = "change_order"
	DisputeActionSetComplete = "set_complete"
)

// DisputeResolution is an adjudicated action. The arbitrator has already
// ruled, so the usual signature checks are bypassed; the resolution is
// caller-gated and replay-guarded by its dispute id.
type DisputeResolution struct {
	DisputeID   string              `json:"dispute_id"`
	Action      string              `json:"action"`
	AddTasks    *AddTasksPayload    `json:"add_tasks,omitempty"`
	ChangeOrder *ChangeOrderPayload `json:"change_order,omitempty"`
	SetComplete *SetCompletePayload `json:"set_complete,omitempty"`
}

// ExecuteDispute applies an adjudicated action. Sender must be the
// arbitration authority; each dispute id executes at most once.
func (p *Project) ExecuteDispute(res DisputeResolution, sender Address, params ProjectParams) ([]Event, []Transfer, error) {
	if params.Arbitrator == ZeroAddress || sender != params.Arbitrator {
		return nil, nil, ErrNotAuthorized
	}
	if res.DisputeID == "" {
		return nil, nil, ErrNotAuthorized
	}
	if p.ExecutedDisputes[res.DisputeID] {
		return nil, nil, ErrDisputeReplayed
	}

	var (
		events    []Event
		transfers []Transfer
		err       error
	)
	switch res.Action {
	case DisputeActionAddTasks:
		if res.AddTasks == nil || res.AddTasks.ProjectID != p.ID {
			return nil, nil, ErrProjectMismatch
		}
		if len(res.AddTasks.Costs) == 0 {
			return nil, nil, ErrEmptyBatch
		}
		if len(res.AddTasks.Costs) != len(res.AddTasks.Hashes) {
			return nil, nil, ErrLengthMismatch
		}
		for _, cost := range res.AddTasks.Costs {
			if cost < MinTaskCost {
				return nil, nil, ErrCostTooLow
			}
		}
		events = p.applyAddTasks(*res.AddTasks)
	case DisputeActionChangeOrder:
		if res.ChangeOrder == nil || res.ChangeOrder.ProjectID != p.ID {
			return nil, nil, ErrProjectMismatch
		}
		events, transfers, err = p.applyChangeOrder(*res.ChangeOrder)
	case DisputeActionSetComplete:
		if res.SetComplete == nil || res.SetComplete.ProjectID != p.ID {
			return nil, nil, ErrProjectMismatch
		}
		events, transfers, err = p.applySetComplete(res.SetComplete.TaskID, params)
	default:
		return nil, nil, ErrNotAuthorized
	}
	if err != nil {
		return nil, nil, err
	}

	if p.ExecutedDisputes == nil {
		p.ExecutedDisputes = make(map[string]bool)
	}
	p.ExecutedDisputes[res.DisputeID] = true
	events = append(events, p.event(EventDisputeExecuted, map[string]any{
		"dispute_id": res.DisputeID,
		"action":     res.Action,
	}))
	return events, transfers, nil
}
