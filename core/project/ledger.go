package project

import "encoding/hex"

// AddTasks appends a signed batch of tasks. New tasks start unconfirmed
// and unallocated; allocation runs on lending or on an explicit pass.
func (p *Project) AddTasks(payload AddTasksPayload, sigs []byte) ([]Event, []Transfer, error) {
	if payload.ProjectID != p.ID {
		return nil, nil, ErrProjectMismatch
	}
	if payload.TaskCount != p.TaskCount {
		return nil, nil, ErrStaleTaskCount
	}
	if len(payload.Costs) == 0 {
		return nil, nil, ErrEmptyBatch
	}
	if len(payload.Costs) != len(payload.Hashes) {
		return nil, nil, ErrLengthMismatch
	}
	for _, cost := range payload.Costs {
		if cost < MinTaskCost {
			return nil, nil, ErrCostTooLow
		}
	}
	if err := p.verifyAuthorization(p.projectSigners(), payload.Digest(), sigs); err != nil {
		return nil, nil, err
	}
	events := p.applyAddTasks(payload)
	return events, nil, nil
}

func (p *Project) applyAddTasks(payload AddTasksPayload) []Event {
	ids := make([]int, 0, len(payload.Costs))
	for i, cost := range payload.Costs {
		id := p.TaskCount + i + 1
		p.Tasks = append(p.Tasks, Task{
			ID:    id,
			Cost:  cost,
			State: TaskUnconfirmed,
			Hash:  payload.Hashes[i],
		})
		ids = append(ids, id)
	}
	p.TaskCount += len(payload.Costs)
	return []Event{p.event(EventTasksAdded, map[string]any{
		"task_ids":   ids,
		"task_count": p.TaskCount,
	})}
}

// InviteContractor records a one-time contractor acceptance, signed by the
// builder and the candidate.
func (p *Project) InviteContractor(payload InviteContractorPayload, sigs []byte) ([]Event, []Transfer, error) {
	if payload.ProjectID != p.ID {
		return nil, nil, ErrProjectMismatch
	}
	if p.ContractorConfirmed {
		return nil, nil, ErrContractorAccepted
	}
	if payload.Contractor == ZeroAddress {
		return nil, nil, ErrZeroAddress
	}
	expected := []Address{p.Builder, payload.Contractor}
	if err := p.verifyAuthorization(expected, payload.Digest(), sigs); err != nil {
		return nil, nil, err
	}
	p.Contractor = payload.Contractor
	p.ContractorConfirmed = true
	events := []Event{p.event(EventContractorInvited, map[string]any{
		"contractor": payload.Contractor,
	})}
	return events, nil, nil
}

// DelegateContractor toggles contractor delegation. Builder-only.
func (p *Project) DelegateContractor(delegated bool, sender Address) ([]Event, []Transfer, error) {
	if sender != p.Builder {
		return nil, nil, ErrNotBuilder
	}
	if p.Contractor == ZeroAddress {
		return nil, nil, ErrNoContractor
	}
	p.ContractorDelegated = delegated
	events := []Event{p.event(EventContractorDelegated, map[string]any{
		"delegated": delegated,
	})}
	return events, nil, nil
}

// InviteSC assigns subcontractors to unconfirmed tasks. Sender must be the
// builder or the contractor.
func (p *Project) InviteSC(taskIDs []int, subcontractors []Address, sender Address) ([]Event, []Transfer, error) {
	if sender != p.Builder && sender != p.Contractor {
		return nil, nil, ErrNotAuthorized
	}
	if len(taskIDs) != len(subcontractors) || len(taskIDs) == 0 {
		return nil, nil, ErrLengthMismatch
	}
	events := make([]Event, 0, len(taskIDs))
	for i, id := range taskIDs {
		sc := subcontractors[i]
		if sc == ZeroAddress {
			return nil, nil, ErrZeroAddress
		}
		t := p.task(id)
		if t == nil {
			return nil, nil, ErrTaskNotFound
		}
		if t.State != TaskUnconfirmed {
			return nil, nil, ErrTaskConfirmed
		}
		t.Subcontractor = sc
		events = append(events, p.event(EventSubcontractorInvited, map[string]any{
			"task_id":       id,
			"subcontractor": sc,
		}))
	}
	return events, nil, nil
}

// AcceptInviteSC confirms pending subcontractor invites as one batch.
// Sender must be the invited subcontractor on every task; any bad id
// rejects the whole batch.
func (p *Project) AcceptInviteSC(taskIDs []int, sender Address) ([]Event, []Transfer, error) {
	if len(taskIDs) == 0 {
		return nil, nil, ErrEmptyBatch
	}
	for _, id := range taskIDs {
		t := p.task(id)
		if t == nil {
			return nil, nil, ErrTaskNotFound
		}
		if t.State != TaskUnconfirmed {
			return nil, nil, ErrTaskConfirmed
		}
		if t.Subcontractor == ZeroAddress || sender != t.Subcontractor {
			return nil, nil, ErrNotAuthorized
		}
	}
	events := make([]Event, 0, len(taskIDs))
	for _, id := range taskIDs {
		p.task(id).State = TaskActive
		events = append(events, p.event(EventSubcontractorJoined, map[string]any{
			"task_id":       id,
			"subcontractor": sender,
		}))
	}
	return events, nil, nil
}

// UpdateProjectHash replaces the project content hash. Builder-signed and
// nonce-gated.
func (p *Project) UpdateProjectHash(payload UpdateProjectHashPayload, sigs []byte) ([]Event, []Transfer, error) {
	if payload.ProjectID != p.ID {
		return nil, nil, ErrProjectMismatch
	}
	if payload.Nonce != p.HashNonce {
		return nil, nil, ErrBadNonce
	}
	if err := p.verifyAuthorization([]Address{p.Builder}, payload.Digest(), sigs); err != nil {
		return nil, nil, err
	}
	p.Hash = payload.Hash
	p.HashNonce++
	events := []Event{p.event(EventProjectHashUpdated, map[string]any{
		"hash":  payload.Hash,
		"nonce": p.HashNonce,
	})}
	return events, nil, nil
}

// UpdateTaskHash replaces a task content hash, signed by the task table.
func (p *Project) UpdateTaskHash(payload UpdateTaskHashPayload, sigs []byte) ([]Event, []Transfer, error) {
	if payload.ProjectID != p.ID {
		return nil, nil, ErrProjectMismatch
	}
	t := p.task(payload.TaskID)
	if t == nil {
		return nil, nil, ErrTaskNotFound
	}
	if err := p.verifyAuthorization(p.taskSigners(t), payload.Digest(), sigs); err != nil {
		return nil, nil, err
	}
	t.Hash = payload.Hash
	events := []Event{p.event(EventTaskHashUpdated, map[string]any{
		"task_id": payload.TaskID,
		"hash":    payload.Hash,
	})}
	return events, nil, nil
}

// ApproveHash records the sender's standing approval of a digest. Approvals
// are monotonic; they survive use.
func (p *Project) ApproveHash(digest []byte, sender Address) ([]Event, []Transfer, error) {
	if sender == ZeroAddress {
		return nil, nil, ErrZeroAddress
	}
	if p.ApprovedHashes == nil {
		p.ApprovedHashes = make(map[Address]map[string]bool)
	}
	if p.ApprovedHashes[sender] == nil {
		p.ApprovedHashes[sender] = make(map[string]bool)
	}
	key := hex.EncodeToString(digest)
	p.ApprovedHashes[sender][key] = true
	events := []Event{p.event(EventHashApproved, map[string]any{
		"signer": sender,
		"digest": key,
	})}
	return events, nil, nil
}

// LendToProject pulls funds into custody and runs an allocation pass.
// Sender must be the builder or the community admin. Amounts beyond the
// unfunded project cost are rejected.
func (p *Project) LendToProject(amount int64, sender Address, params ProjectParams) ([]Event, []Transfer, error) {
	if sender != p.Builder && (params.Community == ZeroAddress || sender != params.Community) {
		return nil, nil, ErrNotAuthorized
	}
	if amount <= 0 {
		return nil, nil, ErrZeroAmount
	}
	if amount > p.ProjectCost()-p.TotalLent {
		return nil, nil, ErrExcessAmount
	}
	p.TotalLent += amount
	events := []Event{p.event(EventLent, map[string]any{
		"lender":     sender,
		"amount":     amount,
		"total_lent": p.TotalLent,
	})}
	transfers := []Transfer{{Token: p.Currency, From: sender, Amount: amount}}
	events = append(events, p.allocateFunds()...)
	return events, transfers, nil
}

// AllocateFunds runs an explicit allocation pass.
func (p *Project) AllocateFunds() ([]Event, []Transfer, error) {
	return p.allocateFunds(), nil, nil
}

// ChangeOrder reprices or reassigns a task, signed by the task table as of
// the current state.
func (p *Project) ChangeOrder(payload ChangeOrderPayload, sigs []byte) ([]Event, []Transfer, error) {
	if payload.ProjectID != p.ID {
		return nil, nil, ErrProjectMismatch
	}
	t := p.task(payload.TaskID)
	if t == nil {
		return nil, nil, ErrTaskNotFound
	}
	if t.State == TaskComplete {
		return nil, nil, ErrTaskComplete
	}
	if err := p.verifyAuthorization(p.taskSigners(t), payload.Digest(), sigs); err != nil {
		return nil, nil, err
	}
	return p.applyChangeOrder(payload)
}

func (p *Project) applyChangeOrder(payload ChangeOrderPayload) ([]Event, []Transfer, error) {
	t := p.task(payload.TaskID)
	if t == nil {
		return nil, nil, ErrTaskNotFound
	}
	if t.State == TaskComplete {
		return nil, nil, ErrTaskComplete
	}

	var events []Event
	var transfers []Transfer

	if payload.NewSubcontractor != ZeroAddress && payload.NewSubcontractor != t.Subcontractor {
		t.Subcontractor = payload.NewSubcontractor
		if t.State == TaskActive {
			t.State = TaskUnconfirmed
		}
		events = append(events,
			p.event(EventSubcontractorInvited, map[string]any{
				"task_id":       t.ID,
				"subcontractor": t.Subcontractor,
			}),
			p.event(EventChangeOrderSC, map[string]any{
				"task_id":       t.ID,
				"subcontractor": t.Subcontractor,
			}),
		)
	}

	if payload.NewCost != t.Cost && payload.NewCost != 0 {
		if payload.NewCost < MinTaskCost {
			return nil, nil, ErrCostTooLow
		}
		oldCost := t.Cost
		switch {
		case payload.NewCost > oldCost && t.Allocated:
			delta := payload.NewCost - oldCost
			if p.TotalLent-p.TotalAllocated >= delta {
				// absorbed: stays allocated and confirmed
				p.TotalAllocated += delta
				t.Cost = payload.NewCost
			} else {
				t.Allocated = false
				if t.State == TaskActive {
					t.State = TaskUnconfirmed
				}
				p.TotalAllocated -= oldCost
				t.Cost = payload.NewCost
				p.ChangeOrderedTasks = append(p.ChangeOrderedTasks, t.ID)
			}
		case payload.NewCost < oldCost && t.Allocated:
			delta := oldCost - payload.NewCost
			p.TotalLent -= delta
			p.TotalAllocated -= delta
			t.Cost = payload.NewCost
			transfers = append(transfers, Transfer{Token: p.Currency, To: p.Builder, Amount: delta})
		default:
			t.Cost = payload.NewCost
			// repricing an unallocated task can strand lent funds above
			// the new project cost; return the excess to the builder
			if excess := p.TotalLent - p.ProjectCost(); excess > 0 {
				p.TotalLent -= excess
				transfers = append(transfers, Transfer{Token: p.Currency, To: p.Builder, Amount: excess})
			}
		}
		events = append(events, p.event(EventChangeOrderCost, map[string]any{
			"task_id":  t.ID,
			"old_cost": oldCost,
			"new_cost": t.Cost,
		}))
	}

	return events, transfers, nil
}

// SetComplete marks an allocated, confirmed task complete and settles the
// subcontractor payout minus the treasury fee.
func (p *Project) SetComplete(payload SetCompletePayload, sigs []byte, params ProjectParams) ([]Event, []Transfer, error) {
	t := p.task(payload.TaskID)
	if t == nil {
		return nil, nil, ErrTaskNotFound
	}
	if payload.ProjectID != p.ID {
		return nil, nil, ErrProjectMismatch
	}
	if payload.Cost != t.Cost {
		return nil, nil, ErrBadCost
	}
	if t.State == TaskComplete {
		return nil, nil, ErrTaskComplete
	}
	if t.State != TaskActive {
		return nil, nil, ErrTaskNotConfirmed
	}
	if err := p.verifyAuthorization(p.taskSigners(t), payload.Digest(), sigs); err != nil {
		return nil, nil, err
	}
	return p.applySetComplete(payload.TaskID, params)
}

func (p *Project) applySetComplete(taskID int, params ProjectParams) ([]Event, []Transfer, error) {
	t := p.task(taskID)
	if t == nil {
		return nil, nil, ErrTaskNotFound
	}
	if t.State == TaskComplete {
		return nil, nil, ErrTaskComplete
	}
	if !t.Allocated {
		return nil, nil, ErrTaskNotAllocated
	}
	t.State = TaskComplete
	for i, id := range p.ChangeOrderedTasks {
		if id == taskID {
			p.ChangeOrderedTasks = append(p.ChangeOrderedTasks[:i], p.ChangeOrderedTasks[i+1:]...)
			if i < p.LastAllocatedChangeOrderTask {
				p.LastAllocatedChangeOrderTask--
			}
			break
		}
	}
	if len(p.ChangeOrderedTasks) == 0 {
		p.LastAllocatedChangeOrderTask = 0
	}
	fee := t.Cost * p.FeeRate / 1000
	payout := t.Cost - fee
	var transfers []Transfer
	if fee > 0 {
		transfers = append(transfers, Transfer{Token: p.Currency, To: params.Treasury, Amount: fee})
	}
	transfers = append(transfers, Transfer{Token: p.Currency, To: t.Subcontractor, Amount: payout})
	events := []Event{p.event(EventTaskComplete, map[string]any{
		"task_id": taskID,
		"cost":    t.Cost,
		"fee":     fee,
		"payout":  payout,
	})}
	return events, transfers, nil
}

// RecoverTokens returns vault funds to the builder. The project currency
// is only recoverable once every task is complete; any other token is
// recoverable at any time.
func (p *Project) RecoverTokens(token Address, sender Address) ([]Event, []Transfer, error) {
	if sender != p.Builder {
		return nil, nil, ErrNotBuilder
	}
	if token == p.Currency && !p.AllTasksComplete() {
		return nil, nil, ErrTasksIncomplete
	}
	transfers := []Transfer{{Token: token, To: p.Builder, EntireBalance: true}}
	events := []Event{p.event(EventTokensRecovered, map[string]any{
		"token": token,
	})}
	return events, transfers, nil
}
