package project

import (
	"fmt"
	"testing"
)

func mustAddTasks(t *testing.T, p *Project, costs []int64, signers ...testKey) {
	t.Helper()
	hashes := make([]string, len(costs))
	for i := range hashes {
		hashes[i] = fmt.Sprintf("hash-%d", p.TaskCount+i+1)
	}
	payload := AddTasksPayload{ProjectID: p.ID, TaskCount: p.TaskCount, Hashes: hashes, Costs: costs}
	if _, _, err := p.AddTasks(payload, signAll(payload.Digest(), signers...)); err != nil {
		t.Fatalf("add tasks failed: %v", err)
	}
}

func mustCheckInvariant(t *testing.T, p *Project) {
	t.Helper()
	if err := p.CheckInvariant(); err != nil {
		t.Fatalf("invariant broken: allocated=%d lent=%d cost=%d", p.TotalAllocated, p.TotalLent, p.ProjectCost())
	}
}

func TestAddTasks(t *testing.T) {
	builder := newTestKey(t)
	params := testParams("", "", "")
	p := NewProject("p1", builder.addr, params)

	t.Run("rejects stale task count", func(t *testing.T) {
		payload := AddTasksPayload{ProjectID: "p1", TaskCount: 3, Hashes: []string{"h"}, Costs: []int64{1000}}
		if _, _, err := p.AddTasks(payload, signAll(payload.Digest(), builder)); err != ErrStaleTaskCount {
			t.Fatalf("got %v, want ErrStaleTaskCount", err)
		}
	})

	t.Run("rejects project mismatch", func(t *testing.T) {
		payload := AddTasksPayload{ProjectID: "other", Hashes: []string{"h"}, Costs: []int64{1000}}
		if _, _, err := p.AddTasks(payload, signAll(payload.Digest(), builder)); err != ErrProjectMismatch {
			t.Fatalf("got %v, want ErrProjectMismatch", err)
		}
	})

	t.Run("rejects empty batch", func(t *testing.T) {
		payload := AddTasksPayload{ProjectID: "p1"}
		if _, _, err := p.AddTasks(payload, signAll(payload.Digest(), builder)); err != ErrEmptyBatch {
			t.Fatalf("got %v, want ErrEmptyBatch", err)
		}
	})

	t.Run("rejects length mismatch", func(t *testing.T) {
		payload := AddTasksPayload{ProjectID: "p1", Hashes: []string{"h"}, Costs: []int64{1000, 2000}}
		if _, _, err := p.AddTasks(payload, signAll(payload.Digest(), builder)); err != ErrLengthMismatch {
			t.Fatalf("got %v, want ErrLengthMismatch", err)
		}
	})

	t.Run("rejects cost below floor", func(t *testing.T) {
		payload := AddTasksPayload{ProjectID: "p1", Hashes: []string{"h"}, Costs: []int64{999}}
		if _, _, err := p.AddTasks(payload, signAll(payload.Digest(), builder)); err != ErrCostTooLow {
			t.Fatalf("got %v, want ErrCostTooLow", err)
		}
	})

	t.Run("rejects bad signature", func(t *testing.T) {
		stranger := newTestKey(t)
		payload := AddTasksPayload{ProjectID: "p1", Hashes: []string{"h"}, Costs: []int64{1000}}
		if _, _, err := p.AddTasks(payload, signAll(payload.Digest(), stranger)); err != ErrInvalidSignature {
			t.Fatalf("got %v, want ErrInvalidSignature", err)
		}
	})

	t.Run("appends dense unconfirmed tasks", func(t *testing.T) {
		mustAddTasks(t, p, []int64{1000, 2500}, builder)
		if p.TaskCount != 2 {
			t.Fatalf("task count %d, want 2", p.TaskCount)
		}
		for i, task := range p.Tasks {
			if task.ID != i+1 {
				t.Fatalf("task %d has id %d", i, task.ID)
			}
			if task.State != TaskUnconfirmed || task.Allocated {
				t.Fatalf("task %d not fresh: %+v", i, task)
			}
		}
		mustCheckInvariant(t, p)
	})
}

func TestInviteContractor(t *testing.T) {
	builder := newTestKey(t)
	contractor := newTestKey(t)
	p := NewProject("p1", builder.addr, testParams("", "", ""))

	payload := InviteContractorPayload{ProjectID: "p1", Contractor: contractor.addr}

	if _, _, err := p.InviteContractor(InviteContractorPayload{ProjectID: "p1"}, nil); err != ErrZeroAddress {
		t.Fatalf("got %v, want ErrZeroAddress", err)
	}
	if _, _, err := p.InviteContractor(payload, signAll(payload.Digest(), builder)); err != ErrInvalidSignature {
		t.Fatalf("builder alone: got %v, want ErrInvalidSignature", err)
	}

	if _, _, err := p.InviteContractor(payload, signAll(payload.Digest(), builder, contractor)); err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	if p.Contractor != contractor.addr || !p.ContractorConfirmed {
		t.Fatalf("contractor not recorded: %+v", p)
	}

	// one-time
	other := newTestKey(t)
	again := InviteContractorPayload{ProjectID: "p1", Contractor: other.addr}
	if _, _, err := p.InviteContractor(again, signAll(again.Digest(), builder, other)); err != ErrContractorAccepted {
		t.Fatalf("got %v, want ErrContractorAccepted", err)
	}
}

func TestDelegateContractor(t *testing.T) {
	builder := newTestKey(t)
	contractor := newTestKey(t)
	p := NewProject("p1", builder.addr, testParams("", "", ""))

	if _, _, err := p.DelegateContractor(true, contractor.addr); err != ErrNotBuilder {
		t.Fatalf("got %v, want ErrNotBuilder", err)
	}
	if _, _, err := p.DelegateContractor(true, builder.addr); err != ErrNoContractor {
		t.Fatalf("got %v, want ErrNoContractor", err)
	}

	invite := InviteContractorPayload{ProjectID: "p1", Contractor: contractor.addr}
	if _, _, err := p.InviteContractor(invite, signAll(invite.Digest(), builder, contractor)); err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	if _, _, err := p.DelegateContractor(true, builder.addr); err != nil {
		t.Fatalf("delegate failed: %v", err)
	}
	if !p.ContractorDelegated {
		t.Fatal("delegation not recorded")
	}

	// delegated contractor signs project-scope actions alone
	mustAddTasks(t, p, []int64{1000}, contractor)
}

func TestInviteAndAcceptSC(t *testing.T) {
	builder := newTestKey(t)
	sc := newTestKey(t)
	p := NewProject("p1", builder.addr, testParams("", "", ""))
	mustAddTasks(t, p, []int64{1000, 2000}, builder)

	if _, _, err := p.InviteSC([]int{1}, []Address{sc.addr}, sc.addr); err != ErrNotAuthorized {
		t.Fatalf("got %v, want ErrNotAuthorized", err)
	}
	if _, _, err := p.InviteSC([]int{1, 2}, []Address{sc.addr}, builder.addr); err != ErrLengthMismatch {
		t.Fatalf("got %v, want ErrLengthMismatch", err)
	}
	if _, _, err := p.InviteSC([]int{1}, []Address{ZeroAddress}, builder.addr); err != ErrZeroAddress {
		t.Fatalf("got %v, want ErrZeroAddress", err)
	}
	if _, _, err := p.InviteSC([]int{9}, []Address{sc.addr}, builder.addr); err != ErrTaskNotFound {
		t.Fatalf("got %v, want ErrTaskNotFound", err)
	}

	if _, _, err := p.InviteSC([]int{1}, []Address{sc.addr}, builder.addr); err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	if p.Tasks[0].Subcontractor != sc.addr {
		t.Fatal("subcontractor not recorded")
	}

	if _, _, err := p.AcceptInviteSC([]int{1}, builder.addr); err != ErrNotAuthorized {
		t.Fatalf("got %v, want ErrNotAuthorized", err)
	}
	if _, _, err := p.AcceptInviteSC([]int{2}, sc.addr); err != ErrNotAuthorized {
		t.Fatalf("uninvited task: got %v, want ErrNotAuthorized", err)
	}
	if _, _, err := p.AcceptInviteSC(nil, sc.addr); err != ErrEmptyBatch {
		t.Fatalf("got %v, want ErrEmptyBatch", err)
	}
	if _, _, err := p.AcceptInviteSC([]int{1}, sc.addr); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if p.Tasks[0].State != TaskActive {
		t.Fatalf("task state %d, want active", p.Tasks[0].State)
	}
	if _, _, err := p.AcceptInviteSC([]int{1}, sc.addr); err != ErrTaskConfirmed {
		t.Fatalf("got %v, want ErrTaskConfirmed", err)
	}

	alerts := p.Tasks[0].Alerts()
	if !alerts.Exists || !alerts.Confirmed || alerts.Allocated {
		t.Fatalf("alerts %+v, want exists+confirmed only", alerts)
	}
}

func TestUpdateProjectHash(t *testing.T) {
	builder := newTestKey(t)
	p := NewProject("p1", builder.addr, testParams("", "", ""))

	stale := UpdateProjectHashPayload{ProjectID: "p1", Hash: "h1", Nonce: 5}
	if _, _, err := p.UpdateProjectHash(stale, signAll(stale.Digest(), builder)); err != ErrBadNonce {
		t.Fatalf("got %v, want ErrBadNonce", err)
	}

	payload := UpdateProjectHashPayload{ProjectID: "p1", Hash: "h1", Nonce: 0}
	if _, _, err := p.UpdateProjectHash(payload, signAll(payload.Digest(), builder)); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if p.Hash != "h1" || p.HashNonce != 1 {
		t.Fatalf("hash %q nonce %d", p.Hash, p.HashNonce)
	}

	// same payload cannot replay against the incremented nonce
	if _, _, err := p.UpdateProjectHash(payload, signAll(payload.Digest(), builder)); err != ErrBadNonce {
		t.Fatalf("got %v, want ErrBadNonce", err)
	}
}

func TestUpdateTaskHash(t *testing.T) {
	builder := newTestKey(t)
	sc := newTestKey(t)
	p := NewProject("p1", builder.addr, testParams("", "", ""))
	mustAddTasks(t, p, []int64{1000}, builder)
	if _, _, err := p.InviteSC([]int{1}, []Address{sc.addr}, builder.addr); err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	if _, _, err := p.AcceptInviteSC([]int{1}, sc.addr); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	payload := UpdateTaskHashPayload{ProjectID: "p1", TaskID: 1, Hash: "th"}
	// confirmed task needs the subcontractor's segment too
	if _, _, err := p.UpdateTaskHash(payload, signAll(payload.Digest(), builder)); err != ErrInvalidSignature {
		t.Fatalf("got %v, want ErrInvalidSignature", err)
	}
	if _, _, err := p.UpdateTaskHash(payload, signAll(payload.Digest(), builder, sc)); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if p.Tasks[0].Hash != "th" {
		t.Fatalf("task hash %q", p.Tasks[0].Hash)
	}
}

func TestLendToProject(t *testing.T) {
	builder := newTestKey(t)
	community := newTestKey(t)
	stranger := newTestKey(t)
	params := testParams("", "", community.addr)
	p := NewProject("p1", builder.addr, params)
	mustAddTasks(t, p, []int64{1000, 2000}, builder)

	if _, _, err := p.LendToProject(1000, stranger.addr, params); err != ErrNotAuthorized {
		t.Fatalf("got %v, want ErrNotAuthorized", err)
	}
	if _, _, err := p.LendToProject(0, builder.addr, params); err != ErrZeroAmount {
		t.Fatalf("got %v, want ErrZeroAmount", err)
	}

	events, transfers, err := p.LendToProject(1000, builder.addr, params)
	if err != nil {
		t.Fatalf("lend failed: %v", err)
	}
	if p.TotalLent != 1000 {
		t.Fatalf("total lent %d", p.TotalLent)
	}
	if len(transfers) != 1 || transfers[0].From != builder.addr || transfers[0].Amount != 1000 {
		t.Fatalf("transfers %+v", transfers)
	}
	if !p.Tasks[0].Allocated {
		t.Fatal("task 1 not allocated by lend")
	}
	var sawAllocated bool
	for _, evt := range events {
		if evt.Type == EventTasksAllocated {
			sawAllocated = true
		}
		if evt.Type == EventIncompleteAllocation {
			t.Fatal("fund exhaustion raised incomplete allocation")
		}
	}
	if !sawAllocated {
		t.Fatal("no allocation event")
	}

	// over-lending is rejected, not capped
	if _, _, err := p.LendToProject(2001, community.addr, params); err != ErrExcessAmount {
		t.Fatalf("got %v, want ErrExcessAmount", err)
	}
	if p.TotalLent != 1000 {
		t.Fatalf("total lent %d moved on a rejected lend", p.TotalLent)
	}

	// the exact remainder is accepted
	_, transfers, err = p.LendToProject(2000, community.addr, params)
	if err != nil {
		t.Fatalf("community lend failed: %v", err)
	}
	if transfers[0].Amount != 2000 {
		t.Fatalf("amount %d, want 2000", transfers[0].Amount)
	}
	if p.TotalLent != 3000 {
		t.Fatalf("total lent %d, want 3000", p.TotalLent)
	}
	mustCheckInvariant(t, p)

	// fully funded: any further amount exceeds the remainder
	if _, _, err := p.LendToProject(1, builder.addr, params); err != ErrExcessAmount {
		t.Fatalf("got %v, want ErrExcessAmount", err)
	}
}

// confirmedFundedTask builds a project with one active, allocated task.
func confirmedFundedTask(t *testing.T, builder, sc testKey, params ProjectParams, cost int64) *Project {
	t.Helper()
	p := NewProject("p1", builder.addr, params)
	mustAddTasks(t, p, []int64{cost}, builder)
	if _, _, err := p.InviteSC([]int{1}, []Address{sc.addr}, builder.addr); err != nil {
		t.Fatalf("invite failed: %v", err)
	}
	if _, _, err := p.AcceptInviteSC([]int{1}, sc.addr); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if _, _, err := p.LendToProject(cost, builder.addr, params); err != nil {
		t.Fatalf("lend failed: %v", err)
	}
	if !p.Tasks[0].Allocated {
		t.Fatal("task not allocated")
	}
	return p
}

func TestChangeOrderCost(t *testing.T) {
	builder := newTestKey(t)
	sc := newTestKey(t)
	params := testParams("", "", "")

	t.Run("increase absorbed by unallocated funds", func(t *testing.T) {
		p := confirmedFundedTask(t, builder, sc, params, 1000)
		// second task too expensive to allocate leaves lent headroom
		mustAddTasks(t, p, []int64{5000}, builder)
		if _, _, err := p.LendToProject(2000, builder.addr, params); err != nil {
			t.Fatalf("lend failed: %v", err)
		}
		if p.TotalLent-p.TotalAllocated != 2000 {
			t.Fatalf("headroom %d, want 2000", p.TotalLent-p.TotalAllocated)
		}
		payload := ChangeOrderPayload{ProjectID: "p1", TaskID: 1, NewCost: 2400}
		if _, _, err := p.ChangeOrder(payload, signAll(payload.Digest(), builder, sc)); err != nil {
			t.Fatalf("change order failed: %v", err)
		}
		task := p.Tasks[0]
		if task.Cost != 2400 || !task.Allocated || task.State != TaskActive {
			t.Fatalf("absorbed increase altered task: %+v", task)
		}
		if p.TotalAllocated != 2400 {
			t.Fatalf("total allocated %d, want 2400", p.TotalAllocated)
		}
		mustCheckInvariant(t, p)
	})

	t.Run("increase beyond funds unallocates and queues", func(t *testing.T) {
		p := confirmedFundedTask(t, builder, sc, params, 1000)
		payload := ChangeOrderPayload{ProjectID: "p1", TaskID: 1, NewCost: 2000}
		if _, _, err := p.ChangeOrder(payload, signAll(payload.Digest(), builder, sc)); err != nil {
			t.Fatalf("change order failed: %v", err)
		}
		task := p.Tasks[0]
		if task.Allocated || task.State != TaskUnconfirmed || task.Cost != 2000 {
			t.Fatalf("task %+v, want unallocated unconfirmed at 2000", task)
		}
		if p.TotalAllocated != 0 {
			t.Fatalf("total allocated %d, want 0", p.TotalAllocated)
		}
		if len(p.ChangeOrderedTasks) != 1 || p.ChangeOrderedTasks[0] != 1 {
			t.Fatalf("queue %v, want [1]", p.ChangeOrderedTasks)
		}
		mustCheckInvariant(t, p)
	})

	t.Run("decrease on allocated refunds builder", func(t *testing.T) {
		p := confirmedFundedTask(t, builder, sc, params, 2000)
		payload := ChangeOrderPayload{ProjectID: "p1", TaskID: 1, NewCost: 1200}
		_, transfers, err := p.ChangeOrder(payload, signAll(payload.Digest(), builder, sc))
		if err != nil {
			t.Fatalf("change order failed: %v", err)
		}
		if len(transfers) != 1 || transfers[0].To != builder.addr || transfers[0].Amount != 800 {
			t.Fatalf("transfers %+v, want 800 to builder", transfers)
		}
		task := p.Tasks[0]
		if !task.Allocated || task.State != TaskActive || task.Cost != 1200 {
			t.Fatalf("decrease altered task standing: %+v", task)
		}
		if p.TotalLent != 1200 || p.TotalAllocated != 1200 {
			t.Fatalf("lent %d allocated %d, want 1200/1200", p.TotalLent, p.TotalAllocated)
		}
		mustCheckInvariant(t, p)
	})

	t.Run("decrease on unallocated refunds stranded excess", func(t *testing.T) {
		p := NewProject("p1", builder.addr, params)
		mustAddTasks(t, p, []int64{1000, 5000}, builder)
		if _, _, err := p.LendToProject(4000, builder.addr, params); err != nil {
			t.Fatalf("lend failed: %v", err)
		}
		// task 1 allocated (1000); task 2 unaffordable and unallocated
		payload := ChangeOrderPayload{ProjectID: "p1", TaskID: 2, NewCost: 1200}
		_, transfers, err := p.ChangeOrder(payload, signAll(payload.Digest(), builder))
		if err != nil {
			t.Fatalf("change order failed: %v", err)
		}
		// project cost shrank to 2200 with 4000 lent: 1800 goes back
		if len(transfers) != 1 || transfers[0].To != builder.addr || transfers[0].Amount != 1800 {
			t.Fatalf("transfers %+v, want 1800 to builder", transfers)
		}
		if p.TotalLent != 2200 {
			t.Fatalf("total lent %d, want 2200", p.TotalLent)
		}
		mustCheckInvariant(t, p)
	})

	t.Run("cost below floor rejected", func(t *testing.T) {
		p := confirmedFundedTask(t, builder, sc, params, 1000)
		payload := ChangeOrderPayload{ProjectID: "p1", TaskID: 1, NewCost: 500}
		if _, _, err := p.ChangeOrder(payload, signAll(payload.Digest(), builder, sc)); err != ErrCostTooLow {
			t.Fatalf("got %v, want ErrCostTooLow", err)
		}
	})
}

func TestChangeOrderAssignee(t *testing.T) {
	builder := newTestKey(t)
	sc := newTestKey(t)
	next := newTestKey(t)
	params := testParams("", "", "")
	p := confirmedFundedTask(t, builder, sc, params, 1000)

	payload := ChangeOrderPayload{ProjectID: "p1", TaskID: 1, NewSubcontractor: next.addr, NewCost: 1000}
	if _, _, err := p.ChangeOrder(payload, signAll(payload.Digest(), builder, sc)); err != nil {
		t.Fatalf("change order failed: %v", err)
	}
	task := p.Tasks[0]
	if task.Subcontractor != next.addr || task.State != TaskUnconfirmed {
		t.Fatalf("task %+v, want reassigned and unconfirmed", task)
	}
	// new subcontractor must re-accept
	if _, _, err := p.AcceptInviteSC([]int{1}, next.addr); err != nil {
		t.Fatalf("accept failed: %v", err)
	}

	// zero assignee leaves the subcontractor untouched
	keep := ChangeOrderPayload{ProjectID: "p1", TaskID: 1, NewCost: 1000}
	if _, _, err := p.ChangeOrder(keep, signAll(keep.Digest(), builder, next)); err != nil {
		t.Fatalf("no-op change failed: %v", err)
	}
	if p.Tasks[0].Subcontractor != next.addr || p.Tasks[0].State != TaskActive {
		t.Fatalf("zero assignee changed the task: %+v", p.Tasks[0])
	}
}

func TestSetComplete(t *testing.T) {
	builder := newTestKey(t)
	sc := newTestKey(t)
	treasury := newTestKey(t)
	params := testParams(treasury.addr, "", "")
	p := confirmedFundedTask(t, builder, sc, params, 1000)

	bad := SetCompletePayload{ProjectID: "p1", TaskID: 1, Cost: 999}
	if _, _, err := p.SetComplete(bad, signAll(bad.Digest(), builder, sc), params); err != ErrBadCost {
		t.Fatalf("got %v, want ErrBadCost", err)
	}

	payload := SetCompletePayload{ProjectID: "p1", TaskID: 1, Cost: 1000}
	if _, _, err := p.SetComplete(payload, signAll(payload.Digest(), builder), params); err != ErrInvalidSignature {
		t.Fatalf("missing subcontractor segment: got %v, want ErrInvalidSignature", err)
	}

	_, transfers, err := p.SetComplete(payload, signAll(payload.Digest(), builder, sc), params)
	if err != nil {
		t.Fatalf("set complete failed: %v", err)
	}
	// fee rate 20/1000 on a 1000 cost: 20 to treasury, 980 payout
	if len(transfers) != 2 {
		t.Fatalf("transfers %+v, want fee and payout", transfers)
	}
	if transfers[0].To != treasury.addr || transfers[0].Amount != 20 {
		t.Fatalf("fee transfer %+v", transfers[0])
	}
	if transfers[1].To != sc.addr || transfers[1].Amount != 980 {
		t.Fatalf("payout transfer %+v", transfers[1])
	}
	if p.Tasks[0].State != TaskComplete {
		t.Fatal("task not complete")
	}
	mustCheckInvariant(t, p)

	// terminal: no further completion or change orders
	if _, _, err := p.SetComplete(payload, signAll(payload.Digest(), builder, sc), params); err != ErrTaskComplete {
		t.Fatalf("got %v, want ErrTaskComplete", err)
	}
	co := ChangeOrderPayload{ProjectID: "p1", TaskID: 1, NewCost: 2000}
	if _, _, err := p.ChangeOrder(co, signAll(co.Digest(), builder, sc)); err != ErrTaskComplete {
		t.Fatalf("got %v, want ErrTaskComplete", err)
	}
}

func TestAcceptInviteSCBatch(t *testing.T) {
	builder := newTestKey(t)
	sc := newTestKey(t)
	p := NewProject("p1", builder.addr, testParams("", "", ""))
	mustAddTasks(t, p, []int64{1000, 1000, 1000}, builder)
	if _, _, err := p.InviteSC([]int{1, 2}, []Address{sc.addr, sc.addr}, builder.addr); err != nil {
		t.Fatalf("invite failed: %v", err)
	}

	// one uninvited id rejects the whole batch untouched
	if _, _, err := p.AcceptInviteSC([]int{1, 3}, sc.addr); err != ErrNotAuthorized {
		t.Fatalf("got %v, want ErrNotAuthorized", err)
	}
	if p.Tasks[0].State != TaskUnconfirmed {
		t.Fatal("rejected batch confirmed a task")
	}

	events, _, err := p.AcceptInviteSC([]int{1, 2}, sc.addr)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if p.Tasks[0].State != TaskActive || p.Tasks[1].State != TaskActive {
		t.Fatalf("batch not applied: %+v", p.Tasks[:2])
	}
}

func TestSetCompleteDropsQueueEntry(t *testing.T) {
	builder := newTestKey(t)
	sc := newTestKey(t)
	params := testParams("", "", "")
	p := confirmedFundedTask(t, builder, sc, params, 1000)
	// a partially traversed pass can leave an already-allocated id queued
	p.ChangeOrderedTasks = []int{1}
	p.LastAllocatedChangeOrderTask = 1

	payload := SetCompletePayload{ProjectID: "p1", TaskID: 1, Cost: 1000}
	if _, _, err := p.SetComplete(payload, signAll(payload.Digest(), builder, sc), params); err != nil {
		t.Fatalf("set complete failed: %v", err)
	}
	if len(p.ChangeOrderedTasks) != 0 || p.LastAllocatedChangeOrderTask != 0 {
		t.Fatalf("queue %v cursor %d, want completed task dropped", p.ChangeOrderedTasks, p.LastAllocatedChangeOrderTask)
	}
}

func TestSetCompleteRequiresConfirmedAllocatedTask(t *testing.T) {
	builder := newTestKey(t)
	params := testParams("", "", "")
	p := NewProject("p1", builder.addr, params)
	mustAddTasks(t, p, []int64{1000}, builder)

	payload := SetCompletePayload{ProjectID: "p1", TaskID: 1, Cost: 1000}
	if _, _, err := p.SetComplete(payload, signAll(payload.Digest(), builder), params); err != ErrTaskNotConfirmed {
		t.Fatalf("got %v, want ErrTaskNotConfirmed", err)
	}
}

func TestRecoverTokens(t *testing.T) {
	builder := newTestKey(t)
	sc := newTestKey(t)
	params := testParams("", "", "")
	p := confirmedFundedTask(t, builder, sc, params, 1000)

	if _, _, err := p.RecoverTokens(p.Currency, sc.addr); err != ErrNotBuilder {
		t.Fatalf("got %v, want ErrNotBuilder", err)
	}
	if _, _, err := p.RecoverTokens(p.Currency, builder.addr); err != ErrTasksIncomplete {
		t.Fatalf("got %v, want ErrTasksIncomplete", err)
	}

	// unrelated tokens are recoverable any time
	_, transfers, err := p.RecoverTokens("token-other", builder.addr)
	if err != nil {
		t.Fatalf("recover failed: %v", err)
	}
	if len(transfers) != 1 || !transfers[0].EntireBalance || transfers[0].To != builder.addr {
		t.Fatalf("transfers %+v", transfers)
	}

	payload := SetCompletePayload{ProjectID: "p1", TaskID: 1, Cost: 1000}
	if _, _, err := p.SetComplete(payload, signAll(payload.Digest(), builder, sc), params); err != nil {
		t.Fatalf("set complete failed: %v", err)
	}
	if _, _, err := p.RecoverTokens(p.Currency, builder.addr); err != nil {
		t.Fatalf("recover after completion failed: %v", err)
	}
}
