package project

// MaxAllocationSteps bounds the work done by a single allocation pass.
// The budget is shared between the change-order queue and the primary
// cursor; progress is saved so the next pass resumes where this one
// stopped.
const MaxAllocationSteps = 50

// allocateFunds runs one bounded allocation pass. The change-order queue
// is drained first in FIFO order, then the primary cursor walks new tasks
// contiguously. An incomplete-allocation event fires only when the step
// ceiling halted the pass with eligible work still remaining; running out
// of funds never fires it.
func (p *Project) allocateFunds() []Event {
	remaining := p.TotalLent - p.TotalAllocated
	var allocatedIDs []int
	steps := 0
	incomplete := false

	if len(p.ChangeOrderedTasks) > 0 {
		i := p.LastAllocatedChangeOrderTask
		for i < len(p.ChangeOrderedTasks) {
			t := p.task(p.ChangeOrderedTasks[i])
			live := t != nil && !t.Allocated && t.State != TaskComplete
			if live && t.Cost > remaining {
				break
			}
			if steps == MaxAllocationSteps {
				// the phase stops at the first live unaffordable entry, so
				// only a live affordable one ahead of it counts as work left
				for j := i; j < len(p.ChangeOrderedTasks); j++ {
					q := p.task(p.ChangeOrderedTasks[j])
					if q == nil || q.Allocated || q.State == TaskComplete {
						continue
					}
					if q.Cost <= remaining {
						incomplete = true
					}
					break
				}
				break
			}
			if live {
				t.Allocated = true
				p.TotalAllocated += t.Cost
				remaining -= t.Cost
				allocatedIDs = append(allocatedIDs, t.ID)
			}
			i++
			steps++
		}
		if i >= len(p.ChangeOrderedTasks) {
			p.ChangeOrderedTasks = nil
			p.LastAllocatedChangeOrderTask = 0
		} else {
			p.LastAllocatedChangeOrderTask = i
		}
	}

	for !incomplete && p.LastAllocatedTask < p.TaskCount {
		t := p.task(p.LastAllocatedTask + 1)
		if t.Allocated {
			p.LastAllocatedTask++
			continue
		}
		if t.Cost > remaining {
			break
		}
		if steps == MaxAllocationSteps {
			incomplete = true
			break
		}
		t.Allocated = true
		p.TotalAllocated += t.Cost
		remaining -= t.Cost
		allocatedIDs = append(allocatedIDs, t.ID)
		p.LastAllocatedTask++
		steps++
	}

	var events []Event
	if len(allocatedIDs) > 0 {
		events = append(events, p.event(EventTasksAllocated, map[string]any{
			"task_ids": allocatedIDs,
		}))
	}
	if incomplete {
		events = append(events, p.event(EventIncompleteAllocation, nil))
	}
	return events
}
