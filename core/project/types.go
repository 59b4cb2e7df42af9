package project

import "time"

// Address is a hex-encoded hash160 identity. The empty string is the
// null address.
type Address string

// ZeroAddress is the null identity.
const ZeroAddress Address = ""

// MinTaskCost is the smallest cost a task may carry.
const MinTaskCost int64 = 1000

// TaskState tracks the lifecycle of a single task.
type TaskState int

const (
	TaskNone TaskState = iota
	TaskUnconfirmed
	TaskActive
	TaskComplete
)

// Task is one line item in a project ledger. IDs are dense and 1-based.
type Task struct {
	ID            int       `json:"id"`
	Cost          int64     `json:"cost"`
	Subcontractor Address   `json:"subcontractor,omitempty"`
	State         TaskState `json:"state"`
	Allocated     bool      `json:"allocated"`
	Hash          string    `json:"hash,omitempty"`
}

// TaskAlerts is the derived status triple for a task.
type TaskAlerts struct {
	Exists    bool `json:"exists"`
	Allocated bool `json:"allocated"`
	Confirmed bool `json:"confirmed"`
}

// Alerts derives the status triple.
func (t *Task) Alerts() TaskAlerts {
	return TaskAlerts{
		Exists:    t.State != TaskNone,
		Allocated: t.Allocated,
		Confirmed: t.State >= TaskActive,
	}
}

// Project is a construction-financing ledger document.
type Project struct {
	ID                  string  `json:"id"`
	Currency            Address `json:"currency"`
	Builder             Address `json:"builder"`
	Contractor          Address `json:"contractor,omitempty"`
	ContractorConfirmed bool    `json:"contractor_confirmed"`
	ContractorDelegated bool    `json:"contractor_delegated"`
	FeeRate             int64   `json:"fee_rate"` // parts per thousand
	Hash                string  `json:"hash,omitempty"`
	HashNonce           uint64  `json:"hash_nonce"`

	Tasks          []Task `json:"tasks"`
	TaskCount      int    `json:"task_count"`
	TotalLent      int64  `json:"total_lent"`
	TotalAllocated int64  `json:"total_allocated"`

	LastAllocatedTask            int   `json:"last_allocated_task"`
	LastAllocatedChangeOrderTask int   `json:"last_allocated_change_order_task"`
	ChangeOrderedTasks           []int `json:"change_ordered_tasks,omitempty"`

	ApprovedHashes   map[Address]map[string]bool `json:"approved_hashes,omitempty"`
	ExecutedDisputes map[string]bool             `json:"executed_disputes,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// NewProject builds an empty ledger for a builder.
func NewProject(id string, builder Address, params ProjectParams) *Project {
	return &Project{
		ID:        id,
		Currency:  params.Currency,
		Builder:   builder,
		FeeRate:   params.FeeRate,
		CreatedAt: time.Now().UTC(),
	}
}

// ProjectCost is the sum of all task costs.
func (p *Project) ProjectCost() int64 {
	var total int64
	for i := range p.Tasks {
		total += p.Tasks[i].Cost
	}
	return total
}

// task returns the task with the given 1-based id, or nil.
func (p *Project) task(id int) *Task {
	if id < 1 || id > p.TaskCount {
		return nil
	}
	return &p.Tasks[id-1]
}

// AllTasksComplete reports whether every task reached the terminal state.
func (p *Project) AllTasksComplete() bool {
	for i := range p.Tasks {
		if p.Tasks[i].State != TaskComplete {
			return false
		}
	}
	return true
}

// CheckInvariant verifies totalAllocated <= totalLent <= projectCost.
func (p *Project) CheckInvariant() error {
	if p.TotalAllocated > p.TotalLent {
		return ErrInvariant
	}
	if p.TotalLent > p.ProjectCost() {
		return ErrInvariant
	}
	return nil
}

// Clone deep-copies the ledger so a mutation can be discarded on failure.
func (p *Project) Clone() *Project {
	c := *p
	c.Tasks = append([]Task(nil), p.Tasks...)
	c.ChangeOrderedTasks = append([]int(nil), p.ChangeOrderedTasks...)
	if p.ApprovedHashes != nil {
		c.ApprovedHashes = make(map[Address]map[string]bool, len(p.ApprovedHashes))
		for signer, digests := range p.ApprovedHashes {
			inner := make(map[string]bool, len(digests))
			for d, ok := range digests {
				inner[d] = ok
			}
			c.ApprovedHashes[signer] = inner
		}
	}
	if p.ExecutedDisputes != nil {
		c.ExecutedDisputes = make(map[string]bool, len(p.ExecutedDisputes))
		for id, ok := range p.ExecutedDisputes {
			c.ExecutedDisputes[id] = ok
		}
	}
	return &c
}

// Transfer is a custody movement the service layer must settle against the
// vault. From set and To empty pulls external funds into custody; From empty
// and To set pushes custody funds out. EntireBalance replaces Amount with the
// vault's full balance for the token at execution time.
type Transfer struct {
	Token         Address `json:"token"`
	From          Address `json:"from,omitempty"`
	To            Address `json:"to,omitempty"`
	Amount        int64   `json:"amount"`
	EntireBalance bool    `json:"entire_balance,omitempty"`
}
