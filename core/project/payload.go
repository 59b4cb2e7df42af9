package project

import (
	"crypto/sha256"
	"encoding/json"
)

// digestFor hashes an action tag plus the canonical JSON encoding of its
// payload. Payloads embed the project id and a freshness field so a digest
// cannot be replayed against a different ledger state.
func digestFor(action string, payload any) []byte {
	body, err := json.Marshal(payload)
	if err != nil {
		// payload structs marshal by construction
		panic(err)
	}
	h := sha256.New()
	h.Write([]byte(action))
	h.Write([]byte{':'})
	h.Write(body)
	return h.Sum(nil)
}

// AddTasksPayload appends a batch of tasks. TaskCount must equal the
// current ledger task count.
type AddTasksPayload struct {
	ProjectID string   `json:"project_id"`
	TaskCount int      `json:"task_count"`
	Hashes    []string `json:"hashes"`
	Costs     []int64  `json:"costs"`
}

// Digest returns the signing digest for the payload.
func (p AddTasksPayload) Digest() []byte { return digestFor("add-tasks", p) }

// InviteContractorPayload proposes a general contractor.
type InviteContractorPayload struct {
	ProjectID  string  `json:"project_id"`
	Contractor Address `json:"contractor"`
}

// Digest returns the signing digest for the payload.
func (p InviteContractorPayload) Digest() []byte { return digestFor("invite-contractor", p) }

// UpdateProjectHashPayload replaces the project content hash. Nonce must
// equal the current hash nonce.
type UpdateProjectHashPayload struct {
	ProjectID string `json:"project_id"`
	Hash      string `json:"hash"`
	Nonce     uint64 `json:"nonce"`
}

// Digest returns the signing digest for the payload.
func (p UpdateProjectHashPayload) Digest() []byte { return digestFor("update-project-hash", p) }

// UpdateTaskHashPayload replaces a task content hash.
type UpdateTaskHashPayload struct {
	ProjectID string `json:"project_id"`
	TaskID    int    `json:"task_id"`
	Hash      string `json:"hash"`
}

// Digest returns the signing digest for the payload.
func (p UpdateTaskHashPayload) Digest() []byte { return digestFor("update-task-hash", p) }

// ChangeOrderPayload reprices or reassigns a task. A zero NewSubcontractor
// means no assignee change; NewCost equal to the current cost means no cost
// change.
type ChangeOrderPayload struct {
	ProjectID        string  `json:"project_id"`
	TaskID           int     `json:"task_id"`
	NewSubcontractor Address `json:"new_subcontractor,omitempty"`
	NewCost          int64   `json:"new_cost"`
}

// Digest returns the signing digest for the payload.
func (p ChangeOrderPayload) Digest() []byte { return digestFor("change-order", p) }

// SetCompletePayload marks a task complete. Cost must equal the task's
// current cost.
type SetCompletePayload struct {
	ProjectID string `json:"project_id"`
	TaskID    int    `json:"task_id"`
	Cost      int64  `json:"cost"`
}

// Digest returns the signing digest for the payload.
func (p SetCompletePayload) Digest() []byte { return digestFor("set-complete", p) }
