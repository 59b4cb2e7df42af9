package project

// Err is a simple string error helper.
type Err string

func (e Err) Error() string { return string(e) }

var (
	ErrInvalidSignature   = Err("invalid authorization")
	ErrNotBuilder         = Err("sender is not the builder")
	ErrNotAuthorized      = Err("sender not authorized")
	ErrProjectMismatch    = Err("payload project mismatch")
	ErrStaleTaskCount     = Err("stale task count")
	ErrEmptyBatch         = Err("empty task batch")
	ErrLengthMismatch     = Err("input lengths mismatch")
	ErrCostTooLow         = Err("task cost below minimum")
	ErrTaskNotFound       = Err("task not found")
	ErrTaskComplete       = Err("task already complete")
	ErrTaskConfirmed      = Err("task already confirmed")
	ErrTaskNotConfirmed   = Err("task not confirmed")
	ErrTaskNotAllocated   = Err("task not allocated")
	ErrZeroAddress        = Err("zero address")
	ErrZeroAmount         = Err("zero amount")
	ErrExcessAmount       = Err("amount exceeds unfunded cost")
	ErrContractorAccepted = Err("contractor already accepted")
	ErrNoContractor       = Err("no contractor set")
	ErrBadNonce           = Err("hash nonce mismatch")
	ErrBadCost            = Err("payload cost mismatch")
	ErrTasksIncomplete    = Err("project tasks incomplete")
	ErrDisputeReplayed    = Err("dispute already executed")
	ErrInvariant          = Err("ledger invariant violated")
)
