package sale

import "errors"

var (
	// ErrInvalidConfig rejects construction with missing handles, zero
	// addresses, or an out-of-range reserve ratio.
	ErrInvalidConfig = errors.New("sale engine: invalid configuration")
	// ErrSaleFinalized rejects mutating operations after finalization.
	ErrSaleFinalized = errors.New("sale engine: sale already finalized")
	// ErrBusy rejects a mutating call while another one holds the engine lock.
	ErrBusy = errors.New("sale engine: conflicting operation in progress")
	// ErrInvalidAmount rejects zero or negative purchase amounts.
	ErrInvalidAmount = errors.New("sale engine: amount must be positive")
	// ErrSaleExhausted rejects purchases once the sale allocation is gone.
	ErrSaleExhausted = errors.New("sale engine: sale allocation exhausted")
	// ErrAmountTooSmall rejects purchases whose token quote rounds to zero.
	ErrAmountTooSmall = errors.New("sale engine: amount below price granularity")
	// ErrUnauthorized rejects finalize calls from non-owners before the cap.
	ErrUnauthorized = errors.New("sale engine: caller not authorized")
	// ErrCollaborator wraps failures from the token, payment, or venue handles.
	ErrCollaborator = errors.New("sale engine: collaborator call failed")
	// ErrNoPendingDistribution rejects a retry when nothing is outstanding.
	ErrNoPendingDistribution = errors.New("sale engine: no pending distribution")
)
