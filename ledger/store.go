/*
store.go - Persistence interfaces for the ledger engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   Transactional view over devices, withdrawals, and the audit log
  TxStore: Store plus WithTx for atomic multi-record units

ATOMIC UNITS:
  All consistency in this system comes from WithTx. The function receives
  a transactional view; every read inside it observes committed state,
  every write commits only if the function returns nil. A non-nil return
  aborts the whole unit with zero partial state. Business-rule aborts
  (NegativeBalance, AlreadyProcessed) propagate immediately and are never
  retried by the store.

MISSING RECORDS:
  Get* methods return (nil, nil) when the record does not exist. The
  domain layer converts that into ErrDeviceNotFound / ErrWithdrawalNotFound
  so store implementations stay free of domain errors.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - ledger/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go, settlement.go: The only callers of the write methods
*/
package ledger

import "context"

// =============================================================================
// STORE - Transactional view
// =============================================================================

// Store is the view the domain logic operates on. Inside WithTx the view
// is transactional; outside it, each call is its own atomic operation.
type Store interface {
	// GetDevice returns the device or (nil, nil) if it doesn't exist.
	GetDevice(ctx context.Context, id string) (*Device, error)

	// UpdateBalance writes a device's balance. The caller has already
	// verified the new balance is non-negative; implementations may
	// enforce it again (e.g. a CHECK constraint) as a backstop.
	UpdateBalance(ctx context.Context, deviceID string, balance int64) error

	// GetWithdrawal returns the withdrawal or (nil, nil) if it doesn't exist.
	GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error)

	// UpdateWithdrawal writes the settlement fields of a withdrawal
	// (status, processedAt, processedBy, rejectionReason).
	UpdateWithdrawal(ctx context.Context, w Withdrawal) error

	// AppendAudit appends an audit log entry. Append-only: no update or
	// delete exists anywhere in the system.
	AppendAudit(ctx context.Context, entry AuditLogEntry) error
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with atomic execution.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back and the
	// error is returned unchanged.
	WithTx(ctx context.Context, fn func(Store) error) error
}
