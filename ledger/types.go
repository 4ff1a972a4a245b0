/*
types.go - Core domain types for the points ledger

PURPOSE:
  Defines the records the ledger engine operates on: devices with a point
  balance, withdrawal requests awaiting settlement, and the append-only
  audit trail documenting every balance change.

OWNERSHIP:
  Devices and withdrawals are CREATED upstream (device registration and
  the withdrawal-request flow). This package only mutates them:
  - Device.Balance changes exclusively through Ledger.AdjustBalance
  - Withdrawal status changes exclusively through Settler.Settle
  Audit entries are created here and nowhere else.

SEE ALSO:
  - ledger.go: Balance mutation
  - settlement.go: Withdrawal state machine
  - store.go: Persistence interfaces
*/
package ledger

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// =============================================================================
// DEVICE
// =============================================================================

// DeviceStatus is the operational state of a device.
// The ledger never changes it; ban/unban is a separate admin operation.
type DeviceStatus string

const (
	DeviceOnline  DeviceStatus = "online"
	DeviceOffline DeviceStatus = "offline"
	DeviceBanned  DeviceStatus = "banned"
)

// Device is a registered client device with a point balance.
//
// INVARIANT: Balance >= 0 at all times. Enforced before commit by
// Ledger.AdjustBalance, backstopped by a CHECK constraint in SQLite.
type Device struct {
	ID        string
	Balance   int64
	Status    DeviceStatus
	BanReason string
	BannedAt  *time.Time
	BannedBy  string
	LastSeen  time.Time
	CreatedAt time.Time
}

// =============================================================================
// WITHDRAWAL
// =============================================================================

// WithdrawalStatus is the settlement state of a withdrawal request.
// pending is initial; approved and rejected are terminal. The transition
// happens at most once (see settlement.go).
type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalApproved WithdrawalStatus = "approved"
	WithdrawalRejected WithdrawalStatus = "rejected"
)

// Withdrawal is a request to cash out points. Points were already withheld
// from the device balance when the request was created upstream, so
// approval is balance-neutral and rejection refunds exactly Points.
type Withdrawal struct {
	ID              string
	DeviceID        string
	Points          int64 // positive, withheld at request time
	Status          WithdrawalStatus
	RejectionReason string
	ProcessedAt     *time.Time
	ProcessedBy     string
	CreatedAt       time.Time
}

// Terminal reports whether the withdrawal has been settled.
func (w Withdrawal) Terminal() bool {
	return w.Status == WithdrawalApproved || w.Status == WithdrawalRejected
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// EntryKind classifies an audit entry.
type EntryKind string

const (
	KindBalanceAdjustment EntryKind = "balance_adjustment"
	KindWithdrawalRefund  EntryKind = "withdrawal_refund"
)

// AuditLogEntry documents a single balance change. Append-only: written in
// the same atomic unit as the balance mutation it describes, never updated
// or deleted. Amount is the signed delta applied to the balance.
type AuditLogEntry struct {
	ID          string
	DeviceID    string
	Kind        EntryKind
	Description string
	Amount      int64
	Actor       string
	CreatedAt   time.Time
}

// NewEntryID returns a lexicographically sortable unique ID for audit
// entries and other records created by this service.
func NewEntryID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}
