/*
settlement.go - One-shot withdrawal settlement state machine

STATES:
  pending (initial) -> approved | rejected (both terminal)
  No transition out of a terminal state. Ever.

PURPOSE:
  Settler.Settle resolves a pending withdrawal. The status check, the
  status write, and (on rejection) the refund all happen inside one
  atomic unit, so two concurrent settlements of the same withdrawal are
  serialized by the store: the first commits, the second observes the
  terminal status and aborts with AlreadyProcessed. At-most-once
  settlement without explicit locks.

REFUNDS:
  Points were withheld from the device balance when the withdrawal was
  created upstream. Approval pays out the withheld points elsewhere and
  is therefore balance-neutral; rejection returns exactly Points to the
  device through the same adjustment path AdjustBalance uses, inside the
  same unit as the status write.

SEE ALSO:
  - ledger.go: applyAdjustment, the shared refund path
  - types.go: Withdrawal, WithdrawalStatus
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// SETTLEMENT
// =============================================================================

// SettleAction is the requested terminal resolution.
type SettleAction string

const (
	ActionApprove SettleAction = "approved"
	ActionReject  SettleAction = "rejected"
)

// DefaultRejectionReason is recorded when a rejection arrives without a
// reason. A missing reason is not a validation error; it is defaulted.
const DefaultRejectionReason = "No reason provided"

// Settler owns withdrawal status transitions.
type Settler struct {
	store TxStore

	now   func() time.Time
	newID func() string
}

// NewSettler creates a Settler on top of a transactional store.
func NewSettler(store TxStore) *Settler {
	return &Settler{
		store: store,
		now:   time.Now,
		newID: NewEntryID,
	}
}

// Settle transitions a pending withdrawal to approved or rejected.
// Returns the settled withdrawal on success.
//
// Executed as one atomic unit:
//  1. Re-read the withdrawal inside the unit (guards concurrent settles)
//  2. Abort with AlreadyProcessedError if no longer pending
//  3. Write status, processedAt, processedBy (and rejectionReason)
//  4. On rejection, refund Points to the device in the same unit
//
// Errors:
//   - ErrWithdrawalNotFound if the withdrawal doesn't exist
//   - AlreadyProcessedError if a terminal status was observed
//   - NegativeBalanceError propagated from the refund (cannot occur for a
//     positive Points value, but the shared guard stays enforced)
//
// Authorization is the caller's responsibility (see authz.go).
func (sm *Settler) Settle(ctx context.Context, withdrawalID string, action SettleAction, rejectionReason, actor string) (*Withdrawal, error) {
	if withdrawalID == "" || actor == "" {
		return nil, fmt.Errorf("withdrawalID and actor are required")
	}
	if action != ActionApprove && action != ActionReject {
		return nil, fmt.Errorf("invalid action %q: must be %q or %q", action, ActionApprove, ActionReject)
	}

	var settled *Withdrawal
	err := sm.store.WithTx(ctx, func(s Store) error {
		w, err := s.GetWithdrawal(ctx, withdrawalID)
		if err != nil {
			return fmt.Errorf("load withdrawal %s: %w", withdrawalID, err)
		}
		if w == nil {
			return ErrWithdrawalNotFound
		}
		if w.Status != WithdrawalPending {
			return &AlreadyProcessedError{WithdrawalID: w.ID, Status: w.Status}
		}

		now := sm.now()
		w.Status = WithdrawalStatus(action)
		w.ProcessedAt = &now
		w.ProcessedBy = actor
		if action == ActionReject {
			if rejectionReason == "" {
				rejectionReason = DefaultRejectionReason
			}
			w.RejectionReason = rejectionReason
		}

		if err := s.UpdateWithdrawal(ctx, *w); err != nil {
			return fmt.Errorf("update withdrawal %s: %w", withdrawalID, err)
		}

		if action == ActionReject {
			_, err := applyAdjustment(ctx, s, adjustment{
				EntryID:  sm.newID(),
				DeviceID: w.DeviceID,
				Delta:    w.Points,
				Reason:   fmt.Sprintf("Withdrawal rejected - refund (%s)", rejectionReason),
				Actor:    actor,
				Kind:     KindWithdrawalRefund,
				At:       now,
			})
			if err != nil {
				return err
			}
		}

		settled = w
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settled, nil
}
