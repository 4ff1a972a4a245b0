/*
ledger.go - The sole mutator of device balances

PURPOSE:
  Ledger.AdjustBalance is the only code path that changes Device.Balance.
  It runs as one atomic unit: read the current balance, verify the new
  balance stays non-negative, write it, and append exactly one audit
  entry whose amount equals the applied delta. Any failure leaves the
  store untouched.

CRITICAL INVARIANTS:
  1. Balance >= 0, checked BEFORE commit - a violating delta aborts the
     unit with no side effects
  2. Every committed balance change has exactly one matching audit entry
  3. Failed adjustments are no-ops, so callers may safely retry them

CONCURRENCY:
  No in-process locking here. Two concurrent adjustments on the same
  device are serialized by the store's transaction isolation; each one
  independently re-reads the balance inside its own unit.

SEE ALSO:
  - settlement.go: Reuses applyAdjustment for refunds inside its own unit
  - store.go: The TxStore contract this builds on
*/
package ledger

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger owns device balance mutation.
type Ledger struct {
	store TxStore

	now   func() time.Time
	newID func() string
}

// NewLedger creates a Ledger on top of a transactional store.
func NewLedger(store TxStore) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
		newID: NewEntryID,
	}
}

// AdjustBalance applies a signed delta to a device's balance and records
// one audit entry, atomically. Returns the new balance on success.
//
// Errors:
//   - ErrDeviceNotFound if the device doesn't exist
//   - NegativeBalanceError if balance+delta < 0 (nothing is written)
//
// Authorization is the caller's responsibility (see authz.go).
func (l *Ledger) AdjustBalance(ctx context.Context, deviceID string, delta int64, reason, actor string) (int64, error) {
	if deviceID == "" || reason == "" || actor == "" {
		return 0, fmt.Errorf("deviceID, reason, and actor are required")
	}

	var newBalance int64
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		newBalance, err = applyAdjustment(ctx, s, adjustment{
			EntryID:  l.newID(),
			DeviceID: deviceID,
			Delta:    delta,
			Reason:   reason,
			Actor:    actor,
			Kind:     KindBalanceAdjustment,
			At:       l.now(),
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return newBalance, nil
}

// =============================================================================
// SHARED ADJUSTMENT PATH
// =============================================================================

// adjustment is one balance mutation plus its audit entry.
type adjustment struct {
	EntryID  string
	DeviceID string
	Delta    int64
	Reason   string
	Actor    string
	Kind     EntryKind
	At       time.Time
}

// applyAdjustment performs the read-verify-write-audit sequence against a
// transactional view. Both direct adjustments and settlement refunds go
// through here, so the non-negativity check and the audit pairing hold on
// every path that touches a balance.
func applyAdjustment(ctx context.Context, s Store, adj adjustment) (int64, error) {
	dev, err := s.GetDevice(ctx, adj.DeviceID)
	if err != nil {
		return 0, fmt.Errorf("load device %s: %w", adj.DeviceID, err)
	}
	if dev == nil {
		return 0, ErrDeviceNotFound
	}

	newBalance := dev.Balance + adj.Delta
	if newBalance < 0 {
		return 0, &NegativeBalanceError{
			DeviceID: adj.DeviceID,
			Balance:  dev.Balance,
			Delta:    adj.Delta,
		}
	}

	if err := s.UpdateBalance(ctx, adj.DeviceID, newBalance); err != nil {
		return 0, fmt.Errorf("update balance for %s: %w", adj.DeviceID, err)
	}

	entry := AuditLogEntry{
		ID:          adj.EntryID,
		DeviceID:    adj.DeviceID,
		Kind:        adj.Kind,
		Description: adj.Reason,
		Amount:      adj.Delta,
		Actor:       adj.Actor,
		CreatedAt:   adj.At,
	}
	if err := s.AppendAudit(ctx, entry); err != nil {
		return 0, fmt.Errorf("append audit entry: %w", err)
	}

	return newBalance, nil
}
