package ledger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nimbusvpn/points-engine/ledger"
	"github.com/nimbusvpn/points-engine/ledger/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestSettler() (*ledger.Settler, *store.TxMemory) {
	mem := store.NewTxMemory()
	return ledger.NewSettler(mem), mem
}

func seedWithdrawal(mem *store.TxMemory, id, deviceID string, points int64) {
	mem.PutWithdrawal(ledger.Withdrawal{
		ID:        id,
		DeviceID:  deviceID,
		Points:    points,
		Status:    ledger.WithdrawalPending,
		CreatedAt: time.Now().UTC(),
	})
}

// =============================================================================
// APPROVAL TESTS
// =============================================================================

func TestSettle_Approve(t *testing.T) {
	// GIVEN: A pending withdrawal of 500 points, device balance 2000
	// THEN: Status approved, processed metadata set, balance untouched

	sm, mem := newTestSettler()
	ctx := context.Background()
	seedDevice(mem, "dev-1", 2000)
	seedWithdrawal(mem, "wd-1", "dev-1", 500)

	settled, err := sm.Settle(ctx, "wd-1", ledger.ActionApprove, "", "admin-1")
	require.NoError(t, err)

	assert.Equal(t, ledger.WithdrawalApproved, settled.Status)
	assert.Equal(t, "admin-1", settled.ProcessedBy)
	require.NotNil(t, settled.ProcessedAt)
	assert.True(t, settled.Terminal())

	// Points were withheld at request time; approval pays out elsewhere.
	dev, err := mem.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), dev.Balance, "approval must be balance-neutral")
	assert.Empty(t, mem.AuditEntries("dev-1"), "approval must not write an audit entry")
}

// =============================================================================
// REJECTION / REFUND TESTS
// =============================================================================

func TestSettle_Reject_RefundsExactly(t *testing.T) {
	// GIVEN: A pending withdrawal of 500 points, device balance 2000
	// WHEN: Rejecting it
	// THEN: Balance becomes 2500 with one refund audit entry of +500

	sm, mem := newTestSettler()
	ctx := context.Background()
	seedDevice(mem, "dev-1", 2000)
	seedWithdrawal(mem, "wd-1", "dev-1", 500)

	settled, err := sm.Settle(ctx, "wd-1", ledger.ActionReject, "Suspicious activity", "admin-1")
	require.NoError(t, err)

	assert.Equal(t, ledger.WithdrawalRejected, settled.Status)
	assert.Equal(t, "Suspicious activity", settled.RejectionReason)

	dev, err := mem.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), dev.Balance)

	entries := mem.AuditEntries("dev-1")
	require.Len(t, entries, 1)
	assert.Equal(t, int64(500), entries[0].Amount)
	assert.Equal(t, ledger.KindWithdrawalRefund, entries[0].Kind)
	assert.Contains(t, entries[0].Description, "Suspicious activity")
}

func TestSettle_Reject_DefaultsMissingReason(t *testing.T) {
	// GIVEN: A pending withdrawal
	// WHEN: Rejecting without a reason
	// THEN: The placeholder reason is recorded

	sm, mem := newTestSettler()
	ctx := context.Background()
	seedDevice(mem, "dev-1", 0)
	seedWithdrawal(mem, "wd-1", "dev-1", 100)

	settled, err := sm.Settle(ctx, "wd-1", ledger.ActionReject, "", "admin-1")
	require.NoError(t, err)

	assert.Equal(t, ledger.DefaultRejectionReason, settled.RejectionReason)
}

// =============================================================================
// ONE-SHOT TESTS
// =============================================================================

func TestSettle_SecondAttempt_Rejected(t *testing.T) {
	// GIVEN: A withdrawal already rejected (balance refunded to 2500)
	// WHEN: Rejecting it again
	// THEN: AlreadyProcessedError, balance stays 2500, no second refund

	sm, mem := newTestSettler()
	ctx := context.Background()
	seedDevice(mem, "dev-1", 2000)
	seedWithdrawal(mem, "wd-1", "dev-1", 500)

	_, err := sm.Settle(ctx, "wd-1", ledger.ActionReject, "Fraud", "admin-1")
	require.NoError(t, err)

	_, err = sm.Settle(ctx, "wd-1", ledger.ActionReject, "Fraud", "admin-1")

	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
	var apErr *ledger.AlreadyProcessedError
	require.ErrorAs(t, err, &apErr)
	assert.Equal(t, ledger.WithdrawalRejected, apErr.Status)
	assert.True(t, ledger.IsConsistency(err))

	dev, err := mem.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), dev.Balance, "repeat settlement must not refund twice")
	assert.Len(t, mem.AuditEntries("dev-1"), 1)
}

func TestSettle_ApproveThenReject_Rejected(t *testing.T) {
	// GIVEN: A withdrawal already approved
	// WHEN: Trying to flip it to rejected
	// THEN: AlreadyProcessedError, status stays approved, no refund

	sm, mem := newTestSettler()
	ctx := context.Background()
	seedDevice(mem, "dev-1", 2000)
	seedWithdrawal(mem, "wd-1", "dev-1", 500)

	_, err := sm.Settle(ctx, "wd-1", ledger.ActionApprove, "", "admin-1")
	require.NoError(t, err)

	_, err = sm.Settle(ctx, "wd-1", ledger.ActionReject, "Changed my mind", "admin-2")
	assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)

	w, err := mem.GetWithdrawal(ctx, "wd-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.WithdrawalApproved, w.Status)

	dev, err := mem.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), dev.Balance)
}

func TestSettle_ConcurrentSettles_ExactlyOneWins(t *testing.T) {
	// GIVEN: One pending withdrawal of 500 points, device balance 2000
	// WHEN: 8 concurrent rejections race on it
	// THEN: Exactly one commits; the others observe the terminal status and
	//       abort with AlreadyProcessed. The refund applies once: balance
	//       2500, one audit entry.

	sm, mem := newTestSettler()
	ctx := context.Background()
	seedDevice(mem, "dev-1", 2000)
	seedWithdrawal(mem, "wd-1", "dev-1", 500)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sm.Settle(ctx, "wd-1", ledger.ActionReject, "Fraud", "admin-1")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ledger.ErrAlreadyProcessed)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one settlement must commit")

	dev, err := mem.GetDevice(ctx, "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), dev.Balance, "refund must apply exactly once")
	assert.Len(t, mem.AuditEntries("dev-1"), 1)

	w, err := mem.GetWithdrawal(ctx, "wd-1")
	require.NoError(t, err)
	assert.Equal(t, ledger.WithdrawalRejected, w.Status)
}

// =============================================================================
// INPUT VALIDATION TESTS
// =============================================================================

func TestSettle_NotFound(t *testing.T) {
	sm, _ := newTestSettler()

	_, err := sm.Settle(context.Background(), "ghost", ledger.ActionApprove, "", "admin-1")

	assert.ErrorIs(t, err, ledger.ErrWithdrawalNotFound)
}

func TestSettle_InvalidAction(t *testing.T) {
	sm, mem := newTestSettler()
	seedDevice(mem, "dev-1", 100)
	seedWithdrawal(mem, "wd-1", "dev-1", 50)

	_, err := sm.Settle(context.Background(), "wd-1", ledger.SettleAction("pending"), "", "admin-1")
	assert.Error(t, err)

	w, gerr := mem.GetWithdrawal(context.Background(), "wd-1")
	require.NoError(t, gerr)
	assert.Equal(t, ledger.WithdrawalPending, w.Status)
}

func TestSettle_RequiredFields(t *testing.T) {
	sm, _ := newTestSettler()

	_, err := sm.Settle(context.Background(), "", ledger.ActionApprove, "", "admin-1")
	assert.Error(t, err)

	_, err = sm.Settle(context.Background(), "wd-1", ledger.ActionApprove, "", "")
	assert.Error(t, err)
}

// =============================================================================
// ROLLBACK TESTS
// =============================================================================

func TestSettle_RefundFailure_RollsBackStatus(t *testing.T) {
	// GIVEN: A pending withdrawal whose device is missing
	// WHEN: Rejecting it (refund cannot apply)
	// THEN: The whole unit rolls back; the withdrawal is still pending

	sm, mem := newTestSettler()
	ctx := context.Background()
	seedWithdrawal(mem, "wd-1", "ghost-device", 500)

	_, err := sm.Settle(ctx, "wd-1", ledger.ActionReject, "Fraud", "admin-1")
	assert.ErrorIs(t, err, ledger.ErrDeviceNotFound)

	w, gerr := mem.GetWithdrawal(ctx, "wd-1")
	require.NoError(t, gerr)
	assert.Equal(t, ledger.WithdrawalPending, w.Status, "failed settlement must leave the withdrawal pending")
	assert.Nil(t, w.ProcessedAt)
}
