// Package store provides in-memory ledger.TxStore implementations.
package store

import (
	"context"
	"sync"

	"github.com/nimbusvpn/points-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	devices     map[string]ledger.Device
	withdrawals map[string]ledger.Withdrawal
	audit       []ledger.AuditLogEntry
}

func NewMemory() *Memory {
	return &Memory{
		devices:     make(map[string]ledger.Device),
		withdrawals: make(map[string]ledger.Withdrawal),
	}
}

// PutDevice seeds a device. Not part of the ledger.Store contract; device
// creation happens upstream of the ledger engine.
func (m *Memory) PutDevice(d ledger.Device) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.ID] = d
}

// PutWithdrawal seeds a withdrawal.
func (m *Memory) PutWithdrawal(w ledger.Withdrawal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.withdrawals[w.ID] = w
}

// AuditEntries returns the audit entries for a device, in append order.
func (m *Memory) AuditEntries(deviceID string) []ledger.AuditLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []ledger.AuditLogEntry
	for _, e := range m.audit {
		if e.DeviceID == deviceID {
			entries = append(entries, e)
		}
	}
	return entries
}

func (m *Memory) GetDevice(_ context.Context, id string) (*ledger.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getDeviceLocked(id), nil
}

func (m *Memory) UpdateBalance(_ context.Context, deviceID string, balance int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBalanceLocked(deviceID, balance)
}

func (m *Memory) GetWithdrawal(_ context.Context, id string) (*ledger.Withdrawal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getWithdrawalLocked(id), nil
}

func (m *Memory) UpdateWithdrawal(_ context.Context, w ledger.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateWithdrawalLocked(w)
}

func (m *Memory) AppendAudit(_ context.Context, entry ledger.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) getDeviceLocked(id string) *ledger.Device {
	d, ok := m.devices[id]
	if !ok {
		return nil
	}
	return &d
}

func (m *Memory) updateBalanceLocked(deviceID string, balance int64) error {
	d, ok := m.devices[deviceID]
	if !ok {
		return ledger.ErrDeviceNotFound
	}
	d.Balance = balance
	m.devices[deviceID] = d
	return nil
}

func (m *Memory) getWithdrawalLocked(id string) *ledger.Withdrawal {
	w, ok := m.withdrawals[id]
	if !ok {
		return nil
	}
	return &w
}

func (m *Memory) updateWithdrawalLocked(w ledger.Withdrawal) error {
	if _, ok := m.withdrawals[w.ID]; !ok {
		return ledger.ErrWithdrawalNotFound
	}
	m.withdrawals[w.ID] = w
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For the memory store this is simulated with a snapshot + rollback on
// error, which gives the same zero-partial-state guarantee as a real
// database transaction. Holding the write lock for the duration also
// serializes concurrent units, matching SQLite's single-writer behavior.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	devices := make(map[string]ledger.Device, len(tm.devices))
	for k, v := range tm.devices {
		devices[k] = v
	}
	withdrawals := make(map[string]ledger.Withdrawal, len(tm.withdrawals))
	for k, v := range tm.withdrawals {
		withdrawals[k] = v
	}
	audit := append([]ledger.AuditLogEntry{}, tm.audit...)
	return memorySnapshot{devices: devices, withdrawals: withdrawals, audit: audit}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.devices = s.devices
	tm.withdrawals = s.withdrawals
	tm.audit = s.audit
}

type memorySnapshot struct {
	devices     map[string]ledger.Device
	withdrawals map[string]ledger.Withdrawal
	audit       []ledger.AuditLogEntry
}

// txMemoryView accesses the parent's maps directly; the parent holds the
// write lock for the whole unit.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) GetDevice(_ context.Context, id string) (*ledger.Device, error) {
	return tv.parent.getDeviceLocked(id), nil
}

func (tv *txMemoryView) UpdateBalance(_ context.Context, deviceID string, balance int64) error {
	return tv.parent.updateBalanceLocked(deviceID, balance)
}

func (tv *txMemoryView) GetWithdrawal(_ context.Context, id string) (*ledger.Withdrawal, error) {
	return tv.parent.getWithdrawalLocked(id), nil
}

func (tv *txMemoryView) UpdateWithdrawal(_ context.Context, w ledger.Withdrawal) error {
	return tv.parent.updateWithdrawalLocked(w)
}

func (tv *txMemoryView) AppendAudit(_ context.Context, entry ledger.AuditLogEntry) error {
	tv.parent.audit = append(tv.parent.audit, entry)
	return nil
}
