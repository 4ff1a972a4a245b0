/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements ledger.TxStore (the transactional core), ledger.AdminGate
  (the authorization predicate), and the pass-through persistence the
  admin surface needs (servers, SDUI configs, listings, stats). In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  devices:       Per-device point balance and operational status
  withdrawals:   Withdrawal requests and their settlement state
  activity_logs: Immutable audit trail of every balance change
  admins:        Administrator principals (membership = authorization)
  servers:       Proxy server catalog
  sdui_configs:  Server-driven UI config per screen

BALANCE BACKSTOP:
  The ledger verifies non-negativity before writing; the schema adds
  CHECK (balance >= 0) so a bug elsewhere can never corrupt a balance.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety plus database transactions for
  atomicity. WithTx holds the write lock for the whole unit, so units
  are serialized: a settlement re-reading a withdrawal inside its unit
  always observes the committed outcome of any earlier settlement.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency
  and crash recovery.

USAGE:
  store, err := sqlite.New("./data/points.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ldg := ledger.NewLedger(store)
  settler := ledger.NewSettler(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nimbusvpn/points-engine/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx so the same helpers
// serve direct calls and transactional units.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite is single-writer; one connection also keeps ":memory:"
	// databases on a single handle.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Devices (balance mutated only through the ledger)
	CREATE TABLE IF NOT EXISTS devices (
		id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		status TEXT NOT NULL DEFAULT 'offline',
		ban_reason TEXT,
		banned_at TEXT,
		banned_by TEXT,
		last_seen TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_devices_status
		ON devices(status);
	CREATE INDEX IF NOT EXISTS idx_devices_last_seen
		ON devices(last_seen DESC);

	-- Withdrawals (settled at most once)
	CREATE TABLE IF NOT EXISTS withdrawals (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		points INTEGER NOT NULL CHECK (points > 0),
		status TEXT NOT NULL DEFAULT 'pending',
		rejection_reason TEXT,
		processed_at TEXT,
		processed_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_withdrawals_status
		ON withdrawals(status);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_device
		ON withdrawals(device_id);
	CREATE INDEX IF NOT EXISTS idx_withdrawals_created
		ON withdrawals(created_at DESC);

	-- Activity logs (append-only audit trail)
	CREATE TABLE IF NOT EXISTS activity_logs (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		description TEXT NOT NULL,
		amount INTEGER NOT NULL,
		actor TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_logs_device
		ON activity_logs(device_id, created_at DESC);

	-- Admins (membership is the authorization predicate)
	CREATE TABLE IF NOT EXISTS admins (
		id TEXT PRIMARY KEY,
		name TEXT,
		created_at TEXT NOT NULL
	);

	-- Server catalog
	CREATE TABLE IF NOT EXISTS servers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		flag TEXT,
		address TEXT NOT NULL,
		port INTEGER NOT NULL,
		uuid TEXT NOT NULL,
		alter_id INTEGER NOT NULL DEFAULT 0,
		security TEXT NOT NULL DEFAULT 'auto',
		network TEXT NOT NULL DEFAULT 'ws',
		path TEXT NOT NULL DEFAULT '/',
		tls BOOLEAN NOT NULL DEFAULT TRUE,
		country TEXT NOT NULL,
		is_premium BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'online',
		load INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		created_by TEXT,
		updated_at TEXT,
		updated_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_servers_status
		ON servers(status);

	-- SDUI configs (one row per screen)
	CREATE TABLE IF NOT EXISTS sdui_configs (
		screen_id TEXT PRIMARY KEY,
		config_json TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		updated_by TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// CORE STORE (ledger.Store interface)
// =============================================================================

// GetDevice returns a device or nil if it doesn't exist.
func (s *Store) GetDevice(ctx context.Context, id string) (*ledger.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getDevice(ctx, s.db, id)
}

func getDevice(ctx context.Context, q querier, id string) (*ledger.Device, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, balance, status, ban_reason, banned_at, banned_by, last_seen, created_at
		 FROM devices WHERE id = ?`, id)

	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*ledger.Device, error) {
	var (
		d                   ledger.Device
		banReason, bannedBy sql.NullString
		bannedAt            sql.NullString
		lastSeen, createdAt string
	)

	err := row.Scan(&d.ID, &d.Balance, &d.Status, &banReason, &bannedAt, &bannedBy, &lastSeen, &createdAt)
	if err != nil {
		return nil, err
	}

	d.BanReason = banReason.String
	d.BannedBy = bannedBy.String
	if bannedAt.Valid {
		t, _ := time.Parse(time.RFC3339, bannedAt.String)
		d.BannedAt = &t
	}
	d.LastSeen, _ = time.Parse(time.RFC3339, lastSeen)
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &d, nil
}

// UpdateBalance writes a device's balance.
func (s *Store) UpdateBalance(ctx context.Context, deviceID string, balance int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updateBalance(ctx, s.db, deviceID, balance)
}

func updateBalance(ctx context.Context, q querier, deviceID string, balance int64) error {
	res, err := q.ExecContext(ctx,
		"UPDATE devices SET balance = ? WHERE id = ?", balance, deviceID)
	if IsCheckConstraintError(err) {
		// Schema backstop tripped; surface it as the same consistency
		// error the ledger's own precondition raises.
		return fmt.Errorf("failed to update balance: %w", ledger.ErrNegativeBalance)
	}
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrDeviceNotFound
	}
	return nil
}

// GetWithdrawal returns a withdrawal or nil if it doesn't exist.
func (s *Store) GetWithdrawal(ctx context.Context, id string) (*ledger.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getWithdrawal(ctx, s.db, id)
}

func getWithdrawal(ctx context.Context, q querier, id string) (*ledger.Withdrawal, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, device_id, points, status, rejection_reason, processed_at, processed_by, created_at
		 FROM withdrawals WHERE id = ?`, id)

	w, err := scanWithdrawal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func scanWithdrawal(row rowScanner) (*ledger.Withdrawal, error) {
	var (
		w                        ledger.Withdrawal
		rejectionReason          sql.NullString
		processedAt, processedBy sql.NullString
		createdAt                string
	)

	err := row.Scan(&w.ID, &w.DeviceID, &w.Points, &w.Status, &rejectionReason, &processedAt, &processedBy, &createdAt)
	if err != nil {
		return nil, err
	}

	w.RejectionReason = rejectionReason.String
	w.ProcessedBy = processedBy.String
	if processedAt.Valid {
		t, _ := time.Parse(time.RFC3339, processedAt.String)
		w.ProcessedAt = &t
	}
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &w, nil
}

// UpdateWithdrawal writes the settlement fields of a withdrawal.
func (s *Store) UpdateWithdrawal(ctx context.Context, w ledger.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return updateWithdrawal(ctx, s.db, w)
}

func updateWithdrawal(ctx context.Context, q querier, w ledger.Withdrawal) error {
	var processedAt *string
	if w.ProcessedAt != nil {
		t := w.ProcessedAt.UTC().Format(time.RFC3339)
		processedAt = &t
	}

	res, err := q.ExecContext(ctx,
		`UPDATE withdrawals
		 SET status = ?, rejection_reason = ?, processed_at = ?, processed_by = ?
		 WHERE id = ?`,
		w.Status, nullString(w.RejectionReason), processedAt, nullString(w.ProcessedBy), w.ID)
	if err != nil {
		return fmt.Errorf("failed to update withdrawal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrWithdrawalNotFound
	}
	return nil
}

// AppendAudit appends an activity log entry. Append-only: no UPDATE or
// DELETE statement exists for activity_logs.
func (s *Store) AppendAudit(ctx context.Context, entry ledger.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendAudit(ctx, s.db, entry)
}

func appendAudit(ctx context.Context, q querier, entry ledger.AuditLogEntry) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO activity_logs (id, device_id, kind, description, amount, actor, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.DeviceID, entry.Kind, entry.Description, entry.Amount, entry.Actor,
		entry.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append activity log: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. The write
// lock is held for the whole unit, so reads inside fn observe a
// consistent committed state and units never interleave.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes the Store interface through an open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetDevice(ctx context.Context, id string) (*ledger.Device, error) {
	return getDevice(ctx, ts.tx, id)
}

func (ts *txStore) UpdateBalance(ctx context.Context, deviceID string, balance int64) error {
	return updateBalance(ctx, ts.tx, deviceID, balance)
}

func (ts *txStore) GetWithdrawal(ctx context.Context, id string) (*ledger.Withdrawal, error) {
	return getWithdrawal(ctx, ts.tx, id)
}

func (ts *txStore) UpdateWithdrawal(ctx context.Context, w ledger.Withdrawal) error {
	return updateWithdrawal(ctx, ts.tx, w)
}

func (ts *txStore) AppendAudit(ctx context.Context, entry ledger.AuditLogEntry) error {
	return appendAudit(ctx, ts.tx, entry)
}

// =============================================================================
// ADMIN GATE (ledger.AdminGate interface)
// =============================================================================

// IsAuthorizedAdmin reports whether the principal exists in the admins
// table. Pure predicate; no ledger state involved.
func (s *Store) IsAuthorizedAdmin(ctx context.Context, principalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM admins WHERE id = ?", principalID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SaveAdmin registers an administrator principal.
func (s *Store) SaveAdmin(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admins (id, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		id, name, time.Now().UTC().Format(time.RFC3339))
	return err
}

// =============================================================================
// DEVICE STORE (registration + admin surface)
// =============================================================================

// SaveDevice creates or updates a device record. Used by the upstream
// registration flow and tests; balances still change only through the
// ledger, so the update path leaves balance untouched.
func (s *Store) SaveDevice(ctx context.Context, d ledger.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO devices (id, balance, status, ban_reason, banned_at, banned_by, last_seen, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			last_seen = excluded.last_seen`,
		d.ID, d.Balance, d.Status, nullString(d.BanReason), nullTime(d.BannedAt),
		nullString(d.BannedBy),
		d.LastSeen.UTC().Format(time.RFC3339),
		d.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// SetDeviceBan bans or unbans a device. Pass-through persistence, no
// ledger invariants. Banning sets status "banned" with the given reason
// (default "Banned by admin"); unbanning resets status to "offline" and
// clears the ban fields.
func (s *Store) SetDeviceBan(ctx context.Context, deviceID string, ban bool, reason, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res sql.Result
	var err error
	if ban {
		if reason == "" {
			reason = "Banned by admin"
		}
		res, err = s.db.ExecContext(ctx,
			`UPDATE devices SET status = ?, ban_reason = ?, banned_at = ?, banned_by = ? WHERE id = ?`,
			ledger.DeviceBanned, reason, time.Now().UTC().Format(time.RFC3339), actor, deviceID)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE devices SET status = ?, ban_reason = NULL, banned_at = NULL, banned_by = NULL WHERE id = ?`,
			ledger.DeviceOffline, deviceID)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrDeviceNotFound
	}
	return nil
}

// ListDevices returns devices ordered by last_seen descending, optionally
// filtered by status.
func (s *Store) ListDevices(ctx context.Context, status string, limit int) ([]ledger.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, balance, status, ban_reason, banned_at, banned_by, last_seen, created_at
		 FROM devices`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY last_seen DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []ledger.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	return devices, rows.Err()
}

// =============================================================================
// WITHDRAWAL STORE (upstream producer + admin surface)
// =============================================================================

// SaveWithdrawal creates a withdrawal record. The withdrawal-request flow
// (which withholds points upstream) and tests use this; settlement only
// ever updates.
func (s *Store) SaveWithdrawal(ctx context.Context, w ledger.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var processedAt *string
	if w.ProcessedAt != nil {
		t := w.ProcessedAt.UTC().Format(time.RFC3339)
		processedAt = &t
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO withdrawals (id, device_id, points, status, rejection_reason, processed_at, processed_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.DeviceID, w.Points, w.Status, nullString(w.RejectionReason),
		processedAt, nullString(w.ProcessedBy),
		w.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

// ListWithdrawals returns withdrawals ordered by created_at descending,
// optionally filtered by status.
func (s *Store) ListWithdrawals(ctx context.Context, status string, limit int) ([]ledger.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, device_id, points, status, rejection_reason, processed_at, processed_by, created_at
		 FROM withdrawals`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var withdrawals []ledger.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		withdrawals = append(withdrawals, *w)
	}
	return withdrawals, rows.Err()
}

// ListAuditEntries returns a device's activity log, newest first.
func (s *Store) ListAuditEntries(ctx context.Context, deviceID string, limit int) ([]ledger.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, kind, description, amount, actor, created_at
		 FROM activity_logs
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, deviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []ledger.AuditLogEntry
	for rows.Next() {
		var (
			e         ledger.AuditLogEntry
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.DeviceID, &e.Kind, &e.Description, &e.Amount, &e.Actor, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// SERVER CATALOG
// =============================================================================

// ServerRecord is a proxy server catalog entry.
type ServerRecord struct {
	ID        string
	Name      string
	Flag      string
	Address   string
	Port      int
	UUID      string
	AlterID   int
	Security  string
	Network   string
	Path      string
	TLS       bool
	Country   string
	IsPremium bool
	Status    string
	Load      int
	CreatedAt time.Time
	CreatedBy string
	UpdatedAt *time.Time
	UpdatedBy string
}

// SaveServer inserts or updates a server record.
func (s *Store) SaveServer(ctx context.Context, srv ServerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO servers (id, name, flag, address, port, uuid, alter_id, security, network, path,
			tls, country, is_premium, status, load, created_at, created_by, updated_at, updated_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			flag = excluded.flag,
			address = excluded.address,
			port = excluded.port,
			uuid = excluded.uuid,
			alter_id = excluded.alter_id,
			security = excluded.security,
			network = excluded.network,
			path = excluded.path,
			tls = excluded.tls,
			country = excluded.country,
			is_premium = excluded.is_premium,
			status = excluded.status,
			load = excluded.load,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		srv.ID, srv.Name, nullString(srv.Flag), srv.Address, srv.Port, srv.UUID, srv.AlterID,
		srv.Security, srv.Network, srv.Path, srv.TLS, srv.Country, srv.IsPremium,
		srv.Status, srv.Load,
		srv.CreatedAt.UTC().Format(time.RFC3339), nullString(srv.CreatedBy),
		nullTime(srv.UpdatedAt), nullString(srv.UpdatedBy))
	return err
}

// GetServer retrieves a server by ID, or nil if it doesn't exist.
func (s *Store) GetServer(ctx context.Context, id string) (*ServerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, flag, address, port, uuid, alter_id, security, network, path,
			tls, country, is_premium, status, load, created_at, created_by, updated_at, updated_by
		 FROM servers WHERE id = ?`, id)

	srv, err := scanServer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return srv, nil
}

// ListServers returns all servers ordered by name.
func (s *Store) ListServers(ctx context.Context) ([]ServerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, flag, address, port, uuid, alter_id, security, network, path,
			tls, country, is_premium, status, load, created_at, created_by, updated_at, updated_by
		 FROM servers ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []ServerRecord
	for rows.Next() {
		srv, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *srv)
	}
	return servers, rows.Err()
}

// DeleteServer removes a server from the catalog.
// Returns sql.ErrNoRows if the server doesn't exist.
func (s *Store) DeleteServer(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM servers WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func scanServer(row rowScanner) (*ServerRecord, error) {
	var (
		srv                        ServerRecord
		flag, createdBy, updatedBy sql.NullString
		createdAt                  string
		updatedAt                  sql.NullString
	)

	err := row.Scan(&srv.ID, &srv.Name, &flag, &srv.Address, &srv.Port, &srv.UUID,
		&srv.AlterID, &srv.Security, &srv.Network, &srv.Path, &srv.TLS, &srv.Country,
		&srv.IsPremium, &srv.Status, &srv.Load, &createdAt, &createdBy, &updatedAt, &updatedBy)
	if err != nil {
		return nil, err
	}

	srv.Flag = flag.String
	srv.CreatedBy = createdBy.String
	srv.UpdatedBy = updatedBy.String
	srv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if updatedAt.Valid {
		t, _ := time.Parse(time.RFC3339, updatedAt.String)
		srv.UpdatedAt = &t
	}
	return &srv, nil
}

// =============================================================================
// SDUI CONFIGS
// =============================================================================

// ScreenConfig is a server-driven UI config blob for one screen.
type ScreenConfig struct {
	ScreenID   string
	ConfigJSON string
	UpdatedAt  time.Time
	UpdatedBy  string
}

// SaveScreenConfig upserts the config for a screen.
func (s *Store) SaveScreenConfig(ctx context.Context, c ScreenConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sdui_configs (screen_id, config_json, updated_at, updated_by)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(screen_id) DO UPDATE SET
			config_json = excluded.config_json,
			updated_at = excluded.updated_at,
			updated_by = excluded.updated_by`,
		c.ScreenID, c.ConfigJSON,
		c.UpdatedAt.UTC().Format(time.RFC3339), nullString(c.UpdatedBy))
	return err
}

// GetScreenConfig retrieves a screen config, or nil if it doesn't exist.
func (s *Store) GetScreenConfig(ctx context.Context, screenID string) (*ScreenConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		c         ScreenConfig
		updatedAt string
		updatedBy sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT screen_id, config_json, updated_at, updated_by FROM sdui_configs WHERE screen_id = ?",
		screenID).Scan(&c.ScreenID, &c.ConfigJSON, &updatedAt, &updatedBy)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	c.UpdatedBy = updatedBy.String
	return &c, nil
}

// =============================================================================
// DASHBOARD STATS
// =============================================================================

// DashboardStats summarizes the system for the admin dashboard.
type DashboardStats struct {
	TotalDevices       int64
	ActiveServers      int64
	PendingWithdrawals int64
	TotalPendingPoints int64
}

// GetDashboardStats aggregates device, server, and withdrawal counts.
func (s *Store) GetDashboardStats(ctx context.Context) (DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats DashboardStats

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM devices").Scan(&stats.TotalDevices); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM servers WHERE status = 'online'").Scan(&stats.ActiveServers); err != nil {
		return stats, err
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(points), 0) FROM withdrawals WHERE status = 'pending'").
		Scan(&stats.PendingWithdrawals, &stats.TotalPendingPoints); err != nil {
		return stats, err
	}

	return stats, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"activity_logs", "withdrawals", "devices", "servers", "sdui_configs", "admins"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// IsCheckConstraintError reports whether an error came from the schema's
// balance backstop rather than the ledger's own precondition.
func IsCheckConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}
