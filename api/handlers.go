/*
handlers.go - HTTP API handlers for the points admin backend

PURPOSE:
  Exposes the ledger engine and the admin surface via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to domain
  logic.

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Authorize the admin principal (before ANY state is read)
  4. Call domain logic (ledger, settler) or pass-through persistence
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Caller is not a recognized administrator
  - 404: Device / withdrawal / server not found
  - 409: Consistency aborts (negative balance, already processed)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - ledger/: The domain logic behind the core endpoints
*/
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nimbusvpn/points-engine/ledger"
	"github.com/nimbusvpn/points-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Ledger  *ledger.Ledger
	Settler *ledger.Settler
	Gate    ledger.AdminGate
}

// NewHandler creates a new handler with the given store. The store doubles
// as the admin gate; tests may swap in a different gate.
func NewHandler(store *sqlite.Store) *Handler {
	return &Handler{
		Store:   store,
		Ledger:  ledger.NewLedger(store),
		Settler: ledger.NewSettler(store),
		Gate:    store,
	}
}

// requireAdmin authorizes the principal and writes the failure response
// itself. Returns false if the request must not proceed.
func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request, principalID string) bool {
	err := ledger.Authorize(r.Context(), h.Gate, principalID)
	if err == nil {
		return true
	}
	if ledger.IsUnauthorized(err) {
		writeError(w, http.StatusForbidden, "Admin access required", nil)
	} else {
		writeError(w, http.StatusInternalServerError, "Failed to verify admin", err)
	}
	return false
}

// =============================================================================
// CORE: BALANCE ADJUSTMENT
// =============================================================================

// AdjustBalance applies a signed delta to a device's point balance.
// POST /api/admin/devices/{id}/balance
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req AdjustBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.AdminID == "" || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "admin_id and reason are required", nil)
		return
	}

	if !h.requireAdmin(w, r, req.AdminID) {
		return
	}

	newBalance, err := h.Ledger.AdjustBalance(r.Context(), deviceID, req.Amount, req.Reason, req.AdminID)
	if err != nil {
		writeDomainError(w, err, "Failed to adjust balance")
		return
	}

	writeJSON(w, http.StatusOK, AdjustBalanceDTO{
		DeviceID:   deviceID,
		NewBalance: newBalance,
	})
}

// =============================================================================
// CORE: WITHDRAWAL SETTLEMENT
// =============================================================================

// ProcessWithdrawal settles a pending withdrawal (approve or reject).
// POST /api/admin/withdrawals/{id}/process
func (h *Handler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawalID := chi.URLParam(r, "id")

	var req ProcessWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.AdminID == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "admin_id and action are required", nil)
		return
	}
	action := ledger.SettleAction(req.Action)
	if action != ledger.ActionApprove && action != ledger.ActionReject {
		writeError(w, http.StatusBadRequest, "action must be 'approved' or 'rejected'", nil)
		return
	}

	if !h.requireAdmin(w, r, req.AdminID) {
		return
	}

	settled, err := h.Settler.Settle(r.Context(), withdrawalID, action, req.RejectionReason, req.AdminID)
	if err != nil {
		writeDomainError(w, err, "Failed to process withdrawal")
		return
	}

	writeJSON(w, http.StatusOK, toWithdrawalDTO(*settled))
}

// =============================================================================
// DEVICE ADMIN
// =============================================================================

// ToggleDeviceBan bans or unbans a device.
// POST /api/admin/devices/{id}/ban
func (h *Handler) ToggleDeviceBan(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")

	var req ToggleBanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.AdminID == "" {
		writeError(w, http.StatusBadRequest, "admin_id is required", nil)
		return
	}

	if !h.requireAdmin(w, r, req.AdminID) {
		return
	}

	if err := h.Store.SetDeviceBan(r.Context(), deviceID, req.Ban, req.Reason, req.AdminID); err != nil {
		writeDomainError(w, err, "Failed to update device")
		return
	}

	dev, err := h.Store.GetDevice(r.Context(), deviceID)
	if err != nil || dev == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload device", err)
		return
	}

	writeJSON(w, http.StatusOK, toDeviceDTO(*dev))
}

// ListDevices returns devices, optionally filtered by status.
// GET /api/admin/devices?admin_id=...&status=...&limit=...
func (h *Handler) ListDevices(w http.ResponseWriter, r *http.Request) {
	adminID := r.URL.Query().Get("admin_id")
	if !h.requireAdmin(w, r, adminID) {
		return
	}

	devices, err := h.Store.ListDevices(r.Context(),
		r.URL.Query().Get("status"), queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list devices", err)
		return
	}

	dtos := make([]DeviceDTO, len(devices))
	for i, d := range devices {
		dtos[i] = toDeviceDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListActivityLogs returns a device's audit trail, newest first.
// GET /api/admin/devices/{id}/logs?admin_id=...&limit=...
func (h *Handler) ListActivityLogs(w http.ResponseWriter, r *http.Request) {
	adminID := r.URL.Query().Get("admin_id")
	if !h.requireAdmin(w, r, adminID) {
		return
	}

	entries, err := h.Store.ListAuditEntries(r.Context(), chi.URLParam(r, "id"), queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list activity logs", err)
		return
	}

	dtos := make([]AuditLogDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditLogDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// WITHDRAWAL ADMIN
// =============================================================================

// ListWithdrawals returns withdrawals, optionally filtered by status.
// GET /api/admin/withdrawals?admin_id=...&status=...&limit=...
func (h *Handler) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	adminID := r.URL.Query().Get("admin_id")
	if !h.requireAdmin(w, r, adminID) {
		return
	}

	withdrawals, err := h.Store.ListWithdrawals(r.Context(),
		r.URL.Query().Get("status"), queryLimit(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list withdrawals", err)
		return
	}

	dtos := make([]WithdrawalDTO, len(withdrawals))
	for i, wd := range withdrawals {
		dtos[i] = toWithdrawalDTO(wd)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SERVER CATALOG
// =============================================================================

// ListServers returns the full server catalog.
// GET /api/admin/servers?admin_id=...
func (h *Handler) ListServers(w http.ResponseWriter, r *http.Request) {
	adminID := r.URL.Query().Get("admin_id")
	if !h.requireAdmin(w, r, adminID) {
		return
	}

	servers, err := h.Store.ListServers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list servers", err)
		return
	}

	dtos := make([]ServerDTO, len(servers))
	for i, s := range servers {
		dtos[i] = toServerDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateServer adds a server to the catalog.
// POST /api/admin/servers
func (h *Handler) CreateServer(w http.ResponseWriter, r *http.Request) {
	var req CreateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.AdminID == "" || req.Name == "" || req.Address == "" || req.Port == 0 ||
		req.UUID == "" || req.Country == "" {
		writeError(w, http.StatusBadRequest, "admin_id, name, address, port, uuid, and country are required", nil)
		return
	}

	if !h.requireAdmin(w, r, req.AdminID) {
		return
	}

	srv := sqlite.ServerRecord{
		ID:        ledger.NewEntryID(),
		Name:      req.Name,
		Flag:      req.Flag,
		Address:   req.Address,
		Port:      req.Port,
		UUID:      req.UUID,
		AlterID:   0,
		Security:  "auto",
		Network:   "ws",
		Path:      "/",
		TLS:       true,
		Country:   req.Country,
		IsPremium: false,
		Status:    "online",
		Load:      0,
		CreatedAt: time.Now().UTC(),
		CreatedBy: req.AdminID,
	}
	if req.AlterID != nil {
		srv.AlterID = *req.AlterID
	}
	if req.Security != "" {
		srv.Security = req.Security
	}
	if req.Network != "" {
		srv.Network = req.Network
	}
	if req.Path != "" {
		srv.Path = req.Path
	}
	if req.TLS != nil {
		srv.TLS = *req.TLS
	}
	if req.IsPremium != nil {
		srv.IsPremium = *req.IsPremium
	}

	if err := h.Store.SaveServer(r.Context(), srv); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create server", err)
		return
	}

	writeJSON(w, http.StatusCreated, toServerDTO(srv))
}

// UpdateServer partially updates a catalog server.
// PUT /api/admin/servers/{id}
func (h *Handler) UpdateServer(w http.ResponseWriter, r *http.Request) {
	serverID := chi.URLParam(r, "id")

	var req UpdateServerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.AdminID == "" {
		writeError(w, http.StatusBadRequest, "admin_id is required", nil)
		return
	}

	if !h.requireAdmin(w, r, req.AdminID) {
		return
	}

	srv, err := h.Store.GetServer(r.Context(), serverID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get server", err)
		return
	}
	if srv == nil {
		writeError(w, http.StatusNotFound, "Server not found", nil)
		return
	}

	applyServerUpdate(srv, req)
	now := time.Now().UTC()
	srv.UpdatedAt = &now
	srv.UpdatedBy = req.AdminID

	if err := h.Store.SaveServer(r.Context(), *srv); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update server", err)
		return
	}

	writeJSON(w, http.StatusOK, toServerDTO(*srv))
}

func applyServerUpdate(srv *sqlite.ServerRecord, req UpdateServerRequest) {
	if req.Name != nil {
		srv.Name = *req.Name
	}
	if req.Flag != nil {
		srv.Flag = *req.Flag
	}
	if req.Address != nil {
		srv.Address = *req.Address
	}
	if req.Port != nil {
		srv.Port = *req.Port
	}
	if req.UUID != nil {
		srv.UUID = *req.UUID
	}
	if req.AlterID != nil {
		srv.AlterID = *req.AlterID
	}
	if req.Security != nil {
		srv.Security = *req.Security
	}
	if req.Network != nil {
		srv.Network = *req.Network
	}
	if req.Path != nil {
		srv.Path = *req.Path
	}
	if req.TLS != nil {
		srv.TLS = *req.TLS
	}
	if req.Country != nil {
		srv.Country = *req.Country
	}
	if req.IsPremium != nil {
		srv.IsPremium = *req.IsPremium
	}
	if req.Status != nil {
		srv.Status = *req.Status
	}
	if req.Load != nil {
		srv.Load = *req.Load
	}
}

// DeleteServer removes a server from the catalog.
// DELETE /api/admin/servers/{id}?admin_id=...
func (h *Handler) DeleteServer(w http.ResponseWriter, r *http.Request) {
	adminID := r.URL.Query().Get("admin_id")
	if !h.requireAdmin(w, r, adminID) {
		return
	}

	err := h.Store.DeleteServer(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, sql.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Server not found", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete server", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Server deleted"})
}

// =============================================================================
// SDUI CONFIG
// =============================================================================

// UpdateScreenConfig upserts the SDUI config for a screen.
// PUT /api/admin/sdui/{screenID}
func (h *Handler) UpdateScreenConfig(w http.ResponseWriter, r *http.Request) {
	screenID := chi.URLParam(r, "screenID")

	var req UpdateScreenConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.AdminID == "" || len(req.Config) == 0 {
		writeError(w, http.StatusBadRequest, "admin_id and config are required", nil)
		return
	}

	if !h.requireAdmin(w, r, req.AdminID) {
		return
	}

	cfg := sqlite.ScreenConfig{
		ScreenID:   screenID,
		ConfigJSON: string(req.Config),
		UpdatedAt:  time.Now().UTC(),
		UpdatedBy:  req.AdminID,
	}
	if err := h.Store.SaveScreenConfig(r.Context(), cfg); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save config", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"screen_id": screenID, "message": "Config updated"})
}

// =============================================================================
// DASHBOARD
// =============================================================================

// GetDashboardStats returns system-wide counts for the admin dashboard.
// GET /api/admin/stats?admin_id=...
func (h *Handler) GetDashboardStats(w http.ResponseWriter, r *http.Request) {
	adminID := r.URL.Query().Get("admin_id")
	if !h.requireAdmin(w, r, adminID) {
		return
	}

	stats, err := h.Store.GetDashboardStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get stats", err)
		return
	}

	writeJSON(w, http.StatusOK, StatsDTO{
		TotalDevices:       stats.TotalDevices,
		ActiveServers:      stats.ActiveServers,
		PendingWithdrawals: stats.PendingWithdrawals,
		TotalPendingAmount: stats.TotalPendingPoints,
	})
}

// =============================================================================
// UTILITIES
// =============================================================================

// ResetDatabase clears all data. Development and demo environments only;
// still gated on an admin principal.
// POST /api/admin/reset?admin_id=...
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	adminID := r.URL.Query().Get("admin_id")
	if !h.requireAdmin(w, r, adminID) {
		return
	}

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Database reset"})
}

// =============================================================================
// HELPERS
// =============================================================================

func queryLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return limit
}

// writeDomainError maps ledger errors onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error, message string) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case ledger.IsConsistency(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
