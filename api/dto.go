/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

ADMIN IDENTITY:
  Every mutating request carries admin_id in the body (query parameter for
  reads). The handler validates it through the Authorization Gate before
  touching any state.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/nimbusvpn/points-engine/ledger"
	"github.com/nimbusvpn/points-engine/store/sqlite"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// AdjustBalanceRequest is an admin balance adjustment.
type AdjustBalanceRequest struct {
	AdminID string `json:"admin_id"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
}

// AdjustBalanceDTO is the result of a balance adjustment.
type AdjustBalanceDTO struct {
	DeviceID   string `json:"device_id"`
	NewBalance int64  `json:"new_balance"`
}

// ProcessWithdrawalRequest asks to settle a pending withdrawal.
type ProcessWithdrawalRequest struct {
	AdminID         string `json:"admin_id"`
	Action          string `json:"action"` // "approved" or "rejected"
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// WithdrawalDTO represents a withdrawal in API responses.
type WithdrawalDTO struct {
	ID              string `json:"id"`
	DeviceID        string `json:"device_id"`
	Points          int64  `json:"points"`
	Status          string `json:"status"`
	RejectionReason string `json:"rejection_reason,omitempty"`
	ProcessedAt     string `json:"processed_at,omitempty"`
	ProcessedBy     string `json:"processed_by,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// ToggleBanRequest bans or unbans a device.
type ToggleBanRequest struct {
	AdminID string `json:"admin_id"`
	Ban     bool   `json:"ban"`
	Reason  string `json:"reason,omitempty"`
}

// DeviceDTO represents a device in API responses.
type DeviceDTO struct {
	ID        string `json:"id"`
	Balance   int64  `json:"balance"`
	Status    string `json:"status"`
	BanReason string `json:"ban_reason,omitempty"`
	BannedAt  string `json:"banned_at,omitempty"`
	BannedBy  string `json:"banned_by,omitempty"`
	LastSeen  string `json:"last_seen,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// AuditLogDTO represents an activity log entry.
type AuditLogDTO struct {
	ID          string `json:"id"`
	DeviceID    string `json:"device_id"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Actor       string `json:"actor"`
	CreatedAt   string `json:"created_at"`
}

// CreateServerRequest adds a server to the catalog. Optional fields take
// the catalog defaults (alter_id 0, security "auto", network "ws",
// path "/", tls true, is_premium false).
type CreateServerRequest struct {
	AdminID   string `json:"admin_id"`
	Name      string `json:"name"`
	Flag      string `json:"flag,omitempty"`
	Address   string `json:"address"`
	Port      int    `json:"port"`
	UUID      string `json:"uuid"`
	AlterID   *int   `json:"alter_id,omitempty"`
	Security  string `json:"security,omitempty"`
	Network   string `json:"network,omitempty"`
	Path      string `json:"path,omitempty"`
	TLS       *bool  `json:"tls,omitempty"`
	Country   string `json:"country"`
	IsPremium *bool  `json:"is_premium,omitempty"`
}

// UpdateServerRequest partially updates a server. Only non-nil fields
// are applied.
type UpdateServerRequest struct {
	AdminID   string  `json:"admin_id"`
	Name      *string `json:"name,omitempty"`
	Flag      *string `json:"flag,omitempty"`
	Address   *string `json:"address,omitempty"`
	Port      *int    `json:"port,omitempty"`
	UUID      *string `json:"uuid,omitempty"`
	AlterID   *int    `json:"alter_id,omitempty"`
	Security  *string `json:"security,omitempty"`
	Network   *string `json:"network,omitempty"`
	Path      *string `json:"path,omitempty"`
	TLS       *bool   `json:"tls,omitempty"`
	Country   *string `json:"country,omitempty"`
	IsPremium *bool   `json:"is_premium,omitempty"`
	Status    *string `json:"status,omitempty"`
	Load      *int    `json:"load,omitempty"`
}

// ServerDTO represents a catalog server.
type ServerDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Flag      string `json:"flag,omitempty"`
	Address   string `json:"address"`
	Port      int    `json:"port"`
	UUID      string `json:"uuid"`
	AlterID   int    `json:"alter_id"`
	Security  string `json:"security"`
	Network   string `json:"network"`
	Path      string `json:"path"`
	TLS       bool   `json:"tls"`
	Country   string `json:"country"`
	IsPremium bool   `json:"is_premium"`
	Status    string `json:"status"`
	Load      int    `json:"load"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// UpdateScreenConfigRequest upserts an SDUI screen config.
type UpdateScreenConfigRequest struct {
	AdminID string          `json:"admin_id"`
	Config  json.RawMessage `json:"config"`
}

// StatsDTO is the admin dashboard summary.
type StatsDTO struct {
	TotalDevices       int64 `json:"total_devices"`
	ActiveServers      int64 `json:"active_servers"`
	PendingWithdrawals int64 `json:"pending_withdrawals"`
	TotalPendingAmount int64 `json:"total_pending_amount"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toDeviceDTO(d ledger.Device) DeviceDTO {
	dto := DeviceDTO{
		ID:        d.ID,
		Balance:   d.Balance,
		Status:    string(d.Status),
		BanReason: d.BanReason,
		BannedBy:  d.BannedBy,
		LastSeen:  d.LastSeen.Format(time.RFC3339),
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
	}
	if d.BannedAt != nil {
		dto.BannedAt = d.BannedAt.Format(time.RFC3339)
	}
	return dto
}

func toWithdrawalDTO(w ledger.Withdrawal) WithdrawalDTO {
	dto := WithdrawalDTO{
		ID:              w.ID,
		DeviceID:        w.DeviceID,
		Points:          w.Points,
		Status:          string(w.Status),
		RejectionReason: w.RejectionReason,
		ProcessedBy:     w.ProcessedBy,
		CreatedAt:       w.CreatedAt.Format(time.RFC3339),
	}
	if w.ProcessedAt != nil {
		dto.ProcessedAt = w.ProcessedAt.Format(time.RFC3339)
	}
	return dto
}

func toAuditLogDTO(e ledger.AuditLogEntry) AuditLogDTO {
	return AuditLogDTO{
		ID:          e.ID,
		DeviceID:    e.DeviceID,
		Kind:        string(e.Kind),
		Description: e.Description,
		Amount:      e.Amount,
		Actor:       e.Actor,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

func toServerDTO(s sqlite.ServerRecord) ServerDTO {
	dto := ServerDTO{
		ID:        s.ID,
		Name:      s.Name,
		Flag:      s.Flag,
		Address:   s.Address,
		Port:      s.Port,
		UUID:      s.UUID,
		AlterID:   s.AlterID,
		Security:  s.Security,
		Network:   s.Network,
		Path:      s.Path,
		TLS:       s.TLS,
		Country:   s.Country,
		IsPremium: s.IsPremium,
		Status:    s.Status,
		Load:      s.Load,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
	if s.UpdatedAt != nil {
		dto.UpdatedAt = s.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}
