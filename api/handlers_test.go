package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nimbusvpn/points-engine/ledger"
	"github.com/nimbusvpn/points-engine/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *sqlite.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(NewRouter(NewHandler(store)))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	require.NoError(t, store.SaveAdmin(ctx, "admin-1", "Alice"))
	require.NoError(t, store.SaveDevice(ctx, ledger.Device{
		ID:        "dev-1",
		Balance:   1000,
		Status:    ledger.DeviceOnline,
		LastSeen:  time.Now().UTC(),
		CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.SaveWithdrawal(ctx, ledger.Withdrawal{
		ID:        "wd-1",
		DeviceID:  "dev-1",
		Points:    250,
		Status:    ledger.WithdrawalPending,
		CreatedAt: time.Now().UTC(),
	}))

	return srv, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// =============================================================================
// AUTHORIZATION TESTS
// =============================================================================

func TestAPI_NonAdminForbidden(t *testing.T) {
	// GIVEN: A principal not in the admins table
	// WHEN: Hitting any admin endpoint
	// THEN: 403, and no state changes

	srv, store := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/devices/dev-1/balance", AdjustBalanceRequest{
		AdminID: "device-user-9",
		Amount:  500,
		Reason:  "Nice try",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	dev, err := store.GetDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), dev.Balance)

	// Read endpoints are gated too
	r, err := http.Get(srv.URL + "/api/admin/stats?admin_id=device-user-9")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, r.StatusCode)
	r.Body.Close()
}

// =============================================================================
// BALANCE ENDPOINT TESTS
// =============================================================================

func TestAPI_AdjustBalance(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/devices/dev-1/balance", AdjustBalanceRequest{
		AdminID: "admin-1",
		Amount:  500,
		Reason:  "Promo bonus",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dto AdjustBalanceDTO
	decodeBody(t, resp, &dto)
	assert.Equal(t, "dev-1", dto.DeviceID)
	assert.Equal(t, int64(1500), dto.NewBalance)
}

func TestAPI_AdjustBalance_NegativeConflict(t *testing.T) {
	srv, store := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/devices/dev-1/balance", AdjustBalanceRequest{
		AdminID: "admin-1",
		Amount:  -1500,
		Reason:  "Abuse penalty",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	dev, err := store.GetDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), dev.Balance)
}

func TestAPI_AdjustBalance_UnknownDevice(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/devices/ghost/balance", AdjustBalanceRequest{
		AdminID: "admin-1",
		Amount:  100,
		Reason:  "Bonus",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_AdjustBalance_MissingReason(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/devices/dev-1/balance", AdjustBalanceRequest{
		AdminID: "admin-1",
		Amount:  100,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// WITHDRAWAL ENDPOINT TESTS
// =============================================================================

func TestAPI_ProcessWithdrawal_RejectThenRepeat(t *testing.T) {
	// GIVEN: A pending withdrawal of 250 points
	// WHEN: Rejecting it, then rejecting it again
	// THEN: First call refunds and succeeds, second gets 409

	srv, store := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/withdrawals/wd-1/process", ProcessWithdrawalRequest{
		AdminID:         "admin-1",
		Action:          "rejected",
		RejectionReason: "Suspicious activity",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dto WithdrawalDTO
	decodeBody(t, resp, &dto)
	assert.Equal(t, "rejected", dto.Status)
	assert.Equal(t, "Suspicious activity", dto.RejectionReason)
	assert.Equal(t, "admin-1", dto.ProcessedBy)
	assert.NotEmpty(t, dto.ProcessedAt)

	dev, err := store.GetDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1250), dev.Balance)

	resp = postJSON(t, srv.URL+"/api/admin/withdrawals/wd-1/process", ProcessWithdrawalRequest{
		AdminID: "admin-1",
		Action:  "rejected",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	dev, err = store.GetDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1250), dev.Balance, "repeat must not refund twice")
}

func TestAPI_ProcessWithdrawal_Approve(t *testing.T) {
	srv, store := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/withdrawals/wd-1/process", ProcessWithdrawalRequest{
		AdminID: "admin-1",
		Action:  "approved",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dto WithdrawalDTO
	decodeBody(t, resp, &dto)
	assert.Equal(t, "approved", dto.Status)

	dev, err := store.GetDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), dev.Balance, "approval must be balance-neutral")
}

func TestAPI_ProcessWithdrawal_BadAction(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/withdrawals/wd-1/process", ProcessWithdrawalRequest{
		AdminID: "admin-1",
		Action:  "maybe",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// DEVICE ADMIN ENDPOINT TESTS
// =============================================================================

func TestAPI_BanAndLogs(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/devices/dev-1/ban", ToggleBanRequest{
		AdminID: "admin-1",
		Ban:     true,
		Reason:  "Abuse",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var dev DeviceDTO
	decodeBody(t, resp, &dev)
	assert.Equal(t, "banned", dev.Status)
	assert.Equal(t, "Abuse", dev.BanReason)

	// Generate one audit entry, then read the log
	resp = postJSON(t, srv.URL+"/api/admin/devices/dev-1/balance", AdjustBalanceRequest{
		AdminID: "admin-1",
		Amount:  -100,
		Reason:  "Abuse penalty",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	r, err := http.Get(srv.URL + "/api/admin/devices/dev-1/logs?admin_id=admin-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, r.StatusCode)

	var logs []AuditLogDTO
	decodeBody(t, r, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, int64(-100), logs[0].Amount)
	assert.Equal(t, "Abuse penalty", logs[0].Description)
}

func TestAPI_ListDevicesAndWithdrawals(t *testing.T) {
	srv, _ := newTestServer(t)

	r, err := http.Get(srv.URL + "/api/admin/devices?admin_id=admin-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, r.StatusCode)
	var devices []DeviceDTO
	decodeBody(t, r, &devices)
	assert.Len(t, devices, 1)

	r, err = http.Get(srv.URL + "/api/admin/withdrawals?admin_id=admin-1&status=pending")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, r.StatusCode)
	var withdrawals []WithdrawalDTO
	decodeBody(t, r, &withdrawals)
	require.Len(t, withdrawals, 1)
	assert.Equal(t, "wd-1", withdrawals[0].ID)
}

// =============================================================================
// SERVER CATALOG ENDPOINT TESTS
// =============================================================================

func TestAPI_ServerCRUD(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/servers", CreateServerRequest{
		AdminID: "admin-1",
		Name:    "Tokyo 1",
		Address: "tokyo1.example.com",
		Port:    443,
		UUID:    "3f1e9a2c-0000-0000-0000-000000000000",
		Country: "Japan",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created ServerDTO
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.ID)

	// Omitted fields take the catalog defaults
	assert.Equal(t, 0, created.AlterID)
	assert.Equal(t, "auto", created.Security)
	assert.Equal(t, "ws", created.Network)
	assert.Equal(t, "/", created.Path)
	assert.True(t, created.TLS)
	assert.False(t, created.IsPremium)
	assert.Equal(t, "online", created.Status)
	assert.Equal(t, 0, created.Load)

	// Partial update only touches the provided fields
	load := 37
	status := "maintenance"
	req, err := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/admin/servers/%s", srv.URL, created.ID),
		bytes.NewReader(mustMarshal(t, UpdateServerRequest{
			AdminID: "admin-1",
			Load:    &load,
			Status:  &status,
		})))
	require.NoError(t, err)
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, r.StatusCode)

	var updated ServerDTO
	decodeBody(t, r, &updated)
	assert.Equal(t, 37, updated.Load)
	assert.Equal(t, "maintenance", updated.Status)
	assert.Equal(t, "Tokyo 1", updated.Name)
	assert.NotEmpty(t, updated.UpdatedAt)

	// Delete, then 404 on the second attempt
	req, err = http.NewRequest(http.MethodDelete,
		fmt.Sprintf("%s/api/admin/servers/%s?admin_id=admin-1", srv.URL, created.ID), nil)
	require.NoError(t, err)
	r, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	r.Body.Close()

	r, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
	r.Body.Close()
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

// =============================================================================
// SDUI + STATS ENDPOINT TESTS
// =============================================================================

func TestAPI_UpdateScreenConfig(t *testing.T) {
	srv, store := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, srv.URL+"/api/admin/sdui/home",
		bytes.NewReader(mustMarshal(t, UpdateScreenConfigRequest{
			AdminID: "admin-1",
			Config:  json.RawMessage(`{"banner":"welcome"}`),
		})))
	require.NoError(t, err)
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, r.StatusCode)
	r.Body.Close()

	cfg, err := store.GetScreenConfig(context.Background(), "home")
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.JSONEq(t, `{"banner":"welcome"}`, cfg.ConfigJSON)
}

func TestAPI_ResetDatabase(t *testing.T) {
	// GIVEN: A store with seeded data
	// WHEN: An admin hits the dev reset endpoint
	// THEN: All tables are cleared, including the admins themselves

	srv, store := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/admin/reset?admin_id=admin-1", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	dev, err := store.GetDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Nil(t, dev)

	// The reset removed the admin, so a second reset is forbidden
	resp, err = http.Post(srv.URL+"/api/admin/reset?admin_id=admin-1", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_DashboardStats(t *testing.T) {
	srv, _ := newTestServer(t)

	r, err := http.Get(srv.URL + "/api/admin/stats?admin_id=admin-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, r.StatusCode)

	var stats StatsDTO
	decodeBody(t, r, &stats)
	assert.Equal(t, int64(1), stats.TotalDevices)
	assert.Equal(t, int64(1), stats.PendingWithdrawals)
	assert.Equal(t, int64(250), stats.TotalPendingAmount)
}
