/*
authz.go - Authorization Gate contract

The gate is a pure predicate: does this principal identify a recognized
administrator? It owns no ledger state and is consulted by every mutating
entry point BEFORE any ledger read. Session issuance and credential
verification live outside this system.
*/
package ledger

import (
	"context"
	"fmt"
)

// AdminGate answers whether a principal is an authorized administrator.
// The production implementation checks the admins table (store/sqlite);
// tests use a map-backed gate.
type AdminGate interface {
	IsAuthorizedAdmin(ctx context.Context, principalID string) (bool, error)
}

// Authorize resolves a principal through the gate. Returns ErrUnauthorized
// for an empty principal or a negative answer; lookup failures are
// surfaced as-is so they map to an internal error, not a denial.
func Authorize(ctx context.Context, gate AdminGate, principalID string) error {
	if principalID == "" {
		return ErrUnauthorized
	}
	ok, err := gate.IsAuthorizedAdmin(ctx, principalID)
	if err != nil {
		return fmt.Errorf("admin lookup for %s: %w", principalID, err)
	}
	if !ok {
		return ErrUnauthorized
	}
	return nil
}
