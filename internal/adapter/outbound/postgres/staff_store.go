package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/acl"
	"github.com/chetandr-lohono/lohono-db-connect/internal/domain/identity"
)

// StaffStore resolves staff directory records from the staffs table.
// Lookups run through the same read-only pool as ad-hoc queries.
type StaffStore struct {
	pool *Pool
}

var _ acl.StaffStore = (*StaffStore)(nil)

// NewStaffStore wraps the pool as an ACL staff backend.
func NewStaffStore(pool *Pool) *StaffStore {
	return &StaffStore{pool: pool}
}

// GetStaff looks up one staff record by canonical email. A missing record
// maps to acl.ErrStaffNotFound so the engine can negative-cache it; any
// other failure is a backend error and stays uncached.
func (s *StaffStore) GetStaff(ctx context.Context, email string) (*identity.Staff, error) {
	const query = `
		SELECT email, active, COALESCE(acls, '{}')
		FROM staffs
		WHERE lower(email) = $1`

	var staff identity.Staff
	err := s.pool.WithReadOnlyTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, query, identity.CanonicalEmail(email))
		if err := row.Scan(&staff.Email, &staff.Active, pq.Array(&staff.ACLs)); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return acl.ErrStaffNotFound
			}
			return fmt.Errorf("staff lookup failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &staff, nil
}
