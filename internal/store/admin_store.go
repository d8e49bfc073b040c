package store

import (
	"context"
	"database/sql"
	"errors"
)

// Roles a super admin can grant to a regular admin.
const (
	RoleViewLedger    = "CanViewLedger"
	RoleManageOffers  = "CanManageOffers"
	RoleViewAuditLogs = "CanViewAuditLogs"
)

const (
	adminLookupSQL = `SELECT is_super FROM admins WHERE user_id = $1`
	adminRoleSQL   = `SELECT COUNT(1) FROM admin_roles WHERE admin_user_id = $1 AND role = $2`
	adminCountSQL  = `SELECT COUNT(1) FROM admins`

	adminInsertSQL = `
		INSERT INTO admins (user_id, is_super, created_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO NOTHING`
	adminGrantSQL = `
		INSERT INTO admin_roles (admin_user_id, role)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`
)

// AdminStatus is the outcome of an admin lookup. The zero value means the
// user holds no admin rights.
type AdminStatus struct {
	IsAdmin bool
	IsSuper bool
}

type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

func (s *AdminStore) Lookup(ctx context.Context, userID string) (AdminStatus, error) {
	var isSuper bool
	switch err := s.db.GetContext(ctx, &isSuper, adminLookupSQL, userID); {
	case errors.Is(err, sql.ErrNoRows):
		return AdminStatus{}, nil
	case err != nil:
		return AdminStatus{}, err
	}
	return AdminStatus{IsAdmin: true, IsSuper: isSuper}, nil
}

func (s *AdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	return countPositive(ctx, s.db, adminRoleSQL, userID, role)
}

// CreateAdmin is a no-op for users that already are admins.
func (s *AdminStore) CreateAdmin(ctx context.Context, tx Execer, userID string, isSuper bool, createdBy *string) error {
	_, err := tx.ExecContext(ctx, adminInsertSQL, userID, isSuper, createdBy)
	return err
}

func (s *AdminStore) GrantRole(ctx context.Context, tx Execer, adminUserID, role string) error {
	_, err := tx.ExecContext(ctx, adminGrantSQL, adminUserID, role)
	return err
}

// HasAnyAdmin runs inside the registration transaction so the first user
// becomes super admin exactly once.
func (s *AdminStore) HasAnyAdmin(ctx context.Context, tx Getter) (bool, error) {
	return countPositive(ctx, tx, adminCountSQL)
}

func countPositive(ctx context.Context, q Getter, query string, args ...any) (bool, error) {
	var n int
	if err := q.GetContext(ctx, &n, query, args...); err != nil {
		return false, err
	}
	return n > 0, nil
}
