package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// MembershipRepo answers membership lookups from the memberships table
// owned by the identity service.
type MembershipRepo struct {
	db *sql.DB
}

// NewMembershipRepo returns a MembershipRepo bound to db.
func NewMembershipRepo(db *sql.DB) *MembershipRepo { return &MembershipRepo{db: db} }

// HasActiveMembership reports whether the user holds an ACTIVE membership
// that has not expired.
func (r *MembershipRepo) HasActiveMembership(ctx context.Context, userID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM memberships
		 WHERE user_id = ? AND status = 'ACTIVE' AND (expires_at IS NULL OR expires_at > UTC_TIMESTAMP())`,
		userID).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "lookup membership")
	}
	return n > 0, nil
}
