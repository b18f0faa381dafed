package auth

import (
	"context"
	"database/sql"
	stderrors "errors"

	"teed-waitlist/internal/common/errors"
)

// ProfileOperatorChecker grants operator status to identities carrying
// OperatorRole, otherwise to users whose profile row has is_admin set.
type ProfileOperatorChecker struct {
	db *sql.DB
}

func NewProfileOperatorChecker(db *sql.DB) *ProfileOperatorChecker {
	return &ProfileOperatorChecker{db: db}
}

func (p *ProfileOperatorChecker) IsOperator(ctx context.Context, id *Identity) (bool, error) {
	if id == nil {
		return false, nil
	}
	if id.HasRole(OperatorRole) {
		return true, nil
	}

	var isAdmin bool
	err := p.db.QueryRowContext(ctx, `SELECT is_admin FROM profiles WHERE id = $1`, id.UserID).Scan(&isAdmin)
	if stderrors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.NewUpstreamDataError("profiles", err)
	}
	return isAdmin, nil
}
