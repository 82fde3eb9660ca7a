// Package repositories implements the PostgreSQL data access layer for users,
// organizations, roles, memberships, task results and reporting queries.
//
// Every repository is constructed over a Handle, which is satisfied by both
// *sqlx.DB and *sqlx.Tx, so the same code runs standalone or inside a
// db.WithTx scope.
package repositories

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/MURUGANQA/auth-service/internal/domain"
)

// Handle is the query surface shared by *sqlx.DB and *sqlx.Tx.
type Handle interface {
	sqlx.ExtContext
}

// nowUnix is replaced in tests that need deterministic timestamps.
var nowUnix = func() int64 { return time.Now().Unix() }

// uniqueConstraintCodes maps unique index names to conflict codes.
var uniqueConstraintCodes = map[string]string{
	"users_email_lower_key":         domain.CodeDuplicateEmail,
	"memberships_org_user_live_key": domain.CodeDuplicateMembership,
	"roles_org_name_key":            domain.CodeDuplicateRole,
}

// mapStoreError translates driver errors into the domain taxonomy. Errors it
// does not recognise are wrapped with op and returned unchanged otherwise.
func mapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == "23505":
			code, ok := uniqueConstraintCodes[pqErr.Constraint]
			if !ok {
				code = "duplicate"
			}
			return domain.ErrConflict(code, "%s: %s already exists", op, strings.TrimPrefix(code, "duplicate_"))
		case pqErr.Code == "23503" && pqErr.Constraint == "memberships_role_same_org_fkey":
			return domain.ErrValidation(domain.CodeCrossTenantRole, "role does not belong to the organization")
		case pqErr.Code == "23503":
			return domain.ErrValidation("invalid_reference", "%s: referenced record does not exist", op)
		case pqErr.Code.Class() == "08", pqErr.Code.Class() == "57", pqErr.Code == "53300":
			return domain.ErrInfrastructure(op, err)
		}
	}

	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		return domain.ErrInfrastructure(op, err)
	}

	return fmt.Errorf("failed to %s: %w", op, err)
}

// jsonOrEmpty returns raw, or an empty JSON object when raw is empty, so
// NOT NULL JSONB columns always receive a value.
func jsonOrEmpty(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

// rowsAffected returns the number of rows touched by res.
func rowsAffected(op string, res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapStoreError(op, err)
	}
	return n, nil
}
