package repository

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"contactbook/internal/errs"
)

// Pool is the part of *pgxpool.Pool the repositories use; pgxmock.PgxPoolIface
// satisfies it in tests. Each call checks a connection out for the duration of
// the statement or transaction only.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

const (
	codeUniqueViolation = "23505"
	classIntegrity      = "23"
)

// translate is the single place storage errors become error kinds.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return errs.E(errs.KindNotFound, op, "", nil)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return errs.E(errs.KindConflict, op, conflictMessage(pgErr.ConstraintName), err)
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == classIntegrity:
			return errs.E(errs.KindValidation, op, "data integrity violation", err)
		}
		return err
	}

	if isConnectivity(err) {
		return errs.E(errs.KindStorageUnavailable, op, "database unavailable", err)
	}
	return err
}

func conflictMessage(constraint string) string {
	switch constraint {
	case "unique_contact_user":
		return "contact already exists"
	case "users_username_key":
		return "username already taken"
	case "users_email_key":
		return "email already registered"
	default:
		return "already exists"
	}
}

func isConnectivity(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.Timeout(err)
}
