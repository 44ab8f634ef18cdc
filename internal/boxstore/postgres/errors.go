package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/koustreak/cloudbox/internal/boxstore"
	"github.com/koustreak/cloudbox/internal/errs"
)

// PostgreSQL SQLSTATE codes the store distinguishes.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgErrInvalidPassword     = "28P01"
	pgErrInvalidAuthSpec     = "28000"
	pgErrInsufficientPrivs   = "42501"
	pgErrUndefinedTable      = "42P01"
	pgErrUndefinedColumn     = "42703"
	pgErrConnectionException = "08"
)

// mapError converts a pgx error into the cloudbox taxonomy. name is the box
// being looked up, if any.
func mapError(err error, op, name string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return boxstore.NotFound(name)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Transport("boxstore."+op, "postgres", err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		kind := errs.KindUnknown
		switch {
		case pgErr.Code == pgErrInvalidPassword, pgErr.Code == pgErrInvalidAuthSpec:
			kind = errs.KindAuthentication
		case pgErr.Code == pgErrInsufficientPrivs:
			kind = errs.KindPermission
		case pgErr.Code == pgErrUndefinedTable, pgErr.Code == pgErrUndefinedColumn:
			kind = errs.KindMalformedRequest
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == pgErrConnectionException:
			return errs.Transport("boxstore."+op, "postgres", err)
		}
		return &errs.ProviderError{
			Kind:     kind,
			Provider: boxstore.Name,
			Op:       op,
			Code:     pgErr.Code,
			Message:  pgErr.Message,
		}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return errs.Transport("boxstore."+op, "postgres", err)
	}
	return &errs.ProviderError{Kind: errs.KindUnknown, Provider: boxstore.Name, Op: op, Message: err.Error()}
}
