package mysql

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/koustreak/cloudbox/internal/boxstore"
	"github.com/koustreak/cloudbox/internal/errs"
)

// MySQL error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied  = 1044
	errAccessDenied    = 1045
	errTableAccess     = 1142
	errBadFieldError   = 1054
	errUnknownDatabase = 1049
	errNoSuchTable     = 1146
)

// mapError converts a MySQL driver error into the cloudbox taxonomy. name is
// the box being looked up, if any.
func mapError(err error, op, name string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return boxstore.NotFound(name)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, gomysql.ErrInvalidConn) {
		return errs.Transport("boxstore."+op, "mysql", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errs.Transport("boxstore."+op, "mysql", err)
	}

	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		kind := errs.KindUnknown
		switch myErr.Number {
		case errAccessDenied:
			kind = errs.KindAuthentication
		case errDBAccessDenied, errTableAccess:
			kind = errs.KindPermission
		case errNoSuchTable, errBadFieldError, errUnknownDatabase:
			kind = errs.KindMalformedRequest
		}
		return &errs.ProviderError{
			Kind:     kind,
			Provider: boxstore.Name,
			Op:       op,
			Code:     strconv.Itoa(int(myErr.Number)),
			Message:  myErr.Message,
		}
	}
	return &errs.ProviderError{Kind: errs.KindUnknown, Provider: boxstore.Name, Op: op, Message: err.Error()}
}
