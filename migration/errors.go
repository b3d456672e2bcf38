package migration

import (
	"errors"
	"fmt"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// ValidationError marks a mutation that cannot be processed at all
// (unsupported type, missing structural fields). It causes a skip, never a
// rollback: no scope has been opened when validation runs.
type ValidationError struct {
	MutationID int
	Reason     string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("mutation %d not processed: %s", e.MutationID, e.Reason)
}

// ResolutionError marks a mutation whose party or account could not be
// resolved through any fallback tier. Fatal for the mutation; the enclosing
// scope is rolled back and the batch continues.
type ResolutionError struct {
	MutationID int
	What       string
	Reason     string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("mutation %d: could not resolve %s: %s", e.MutationID, e.What, e.Reason)
}

// ErrStoreUnreachable wraps persistence failures that indicate the store
// itself is gone. These abort the whole run; everything else only fails the
// mutation in flight.
var ErrStoreUnreachable = errors.New("store unreachable")

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// isConnErr reports driver-level connection loss.
func isConnErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, mysqlDriver.ErrInvalidConn) || errors.Is(err, gorm.ErrInvalidDB) || errors.Is(err, ErrStoreUnreachable) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		// 1053 server shutdown, 2006 gone away, 2013 lost connection
		return mysqlErr.Number == 1053 || mysqlErr.Number == 2006 || mysqlErr.Number == 2013
	}
	return false
}
