// Package repository defines the MySQL data access layer and the sentinel
// errors it returns.  Higher layers match these with errors.Is and never
// inspect driver errors directly.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrUserNotFound is returned when no user matches the lookup key.
var ErrUserNotFound = errors.New("user not found")

// ErrEmailExists is returned when a user insert violates the unique
// constraint on users.email.
var ErrEmailExists = errors.New("email already exists")

// ErrTodoNotFound is returned when no todo row matches the id.
var ErrTodoNotFound = errors.New("todo not found")

// ErrInvalidRecord is returned when the server rejects a row as invalid
// (column too long, check constraint, bad enum value).
var ErrInvalidRecord = errors.New("invalid record")

const (
	mysqlDuplicateEntry   = 1062
	mysqlDataTooLong      = 1406
	mysqlTruncatedValue   = 1265
	mysqlCheckConstraint  = 3819
	mysqlBadNullValue     = 1048
	mysqlIncorrectDecimal = 1366
)

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func isInvalidRecord(err error) bool {
	var me *mysql.MySQLError
	if !errors.As(err, &me) {
		return false
	}
	switch me.Number {
	case mysqlDataTooLong, mysqlTruncatedValue, mysqlCheckConstraint, mysqlBadNullValue, mysqlIncorrectDecimal:
		return true
	}
	return false
}
