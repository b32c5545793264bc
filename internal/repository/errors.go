// Package repository implements service.Store on MySQL through database/sql.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/HeliumBERT/tracking/internal/apperror"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func usernameConflict(username string) error {
	return apperror.Conflict("The provided data conflicts with existing data.",
		map[string]any{"field": "username", "value": username})
}
