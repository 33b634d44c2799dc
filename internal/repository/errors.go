package repository

import (
	"errors"
	"strings"

	"billsplit/internal/apperror"

	"github.com/go-sql-driver/mysql"
)

const (
	mysqlErrDuplicateEntry      = 1062
	mysqlErrForeignKeyViolation = 1452
)

// IsForeignKeyViolation 判断是否外键约束失败（MySQL 1452，或其他驱动的同类报错）
func IsForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrForeignKeyViolation
	}
	return strings.Contains(strings.ToLower(err.Error()), "foreign key constraint")
}

func IsDuplicateEntry(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDuplicateEntry
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}

// translateWriteError 把写入错误转换为 DatabaseError，外键失败给出更明确的信息
func translateWriteError(err error, fkMessage, fallback string) error {
	if IsForeignKeyViolation(err) {
		return apperror.Database(fkMessage, err)
	}
	return apperror.Database(fallback, err)
}
