package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类，决定对外的 HTTP 状态码
type Kind int

const (
	KindInternal Kind = iota
	KindDomain
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindDatabase
)

// 业务错误码
const (
	CodeDebtDetailsRequired     = "DEBT_DETAILS_REQUIRED"
	CodeSplitAmountMismatch     = "SPLIT_AMOUNT_MISMATCH"
	CodeDebtorNotFound          = "DEBTOR_NOT_FOUND"
	CodeCreatorNotFound         = "CREATOR_NOT_FOUND"
	CodeEmailAlreadyExists      = "EMAIL_ALREADY_EXISTS"
	CodeInvalidAuthID           = "INVALID_AUTH_ID"
	CodeInvalidEmail            = "INVALID_EMAIL"
	CodeInvalidNickname         = "INVALID_NICKNAME"
	CodeInvalidNicknameLength   = "INVALID_NICKNAME_LENGTH"
	CodeInvalidTitle            = "INVALID_TITLE"
	CodeInvalidAmount           = "INVALID_AMOUNT"
	CodeInvalidNote             = "INVALID_NOTE"
	CodeInvalidCreatorID        = "INVALID_CREATOR_ID"
	CodeInvalidSplitAmount      = "INVALID_SPLIT_AMOUNT"
	CodeInvalidPaymentID        = "INVALID_PAYMENT_ID"
	CodeInvalidDebtorID         = "INVALID_DEBTOR_ID"
	CodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"

	CodeValidation = "VALIDATION_ERROR"

	CodeLoginFailed  = "LOGIN_FAILED"
	CodeSignupFailed = "SIGNUP_FAILED"
	CodeLogoutFailed = "LOGOUT_FAILED"
	CodeUnauthorized = "UNAUTHORIZED"

	CodeNotPaymentCreator     = "NOT_PAYMENT_CREATOR"
	CodeNotDebtParticipant    = "NOT_DEBT_PARTICIPANT"
	CodeNotPaymentParticipant = "NOT_PAYMENT_PARTICIPANT"

	CodeUserNotFound         = "USER_NOT_FOUND"
	CodePaymentNotFound      = "PAYMENT_NOT_FOUND"
	CodeDebtRelationNotFound = "DEBT_RELATION_NOT_FOUND"

	CodeRequestInProgress = "REQUEST_IN_PROGRESS"

	CodeDatabase = "DATABASE_ERROR"
	CodeInternal = "INTERNAL_ERROR"
)

// Error 应用错误，携带稳定的机器码和可读信息
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Domain(code, message string) *Error {
	return &Error{Kind: KindDomain, Code: code, Message: message}
}

func Domainf(code, format string, args ...interface{}) *Error {
	return Domain(code, fmt.Sprintf(format, args...))
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message}
}

func Auth(code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

func Forbidden(code, message string) *Error {
	return &Error{Kind: KindForbidden, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func Conflict(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

// Database 存储层错误，原始错误保留在 Err 中用于日志
func Database(message string, err error) *Error {
	return &Error{Kind: KindDatabase, Code: CodeDatabase, Message: message, Err: err}
}

// As 从错误链中取出 *Error
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode 判断错误链中是否包含指定错误码
func HasCode(err error, code string) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

// HTTPStatus 把错误映射为 HTTP 状态码、错误码和对外信息。
// 未分类的错误不向客户端暴露原始信息。
func HTTPStatus(err error) (int, string, string) {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError, CodeInternal, "Internal server error"
	}

	switch appErr.Kind {
	case KindDomain, KindValidation:
		return http.StatusBadRequest, appErr.Code, appErr.Message
	case KindAuth:
		return http.StatusUnauthorized, appErr.Code, appErr.Message
	case KindForbidden:
		return http.StatusForbidden, appErr.Code, appErr.Message
	case KindNotFound:
		return http.StatusNotFound, appErr.Code, appErr.Message
	case KindConflict:
		return http.StatusConflict, appErr.Code, appErr.Message
	case KindDatabase:
		return http.StatusInternalServerError, appErr.Code, appErr.Message
	default:
		return http.StatusInternalServerError, CodeInternal, "Internal server error"
	}
}
