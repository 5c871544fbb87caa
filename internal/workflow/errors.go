package workflow

import (
	"errors"
	"fmt"
)

// Kind 错误类别
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindForbidden         Kind = "forbidden"
	KindInvalidTransition Kind = "invalid_transition"
	KindValidation        Kind = "validation_error"
	KindSyncFailure       Kind = "sync_failure"
	KindNotifyFailure     Kind = "notify_failure"
)

// 用于 errors.Is 比较的哨兵错误
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrValidation        = &Error{Kind: KindValidation}
	ErrSyncFailure       = &Error{Kind: KindSyncFailure}
	ErrNotifyFailure     = &Error{Kind: KindNotifyFailure}
)

// Error 审批引擎错误
type Error struct {
	Kind    Kind
	Message string
	// Approvers 当前步骤可处理的审批人, 仅 Forbidden 时填充
	Approvers []Approver
	Err       error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同类别即视为相等
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf 返回错误类别, 非引擎错误返回空字符串
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NotFoundError 创建 NotFound 错误
func NotFoundError(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// ForbiddenError 创建 Forbidden 错误, 附带当前可处理的审批人
func ForbiddenError(approvers []Approver, format string, args ...interface{}) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...), Approvers: approvers}
}

// InvalidTransitionError 创建 InvalidTransition 错误
func InvalidTransitionError(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// ValidationError 创建 ValidationError 错误
func ValidationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// SyncFailure 包装单据同步失败
func SyncFailure(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindSyncFailure, Message: fmt.Sprintf(format, args...), Err: err}
}

// NotifyFailure 包装通知失败
func NotifyFailure(err error, format string, args ...interface{}) error {
	return &Error{Kind: KindNotifyFailure, Message: fmt.Sprintf(format, args...), Err: err}
}
