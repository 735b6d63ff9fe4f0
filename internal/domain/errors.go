package domain

import (
	"errors"
	"fmt"
)

// Kind 錯誤分類.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindForbidden
	KindInvalidRequest
	KindConflict
	KindPreconditionFailed
	KindExternalDependency
)

// Code 穩定的錯誤代碼, 對外回應使用.
func (k Kind) Code() string {
	switch k {
	case KindNotFound:
		return "NOT_FOUND"
	case KindForbidden:
		return "FORBIDDEN"
	case KindInvalidRequest:
		return "INVALID_REQUEST"
	case KindConflict:
		return "CONFLICT"
	case KindPreconditionFailed:
		return "PRECONDITION_FAILED"
	case KindExternalDependency:
		return "EXTERNAL_DEPENDENCY_FAILURE"
	default:
		return "INTERNAL_ERROR"
	}
}

func (k Kind) String() string {
	return k.Code()
}

// Error 領域錯誤. Message 可以安全地顯示給使用者, Err 只寫入日誌.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind.Code(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind.Code(), e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同類別的 *Error 視為相符, 可搭配 ErrNotFound 等哨兵使用.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// 哨兵錯誤, 僅供 errors.Is 比對.
var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrForbidden          = &Error{Kind: KindForbidden}
	ErrInvalidRequest     = &Error{Kind: KindInvalidRequest}
	ErrConflict           = &Error{Kind: KindConflict}
	ErrPreconditionFailed = &Error{Kind: KindPreconditionFailed}
	ErrExternalDependency = &Error{Kind: KindExternalDependency}
	ErrInternal           = &Error{Kind: KindInternal}
)

// NotFound 資源不存在.
func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Forbidden 呼叫者無權限.
func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Invalid 輸入不合法.
func Invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

// Conflict 唯一性衝突.
func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Precondition 前置條件不滿足.
func Precondition(format string, args ...any) error {
	return &Error{Kind: KindPreconditionFailed, Message: fmt.Sprintf(format, args...)}
}

// External 外部依賴失敗.
func External(err error, format string, args ...any) error {
	return &Error{Kind: KindExternalDependency, Message: fmt.Sprintf(format, args...), Err: err}
}

// Internal 未預期錯誤.
func Internal(err error, format string, args ...any) error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 取出錯誤分類, 非領域錯誤一律視為 KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage 回傳可對外顯示的訊息, 不含底層錯誤.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal server error"
}
