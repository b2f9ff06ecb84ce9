// Package apperr 定义 Minerva 的错误分类，并负责映射到 HTTP 状态码.
//
// 业务代码返回 *Error（或用 %w 包装后的 *Error），处理器通过 HTTPStatus 决定响应码，
// 未分类的错误一律视为 500.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误类别.
type Kind int

const (
	// KindInternal 未分类错误.
	KindInternal Kind = iota
	// KindValidation 请求格式错误，例如无法解析的通道参数.
	KindValidation
	// KindUnprocessable 格式正确但语义非法，例如 min > max、名称冲突.
	KindUnprocessable
	// KindNotFound 实体或瓦片不存在.
	KindNotFound
	// KindForbidden 权限不足或缺少身份.
	KindForbidden
	// KindUpstream 依赖服务（对象存储、消息队列）失败，可重试.
	KindUpstream
)

// String 返回类别名称.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnprocessable:
		return "unprocessable"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// Status 返回类别对应的 HTTP 状态码.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error 带类别的应用错误.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}

	if e.Msg == "" {
		return e.Err.Error()
	}

	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按类别比较，使 errors.Is(err, apperr.ErrNotFound) 可用.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Retryable 仅 Upstream 错误可重试.
func (e *Error) Retryable() bool { return e.Kind == KindUpstream }

// 哨兵错误，仅用于 errors.Is 按类别匹配.
var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrUnprocessable = &Error{Kind: KindUnprocessable}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrForbidden     = &Error{Kind: KindForbidden}
	ErrUpstream      = &Error{Kind: KindUpstream}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Validation 构造 400 错误.
func Validation(format string, args ...any) *Error { return newf(KindValidation, format, args...) }

// Unprocessable 构造 422 错误.
func Unprocessable(format string, args ...any) *Error {
	return newf(KindUnprocessable, format, args...)
}

// NotFound 构造 404 错误.
func NotFound(format string, args ...any) *Error { return newf(KindNotFound, format, args...) }

// Forbidden 构造 403 错误.
func Forbidden(format string, args ...any) *Error { return newf(KindForbidden, format, args...) }

// Upstream 包装依赖服务错误为 500 可重试错误.
func Upstream(err error, format string, args ...any) *Error {
	return &Error{Kind: KindUpstream, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Wrap 为已有错误附加类别.
func Wrap(kind Kind, err error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf 返回错误链中第一个 *Error 的类别，找不到时为 KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return KindInternal
}

// HTTPStatus 将错误映射为 HTTP 状态码.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	return KindOf(err).Status()
}

// IsRetryable 判断错误是否可以重试.
func IsRetryable(err error) bool {
	return KindOf(err) == KindUpstream
}
