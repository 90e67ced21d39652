// Package errors 提供统一的错误处理机制
//
// 设计原则：
// 1. 所有错误都可以通过 errors.Is() 和 errors.As() 进行类型检查
// 2. 错误码用于日志分类和 HTTP 边界映射
// 3. 支持错误链（error wrapping）
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode 错误码类型
type ErrorCode string

// 错误码定义
const (
	// 请求/参数错误
	CodeInvalidParam    ErrorCode = "INVALID_PARAM"
	CodeMissingParam    ErrorCode = "MISSING_PARAM"
	CodeValidationError ErrorCode = "VALIDATION_ERROR"
	CodeConfigError     ErrorCode = "CONFIG_ERROR"
	CodeNotFound        ErrorCode = "NOT_FOUND"

	// 共享存储相关
	CodeUnavailable        ErrorCode = "UNAVAILABLE"
	CodeNotConfigured      ErrorCode = "NOT_CONFIGURED"
	CodeStorageError       ErrorCode = "STORAGE_ERROR"
	CodeSerializationError ErrorCode = "SERIALIZATION_ERROR"
	CodeTimeout            ErrorCode = "TIMEOUT"

	// 任务队列相关
	CodeEnqueueFailed ErrorCode = "ENQUEUE_FAILED"
	CodeJobFailed     ErrorCode = "JOB_FAILED"

	// 系统错误
	CodeInternal      ErrorCode = "INTERNAL_ERROR"
	CodeServiceClosed ErrorCode = "SERVICE_CLOSED"
	CodeRateLimited   ErrorCode = "RATE_LIMITED"
)

// Error 统一错误类型
type Error struct {
	Code    ErrorCode         // 错误码
	Message string            // 错误消息
	Cause   error             // 原始错误
	Details map[string]string // 额外详情
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is 支持 errors.Is 进行错误码比较
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail 添加详情
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Detail 获取详情
func (e *Error) Detail(key string) string {
	if e.Details == nil {
		return ""
	}
	return e.Details[key]
}

// New 创建新错误
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf 创建格式化错误
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf 格式化包装错误
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// GetCode 从错误中提取错误码
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsCode 检查错误链中是否包含指定错误码
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// Is 重导出 errors.Is
var Is = errors.Is

// As 重导出 errors.As
var As = errors.As

// Join 重导出 errors.Join
var Join = errors.Join
