package errors

// 预定义哨兵错误（用于 errors.Is 比较）
var (
	ErrInvalidParam  = New(CodeInvalidParam, "invalid parameter")
	ErrMissingParam  = New(CodeMissingParam, "missing required parameter")
	ErrValidation    = New(CodeValidationError, "validation error")
	ErrNotFound      = New(CodeNotFound, "resource not found")
	ErrUnavailable   = New(CodeUnavailable, "store unavailable")
	ErrNotConfigured = New(CodeNotConfigured, "not configured")
	ErrStorage       = New(CodeStorageError, "storage error")
	ErrSerialization = New(CodeSerializationError, "serialization error")
	ErrTimeout       = New(CodeTimeout, "operation timeout")
	ErrEnqueueFailed = New(CodeEnqueueFailed, "enqueue failed")
	ErrJobFailed     = New(CodeJobFailed, "job failed")
	ErrInternal      = New(CodeInternal, "internal error")
	ErrServiceClosed = New(CodeServiceClosed, "service closed")
)

// IsUnavailable 存储不可用（含未配置、超时）
//
// 调用方据此走降级路径，而不是向上传播。
func IsUnavailable(err error) bool {
	return IsCode(err, CodeUnavailable) ||
		IsCode(err, CodeNotConfigured) ||
		IsCode(err, CodeTimeout)
}

// IsValidation 检查是否为载荷校验错误
func IsValidation(err error) bool {
	return IsCode(err, CodeValidationError) || IsCode(err, CodeMissingParam)
}

// Validationf 创建校验错误
func Validationf(format string, args ...interface{}) *Error {
	return Newf(CodeValidationError, format, args...)
}
