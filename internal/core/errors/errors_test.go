package errors

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without cause",
			err:      New(CodeNotFound, "series not found"),
			expected: "[NOT_FOUND] series not found",
		},
		{
			name:     "with cause",
			err:      Wrap(errors.New("dial tcp: refused"), CodeUnavailable, "redis unreachable"),
			expected: "[UNAVAILABLE] redis unreachable: dial tcp: refused",
		},
		{
			name:     "formatted message",
			err:      Newf(CodeInvalidParam, "invalid quality: %d", 140),
			expected: "[INVALID_PARAM] invalid quality: 140",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestError_Is(t *testing.T) {
	err1 := New(CodeEnqueueFailed, "views queue")
	err2 := New(CodeEnqueueFailed, "images queue")
	err3 := New(CodeValidationError, "bad payload")

	// 相同错误码应该匹配
	if !errors.Is(err1, err2) {
		t.Error("errors with same code should match")
	}

	// 不同错误码不应该匹配
	if errors.Is(err1, err3) {
		t.Error("errors with different code should not match")
	}

	if !errors.Is(err1, ErrEnqueueFailed) {
		t.Error("should match sentinel error with same code")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("original error")
	wrapped := Wrap(cause, CodeInternal, "wrapped")

	if errors.Unwrap(wrapped) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_WithDetail(t *testing.T) {
	err := New(CodeJobFailed, "handler failed").
		WithDetail("queue", "images").
		WithDetail("job", "image.convert")

	if err.Detail("queue") != "images" {
		t.Error("detail 'queue' should be images")
	}
	if err.Detail("missing") != "" {
		t.Error("missing detail should be empty")
	}
}

func TestIsCode_WalksChain(t *testing.T) {
	inner := New(CodeUnavailable, "redis down")
	outer := Wrap(inner, CodeEnqueueFailed, "enqueue view job")

	if !IsCode(outer, CodeEnqueueFailed) {
		t.Error("outer code should match")
	}
	if !IsCode(outer, CodeUnavailable) {
		t.Error("inner code should match through the chain")
	}
	if GetCode(outer) != CodeEnqueueFailed {
		t.Errorf("GetCode() = %s, want ENQUEUE_FAILED", GetCode(outer))
	}
	if GetCode(errors.New("plain")) != CodeInternal {
		t.Error("plain errors map to INTERNAL_ERROR")
	}
}

func TestIsUnavailable(t *testing.T) {
	if !IsUnavailable(Wrap(errors.New("x"), CodeTimeout, "op timeout")) {
		t.Error("timeout counts as unavailable")
	}
	if !IsUnavailable(ErrNotConfigured) {
		t.Error("not configured counts as unavailable")
	}
	if IsUnavailable(ErrValidation) {
		t.Error("validation is not unavailable")
	}
	if IsUnavailable(nil) {
		t.Error("nil is not unavailable")
	}
}
