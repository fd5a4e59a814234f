package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(KindInvalidInput, SeverityMedium, "INVALID_INPUT", "输入非法")

	assert.Equal(t, KindInvalidInput, err.Kind)
	assert.Equal(t, SeverityMedium, err.Severity)
	assert.Equal(t, "INVALID_INPUT", err.Code)
	assert.False(t, err.Retryable)
	assert.False(t, err.Timestamp.IsZero())
}

func TestError_Format(t *testing.T) {
	err := New(KindNotFound, SeverityMedium, "NOT_FOUND", "挑战不存在")
	assert.Equal(t, "[NOT_FOUND] 挑战不存在", err.Error())

	cause := fmt.Errorf("底层错误")
	wrapped := Wrap(cause, KindNetworkError, SeverityMedium, "NETWORK_ERROR", "探测失败")
	assert.Contains(t, wrapped.Error(), "探测失败")
	assert.Contains(t, wrapped.Error(), "底层错误")
}

func TestWrap_Unwrap(t *testing.T) {
	cause := fmt.Errorf("连接被拒绝")
	err := Wrap(cause, KindNetworkError, SeverityMedium, "NETWORK_ERROR", "探测失败")

	assert.Equal(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestDetermineRetryable(t *testing.T) {
	// 网络与限流错误可重试
	assert.True(t, NetworkError("探测失败", nil).IsRetryable())
	assert.True(t, RateLimitExceeded("超出频率限制").IsRetryable())

	// 业务错误不可重试
	assert.False(t, NotFound("不存在").IsRetryable())
	assert.False(t, InvalidState("状态非法").IsRetryable())
	assert.False(t, InsufficientFunds("余额不足").IsRetryable())
}

func TestKindConstructors(t *testing.T) {
	assert.Equal(t, KindNotFound, NotFound("x").Kind)
	assert.Equal(t, KindAlreadyExists, AlreadyExists("x").Kind)
	assert.Equal(t, KindUnauthorized, Unauthorized("x").Kind)
	assert.Equal(t, KindPermissionDenied, PermissionDenied("x").Kind)
	assert.Equal(t, KindInvalidInput, InvalidInput("x").Kind)
	assert.Equal(t, KindInvalidState, InvalidState("x").Kind)
	assert.Equal(t, KindInsufficientFunds, InsufficientFunds("x").Kind)
	assert.Equal(t, KindResourceLimit, ResourceLimit("x").Kind)
	assert.Equal(t, KindPaginationError, PaginationError("x").Kind)
	assert.Equal(t, KindWasmSizeExceeded, WasmSizeExceeded("x").Kind)
	assert.Equal(t, KindTimeRangeError, TimeRangeError("x").Kind)
	assert.Equal(t, KindRateLimitExceeded, RateLimitExceeded("x").Kind)
	assert.Equal(t, KindNetworkError, NetworkError("x", nil).Kind)
	assert.Equal(t, KindInternalError, Internal("x").Kind)
}

func TestWithContext(t *testing.T) {
	err := InvalidInput("输入非法").
		WithContext("field", "amount").
		WithChallengeID(42).
		WithComponent("vault")

	assert.Equal(t, "amount", err.Context["field"])
	assert.Equal(t, uint64(42), *err.ChallengeID)
	assert.Equal(t, "vault", err.Component)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "NotFound", KindNotFound.String())
	assert.Equal(t, "InsufficientFunds", KindInsufficientFunds.String())
	assert.Equal(t, "WasmSizeExceeded", KindWasmSizeExceeded.String())
	assert.Contains(t, Kind(999).String(), "Unknown")
}

func TestSeverityString(t *testing.T) {
	assert.Equal(t, "Low", SeverityLow.String())
	assert.Equal(t, "Critical", SeverityCritical.String())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(NotFound("x")))
	assert.Equal(t, KindInternalError, KindOf(fmt.Errorf("普通错误")))
}

func TestAsPlatformError(t *testing.T) {
	original := InvalidState("状态非法")
	assert.Same(t, original, AsPlatformError(original))

	wrapped := AsPlatformError(fmt.Errorf("普通错误"))
	assert.Equal(t, KindInternalError, wrapped.Kind)
	assert.NotNil(t, wrapped.Cause)
}

func TestErrorStats_RecordError(t *testing.T) {
	stats := NewErrorStats()

	stats.RecordError(NotFound("x").WithComponent("vault"))
	stats.RecordError(NotFound("y").WithComponent("vault"))
	stats.RecordError(NetworkError("z", nil).WithComponent("judge"))

	assert.Equal(t, 3, stats.TotalErrors)
	assert.Equal(t, 2, stats.ErrorsByKind[KindNotFound])
	assert.Equal(t, 1, stats.ErrorsByKind[KindNetworkError])
	assert.Equal(t, 2, stats.ErrorsByComponent["vault"])
	assert.NotNil(t, stats.LastError)
	assert.Equal(t, KindNetworkError, stats.LastError.Kind)
}

func TestErrorStats_RecentErrorsBounded(t *testing.T) {
	stats := NewErrorStats()

	for i := 0; i < 150; i++ {
		stats.RecordError(InvalidInput("x"))
	}

	// 只保留最近100个
	assert.Equal(t, 150, stats.TotalErrors)
	assert.Equal(t, 100, len(stats.RecentErrors))
}
