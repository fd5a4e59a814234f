package errors

import (
	"fmt"
	"time"
)

// Kind 错误类别
// 类别集合是对外契约的一部分，跨组件传播时不做翻译
type Kind int

const (
	// 实体与状态错误
	KindNotFound Kind = iota
	KindAlreadyExists
	KindInvalidState
	KindInternalError

	// 授权错误
	KindUnauthorized
	KindPermissionDenied

	// 输入校验错误
	KindInvalidInput
	KindPaginationError
	KindWasmSizeExceeded
	KindTimeRangeError

	// 资源与额度错误
	KindResourceLimit
	KindInsufficientFunds
	KindRateLimitExceeded

	// 外部端口错误
	KindNetworkError
)

// Severity 错误严重级别
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// PlatformError 平台统一错误类型
type PlatformError struct {
	Kind        Kind                   `json:"kind"`
	Severity    Severity               `json:"severity"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Timestamp   time.Time              `json:"timestamp"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Cause       error                  `json:"cause,omitempty"`
	Retryable   bool                   `json:"retryable"`
	Component   string                 `json:"component"`
	ChallengeID *uint64                `json:"challenge_id,omitempty"`
	TxID        *uint64                `json:"tx_id,omitempty"`
}

// Error 实现error接口
func (e *PlatformError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 支持errors.Unwrap
func (e *PlatformError) Unwrap() error {
	return e.Cause
}

// IsRetryable 判断是否可重试
func (e *PlatformError) IsRetryable() bool {
	return e.Retryable
}

// WithContext 添加上下文信息
func (e *PlatformError) WithContext(key string, value interface{}) *PlatformError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithChallengeID 添加挑战ID
func (e *PlatformError) WithChallengeID(id uint64) *PlatformError {
	e.ChallengeID = &id
	return e
}

// WithTxID 添加交易ID
func (e *PlatformError) WithTxID(id uint64) *PlatformError {
	e.TxID = &id
	return e
}

// WithComponent 标记产生错误的组件
func (e *PlatformError) WithComponent(component string) *PlatformError {
	e.Component = component
	return e
}

// New 创建新的平台错误
func New(kind Kind, severity Severity, code, message string) *PlatformError {
	return &PlatformError{
		Kind:      kind,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retryable: determineRetryable(kind),
	}
}

// Wrap 包装现有错误
func Wrap(err error, kind Kind, severity Severity, code, message string) *PlatformError {
	return &PlatformError{
		Kind:      kind,
		Severity:  severity,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Retryable: determineRetryable(kind),
	}
}

// determineRetryable 根据错误类别判断是否可重试
func determineRetryable(kind Kind) bool {
	switch kind {
	case KindNetworkError, KindRateLimitExceeded:
		return true
	default:
		return false
	}
}

// 按类别的快捷构造函数，message 为面向调用方的简短说明

// NotFound 实体不存在
func NotFound(message string) *PlatformError {
	return New(KindNotFound, SeverityMedium, "NOT_FOUND", message)
}

// AlreadyExists 实体已存在
func AlreadyExists(message string) *PlatformError {
	return New(KindAlreadyExists, SeverityMedium, "ALREADY_EXISTS", message)
}

// Unauthorized 调用方缺少权限
func Unauthorized(message string) *PlatformError {
	return New(KindUnauthorized, SeverityHigh, "UNAUTHORIZED", message)
}

// PermissionDenied 调用方已知但对该资源无权操作
func PermissionDenied(message string) *PlatformError {
	return New(KindPermissionDenied, SeverityHigh, "PERMISSION_DENIED", message)
}

// InvalidInput 输入校验失败
func InvalidInput(message string) *PlatformError {
	return New(KindInvalidInput, SeverityMedium, "INVALID_INPUT", message)
}

// InvalidState 当前状态不允许该操作
func InvalidState(message string) *PlatformError {
	return New(KindInvalidState, SeverityMedium, "INVALID_STATE", message)
}

// InsufficientFunds 余额不足
func InsufficientFunds(message string) *PlatformError {
	return New(KindInsufficientFunds, SeverityMedium, "INSUFFICIENT_FUNDS", message)
}

// ResourceLimit 超出资源额度
func ResourceLimit(message string) *PlatformError {
	return New(KindResourceLimit, SeverityMedium, "RESOURCE_LIMIT", message)
}

// PaginationError 分页参数非法
func PaginationError(message string) *PlatformError {
	return New(KindPaginationError, SeverityLow, "PAGINATION_ERROR", message)
}

// WasmSizeExceeded 镜像大小超限
func WasmSizeExceeded(message string) *PlatformError {
	return New(KindWasmSizeExceeded, SeverityMedium, "WASM_SIZE_EXCEEDED", message)
}

// TimeRangeError 时间范围非法
func TimeRangeError(message string) *PlatformError {
	return New(KindTimeRangeError, SeverityMedium, "TIME_RANGE_ERROR", message)
}

// RateLimitExceeded 超出频率限制
func RateLimitExceeded(message string) *PlatformError {
	return New(KindRateLimitExceeded, SeverityMedium, "RATE_LIMIT_EXCEEDED", message)
}

// NetworkError 外部端口调用失败
func NetworkError(message string, cause error) *PlatformError {
	return Wrap(cause, KindNetworkError, SeverityMedium, "NETWORK_ERROR", message)
}

// Internal 内部不变量被破坏
// 产生处必须同时写入持久化日志记录
func Internal(message string) *PlatformError {
	return New(KindInternalError, SeverityCritical, "INTERNAL_ERROR", message)
}

// 错误类别字符串映射
var kindNames = map[Kind]string{
	KindNotFound:          "NotFound",
	KindAlreadyExists:     "AlreadyExists",
	KindInvalidState:      "InvalidState",
	KindInternalError:     "InternalError",
	KindUnauthorized:      "Unauthorized",
	KindPermissionDenied:  "PermissionDenied",
	KindInvalidInput:      "InvalidInput",
	KindPaginationError:   "PaginationError",
	KindWasmSizeExceeded:  "WasmSizeExceeded",
	KindTimeRangeError:    "TimeRangeError",
	KindResourceLimit:     "ResourceLimit",
	KindInsufficientFunds: "InsufficientFunds",
	KindRateLimitExceeded: "RateLimitExceeded",
	KindNetworkError:      "NetworkError",
}

// String 返回错误类别的字符串表示
func (k Kind) String() string {
	if name, exists := kindNames[k]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", k)
}

// 严重级别字符串映射
var severityNames = map[Severity]string{
	SeverityLow:      "Low",
	SeverityMedium:   "Medium",
	SeverityHigh:     "High",
	SeverityCritical: "Critical",
}

// String 返回严重级别的字符串表示
func (s Severity) String() string {
	if name, exists := severityNames[s]; exists {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", s)
}

// KindOf 提取错误类别，非平台错误归为 InternalError
func KindOf(err error) Kind {
	if pe, ok := err.(*PlatformError); ok {
		return pe.Kind
	}
	return KindInternalError
}

// AsPlatformError 转换为平台错误，必要时包装
func AsPlatformError(err error) *PlatformError {
	if pe, ok := err.(*PlatformError); ok {
		return pe
	}
	return Wrap(err, KindInternalError, SeverityMedium, "UNKNOWN_ERROR", "未归类错误")
}

// ErrorStats 错误统计
type ErrorStats struct {
	TotalErrors       int              `json:"total_errors"`
	ErrorsByKind      map[Kind]int     `json:"errors_by_kind"`
	ErrorsBySeverity  map[Severity]int `json:"errors_by_severity"`
	ErrorsByComponent map[string]int   `json:"errors_by_component"`
	RecentErrors      []*PlatformError `json:"recent_errors"`
	LastError         *PlatformError   `json:"last_error"`
	LastErrorTime     time.Time        `json:"last_error_time"`
}

// NewErrorStats 创建错误统计
func NewErrorStats() *ErrorStats {
	return &ErrorStats{
		ErrorsByKind:      make(map[Kind]int),
		ErrorsBySeverity:  make(map[Severity]int),
		ErrorsByComponent: make(map[string]int),
		RecentErrors:      make([]*PlatformError, 0),
	}
}

// RecordError 记录错误
func (es *ErrorStats) RecordError(err *PlatformError) {
	es.TotalErrors++
	es.ErrorsByKind[err.Kind]++
	es.ErrorsBySeverity[err.Severity]++
	if err.Component != "" {
		es.ErrorsByComponent[err.Component]++
	}

	es.LastError = err
	es.LastErrorTime = err.Timestamp

	// 保留最近100个错误
	es.RecentErrors = append(es.RecentErrors, err)
	if len(es.RecentErrors) > 100 {
		es.RecentErrors = es.RecentErrors[1:]
	}
}
