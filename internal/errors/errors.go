package errors

import (
	stdErrors "errors"
	"fmt"
	"maps"
	"net/http"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，决定告警级别。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
	CodeUpstreamFailure       Code = "UPSTREAM_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
)

// Attributes 描述一个错误码在交互链路上的表现：
// 对外文案、告警级别、HTTP 状态以及记入交互日志的 outcome 标签。
type Attributes struct {
	Message    string
	Severity   Severity
	HTTPStatus int
	Outcome    string
}

func attrs(message string, severity Severity, status int, outcome string) Attributes {
	return Attributes{Message: message, Severity: severity, HTTPStatus: status, Outcome: outcome}
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:               attrs("unknown error", SeverityCritical, http.StatusInternalServerError, "upstream"),
		CodeInvalidArgument:       attrs("invalid argument", SeverityInfo, http.StatusBadRequest, "validation"),
		CodeNotFound:              attrs("resource not found", SeverityInfo, http.StatusNotFound, "validation"),
		CodeInitializationFailure: attrs("service not initialized", SeverityCritical, http.StatusInternalServerError, "init_failure"),
		CodeTimeout:               attrs("operation timed out", SeverityWarning, http.StatusInternalServerError, "timeout"),
		CodeUpstreamFailure:       attrs("upstream failure", SeverityWarning, http.StatusInternalServerError, "upstream"),
		CodeStorageFailure:        attrs("storage failure", SeverityCritical, http.StatusInternalServerError, "upstream"),
		CodeQueueFailure:          attrs("queue failure", SeverityCritical, http.StatusInternalServerError, "upstream"),
	}
)

// Register 在启动阶段登记新的错误码，已存在的错误码会被覆盖。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码的属性，未登记的错误码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 携带错误码、面向调用方的描述以及内部原因。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
}

// Option 用于在创建错误时附加信息。
type Option func(*Error)

// WithMetadata 附加一条键值，例如出错的字段名或线程 ID。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string, 1)
		}
		e.metadata[key] = value
	}
}

// New 创建错误，message 为空时使用错误码的默认文案。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 与 New 相同，但保留 cause 供 errors.Is/As 使用。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return fmt.Sprintf("[%s] %s", e.code, e.message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较，使 errors.Is(err, New(CodeTimeout, "")) 成立。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if e == nil || !ok || t == nil {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码，nil 视为 UNKNOWN。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含错误码与原因的描述，可以直接展示给调用方。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	return maps.Clone(e.metadata)
}

func (e *Error) Severity() Severity {
	return AttributesOf(e.Code()).Severity
}

// From 沿错误链查找 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err == nil || !stdErrors.As(err, &target) {
		return nil, false
	}
	return target, true
}

// CodeOf 返回错误链上第一个统一错误的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// HTTPStatus 返回错误应映射的 HTTP 状态码。
func HTTPStatus(err error) int {
	if status := AttributesOf(CodeOf(err)).HTTPStatus; status != 0 {
		return status
	}
	return http.StatusInternalServerError
}

func SeverityOf(err error) Severity {
	return AttributesOf(CodeOf(err)).Severity
}

// OutcomeOf 返回交互日志和指标使用的 outcome 标签。
func OutcomeOf(err error) string {
	if outcome := AttributesOf(CodeOf(err)).Outcome; outcome != "" {
		return outcome
	}
	return "upstream"
}

// Public 给出可以返回给 HTTP 调用方的状态码、描述和错误码。
// 未分类的错误不暴露原文，只返回 UNKNOWN 的默认文案。
func Public(err error) (int, string, Code) {
	status := HTTPStatus(err)
	e, ok := From(err)
	if !ok || e.Code() == CodeUnknown {
		return status, AttributesOf(CodeUnknown).Message, CodeUnknown
	}
	return status, e.Message(), e.Code()
}
