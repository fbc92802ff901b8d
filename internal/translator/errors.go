package translator

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	// ErrEmptyBatch 空批次错误
	ErrEmptyBatch = errors.New("empty batch provided")

	// ErrLengthMismatch 译文数量与原文数量不一致
	ErrLengthMismatch = errors.New("translation count does not match input count")
)

// 错误代码常量
const (
	ErrCodeProvider   = "PROVIDER_ERROR"
	ErrCodeValidation = "VALIDATION_ERROR"
)

// TranslationError 一个批次的翻译调用失败
// 编排器决定恢复策略，这里只负责携带原因
type TranslationError struct {
	Code    string // 错误代码
	Message string // 错误消息
	Cause   error  // 原因
}

// Error 实现error接口
func (e *TranslationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回原因错误
func (e *TranslationError) Unwrap() error {
	return e.Cause
}

// WrapError 包装错误
func WrapError(err error, code, message string) *TranslationError {
	if err == nil {
		return nil
	}
	return &TranslationError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}
