package diag

import (
	"context"
	"errors"
	"os"
	"time"

	"ttpcrack/pkg/anneal"
	"ttpcrack/pkg/contract"
	"ttpcrack/pkg/score"
)

// Code 是最小错误分类代码。
// 仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeInput     Code = "input"
	CodeLength    Code = "length"
	CodeTable     Code = "table"
	CodeConfig    Code = "config"
	CodeInvariant Code = "invariant"
	CodeCancel    Code = "cancel"
	CodeIO        Code = "io"
)

// Classify 将错误归为最小分类。仅依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancel
	case errors.Is(err, contract.ErrLengthMismatch):
		return CodeLength
	case errors.Is(err, contract.ErrTableInvalid):
		return CodeTable
	case errors.Is(err, contract.ErrInvalidInput):
		return CodeInput
	case errors.Is(err, anneal.ErrConfig), errors.Is(err, score.ErrOptions):
		return CodeConfig
	case errors.Is(err, contract.ErrInvariantViolation), errors.Is(err, contract.ErrPathInvalid):
		return CodeInvariant
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}

// NowUTC 返回 RFC3339 UTC 时间字符串（用于结构化日志字段 ts）。
func NowUTC() string { return time.Now().UTC().Format(time.RFC3339) }
