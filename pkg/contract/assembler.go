package contract

import (
	"context"
	"io"
)

// Assembler: 将 Recovery 渲染为最终报告（文本/JSON）。
// 纯计算，不做 I/O；非法 UTF-8 由实现按替换字符处理。
type Assembler interface {
	Assemble(ctx context.Context, rec Recovery) (io.Reader, error)
}
