package text

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"ttpcrack/pkg/contract"
)

// Options: 文本报告选项。
type Options struct {
	// WithScore: 在末尾追加 "Best score: ..." 行；默认关闭以保持原有格式。
	WithScore bool `json:"with_score"`
}

type assembler struct {
	withScore bool
}

// New 从原样 JSON Options 创建文本装配器；未知字段报错。
func New(raw json.RawMessage) (contract.Assembler, error) {
	var opts Options
	if t := bytes.TrimSpace(raw); len(t) > 0 && string(t) != "null" {
		dec := json.NewDecoder(bytes.NewReader(t))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("text assembler options: %w", err)
		}
	}
	return &assembler{withScore: opts.WithScore}, nil
}

var _ contract.Assembler = (*assembler)(nil)

// Assemble 渲染为：
//
//	--- Plaintext 1 ---
//	<p1>
//
//	--- Plaintext 2 ---
//	<p2>
//
// 非法 UTF-8 按最大非法子序列替换为 U+FFFD。
func (a *assembler) Assemble(ctx context.Context, rec contract.Recovery) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sb strings.Builder
	sb.Grow(len(rec.P1) + len(rec.P2) + 64)
	sb.WriteString("--- Plaintext 1 ---\n")
	sb.WriteString(Decode(rec.P1))
	sb.WriteString("\n\n--- Plaintext 2 ---\n")
	sb.WriteString(Decode(rec.P2))
	sb.WriteString("\n")
	if a.withScore {
		fmt.Fprintf(&sb, "\nBest score: %v\n", rec.Score)
	}
	return strings.NewReader(sb.String()), nil
}

// Decode 宽松解码：合法序列原样保留，每个“最大非法子序列”替换为一个 U+FFFD
// （与 Unicode 推荐的替换规则一致，例如 "\xe2\x82A" → "\uFFFDA"）。
func Decode(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r != utf8.RuneError || size > 1 {
			sb.WriteRune(r)
			i += size
			continue
		}
		sb.WriteRune(utf8.RuneError)
		i += invalidPrefix(b[i:])
	}
	return sb.String()
}

// invalidPrefix 返回以 b[0] 开头、无法构成合法字符的最大子序列长度（>=1）。
func invalidPrefix(b []byte) int {
	lo, hi := byte(0x80), byte(0xBF)
	var need int
	switch c := b[0]; {
	case c >= 0xC2 && c <= 0xDF:
		need = 1
	case c == 0xE0:
		need, lo = 2, 0xA0
	case c == 0xED:
		need, hi = 2, 0x9F
	case c >= 0xE1 && c <= 0xEF:
		need = 2
	case c == 0xF0:
		need, lo = 3, 0x90
	case c == 0xF4:
		need, hi = 3, 0x8F
	case c >= 0xF1 && c <= 0xF3:
		need = 3
	default:
		return 1
	}
	n := 1
	for ; n <= need && n < len(b); n++ {
		if b[n] < lo || b[n] > hi {
			break
		}
		// 仅第二字节有特殊区间
		lo, hi = 0x80, 0xBF
	}
	return n
}
