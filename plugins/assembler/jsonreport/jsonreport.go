package jsonreport

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"ttpcrack/pkg/contract"
	"ttpcrack/plugins/assembler/text"
)

// Options: JSON 报告选项。
type Options struct {
	// Indent: 是否缩进输出。
	Indent bool `json:"indent"`
}

// Report 为 JSON 报告的形状；明文同时给出宽松解码文本与十六进制原始字节。
type Report struct {
	Plaintext1 string   `json:"plaintext1"`
	Plaintext2 string   `json:"plaintext2"`
	P1Hex      string   `json:"p1_hex"`
	P2Hex      string   `json:"p2_hex"`
	Length     int      `json:"length"`
	Score      float64  `json:"score"`
	Baseline   float64  `json:"baseline"`
	Seed       uint64   `json:"seed"`
	Restart    int      `json:"restart"`
	Restarts   int      `json:"restarts"`
	Proposed   int64    `json:"proposed"`
	Accepted   int64    `json:"accepted"`
	Sources    []string `json:"sources,omitempty"`
}

type assembler struct {
	indent bool
}

// New 从原样 JSON Options 创建 JSON 装配器；未知字段报错。
func New(raw json.RawMessage) (contract.Assembler, error) {
	var opts Options
	if t := bytes.TrimSpace(raw); len(t) > 0 && string(t) != "null" {
		dec := json.NewDecoder(bytes.NewReader(t))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("json assembler options: %w", err)
		}
	}
	return &assembler{indent: opts.Indent}, nil
}

var _ contract.Assembler = (*assembler)(nil)

// FromRecovery 构造报告。
func FromRecovery(rec contract.Recovery) Report {
	rep := Report{
		Plaintext1: text.Decode(rec.P1),
		Plaintext2: text.Decode(rec.P2),
		P1Hex:      hex.EncodeToString(rec.P1),
		P2Hex:      hex.EncodeToString(rec.P2),
		Length:     len(rec.P1),
		Score:      rec.Score,
		Baseline:   rec.Baseline,
		Seed:       rec.Seed,
		Restart:    rec.Restart,
		Restarts:   rec.Restarts,
		Proposed:   rec.Proposed,
		Accepted:   rec.Accepted,
	}
	for _, s := range rec.Source {
		rep.Sources = append(rep.Sources, string(s))
	}
	return rep
}

func (a *assembler) Assemble(ctx context.Context, rec contract.Recovery) (io.Reader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if a.indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(FromRecovery(rec)); err != nil {
		return nil, err
	}
	return &buf, nil
}
