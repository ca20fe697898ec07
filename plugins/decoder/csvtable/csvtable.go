package csvtable

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ttpcrack/pkg/bigram"
	"ttpcrack/pkg/contract"
)

// Options: CSV 方言（默认逗号分隔、无注释行）。
type Options struct {
	// Comma: 单字符分隔符，空表示 ','。
	Comma string `json:"comma"`
	// Comment: 注释行前缀（单字符），空表示不启用。
	Comment string `json:"comment"`
}

type decoder struct {
	comma   rune
	comment rune
}

// New 从原样 JSON Options 创建解码器；未知字段报错。
func New(raw json.RawMessage) (contract.TableDecoder, error) {
	var opts Options
	if len(bytes.TrimSpace(raw)) > 0 && string(bytes.TrimSpace(raw)) != "null" {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("csv table options: %w", err)
		}
	}
	d := &decoder{comma: ','}
	if opts.Comma != "" {
		r := []rune(opts.Comma)
		if len(r) != 1 {
			return nil, fmt.Errorf("csv table options: comma must be one character")
		}
		d.comma = r[0]
	}
	if opts.Comment != "" {
		r := []rune(opts.Comment)
		if len(r) != 1 || r[0] == d.comma {
			return nil, fmt.Errorf("csv table options: invalid comment character")
		}
		d.comment = r[0]
	}
	return d, nil
}

// Decode 读取频率表：
//   - 第一行：首格留空，其后为列标签；
//   - 其余行：行标签 + 计数；行可长短不一，超出表头的单元忽略；
//   - 非数值单元按 0 计；域外标签由 bigram.Counts 处理。
//
// 空表或没有任何域内行时返回 ErrTableInvalid。
func (d *decoder) Decode(ctx context.Context, fileID contract.FileID, r io.Reader) (*bigram.Counts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cr := csv.NewReader(r)
	cr.Comma = d.comma
	cr.Comment = d.comment
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s is empty", contract.ErrTableInvalid, fileID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", contract.ErrTableInvalid, fileID, err)
	}
	cols := append([]string(nil), header...)
	if len(cols) > 0 {
		cols = cols[1:]
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%w: %s has no column labels", contract.ErrTableInvalid, fileID)
	}

	counts := bigram.NewCounts()
	for line := 2; ; line++ {
		if line%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", contract.ErrTableInvalid, fileID, line, err)
		}
		if len(rec) == 0 {
			continue
		}
		row := rec[0]
		for j, cell := range rec[1:] {
			if j >= len(cols) {
				break
			}
			counts.Add(row, cols[j], parseCount(cell))
		}
	}
	if counts.Rows() == 0 {
		return nil, fmt.Errorf("%w: %s has no rows in the character domain", contract.ErrTableInvalid, fileID)
	}
	return counts, nil
}

// parseCount: 非数值按 0 计。
func parseCount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
