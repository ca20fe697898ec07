package halves

import (
	"context"
	"fmt"
	"io"

	"ttpcrack/pkg/contract"
)

// Options 为 halves Splitter 的可选配置（最小必要）。
type Options struct {
	// ExpectBytes: blob 的精确总字节数；0 表示不限制（只要求偶数）。
	ExpectBytes int `json:"expect_bytes"`
}

// Splitter 将 blob 前半段作为 C1、后半段作为 C2。
type Splitter struct {
	expect int
}

// New 创建 halves Splitter。
func New(opts *Options) *Splitter {
	s := &Splitter{}
	if opts != nil && opts.ExpectBytes > 0 {
		s.expect = opts.ExpectBytes
	}
	return s
}

var _ contract.Splitter = (*Splitter)(nil)

// Split 读取整个 blob 并对半切分。奇数长度无法得到等长两段，返回 ErrLengthMismatch。
func (s *Splitter) Split(ctx context.Context, fileID contract.FileID, r io.Reader) (contract.Ciphertexts, error) {
	if err := ctx.Err(); err != nil {
		return contract.Ciphertexts{}, err
	}
	blob, err := io.ReadAll(r)
	if err != nil {
		return contract.Ciphertexts{}, err
	}
	if s.expect > 0 && len(blob) != s.expect {
		return contract.Ciphertexts{}, fmt.Errorf("%w: %s is %d bytes, expected %d", contract.ErrInvalidInput, fileID, len(blob), s.expect)
	}
	if len(blob)%2 != 0 {
		return contract.Ciphertexts{}, fmt.Errorf("%w: %s has odd length %d", contract.ErrLengthMismatch, fileID, len(blob))
	}
	half := len(blob) / 2
	return contract.Ciphertexts{
		C1:     blob[:half:half],
		C2:     blob[half:],
		Source: []contract.FileID{fileID},
	}, nil
}
