package filesystem

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"ttpcrack/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// MaxBytes: 单个输入的字节上限；<=0 表示默认 64MiB。
	MaxBytes int64 `json:"max_bytes"`
}

const (
	defaultBuf      = 64 * 1024
	defaultMaxBytes = 64 << 20
)

// FileSystem 实现基于文件与 STDIN 的 Reader。
// 输入只能是常规文件（允许指向常规文件的符号链接）或单独的 "-"；目录不展开。
type FileSystem struct {
	bufSize  int
	maxBytes int64
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	r := &FileSystem{bufSize: defaultBuf, maxBytes: defaultMaxBytes}
	if opts != nil && opts.BufSize > 0 {
		r.bufSize = opts.BufSize
	}
	if opts != nil && opts.MaxBytes > 0 {
		r.maxBytes = opts.MaxBytes
	}
	return r
}

// Iterate 按给定顺序对每个输入调用 yield；yield 返回后关闭输入。
// inputs 为空或仅为 "-" 时读取 STDIN。
func (r *FileSystem) Iterate(ctx context.Context, inputs []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(inputs) == 0 || (len(inputs) == 1 && inputs[0] == "-") {
		// STDIN 不由 Reader 关闭
		return yield(contract.FileID("stdin"), r.wrap(io.NopCloser(os.Stdin)))
	}
	for _, s := range inputs {
		if s == "-" {
			return fmt.Errorf("%w: stdin '-' cannot be mixed with other inputs", contract.ErrInvalidInput)
		}
	}
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.iterateOne(in, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateOne(in string, yield func(contract.FileID, io.ReadCloser) error) error {
	// os.Stat 跟随符号链接；失效链接在此报错
	info, err := os.Stat(in)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", contract.ErrInvalidInput, in)
	}
	if info.Size() > r.maxBytes {
		return fmt.Errorf("%w: %s is %d bytes, limit %d", contract.ErrInvalidInput, in, info.Size(), r.maxBytes)
	}
	f, err := os.Open(in)
	if err != nil {
		return err
	}
	brc := r.wrap(f)
	defer brc.Close()
	return yield(contract.NormalizeFileID(in), brc)
}

func (r *FileSystem) wrap(rc io.ReadCloser) *bufferedCloser {
	return &bufferedCloser{
		Reader: bufio.NewReaderSize(io.LimitReader(rc, r.maxBytes+1), r.bufSize),
		c:      rc,
		limit:  r.maxBytes,
	}
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser，并在超过上限时报错。
type bufferedCloser struct {
	*bufio.Reader
	c     io.Closer
	limit int64
	n     int64
}

func (b *bufferedCloser) Read(p []byte) (int, error) {
	n, err := b.Reader.Read(p)
	b.n += int64(n)
	if b.n > b.limit {
		return n, fmt.Errorf("%w: input exceeds %d bytes", contract.ErrInvalidInput, b.limit)
	}
	return n, err
}

func (b *bufferedCloser) Close() error { return b.c.Close() }
