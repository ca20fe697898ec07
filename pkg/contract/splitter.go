package contract

import (
	"context"
	"io"
)

// Splitter: 将单个 blob 拆成两段密文。
// 约束：
// 1) 不做解密，仅按字节切分；
// 2) 无法切成等长两段时返回 ErrLengthMismatch；
// 3) 无内部并发、幂等。
type Splitter interface {
	Split(ctx context.Context, fileID FileID, r io.Reader) (Ciphertexts, error)
}
