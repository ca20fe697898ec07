package contract

import (
	"context"
	"io"
)

// Reader: 输入源抽象（文件/STDIN）。
// 约束：
// 1) 按输入顺序逐个回调，回调返回后 r 由 Reader 关闭；
// 2) FileID 稳定且去平台差异化；
// 3) 不做解码，仅提供字节流；
// 4) 不在内部起并发。
type Reader interface {
	Iterate(ctx context.Context, inputs []string, yield func(fileID FileID, r io.ReadCloser) error) error
}
