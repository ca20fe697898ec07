package contract

import (
	"context"
	"io"

	"ttpcrack/pkg/bigram"
)

// TableDecoder: 将频率表字节流解码为原始计数。
// 非数值/缺失单元按 0 计，不报错；整体不可用时返回 ErrTableInvalid。
type TableDecoder interface {
	Decode(ctx context.Context, fileID FileID, r io.Reader) (*bigram.Counts, error)
}
