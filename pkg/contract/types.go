package contract

import (
	"bytes"
	"fmt"
)

// FileID: 逻辑输入/输出标识（通常为路径，需规范化，跨平台一致）。
type FileID string

// Ciphertexts: 同一密钥加密的两段密文。
type Ciphertexts struct {
	C1, C2 []byte
	// Source: 来源标识（单 blob 时两段相同）。
	Source []FileID
}

// Len 返回单段长度（调用方应先 Validate）。
func (c Ciphertexts) Len() int { return len(c.C1) }

// Validate 检查等长前置条件。
func (c Ciphertexts) Validate() error {
	if len(c.C1) != len(c.C2) {
		return fmt.Errorf("%w: %d != %d bytes", ErrLengthMismatch, len(c.C1), len(c.C2))
	}
	return nil
}

// Diff 返回 C1 XOR C2（新分配，调用方只读使用）。
func (c Ciphertexts) Diff() []byte {
	n := len(c.C1)
	if len(c.C2) < n {
		n = len(c.C2)
	}
	d := make([]byte, n)
	for i := 0; i < n; i++ {
		d[i] = c.C1[i] ^ c.C2[i]
	}
	return d
}

// Recovery: 一次运行的最终结果，交给装配器/写出器。
type Recovery struct {
	P1, P2   []byte
	Score    float64
	Baseline float64
	Seed     uint64
	// Restart: 产生最优的重启序号；-1 表示取基线。
	Restart  int
	Restarts int
	Proposed int64
	Accepted int64
	Source   []FileID
}

// CheckRecovery 校验 p1 XOR p2 == c1 XOR c2（逐字节）。
func CheckRecovery(c Ciphertexts, r Recovery) error {
	d := c.Diff()
	if len(r.P1) != len(d) || len(r.P2) != len(d) {
		return fmt.Errorf("%w: recovery length %d/%d, want %d", ErrInvariantViolation, len(r.P1), len(r.P2), len(d))
	}
	x := make([]byte, len(d))
	for i := range d {
		x[i] = r.P1[i] ^ r.P2[i]
	}
	if !bytes.Equal(x, d) {
		return fmt.Errorf("%w: p1 xor p2 differs from c1 xor c2", ErrInvariantViolation)
	}
	return nil
}
