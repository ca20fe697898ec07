package contract

import "errors"

// 最小错误分类（用于上层策略判定与退出码映射）。
var (
	// ErrInvalidInput: 输入不满足前置条件（空输入、输入个数不对等）。
	ErrInvalidInput = errors.New("invalid input")
	// ErrLengthMismatch: 两段密文长度不同；在任何搜索之前失败，不重试。
	ErrLengthMismatch = errors.New("ciphertext length mismatch")
	// ErrTableInvalid: 频率表无法使用（无表头、无任何域内行）。
	// 单元格缺失或非数值不属于此类，按 0 计。
	ErrTableInvalid = errors.New("frequency table invalid")
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvariantViolation: 领域不变量违例（通用哨兵）。
	ErrInvariantViolation = errors.New("invariant violation")
)
