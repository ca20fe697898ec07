package bigram

import (
	"math"
	"strings"
)

// Size 为字符域大小：空格 + A..Z。
const Size = 27

// DefaultFloor: 概率下限，避免 log(0)。
const DefaultFloor = 1e-9

// Index 将字节映射到字符域下标：' '→0，A..Z→1..26，a..z 折叠为大写；其余返回 false。
func Index(b byte) (int, bool) {
	switch {
	case b == ' ':
		return 0, true
	case b >= 'A' && b <= 'Z':
		return int(b-'A') + 1, true
	case b >= 'a' && b <= 'z':
		return int(b-'a') + 1, true
	default:
		return 0, false
	}
}

// Symbol 为下标对应的字符（大写/空格）。
func Symbol(i int) byte {
	if i == 0 {
		return ' '
	}
	return byte('A' + i - 1)
}

// ParseLabel 解析频率表的行/列标签。
// 规则：
// - 单个大写字母 A..Z：对应下标；小写标签不折叠，视为域外（与 X 并存的 x 列不会覆盖 X）；
// - 空白（含 " "、"" 去空白后为空）或 "space"（不区分大小写）：空格；
// - 其余：不在字符域内。
func ParseLabel(s string) (int, bool) {
	t := strings.TrimSpace(s)
	if t == "" || strings.EqualFold(t, "space") {
		return 0, true
	}
	if len(t) == 1 && t[0] >= 'A' && t[0] <= 'Z' {
		return int(t[0]-'A') + 1, true
	}
	return 0, false
}

// Counts 为原始计数矩阵（稠密），附带行总量。
// 行总量包含该行所有数值单元（含域外列），与“按行归一”的语义一致。
type Counts struct {
	n       [Size][Size]float64
	present [Size][Size]bool
	// extra: 行内域外列的计数之和
	extra [Size]float64
	rows  [Size]bool
}

// NewCounts 返回空计数矩阵。
func NewCounts() *Counts { return &Counts{} }

// Add 记录一个单元。非法/负值按 0 计；同一单元重复写入时后者覆盖。
// 域外行被忽略；域外列只计入行总量。
func (c *Counts) Add(row, col string, v float64) {
	a, ok := ParseLabel(row)
	if !ok {
		return
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		v = 0
	}
	c.rows[a] = true
	b, ok := ParseLabel(col)
	if !ok {
		c.extra[a] += v
		return
	}
	c.n[a][b] = v
	c.present[a][b] = true
}

// Get 返回 (a,b) 的计数与是否出现过。
func (c *Counts) Get(a, b int) (float64, bool) {
	return c.n[a][b], c.present[a][b]
}

// Rows 返回出现过的行数。
func (c *Counts) Rows() int {
	n := 0
	for _, ok := range c.rows {
		if ok {
			n++
		}
	}
	return n
}

func (c *Counts) total(a int) float64 {
	t := c.extra[a]
	for b := 0; b < Size; b++ {
		t += c.n[a][b]
	}
	return t
}

// Model 为只读的对数概率表；构造后并发安全。
type Model struct {
	logp     [Size][Size]float64
	logFloor float64
}

// New 由计数构造模型。floor<=0 时使用 DefaultFloor；counts 可为 nil（全部取下限）。
func New(counts *Counts, floor float64) *Model {
	if floor <= 0 || math.IsNaN(floor) {
		floor = DefaultFloor
	}
	m := &Model{logFloor: math.Log(floor)}
	for a := 0; a < Size; a++ {
		var tot float64
		if counts != nil {
			tot = counts.total(a)
		}
		for b := 0; b < Size; b++ {
			m.logp[a][b] = m.logFloor
			if counts == nil || !counts.present[a][b] {
				continue
			}
			p := floor
			if tot > 0 {
				if r := counts.n[a][b] / tot; r > floor {
					p = r
				}
			}
			m.logp[a][b] = math.Log(p)
		}
	}
	return m
}

// LogProb 按字节查询；任一字节不在字符域内时返回 log(floor)。
func (m *Model) LogProb(a, b byte) float64 {
	i, ok := Index(a)
	if !ok {
		return m.logFloor
	}
	j, ok := Index(b)
	if !ok {
		return m.logFloor
	}
	return m.logp[i][j]
}

// LogProbIndex 为下标快速路径（调用方保证 0<=i,j<Size）。
func (m *Model) LogProbIndex(i, j int) float64 { return m.logp[i][j] }

// Floor 返回 log(floor)。
func (m *Model) Floor() float64 { return m.logFloor }
