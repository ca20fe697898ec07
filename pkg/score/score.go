package score

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"ttpcrack/pkg/bigram"
)

// DefaultPenalty: 任一字节不可评分时，该相邻对的固定罚分。
const DefaultPenalty = -100.0

// DefaultWordWeight: 词表中每次出现的奖励分。
const DefaultWordWeight = 10000.0

// ErrOptions: 评分参数不满足约束。
var ErrOptions = errors.New("score: invalid options")

// Word 为词表条目（小写匹配）。
type Word struct {
	Text   string  `json:"text" yaml:"text"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Lexicon 为常见词表。
type Lexicon []Word

// DefaultWords 为默认的 20 个常见英文词。
var DefaultWords = []string{
	"the", "and", "you", "that", "was", "this", "with", "for", "have", "not",
	"are", "but", "had", "they", "his", "from", "she", "which", "will", "one",
}

// NewLexicon 以统一权重构造词表。
func NewLexicon(words []string, weight float64) Lexicon {
	lx := make(Lexicon, 0, len(words))
	for _, w := range words {
		lx = append(lx, Word{Text: w, Weight: weight})
	}
	return lx
}

// DefaultLexicon 返回默认词表（每词 10000）。
func DefaultLexicon() Lexicon { return NewLexicon(DefaultWords, DefaultWordWeight) }

// Options 为评分参数。
type Options struct {
	Penalty float64
	Lexicon Lexicon
}

// DefaultOptions 返回默认评分参数。
func DefaultOptions() Options {
	return Options{Penalty: DefaultPenalty, Lexicon: DefaultLexicon()}
}

// Scorer: 只读评分器（构造后并发安全，无内部状态）。
type Scorer struct {
	model   *bigram.Model
	penalty float64
	words   []string
	weights []float64
	// asciiOK: 全部词为 ASCII 时可走字节快速路径
	asciiOK bool
}

// New 构造评分器。约束：罚分不高于 log(floor)，使不可评分对始终劣于任何字符对。
func New(model *bigram.Model, opts Options) (*Scorer, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: nil model", ErrOptions)
	}
	if math.IsNaN(opts.Penalty) || opts.Penalty > model.Floor() {
		return nil, fmt.Errorf("%w: penalty %v must be <= log(floor) %v", ErrOptions, opts.Penalty, model.Floor())
	}
	s := &Scorer{model: model, penalty: opts.Penalty, asciiOK: true}
	for _, w := range opts.Lexicon {
		t := strings.ToLower(w.Text)
		if t == "" {
			return nil, fmt.Errorf("%w: empty lexicon word", ErrOptions)
		}
		for i := 0; i < len(t); i++ {
			if t[i] >= utf8.RuneSelf {
				s.asciiOK = false
			}
		}
		s.words = append(s.words, t)
		s.weights = append(s.weights, w.Weight)
	}
	return s, nil
}

// Model 返回底层模型。
func (s *Scorer) Model() *bigram.Model { return s.model }

// Penalty 返回罚分。
func (s *Scorer) Penalty() float64 { return s.penalty }

// CharIndex 将字节映射为评分字符：空格、A-Z、a-z（折叠为大写）；其余不可评分。
func CharIndex(b byte) (int, bool) { return bigram.Index(b) }

// Bigram 计算相邻对的对数似然之和。
func (s *Scorer) Bigram(seq []byte) float64 {
	var sum float64
	for i := 0; i+1 < len(seq); i++ {
		a, okA := CharIndex(seq[i])
		b, okB := CharIndex(seq[i+1])
		if !okA || !okB {
			sum += s.penalty
			continue
		}
		sum += s.model.LogProbIndex(a, b)
	}
	return sum
}

// WordBonus 统计词表中各词的出现次数（子串、非重叠、不区分大小写）并加权求和。
// 非法 UTF-8 字节被丢弃而不是报错。
func (s *Scorer) WordBonus(seq []byte) float64 {
	if len(s.words) == 0 || len(seq) == 0 {
		return 0
	}
	if s.asciiOK && isASCII(seq) {
		var bonus float64
		for i, w := range s.words {
			if n := countFold(seq, w); n > 0 {
				bonus += float64(n) * s.weights[i]
			}
		}
		return bonus
	}
	text := strings.ToLower(string(bytes.ToValidUTF8(seq, nil)))
	var bonus float64
	for i, w := range s.words {
		if n := strings.Count(text, w); n > 0 {
			bonus += float64(n) * s.weights[i]
		}
	}
	return bonus
}

// Text 为单段明文的得分：Bigram + WordBonus。
func (s *Scorer) Text(seq []byte) float64 {
	return s.Bigram(seq) + s.WordBonus(seq)
}

// Combined 为一对明文的总分；两段独立、同等计分后求和。
func (s *Scorer) Combined(p1, p2 []byte) float64 {
	return s.Text(p1) + s.Text(p2)
}

func isASCII(b []byte) bool {
	for _, c := range b {
		if c >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// countFold: ASCII 下的非重叠计数；w 已为小写。
func countFold(s []byte, w string) int {
	n := 0
	for i := 0; i+len(w) <= len(s); {
		j := 0
		for j < len(w) && lower(s[i+j]) == w[j] {
			j++
		}
		if j == len(w) {
			n++
			i += len(w)
			continue
		}
		i++
	}
	return n
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
