package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"ttpcrack/pkg/score"
)

// Word: 词表条目。JSON/YAML 中可写成字符串 "the"，或对象 {"text":"the","weight":5000}。
// Weight 为 0（省略）时使用 scoring.word_weight。
type Word struct {
	Text   string  `json:"text" validate:"required"`
	Weight float64 `json:"weight,omitempty" validate:"gte=0"`
}

// UnmarshalJSON 接受字符串或对象两种写法；对象中的未知字段报错。
func (w *Word) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		*w = Word{}
		return json.Unmarshal(b, &w.Text)
	}
	type plain Word
	var p plain
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return fmt.Errorf("word: %w", err)
	}
	*w = Word(p)
	return nil
}

// MarshalJSON: 未单独设权重的条目写回为字符串，保持模板简洁。
func (w Word) MarshalJSON() ([]byte, error) {
	if w.Weight == 0 {
		return json.Marshal(w.Text)
	}
	type plain Word
	return json.Marshal(plain(w))
}

// WordsOf 以统一（继承）权重构造条目。
func WordsOf(texts []string) []Word {
	if len(texts) == 0 {
		return nil
	}
	out := make([]Word, 0, len(texts))
	for _, t := range texts {
		out = append(out, Word{Text: t})
	}
	return out
}

// parseWords 解析 ENV 形式 "the,cat:5000"；冒号后不是数值时整段视为词。
func parseWords(s string) []Word {
	var out []Word
	for _, tok := range splitComma(s) {
		w := Word{Text: tok}
		if i := strings.LastIndexByte(tok, ':'); i > 0 {
			if v, err := strconv.ParseFloat(strings.TrimSpace(tok[i+1:]), 64); err == nil {
				w = Word{Text: strings.TrimSpace(tok[:i]), Weight: v}
			}
		}
		out = append(out, w)
	}
	return out
}

func cloneWords(in []Word) []Word {
	if len(in) == 0 {
		return nil
	}
	out := make([]Word, len(in))
	copy(out, in)
	return out
}

// lexicon 将配置词表展开为评分词表；未设权重者继承 fallback。
func lexicon(words []Word, fallback float64) score.Lexicon {
	lx := make(score.Lexicon, 0, len(words))
	for _, w := range words {
		weight := w.Weight
		if weight == 0 {
			weight = fallback
		}
		lx = append(lx, score.Word{Text: w.Text, Weight: weight})
	}
	return lx
}
