package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"ttpcrack/pkg/anneal"
	"ttpcrack/pkg/bigram"
	"ttpcrack/pkg/score"
)

// 环境变量前缀
const EnvPrefix = "TTPCRACK_"

// Defaults 返回带有安全默认值的 Config 雏形。
// 注意：Inputs 不设默认（必须由文件/ENV/CLI 提供）。
func Defaults() Config {
	return Config{
		Table:  "ftable2.csv",
		Output: "recovered_plaintexts.txt",
		Search: Search{
			Restarts:       anneal.DefaultRestarts,
			Iterations:     anneal.DefaultIterations,
			Workers:        1,
			MinTemperature: anneal.DefaultMinTemperature,
			Alphabet:       anneal.DefaultAlphabet,
		},
		Scoring: Scoring{
			Floor:      bigram.DefaultFloor,
			Penalty:    score.DefaultPenalty,
			WordWeight: score.DefaultWordWeight,
			Words:      WordsOf(score.DefaultWords),
		},
		Logging: Logging{Level: "info", Dir: "logs"},
		Components: Components{
			Reader:    "fs",
			Splitter:  "halves",
			Table:     "csv",
			Assembler: "text",
			Sidecar:   "json",
			Writer:    "fs",
		},
	}
}

// NewOverlay 返回“全部未设置”的覆盖层。
// Iterations 的 0 具有语义（只取基线），以 -1 表示未覆盖。
func NewOverlay() Config {
	return Config{Search: Search{Iterations: -1}}
}

// LoadJSON 从文件路径或原始 JSON 解析 Config（严格拒绝未知字段）。
// 返回值为覆盖层语义：未出现的 iterations 视为未设置。
func LoadJSON(path string, raw []byte) (Config, error) {
	cfg := NewOverlay()
	var r io.Reader
	switch {
	case len(raw) > 0:
		r = bytes.NewReader(raw)
	case path != "":
		f, err := os.Open(path)
		if err != nil {
			return cfg, err
		}
		defer f.Close()
		r = f
	default:
		return cfg, errors.New("no config source provided")
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadYAML 将 YAML 转为 JSON 后按 LoadJSON 的严格规则解析。
func LoadYAML(raw []byte) (Config, error) {
	var tree any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return NewOverlay(), fmt.Errorf("yaml: %w", err)
	}
	if tree == nil {
		return NewOverlay(), nil
	}
	js, err := json.Marshal(tree)
	if err != nil {
		return NewOverlay(), fmt.Errorf("yaml: %w", err)
	}
	return LoadJSON("", js)
}

// LoadFile 按扩展名选择解析器：.yaml/.yml 走 YAML，其余按 JSON。
func LoadFile(path string) (Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err := os.ReadFile(path)
		if err != nil {
			return NewOverlay(), err
		}
		return LoadYAML(raw)
	default:
		return LoadJSON(path, nil)
	}
}

// Merge 按优先级合并（后者覆盖前者）。
// 仅标量/字符串/原样 JSON 为“替换”；不做深度合并。
func Merge(base, over Config) Config {
	out := base
	if len(over.Inputs) > 0 {
		out.Inputs = cloneStrings(over.Inputs)
	}
	if s := strings.TrimSpace(over.Table); s != "" {
		out.Table = s
	}
	if s := strings.TrimSpace(over.Output); s != "" {
		out.Output = s
	}
	if s := strings.TrimSpace(over.Sidecar); s != "" {
		out.Sidecar = s
	}

	// 搜索
	if over.Search.Restarts != 0 {
		out.Search.Restarts = over.Search.Restarts
	}
	if over.Search.Iterations >= 0 {
		out.Search.Iterations = over.Search.Iterations
	}
	if over.Search.Workers != 0 {
		out.Search.Workers = over.Search.Workers
	}
	if over.Search.Seed != 0 {
		out.Search.Seed = over.Search.Seed
	}
	if over.Search.MinTemperature != 0 {
		out.Search.MinTemperature = over.Search.MinTemperature
	}
	if over.Search.Alphabet != "" {
		out.Search.Alphabet = over.Search.Alphabet
	}

	// 评分
	if over.Scoring.Floor != 0 {
		out.Scoring.Floor = over.Scoring.Floor
	}
	if over.Scoring.Penalty != 0 {
		out.Scoring.Penalty = over.Scoring.Penalty
	}
	if over.Scoring.WordWeight != 0 {
		out.Scoring.WordWeight = over.Scoring.WordWeight
	}
	if len(over.Scoring.Words) > 0 {
		out.Scoring.Words = cloneWords(over.Scoring.Words)
	}

	// 观测
	if s := strings.TrimSpace(over.Logging.Level); s != "" {
		out.Logging.Level = s
	}
	if s := strings.TrimSpace(over.Logging.Dir); s != "" {
		out.Logging.Dir = s
	}
	if s := strings.TrimSpace(over.Tracing.Path); s != "" {
		out.Tracing.Path = s
	}
	if s := strings.TrimSpace(over.Metrics.Textfile); s != "" {
		out.Metrics.Textfile = s
	}

	// 组件名（空不覆盖）
	mergeName(&out.Components.Reader, over.Components.Reader)
	mergeName(&out.Components.Splitter, over.Components.Splitter)
	mergeName(&out.Components.Table, over.Components.Table)
	mergeName(&out.Components.Assembler, over.Components.Assembler)
	mergeName(&out.Components.Sidecar, over.Components.Sidecar)
	mergeName(&out.Components.Writer, over.Components.Writer)

	// Options（完整替换对应键）
	mergeRaw(&out.Options.Reader, over.Options.Reader)
	mergeRaw(&out.Options.Splitter, over.Options.Splitter)
	mergeRaw(&out.Options.Table, over.Options.Table)
	mergeRaw(&out.Options.Assembler, over.Options.Assembler)
	mergeRaw(&out.Options.Sidecar, over.Options.Sidecar)
	mergeRaw(&out.Options.Writer, over.Options.Writer)
	return out
}

// EnvOverlay 从环境变量构建一个 Config 覆盖（仅解析有限键集合）。
// 规则：前缀 TTPCRACK_；无法解析的数值与未知键忽略。
// 支持：INPUTS, TABLE, OUTPUT, SIDECAR, RESTARTS, ITERATIONS, WORKERS, SEED,
// MIN_TEMPERATURE, ALPHABET, FLOOR, PENALTY, WORD_WEIGHT, WORDS, LOG_LEVEL, LOG_DIR,
// TRACE_PATH, METRICS_TEXTFILE, COMPONENTS_* 以及 OPTIONS_*_JSON。
func EnvOverlay(environ []string) (Config, error) {
	over := NewOverlay()
	for _, kv := range environ {
		if !strings.HasPrefix(kv, EnvPrefix) {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq <= len(EnvPrefix) {
			continue
		}
		nk := kv[len(EnvPrefix):eq]
		val := kv[eq+1:]
		tv := strings.TrimSpace(val)
		switch nk {
		case "INPUTS":
			over.Inputs = splitComma(val)
		case "TABLE":
			over.Table = tv
		case "OUTPUT":
			over.Output = tv
		case "SIDECAR":
			over.Sidecar = tv
		case "RESTARTS":
			if v, err := atoi(val); err == nil {
				over.Search.Restarts = v
			}
		case "ITERATIONS":
			if v, err := atoi(val); err == nil {
				over.Search.Iterations = v
			}
		case "WORKERS":
			if v, err := atoi(val); err == nil {
				over.Search.Workers = v
			}
		case "SEED":
			if v, err := strconv.ParseUint(tv, 10, 64); err == nil {
				over.Search.Seed = v
			}
		case "MIN_TEMPERATURE":
			if v, err := strconv.ParseFloat(tv, 64); err == nil {
				over.Search.MinTemperature = v
			}
		case "ALPHABET":
			// 空格是合法字母，不做 trim
			over.Search.Alphabet = val
		case "FLOOR":
			if v, err := strconv.ParseFloat(tv, 64); err == nil {
				over.Scoring.Floor = v
			}
		case "PENALTY":
			if v, err := strconv.ParseFloat(tv, 64); err == nil {
				over.Scoring.Penalty = v
			}
		case "WORD_WEIGHT":
			if v, err := strconv.ParseFloat(tv, 64); err == nil {
				over.Scoring.WordWeight = v
			}
		case "WORDS":
			over.Scoring.Words = parseWords(val)
		case "LOG_LEVEL":
			over.Logging.Level = tv
		case "LOG_DIR":
			over.Logging.Dir = tv
		case "TRACE_PATH":
			over.Tracing.Path = tv
		case "METRICS_TEXTFILE":
			over.Metrics.Textfile = tv
		case "COMPONENTS_READER":
			over.Components.Reader = tv
		case "COMPONENTS_SPLITTER":
			over.Components.Splitter = tv
		case "COMPONENTS_TABLE":
			over.Components.Table = tv
		case "COMPONENTS_ASSEMBLER":
			over.Components.Assembler = tv
		case "COMPONENTS_SIDECAR":
			over.Components.Sidecar = tv
		case "COMPONENTS_WRITER":
			over.Components.Writer = tv
		default:
			// OPTIONS_<COMP>_JSON：原样 JSON；空值视为未设置
			if strings.HasPrefix(nk, "OPTIONS_") && strings.HasSuffix(nk, "_JSON") && tv != "" {
				comp := strings.TrimSuffix(strings.TrimPrefix(nk, "OPTIONS_"), "_JSON")
				if dst := optionSlot(&over.Options, comp); dst != nil {
					*dst = json.RawMessage(tv)
				}
			}
		}
	}
	return over, nil
}

func optionSlot(o *Options, comp string) *json.RawMessage {
	switch comp {
	case "READER":
		return &o.Reader
	case "SPLITTER":
		return &o.Splitter
	case "TABLE":
		return &o.Table
	case "ASSEMBLER":
		return &o.Assembler
	case "SIDECAR":
		return &o.Sidecar
	case "WRITER":
		return &o.Writer
	}
	return nil
}

func mergeName(dst *string, over string) {
	if s := strings.TrimSpace(over); s != "" {
		*dst = s
	}
}

func mergeRaw(dst *json.RawMessage, over json.RawMessage) {
	if len(over) > 0 {
		*dst = cloneRaw(over)
	}
}

func cloneStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneRaw(in json.RawMessage) json.RawMessage {
	if len(in) == 0 {
		return nil
	}
	out := make([]byte, len(in))
	copy(out, in)
	return out
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%d", &n)
	if err != nil {
		return 0, err
	}
	return n, nil
}
