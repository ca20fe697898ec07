package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// JSON 使用 snake_case；YAML 先转为 JSON 再严格解析，未知字段在解析期失败。
type Config struct {
	// Inputs: 1 个 blob（对半切分）或 2 个密文文件；"-" 表示 STDIN。
	Inputs []string `json:"inputs" validate:"min=1,max=2,dive,required"`
	// Table: 频率表路径（不可为 STDIN）。
	Table string `json:"table" validate:"required,ne=-"`
	// Output: 报告的工件标识（相对 writer.output_dir）。
	Output string `json:"output" validate:"required"`
	// Sidecar: 可选的 JSON 边车工件；空表示不写。
	Sidecar string `json:"sidecar"`

	Search  Search  `json:"search"`
	Scoring Scoring `json:"scoring"`
	Logging Logging `json:"logging"`
	Tracing Tracing `json:"tracing"`
	Metrics Metrics `json:"metrics"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Search: 退火搜索参数。
type Search struct {
	Restarts int `json:"restarts" validate:"gte=1"`
	// Iterations: 每次重启的变异次数；0 合法（直接返回基线）。
	Iterations int `json:"iterations" validate:"gte=0"`
	// Workers: 并发重启数；<=1 为顺序执行。
	Workers int `json:"workers" validate:"gte=0"`
	// Seed: 0 表示由 CLI 随机生成并记录。
	Seed           uint64  `json:"seed"`
	MinTemperature float64 `json:"min_temperature" validate:"gt=0,lte=1"`
	Alphabet       string  `json:"alphabet" validate:"required,alphabet"`
}

// Scoring: 评分参数。
type Scoring struct {
	Floor      float64  `json:"floor" validate:"gt=0,lt=1"`
	Penalty    float64  `json:"penalty" validate:"lt=0"`
	// WordWeight: 词表条目未单独设权重时的默认权重。
	WordWeight float64 `json:"word_weight" validate:"gte=0"`
	Words      []Word  `json:"words" validate:"dive"`
}

// Logging: 日志等级与目录（轮转策略为固定默认）。
type Logging struct {
	Level string `json:"level" validate:"omitempty,oneof=debug info warn error"`
	Dir   string `json:"dir"`
}

// Tracing: 非空时将 span 以 JSON 导出到该文件。
type Tracing struct {
	Path string `json:"path"`
}

// Metrics: 非空时运行结束写出 Prometheus textfile。
type Metrics struct {
	Textfile string `json:"textfile"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader    string `json:"reader"`
	Splitter  string `json:"splitter"`
	Table     string `json:"table"`
	Assembler string `json:"assembler"`
	// Sidecar: 边车使用的装配器名。
	Sidecar string `json:"sidecar"`
	Writer  string `json:"writer"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader    json.RawMessage `json:"reader"`
	Splitter  json.RawMessage `json:"splitter"`
	Table     json.RawMessage `json:"table"`
	Assembler json.RawMessage `json:"assembler"`
	Sidecar   json.RawMessage `json:"sidecar"`
	Writer    json.RawMessage `json:"writer"`
}
