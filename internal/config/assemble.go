package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"ttpcrack/internal/pipeline"
	"ttpcrack/pkg/anneal"
	"ttpcrack/pkg/contract"
	"ttpcrack/pkg/registry"
	"ttpcrack/pkg/score"
)

// ErrConfig: 配置不满足静态约束（CLI 映射为退出码 3）。
var ErrConfig = errors.New("config invalid")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 错误信息使用 JSON 字段名
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("alphabet", validateAlphabet)
	return v
}

// validateAlphabet: 字母表非空且无重复字节。
func validateAlphabet(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if s == "" {
		return false
	}
	var seen [256]bool
	for i := 0; i < len(s); i++ {
		if seen[s[i]] {
			return false
		}
		seen[s[i]] = true
	}
	return true
}

// Validate 对最小必要边界做静态校验：结构体标签 + 组件名 + 输入组合。
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("%w: %s failed %q", ErrConfig, fieldPath(ve[0].Namespace()), ve[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrConfig, err)
	}
	// "-" 不能与其他输入混用
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "" {
			return fmt.Errorf("%w: input path cannot be empty", ErrConfig)
		}
		if strings.TrimSpace(r) == "-" && len(cfg.Inputs) > 1 {
			return fmt.Errorf("%w: '-' cannot be mixed with other inputs", ErrConfig)
		}
	}
	if cfg.Sidecar != "" && cfg.Sidecar == cfg.Output {
		return fmt.Errorf("%w: sidecar must differ from output", ErrConfig)
	}
	d := Defaults().Components
	checks := []struct {
		kind, name string
		known      []string
	}{
		{"reader", effName(cfg.Components.Reader, d.Reader), registry.Names(registry.Reader)},
		{"splitter", effName(cfg.Components.Splitter, d.Splitter), registry.Names(registry.Splitter)},
		{"table", effName(cfg.Components.Table, d.Table), registry.Names(registry.Table)},
		{"assembler", effName(cfg.Components.Assembler, d.Assembler), registry.Names(registry.Assembler)},
		{"sidecar", effName(cfg.Components.Sidecar, d.Sidecar), registry.Names(registry.Assembler)},
		{"writer", effName(cfg.Components.Writer, d.Writer), registry.Names(registry.Writer)},
	}
	for _, c := range checks {
		if !contains(c.known, c.name) {
			return fmt.Errorf("%w: %s %q not registered (known: %s)", ErrConfig, c.kind, c.name, strings.Join(c.known, ", "))
		}
	}
	return nil
}

// Assemble 构造 Components 与 Settings。
// 严格 Options 解析在 registry （工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	if err := Validate(cfg); err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}
	comp, err := BuildComponents(cfg)
	if err != nil {
		return pipeline.Components{}, pipeline.Settings{}, err
	}

	set := pipeline.Settings{
		Inputs:  cloneStrings(cfg.Inputs),
		Table:   cfg.Table,
		Output:  contract.FileID(cfg.Output),
		Sidecar: contract.FileID(cfg.Sidecar),
		Search: anneal.Config{
			Restarts:       cfg.Search.Restarts,
			Iterations:     cfg.Search.Iterations,
			Alphabet:       []byte(cfg.Search.Alphabet),
			MinTemperature: cfg.Search.MinTemperature,
			Workers:        cfg.Search.Workers,
			Seed:           cfg.Search.Seed,
		},
		Floor: cfg.Scoring.Floor,
		Scoring: score.Options{
			Penalty: cfg.Scoring.Penalty,
			Lexicon: lexicon(cfg.Scoring.Words, cfg.Scoring.WordWeight),
		},
	}
	return comp, set, nil
}

// BuildComponents 仅构造组件实例（不校验搜索参数；split 子命令复用）。
func BuildComponents(cfg Config) (pipeline.Components, error) {
	d := Defaults().Components
	wrap := func(kind string, err error) error {
		return fmt.Errorf("%w: %s options: %v", ErrConfig, kind, err)
	}
	rn := effName(cfg.Components.Reader, d.Reader)
	sn := effName(cfg.Components.Splitter, d.Splitter)
	tn := effName(cfg.Components.Table, d.Table)
	an := effName(cfg.Components.Assembler, d.Assembler)
	cn := effName(cfg.Components.Sidecar, d.Sidecar)
	wn := effName(cfg.Components.Writer, d.Writer)

	newReader, ok := registry.Reader[rn]
	if !ok {
		return pipeline.Components{}, fmt.Errorf("%w: reader %q not registered", ErrConfig, rn)
	}
	r, err := newReader(cfg.Options.Reader)
	if err != nil {
		return pipeline.Components{}, wrap("reader", err)
	}
	newSplitter, ok := registry.Splitter[sn]
	if !ok {
		return pipeline.Components{}, fmt.Errorf("%w: splitter %q not registered", ErrConfig, sn)
	}
	s, err := newSplitter(cfg.Options.Splitter)
	if err != nil {
		return pipeline.Components{}, wrap("splitter", err)
	}
	newTable, ok := registry.Table[tn]
	if !ok {
		return pipeline.Components{}, fmt.Errorf("%w: table %q not registered", ErrConfig, tn)
	}
	t, err := newTable(cfg.Options.Table)
	if err != nil {
		return pipeline.Components{}, wrap("table", err)
	}
	newAsm, ok := registry.Assembler[an]
	if !ok {
		return pipeline.Components{}, fmt.Errorf("%w: assembler %q not registered", ErrConfig, an)
	}
	asm, err := newAsm(cfg.Options.Assembler)
	if err != nil {
		return pipeline.Components{}, wrap("assembler", err)
	}
	newWriter, ok := registry.Writer[wn]
	if !ok {
		return pipeline.Components{}, fmt.Errorf("%w: writer %q not registered", ErrConfig, wn)
	}
	w, err := newWriter(cfg.Options.Writer)
	if err != nil {
		return pipeline.Components{}, wrap("writer", err)
	}

	comp := pipeline.Components{Reader: r, Splitter: s, Table: t, Assembler: asm, Writer: w}
	// 边车仅在配置了工件名时构造
	if cfg.Sidecar != "" {
		newSide, ok := registry.Assembler[cn]
		if !ok {
			return pipeline.Components{}, fmt.Errorf("%w: sidecar %q not registered", ErrConfig, cn)
		}
		side, err := newSide(cfg.Options.Sidecar)
		if err != nil {
			return pipeline.Components{}, wrap("sidecar", err)
		}
		comp.Sidecar = side
	}
	return comp, nil
}

func effName(got, def string) string {
	if got == "" {
		return def
	}
	return got
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// fieldPath: "Config.search.restarts" → "search.restarts"
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}
