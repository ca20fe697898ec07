package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"ttpcrack/internal/diag"
	"ttpcrack/pkg/anneal"
	"ttpcrack/pkg/bigram"
	"ttpcrack/pkg/contract"
	"ttpcrack/pkg/score"
)

// - 单点编排：组件均为同步实现；唯一的并发在 anneal 引擎内部（按重启分发）。
// - 前置失败：长度不等在加载频率表与搜索之前失败。
// - 首错返回：任一阶段出错立即返回，错误以 "stage: %w" 包装供上层分类。
// - 观测旁路：日志/指标/span/终端均不影响结果。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader    contract.Reader
	Splitter  contract.Splitter
	Table     contract.TableDecoder
	Assembler contract.Assembler
	// Sidecar 可选：与 Settings.Sidecar 同时非空时写出第二份报告。
	Sidecar contract.Assembler
	Writer  contract.Writer
}

// Settings 运行期配置（最小必要）。
type Settings struct {
	// Inputs: 1 个 blob 或 2 个密文文件；空表示 STDIN。
	Inputs []string
	// Table: 频率表路径，经由 Reader 读取。
	Table   string
	Output  contract.FileID
	Sidecar contract.FileID
	Search  anneal.Config
	Floor   float64
	Scoring score.Options
}

// Run 执行完整流水线：Reader → (Splitter) → 等长校验 → Table → Scorer → Anneal → 校验 → Assembler → Writer。
// 返回写出的 Recovery；出错时 Recovery 为零值。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (contract.Recovery, error) {
	if err := sanity(comp, set); err != nil {
		return contract.Recovery{}, fmt.Errorf("sanity: %w", err)
	}
	ctx, span := diag.Tracer().Start(ctx, "pipeline.run")
	defer span.End()

	start := time.Now()
	ok := false
	best := math.Inf(-1)
	defer func() {
		diag.GetTerminal().RunFinish(ok, time.Since(start), best)
	}()

	ct, err := readCiphertexts(ctx, comp, set, logger)
	if err != nil {
		return contract.Recovery{}, markSpan(span, err)
	}
	if err := ct.Validate(); err != nil {
		logger.ErrorWith("pipeline", string(diag.Classify(err)), "length check failed", nil, joinSource(ct.Source))
		diag.IncOp("pipeline", "error", "error")
		diag.IncError("pipeline", string(diag.CodeLength))
		return contract.Recovery{}, markSpan(span, fmt.Errorf("validate: %w", err))
	}
	diff := ct.Diff()
	span.SetAttributes(attribute.Int("length", len(diff)))

	counts, err := stage(ctx, logger, "table", "decode", set.Table, func(ctx context.Context) (*bigram.Counts, int64, error) {
		return loadTable(ctx, comp, set.Table)
	})
	if err != nil {
		return contract.Recovery{}, markSpan(span, fmt.Errorf("table: %w", err))
	}
	model := bigram.New(counts, set.Floor)
	scorer, err := score.New(model, set.Scoring)
	if err != nil {
		return contract.Recovery{}, markSpan(span, fmt.Errorf("scorer: %w", err))
	}

	prog := newProgress(logger, scorer, diff)
	engine, err := anneal.New(set.Search, scorer, anneal.WithObserver(prog))
	if err != nil {
		return contract.Recovery{}, markSpan(span, fmt.Errorf("anneal: %w", err))
	}
	eff := engine.Config()
	diag.GetTerminal().RunStart(eff.Workers, eff.Restarts, len(diff))

	res, err := stage(ctx, logger, "anneal", "search", joinSource(ct.Source), func(ctx context.Context) (anneal.Result, int64, error) {
		r, err := engine.Run(ctx, diff)
		return r, r.Accepted, err
	})
	if err != nil {
		return contract.Recovery{}, markSpan(span, fmt.Errorf("search: %w", err))
	}
	best = res.Score
	diag.SetBestScore(res.Score)

	rec := contract.Recovery{
		P1:       res.P1,
		P2:       res.P2,
		Score:    res.Score,
		Baseline: res.Baseline,
		Seed:     eff.Seed,
		Restart:  res.Restart,
		Restarts: eff.Restarts,
		Proposed: res.Proposed,
		Accepted: res.Accepted,
		Source:   ct.Source,
	}
	if err := contract.CheckRecovery(ct, rec); err != nil {
		logger.Error("pipeline", string(diag.CodeInvariant), "xor invariant violated", nil)
		diag.IncError("pipeline", string(diag.CodeInvariant))
		return contract.Recovery{}, markSpan(span, fmt.Errorf("verify: %w", err))
	}
	logger.Info("anneal", "best", map[string]string{
		"score":    formatScore(res.Score),
		"baseline": formatScore(res.Baseline),
		"restart":  strconv.Itoa(res.Restart),
		"seed":     strconv.FormatUint(eff.Seed, 10),
	})

	if err := emit(ctx, comp.Assembler, comp.Writer, rec, set.Output, logger); err != nil {
		return contract.Recovery{}, markSpan(span, err)
	}
	if comp.Sidecar != nil && set.Sidecar != "" {
		if err := emit(ctx, comp.Sidecar, comp.Writer, rec, set.Sidecar, logger); err != nil {
			return contract.Recovery{}, markSpan(span, fmt.Errorf("sidecar: %w", err))
		}
	}
	ok = true
	return rec, nil
}

// Split 读取单个 blob，按 Splitter 切成两段并分别写出到 out[0]/out[1]。
func Split(ctx context.Context, comp Components, input string, out [2]contract.FileID, logger *diag.Logger) (contract.Ciphertexts, error) {
	if comp.Reader == nil || comp.Splitter == nil || comp.Writer == nil {
		return contract.Ciphertexts{}, fmt.Errorf("sanity: %w: reader/splitter/writer required", contract.ErrInvalidInput)
	}
	if out[0] == "" || out[1] == "" || out[0] == out[1] {
		return contract.Ciphertexts{}, fmt.Errorf("sanity: %w: two distinct outputs required", contract.ErrInvalidInput)
	}
	ctx, span := diag.Tracer().Start(ctx, "pipeline.split")
	defer span.End()
	ct, err := readCiphertexts(ctx, comp, Settings{Inputs: []string{input}}, logger)
	if err != nil {
		return contract.Ciphertexts{}, markSpan(span, err)
	}
	for i, part := range [][]byte{ct.C1, ct.C2} {
		id := out[i]
		if _, err := stage(ctx, logger, "writer", "write", string(id), func(ctx context.Context) (struct{}, int64, error) {
			return struct{}{}, int64(len(part)), comp.Writer.Write(ctx, id, bytes.NewReader(part))
		}); err != nil {
			return contract.Ciphertexts{}, markSpan(span, fmt.Errorf("writer write: %w", err))
		}
	}
	return ct, nil
}

func sanity(comp Components, set Settings) error {
	if comp.Reader == nil || comp.Table == nil || comp.Assembler == nil || comp.Writer == nil {
		return fmt.Errorf("%w: reader/table/assembler/writer required", contract.ErrInvalidInput)
	}
	if len(set.Inputs) > 2 {
		return fmt.Errorf("%w: expected 1 blob or 2 ciphertext files, got %d inputs", contract.ErrInvalidInput, len(set.Inputs))
	}
	if len(set.Inputs) < 2 && comp.Splitter == nil {
		return fmt.Errorf("%w: splitter required for single input", contract.ErrInvalidInput)
	}
	if set.Table == "" || set.Output == "" {
		return fmt.Errorf("%w: table and output required", contract.ErrInvalidInput)
	}
	if set.Sidecar != "" && set.Sidecar == set.Output {
		return fmt.Errorf("%w: sidecar must differ from output", contract.ErrInvalidInput)
	}
	return nil
}

// readCiphertexts 读取全部输入：1 个时交给 Splitter 对半切分，2 个时各为一段。
func readCiphertexts(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (contract.Ciphertexts, error) {
	type blob struct {
		id   contract.FileID
		data []byte
	}
	var blobs []blob
	err := comp.Reader.Iterate(ctx, set.Inputs, func(id contract.FileID, rc io.ReadCloser) error {
		b, err := stage(ctx, logger, "reader", "read", string(id), func(context.Context) ([]byte, int64, error) {
			b, err := io.ReadAll(rc)
			return b, int64(len(b)), err
		})
		if err != nil {
			return err
		}
		diag.GetTerminal().Input(string(id), len(b))
		blobs = append(blobs, blob{id: id, data: b})
		return nil
	})
	if err != nil {
		return contract.Ciphertexts{}, fmt.Errorf("reader: %w", err)
	}

	switch len(blobs) {
	case 1:
		id := blobs[0].id
		ct, err := stage(ctx, logger, "splitter", "split", string(id), func(ctx context.Context) (contract.Ciphertexts, int64, error) {
			ct, err := comp.Splitter.Split(ctx, id, bytes.NewReader(blobs[0].data))
			return ct, int64(ct.Len()), err
		})
		if err != nil {
			return contract.Ciphertexts{}, fmt.Errorf("splitter split: %w", err)
		}
		return ct, nil
	case 2:
		return contract.Ciphertexts{
			C1:     blobs[0].data,
			C2:     blobs[1].data,
			Source: []contract.FileID{blobs[0].id, blobs[1].id},
		}, nil
	default:
		return contract.Ciphertexts{}, fmt.Errorf("reader: %w: got %d inputs", contract.ErrInvalidInput, len(blobs))
	}
}

// loadTable 经由 Reader 打开频率表并解码；恰好一个表。
func loadTable(ctx context.Context, comp Components, path string) (*bigram.Counts, int64, error) {
	var counts *bigram.Counts
	err := comp.Reader.Iterate(ctx, []string{path}, func(id contract.FileID, rc io.ReadCloser) error {
		c, err := comp.Table.Decode(ctx, id, rc)
		if err != nil {
			return err
		}
		counts = c
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if counts == nil {
		return nil, 0, fmt.Errorf("%w: no table read from %q", contract.ErrTableInvalid, path)
	}
	return counts, int64(counts.Rows()), nil
}

// emit 渲染并写出一份报告。
func emit(ctx context.Context, asm contract.Assembler, w contract.Writer, rec contract.Recovery, id contract.FileID, logger *diag.Logger) error {
	r, err := stage(ctx, logger, "assembler", "assemble", string(id), func(ctx context.Context) (io.Reader, int64, error) {
		r, err := asm.Assemble(ctx, rec)
		return r, int64(len(rec.P1)), err
	})
	if err != nil {
		return fmt.Errorf("assembler assemble: %w", err)
	}
	if _, err := stage(ctx, logger, "writer", "write", string(id), func(ctx context.Context) (struct{}, int64, error) {
		return struct{}{}, 0, w.Write(ctx, id, r)
	}); err != nil {
		return fmt.Errorf("writer write: %w", err)
	}
	return nil
}

// stage 包装单个阶段：start/finish/error 日志、计数/耗时指标与子 span。
// fn 返回值中的 int64 作为 finish 事件的 count。
func stage[T any](ctx context.Context, logger *diag.Logger, comp, msg, input string, fn func(context.Context) (T, int64, error)) (T, error) {
	ctx, span := diag.Tracer().Start(ctx, comp+"."+msg, trace.WithAttributes(attribute.String("input", input)))
	defer span.End()
	tm := logger.StartWith(comp, msg, input)
	v, n, err := fn(ctx)
	if err != nil {
		code := diag.Classify(err)
		logger.ErrorWith(comp, string(code), msg+" failed", tm.Started(), input)
		diag.IncOp(comp, "error", "error")
		if code != diag.CodeUnknown {
			diag.IncError(comp, string(code))
		}
		markSpan(span, err)
		return v, err
	}
	tm.Finish(msg, n)
	diag.IncOp(comp, "finish", "success")
	diag.ObserveDuration(comp, msg, tm.Since().Milliseconds())
	span.SetAttributes(attribute.Int64("count", n))
	return v, nil
}

func markSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(diag.Classify(err)))
	return err
}

// progress 把引擎回调转发到终端、指标与 debug 日志。
type progress struct {
	logger *diag.Logger

	mu   sync.Mutex
	done int
	best float64
}

func newProgress(logger *diag.Logger, s *score.Scorer, diff []byte) *progress {
	// 初始最优为全空格基线
	p1 := bytes.Repeat([]byte{' '}, len(diff))
	return &progress{logger: logger, best: s.Combined(p1, anneal.Xor(p1, diff))}
}

func (p *progress) Improved(_ int, s float64) {
	p.mu.Lock()
	p.best = s
	done := p.done
	p.mu.Unlock()
	diag.SetBestScore(s)
	diag.GetTerminal().RestartProgress(done, s)
}

func (p *progress) RestartDone(st anneal.RestartStats) {
	p.mu.Lock()
	p.done++
	done, best := p.done, p.best
	p.mu.Unlock()
	diag.RestartDone(st.Proposed, st.Accepted)
	p.logger.DebugRestart("anneal", "restart done", st.Restart, st.Accepted, map[string]string{
		"best":     formatScore(st.Best),
		"final":    formatScore(st.Final),
		"proposed": strconv.FormatInt(st.Proposed, 10),
	})
	diag.GetTerminal().RestartProgress(done, best)
}

func formatScore(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func joinSource(ids []contract.FileID) string {
	switch len(ids) {
	case 0:
		return ""
	case 1:
		return string(ids[0])
	}
	var b bytes.Buffer
	for i, id := range ids {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(string(id))
	}
	return b.String()
}
