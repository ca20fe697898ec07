package anneal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"golang.org/x/sync/errgroup"

	"ttpcrack/pkg/score"
)

// 模拟退火 + 随机重启：
// - 每次重启从全空格候选开始，逐字节随机变异并按 Metropolis 准则接受/回滚；
// - 温度线性下降 T = max(MinTemperature, 1 - it/Iterations)；
// - 每次重启使用独立的随机源 PCG(Seed, restart)，结果与 Workers 无关；
// - 全局最优仅在“严格更高”时更新，分数相同按重启序号较小者优先。

// DefaultAlphabet: 搜索允许提出的明文字节。
const DefaultAlphabet = " ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	DefaultRestarts       = 20
	DefaultIterations     = 3000
	DefaultMinTemperature = 0.01
)

// ctx 检查间隔（迭代数）
const cancelCheckEvery = 1024

// ErrConfig: 搜索参数非法。
var ErrConfig = errors.New("anneal: invalid config")

// Config 为搜索参数。
type Config struct {
	Restarts       int
	Iterations     int
	Alphabet       []byte
	MinTemperature float64
	// Workers<=1 表示顺序执行。
	Workers int
	Seed    uint64
}

// DefaultConfig 返回默认参数（Seed 需调用方显式给出）。
func DefaultConfig() Config {
	return Config{
		Restarts:       DefaultRestarts,
		Iterations:     DefaultIterations,
		Alphabet:       []byte(DefaultAlphabet),
		MinTemperature: DefaultMinTemperature,
		Workers:        1,
	}
}

func (c Config) validate() error {
	if c.Restarts < 1 {
		return fmt.Errorf("%w: restarts must be >= 1", ErrConfig)
	}
	if c.Iterations < 0 {
		return fmt.Errorf("%w: iterations must be >= 0", ErrConfig)
	}
	if len(c.Alphabet) == 0 {
		return fmt.Errorf("%w: empty alphabet", ErrConfig)
	}
	if !(c.MinTemperature > 0) || c.MinTemperature > 1 {
		return fmt.Errorf("%w: min_temperature must be in (0,1]", ErrConfig)
	}
	return nil
}

// Temperature 返回第 it 次迭代（共 n 次）的温度。
func Temperature(it, n int, floor float64) float64 {
	if n <= 0 {
		return floor
	}
	return math.Max(floor, 1.0-float64(it)/float64(n))
}

// Result 为一次运行的全局最优。
type Result struct {
	P1, P2 []byte
	Score  float64
	// Baseline: 全空格候选的得分
	Baseline float64
	// Restart: 产生最优的重启序号；-1 表示没有任何被接受的变异（取基线）
	Restart  int
	Proposed int64
	Accepted int64
}

// RestartStats 为单次重启的统计。
type RestartStats struct {
	Restart  int
	Best     float64
	Final    float64
	Proposed int64
	Accepted int64
}

// Observer 接收进度回调；实现需并发安全（Workers>1 时并发调用）。
type Observer interface {
	// Improved 在全局最优被刷新时调用；score 单调不降。
	Improved(restart int, score float64)
	// RestartDone 在每次重启结束时调用。
	RestartDone(st RestartStats)
}

// Engine 为搜索引擎；可重复 Run。
type Engine struct {
	cfg    Config
	scorer *score.Scorer
	obs    Observer
}

// Option 为可选项。
type Option func(*Engine)

// WithObserver 设置进度回调。
func WithObserver(o Observer) Option { return func(e *Engine) { e.obs = o } }

// New 构造搜索引擎。
func New(cfg Config, s *score.Scorer, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil scorer", ErrConfig)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Alphabet = append([]byte(nil), cfg.Alphabet...)
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	e := &Engine{cfg: cfg, scorer: s}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Config 返回生效参数。
func (e *Engine) Config() Config { return e.cfg }

// Run 在差分数组 diff 上搜索最优明文对。diff 只读。
func (e *Engine) Run(ctx context.Context, diff []byte) (Result, error) {
	k := len(diff)
	base := make([]byte, k)
	for i := range base {
		base[i] = ' '
	}
	baseP2 := xorBytes(base, diff)
	baseline := e.scorer.Combined(base, baseP2)
	res := Result{P1: base, P2: baseP2, Score: baseline, Baseline: baseline, Restart: -1}
	if k == 0 {
		return res, nil
	}

	g := &globalBest{restart: -1, obs: e.obs}
	out := make([]restartResult, e.cfg.Restarts)
	if e.cfg.Workers <= 1 {
		for r := 0; r < e.cfg.Restarts; r++ {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			rr, err := e.restart(ctx, r, diff, g)
			if err != nil {
				return Result{}, err
			}
			out[r] = rr
		}
	} else {
		eg, gctx := errgroup.WithContext(ctx)
		eg.SetLimit(e.cfg.Workers)
		for r := 0; r < e.cfg.Restarts; r++ {
			eg.Go(func() error {
				rr, err := e.restart(gctx, r, diff, g)
				if err != nil {
					return err
				}
				out[r] = rr
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return Result{}, err
		}
	}

	for r := range out {
		res.Proposed += out[r].proposed
		res.Accepted += out[r].accepted
	}
	// 合并：严格更高者胜，平分取较小序号（与顺序执行的“严格大于才更新”等价）
	best := -1
	for r := range out {
		if !out[r].found {
			continue
		}
		if best < 0 || out[r].score > out[best].score {
			best = r
		}
	}
	if best >= 0 {
		res.P1 = out[best].p1
		res.P2 = xorBytes(out[best].p1, diff)
		res.Score = out[best].score
		res.Restart = best
	}
	return res, nil
}

type restartResult struct {
	found    bool
	p1       []byte
	score    float64
	proposed int64
	accepted int64
}

// restart 执行一次完整的重启；候选与 p2 原地变异、拒绝时回滚。
func (e *Engine) restart(ctx context.Context, r int, diff []byte, g *globalBest) (restartResult, error) {
	k := len(diff)
	n := e.cfg.Iterations
	alpha := e.cfg.Alphabet
	rng := rand.New(rand.NewPCG(e.cfg.Seed, uint64(r)))

	p1 := make([]byte, k)
	for i := range p1 {
		p1[i] = ' '
	}
	p2 := xorBytes(p1, diff)
	cur := e.scorer.Combined(p1, p2)

	var rr restartResult
	bestLocal := math.Inf(-1)
	for it := 0; it < n; it++ {
		if it%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return rr, err
			}
		}
		i := rng.IntN(k)
		old := p1[i]
		p1[i] = alpha[rng.IntN(len(alpha))]
		p2[i] = p1[i] ^ diff[i]
		rr.proposed++

		next := e.scorer.Combined(p1, p2)
		delta := next - cur
		t := Temperature(it, n, e.cfg.MinTemperature)
		if delta >= 0 || rng.Float64() < math.Exp(delta/t) {
			cur = next
			rr.accepted++
			if next > bestLocal {
				bestLocal = next
				rr.found = true
				rr.score = next
				rr.p1 = append(rr.p1[:0], p1...)
				g.offer(r, next)
			}
			continue
		}
		p1[i] = old
		p2[i] = old ^ diff[i]
	}
	if e.obs != nil {
		e.obs.RestartDone(RestartStats{Restart: r, Best: bestLocal, Final: cur, Proposed: rr.proposed, Accepted: rr.accepted})
	}
	return rr, nil
}

// globalBest 为跨重启共享的唯一可变状态，仅用于实时上报。
type globalBest struct {
	mu      sync.Mutex
	score   float64
	restart int
	obs     Observer
}

func (g *globalBest) offer(r int, s float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.restart >= 0 && (s < g.score || (s == g.score && r >= g.restart)) {
		return
	}
	g.score = s
	g.restart = r
	if g.obs != nil {
		g.obs.Improved(r, s)
	}
}

// Xor 返回 a XOR b（按较短者长度）。
func Xor(a, b []byte) []byte { return xorBytes(a, b) }

func xorBytes(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}
