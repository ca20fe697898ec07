package anneal

import (
	"bytes"
	"context"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ttpcrack/pkg/bigram"
	"ttpcrack/pkg/score"
)

// trainedScorer 以样本文本的相邻对计数训练模型。
func trainedScorer(t testing.TB, lex score.Lexicon, samples ...string) *score.Scorer {
	t.Helper()
	raw := map[[2]int]float64{}
	for _, s := range samples {
		for i := 0; i+1 < len(s); i++ {
			a, okA := bigram.Index(s[i])
			b, okB := bigram.Index(s[i+1])
			if okA && okB {
				raw[[2]int{a, b}]++
			}
		}
	}
	c := bigram.NewCounts()
	for k, v := range raw {
		c.Add(string(bigram.Symbol(k[0])), string(bigram.Symbol(k[1])), v)
	}
	s, err := score.New(bigram.New(c, bigram.DefaultFloor), score.Options{Penalty: score.DefaultPenalty, Lexicon: lex})
	require.NoError(t, err)
	return s
}

func pad(s string, n int) []byte {
	return []byte(s + strings.Repeat(" ", n-len(s)))
}

func smallConfig(seed uint64) Config {
	cfg := DefaultConfig()
	cfg.Restarts = 4
	cfg.Iterations = 800
	cfg.Seed = seed
	return cfg
}

type recorder struct {
	mu       sync.Mutex
	improved []float64
	restarts []RestartStats
}

func (r *recorder) Improved(_ int, s float64) {
	r.mu.Lock()
	r.improved = append(r.improved, s)
	r.mu.Unlock()
}

func (r *recorder) RestartDone(st RestartStats) {
	r.mu.Lock()
	r.restarts = append(r.restarts, st)
	r.mu.Unlock()
}

func TestXorIdentity(t *testing.T) {
	s := trainedScorer(t, score.DefaultLexicon(), "the quick brown fox", "jumps over the lazy dog")
	c1 := []byte{0x13, 0x99, 0x00, 0x42, 0xfe, 0x7a, 0x10, 0x20, 0x35}
	c2 := []byte{0x55, 0x01, 0x7f, 0x42, 0x3c, 0x0a, 0x61, 0x02, 0x44}
	diff := Xor(c1, c2)
	e, err := New(smallConfig(7), s)
	require.NoError(t, err)
	res, err := e.Run(context.Background(), diff)
	require.NoError(t, err)
	require.Len(t, res.P1, len(diff))
	require.Len(t, res.P2, len(diff))
	assert.Equal(t, diff, Xor(res.P1, res.P2))
	// p1 只含字母表字节
	for _, b := range res.P1 {
		assert.Contains(t, DefaultAlphabet, string(b))
	}
	assert.InDelta(t, s.Combined(res.P1, res.P2), res.Score, 1e-9)
}

func TestDeterministicWithSeed(t *testing.T) {
	s := trainedScorer(t, score.DefaultLexicon(), "the cat sat on the mat")
	diff := Xor(pad("THE CAT SAT", 12), []byte("A DOG RAN IN"))
	run := func(workers int) Result {
		cfg := smallConfig(42)
		cfg.Workers = workers
		e, err := New(cfg, s)
		require.NoError(t, err)
		res, err := e.Run(context.Background(), diff)
		require.NoError(t, err)
		return res
	}
	a, b := run(1), run(1)
	assert.Equal(t, a, b)
	// 并发执行与顺序执行结果一致
	c := run(3)
	assert.Equal(t, a.P1, c.P1)
	assert.Equal(t, a.Score, c.Score)
	assert.Equal(t, a.Restart, c.Restart)
	assert.Equal(t, a.Accepted, c.Accepted)
}

func TestMonotonicBest(t *testing.T) {
	s := trainedScorer(t, score.DefaultLexicon(), "that was the one", "this will have been")
	diff := Xor(pad("THAT WAS", 10), pad("THIS WILL", 10))
	for _, workers := range []int{1, 4} {
		rec := &recorder{}
		cfg := smallConfig(9)
		cfg.Workers = workers
		e, err := New(cfg, s, WithObserver(rec))
		require.NoError(t, err)
		res, err := e.Run(context.Background(), diff)
		require.NoError(t, err)

		require.NotEmpty(t, rec.improved)
		for i := 1; i < len(rec.improved); i++ {
			assert.GreaterOrEqual(t, rec.improved[i], rec.improved[i-1], "workers=%d step %d", workers, i)
		}
		assert.Equal(t, res.Score, rec.improved[len(rec.improved)-1])
		assert.Len(t, rec.restarts, cfg.Restarts)
		for _, st := range rec.restarts {
			assert.LessOrEqual(t, st.Best, res.Score)
			assert.Equal(t, int64(cfg.Iterations), st.Proposed)
		}
	}
}

func TestEmptyInput(t *testing.T) {
	s := trainedScorer(t, score.DefaultLexicon(), "abc")
	e, err := New(DefaultConfig(), s)
	require.NoError(t, err)
	res, err := e.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, res.P1)
	assert.Empty(t, res.P2)
	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, int64(0), res.Proposed)
}

// 没有迭代时返回全空格基线
func TestZeroIterationsBaseline(t *testing.T) {
	s := trainedScorer(t, score.DefaultLexicon(), "abc")
	cfg := DefaultConfig()
	cfg.Iterations = 0
	e, err := New(cfg, s)
	require.NoError(t, err)
	diff := []byte{1, 2, 3}
	res, err := e.Run(context.Background(), diff)
	require.NoError(t, err)
	assert.Equal(t, []byte("   "), res.P1)
	assert.Equal(t, -1, res.Restart)
	assert.Equal(t, res.Baseline, res.Score)
}

// 场景：同一密钥加密的两段已知明文
func TestKnownPlaintextScenario(t *testing.T) {
	pt1, pt2 := pad("THE CAT SAT", 12), []byte("A DOG RAN IN")
	lex := score.NewLexicon([]string{"the", "cat", "sat", "dog", "ran"}, score.DefaultWordWeight)
	s := trainedScorer(t, lex, string(pt1), string(pt2), "the cat ran in", "a dog sat")
	diff := Xor(pt1, pt2)

	cfg := DefaultConfig()
	cfg.Restarts = 10
	cfg.Iterations = 5000
	cfg.Seed = 2024
	cfg.Workers = 4
	e, err := New(cfg, s)
	require.NoError(t, err)
	res, err := e.Run(context.Background(), diff)
	require.NoError(t, err)

	assert.Equal(t, diff, Xor(res.P1, res.P2))
	assert.Greater(t, res.Score, res.Baseline)
	truth := s.Combined(pt1, pt2)
	exact := (bytes.EqualFold(res.P1, pt1) && bytes.EqualFold(res.P2, pt2)) ||
		(bytes.EqualFold(res.P1, pt2) && bytes.EqualFold(res.P2, pt1))
	t.Logf("recovered %q / %q score=%.2f truth=%.2f baseline=%.2f", res.P1, res.P2, res.Score, truth, res.Baseline)
	assert.True(t, exact, "应恢复出原明文对: %q / %q", res.P1, res.P2)
	assert.InDelta(t, truth, res.Score, 1e-9)
}

// 短明文在小空间内应被精确恢复（大小写可整体翻转、两段可互换）
func TestRecoversShortPair(t *testing.T) {
	pt1, pt2 := []byte("THE"), []byte("CAT")
	lex := score.NewLexicon([]string{"the", "cat"}, score.DefaultWordWeight)
	s := trainedScorer(t, lex, "THE", "CAT")
	diff := Xor(pt1, pt2)

	cfg := DefaultConfig()
	cfg.Restarts = 20
	cfg.Iterations = 5000
	cfg.Seed = 1
	e, err := New(cfg, s)
	require.NoError(t, err)
	res, err := e.Run(context.Background(), diff)
	require.NoError(t, err)

	ok := (bytes.EqualFold(res.P1, pt1) && bytes.EqualFold(res.P2, pt2)) ||
		(bytes.EqualFold(res.P1, pt2) && bytes.EqualFold(res.P2, pt1))
	assert.True(t, ok, "recovered %q / %q", res.P1, res.P2)
	assert.InDelta(t, s.Combined(pt1, pt2), res.Score, 1e-9)
}

func TestRunCanceled(t *testing.T) {
	s := trainedScorer(t, score.DefaultLexicon(), "abc")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, w := range []int{1, 2} {
		cfg := smallConfig(1)
		cfg.Workers = w
		e, err := New(cfg, s)
		require.NoError(t, err)
		_, err = e.Run(ctx, []byte{1, 2, 3})
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestConfigValidation(t *testing.T) {
	s := trainedScorer(t, nil, "abc")
	bad := []func(*Config){
		func(c *Config) { c.Restarts = 0 },
		func(c *Config) { c.Iterations = -1 },
		func(c *Config) { c.Alphabet = nil },
		func(c *Config) { c.MinTemperature = 0 },
		func(c *Config) { c.MinTemperature = 2 },
	}
	for i, mut := range bad {
		cfg := DefaultConfig()
		mut(&cfg)
		_, err := New(cfg, s)
		assert.ErrorIs(t, err, ErrConfig, "case %d", i)
	}
	_, err := New(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestTemperatureSchedule(t *testing.T) {
	assert.Equal(t, 1.0, Temperature(0, 100, 0.01))
	assert.InDelta(t, 0.5, Temperature(50, 100, 0.01), 1e-12)
	assert.InDelta(t, 0.01, Temperature(99, 100, 0.01), 1e-12)
	assert.Equal(t, 0.01, Temperature(100, 100, 0.01))
	assert.Equal(t, 0.01, Temperature(0, 0, 0.01))
	assert.False(t, math.IsNaN(Temperature(0, 0, 0.01)))
}
