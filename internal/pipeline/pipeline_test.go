package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"sync"
	"testing"

	"ttpcrack/internal/diag"
	"ttpcrack/pkg/anneal"
	"ttpcrack/pkg/bigram"
	"ttpcrack/pkg/contract"
	"ttpcrack/pkg/score"
	atext "ttpcrack/plugins/assembler/text"
	ajson "ttpcrack/plugins/assembler/jsonreport"
	dcsv "ttpcrack/plugins/decoder/csvtable"
	"ttpcrack/plugins/splitter/halves"
)

// 通用桩件 ----------------------------------------------------

// memReader 按名称返回内存中的内容；未知名称返回 fs.ErrNotExist。
type memReader map[string][]byte

func (m memReader) Iterate(ctx context.Context, inputs []string, yield func(contract.FileID, io.ReadCloser) error) error {
	for _, in := range inputs {
		b, ok := m[in]
		if !ok {
			return fmt.Errorf("open %s: %w", in, fs.ErrNotExist)
		}
		if err := yield(contract.FileID(in), io.NopCloser(bytes.NewReader(b))); err != nil {
			return err
		}
	}
	return nil
}

// countingTable 记录调用次数，委托给 CSV 解码器。
type countingTable struct {
	calls int
	inner contract.TableDecoder
}

func (c *countingTable) Decode(ctx context.Context, id contract.FileID, r io.Reader) (*bigram.Counts, error) {
	c.calls++
	return c.inner.Decode(ctx, id, r)
}

type memWriter struct {
	mu  sync.Mutex
	out map[contract.FileID]string
}

func (w *memWriter) Write(ctx context.Context, id contract.FileID, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		w.out = map[contract.FileID]string{}
	}
	w.out[id] = string(b)
	return nil
}

type failWriter struct{}

func (failWriter) Write(ctx context.Context, id contract.FileID, r io.Reader) error {
	return fmt.Errorf("write %s: %w", id, fs.ErrPermission)
}

// 以常见英文相邻对构造的小频率表
const tableCSV = ",A,C,D,E,G,H,N,O,R,S,T, \n" +
	"T,0,0,0,5,0,9,0,2,1,0,0,3\n" +
	"H,3,0,0,8,0,0,0,1,0,0,0,1\n" +
	"E,1,0,2,0,0,0,3,0,4,2,1,6\n" +
	"A,0,2,1,0,1,0,4,0,2,2,4,2\n" +
	"C,3,0,0,0,0,0,0,2,0,0,0,0\n" +
	"D,0,0,0,1,0,0,0,2,0,0,0,4\n" +
	"O,0,0,0,0,1,0,3,0,2,0,0,2\n" +
	"N,0,0,1,1,0,0,0,0,0,0,1,3\n" +
	"R,1,0,0,3,0,0,0,1,0,0,0,2\n" +
	"S,1,0,0,0,0,0,0,0,0,0,2,3\n" +
	"G,0,0,0,0,0,0,0,0,0,0,0,3\n" +
	" ,4,2,2,0,0,1,0,0,0,0,6,0\n"

func xorWith(p []byte, key []byte) []byte {
	out := make([]byte, len(p))
	for i := range p {
		out[i] = p[i] ^ key[i%len(key)]
	}
	return out
}

func testKey() []byte { return []byte{0x5a, 0x13, 0xc7, 0x81, 0x2e, 0x99, 0x04, 0x6b} }

func newComponents(t testing.TB, files memReader) (Components, *memWriter, *countingTable) {
	t.Helper()
	tbl, err := dcsv.New(nil)
	if err != nil {
		t.Fatalf("csv 解码器: %v", err)
	}
	asm, err := atext.New(nil)
	if err != nil {
		t.Fatalf("text 装配器: %v", err)
	}
	side, err := ajson.New(nil)
	if err != nil {
		t.Fatalf("json 装配器: %v", err)
	}
	ct := &countingTable{inner: tbl}
	w := &memWriter{}
	return Components{
		Reader:    files,
		Splitter:  halves.New(nil),
		Table:     ct,
		Assembler: asm,
		Sidecar:   side,
		Writer:    w,
	}, w, ct
}

func newSettings(inputs ...string) Settings {
	cfg := anneal.DefaultConfig()
	cfg.Restarts = 3
	cfg.Iterations = 600
	cfg.Seed = 11
	return Settings{
		Inputs:  inputs,
		Table:   "ftable.csv",
		Output:  "out.txt",
		Search:  cfg,
		Floor:   bigram.DefaultFloor,
		Scoring: score.DefaultOptions(),
	}
}

// UT-PIP-01: 两个文件输入，报告落盘且满足 XOR 不变量
func TestRunTwoFiles(t *testing.T) {
	p1, p2 := []byte("THE CAT SAT ON"), []byte("A DOG RAN HOME")
	files := memReader{
		"c1.bin":     xorWith(p1, testKey()),
		"c2.bin":     xorWith(p2, testKey()),
		"ftable.csv": []byte(tableCSV),
	}
	comp, w, tbl := newComponents(t, files)
	set := newSettings("c1.bin", "c2.bin")
	set.Sidecar = "out.json"

	logger := diag.NewLogger("pip", "debug", "")
	logger.SetFallback(io.Discard)
	rec, err := Run(context.Background(), comp, set, logger)
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}
	if tbl.calls != 1 {
		t.Fatalf("频率表应只解码一次, 实际 %d", tbl.calls)
	}
	if len(rec.P1) != len(p1) || len(rec.P2) != len(p2) {
		t.Fatalf("长度错误: %d/%d", len(rec.P1), len(rec.P2))
	}
	for i := range rec.P1 {
		if rec.P1[i]^rec.P2[i] != p1[i]^p2[i] {
			t.Fatalf("第 %d 字节不满足 XOR 不变量", i)
		}
	}
	if rec.Seed != 11 || rec.Restarts != 3 {
		t.Fatalf("元信息错误: %+v", rec)
	}
	if len(rec.Source) != 2 || rec.Source[0] != "c1.bin" {
		t.Fatalf("来源错误: %v", rec.Source)
	}
	out := w.out["out.txt"]
	if !strings.HasPrefix(out, "--- Plaintext 1 ---\n") || !strings.Contains(out, "\n\n--- Plaintext 2 ---\n") {
		t.Fatalf("报告格式错误: %q", out)
	}
	if !strings.Contains(w.out["out.json"], `"sources"`) {
		t.Fatalf("边车缺失或不完整: %q", w.out["out.json"])
	}
}

// UT-PIP-02: 单个 blob 对半切分
func TestRunSingleBlob(t *testing.T) {
	p1, p2 := []byte("AND THE ONE"), []byte("TO HAVE HAD")
	blob := append(xorWith(p1, testKey()), xorWith(p2, testKey())...)
	comp, w, _ := newComponents(t, memReader{"blob.bin": blob, "ftable.csv": []byte(tableCSV)})
	rec, err := Run(context.Background(), comp, newSettings("blob.bin"), nil)
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}
	if len(rec.P1) != len(p1) {
		t.Fatalf("长度错误: %d", len(rec.P1))
	}
	if len(rec.Source) != 1 || rec.Source[0] != "blob.bin" {
		t.Fatalf("来源错误: %v", rec.Source)
	}
	if _, ok := w.out["out.txt"]; !ok {
		t.Fatal("未写出报告")
	}
}

// UT-PIP-03: 长度不等在读取频率表之前失败
func TestRunLengthMismatchBeforeTable(t *testing.T) {
	comp, w, tbl := newComponents(t, memReader{
		"c1.bin":     []byte("abcd"),
		"c2.bin":     []byte("abc"),
		"ftable.csv": []byte(tableCSV),
	})
	_, err := Run(context.Background(), comp, newSettings("c1.bin", "c2.bin"), nil)
	if !errors.Is(err, contract.ErrLengthMismatch) {
		t.Fatalf("应返回长度错误, got %v", err)
	}
	if tbl.calls != 0 {
		t.Fatalf("不应加载频率表")
	}
	if len(w.out) != 0 {
		t.Fatalf("不应写出任何工件")
	}
}

// UT-PIP-04: 奇数长度 blob
func TestRunOddBlob(t *testing.T) {
	comp, _, tbl := newComponents(t, memReader{"blob.bin": []byte("abcde"), "ftable.csv": []byte(tableCSV)})
	_, err := Run(context.Background(), comp, newSettings("blob.bin"), nil)
	if !errors.Is(err, contract.ErrLengthMismatch) || tbl.calls != 0 {
		t.Fatalf("应在切分阶段失败, got %v calls=%d", err, tbl.calls)
	}
}

// UT-PIP-05: 频率表不可用
func TestRunTableErrors(t *testing.T) {
	files := memReader{"c1.bin": []byte("ab"), "c2.bin": []byte("cd"), "bad.csv": []byte("\n\n")}
	comp, _, _ := newComponents(t, files)
	set := newSettings("c1.bin", "c2.bin")

	set.Table = "bad.csv"
	if _, err := Run(context.Background(), comp, set, nil); !errors.Is(err, contract.ErrTableInvalid) {
		t.Fatalf("空表应返回 ErrTableInvalid, got %v", err)
	}
	set.Table = "missing.csv"
	_, err := Run(context.Background(), comp, set, nil)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("缺失表应返回 ErrNotExist, got %v", err)
	}
}

// UT-PIP-06: 组件/输入约束
func TestRunSanity(t *testing.T) {
	comp, _, _ := newComponents(t, memReader{})
	if _, err := Run(context.Background(), comp, newSettings("a", "b", "c"), nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("三个输入应失败, got %v", err)
	}
	noSplit := comp
	noSplit.Splitter = nil
	if _, err := Run(context.Background(), noSplit, newSettings("a"), nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("单输入缺少 splitter 应失败, got %v", err)
	}
	set := newSettings("a", "b")
	set.Sidecar = set.Output
	if _, err := Run(context.Background(), comp, set, nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("边车与输出同名应失败, got %v", err)
	}
	if _, err := Run(context.Background(), Components{}, newSettings("a"), nil); err == nil {
		t.Fatal("空组件应失败")
	}
}

// UT-PIP-07: 搜索参数非法在搜索前失败
func TestRunBadSearchConfig(t *testing.T) {
	comp, w, _ := newComponents(t, memReader{"c1.bin": []byte("ab"), "c2.bin": []byte("cd"), "ftable.csv": []byte(tableCSV)})
	set := newSettings("c1.bin", "c2.bin")
	set.Search.Restarts = 0
	if _, err := Run(context.Background(), comp, set, nil); !errors.Is(err, anneal.ErrConfig) {
		t.Fatalf("应返回 ErrConfig, got %v", err)
	}
	set = newSettings("c1.bin", "c2.bin")
	set.Scoring.Penalty = 0
	if _, err := Run(context.Background(), comp, set, nil); !errors.Is(err, score.ErrOptions) {
		t.Fatalf("应返回 ErrOptions, got %v", err)
	}
	if len(w.out) != 0 {
		t.Fatal("不应写出")
	}
}

// UT-PIP-08: 写出失败向上抛出
func TestRunWriterError(t *testing.T) {
	comp, _, _ := newComponents(t, memReader{"c1.bin": []byte("ab"), "c2.bin": []byte("cd"), "ftable.csv": []byte(tableCSV)})
	comp.Writer = failWriter{}
	_, err := Run(context.Background(), comp, newSettings("c1.bin", "c2.bin"), nil)
	if !errors.Is(err, fs.ErrPermission) {
		t.Fatalf("应返回写出错误, got %v", err)
	}
}

// UT-PIP-09: 取消
func TestRunCanceled(t *testing.T) {
	comp, _, _ := newComponents(t, memReader{"c1.bin": []byte("abcdef"), "c2.bin": []byte("ghijkl"), "ftable.csv": []byte(tableCSV)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, comp, newSettings("c1.bin", "c2.bin"), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("应返回取消错误, got %v", err)
	}
}

// UT-PIP-10: 相同种子输出一致，与并发度无关
func TestRunDeterministic(t *testing.T) {
	files := memReader{
		"c1.bin":     xorWith([]byte("THE RED HEN"), testKey()),
		"c2.bin":     xorWith([]byte("A CAT SAT O"), testKey()),
		"ftable.csv": []byte(tableCSV),
	}
	run := func(workers int) string {
		comp, w, _ := newComponents(t, files)
		set := newSettings("c1.bin", "c2.bin")
		set.Search.Workers = workers
		if _, err := Run(context.Background(), comp, set, nil); err != nil {
			t.Fatalf("运行失败: %v", err)
		}
		return w.out["out.txt"]
	}
	a := run(1)
	if b := run(1); a != b {
		t.Fatalf("同种子输出不一致")
	}
	if c := run(3); a != c {
		t.Fatalf("并发输出与顺序输出不一致")
	}
}

// UT-PIP-11: 空输入产生空报告
func TestRunEmpty(t *testing.T) {
	comp, w, _ := newComponents(t, memReader{"blob.bin": nil, "ftable.csv": []byte(tableCSV)})
	rec, err := Run(context.Background(), comp, newSettings("blob.bin"), nil)
	if err != nil {
		t.Fatalf("运行失败: %v", err)
	}
	if len(rec.P1) != 0 || rec.Score != 0 {
		t.Fatalf("空输入结果错误: %+v", rec)
	}
	if w.out["out.txt"] != "--- Plaintext 1 ---\n\n\n--- Plaintext 2 ---\n\n" {
		t.Fatalf("空报告格式错误: %q", w.out["out.txt"])
	}
}

// UT-PIP-12: Split 写出两段密文
func TestSplit(t *testing.T) {
	comp, w, _ := newComponents(t, memReader{"blob.bin": []byte("abcdefgh")})
	ct, err := Split(context.Background(), comp, "blob.bin", [2]contract.FileID{"file1.bin", "file2.bin"}, nil)
	if err != nil {
		t.Fatalf("切分失败: %v", err)
	}
	if string(ct.C1) != "abcd" || w.out["file1.bin"] != "abcd" || w.out["file2.bin"] != "efgh" {
		t.Fatalf("切分结果错误: %v", w.out)
	}
	if _, err := Split(context.Background(), comp, "blob.bin", [2]contract.FileID{"x", "x"}, nil); !errors.Is(err, contract.ErrInvalidInput) {
		t.Fatalf("同名输出应失败, got %v", err)
	}
	if _, err := Split(context.Background(), comp, "odd", [2]contract.FileID{"a", "b"}, nil); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("缺失输入应失败, got %v", err)
	}
}
