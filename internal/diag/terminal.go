package diag

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/time/rate"
)

// Terminal: 终端信息提示（非日志）。
// - 输出到提供的 io.Writer（默认建议 stderr）。
// - TTY: 单行 \r 覆盖；非 TTY: 关键节点分行打印。
// - 并发安全；写失败后进入禁用态为 no-op。
type Terminal struct {
	w       io.Writer
	enabled bool
	isTTY   bool

	workers  int
	restarts int
	length   int
	runStart time.Time

	done int
	best float64

	lastLen  int
	throttle *rate.Sometimes

	mu sync.Mutex
}

// 进程级终端（可选，全局设置后供 pipeline 旁路调用）。
var (
	termMu sync.RWMutex
	term   *Terminal
)

// SetTerminal 设置全局终端指针（nil 可清除）。
func SetTerminal(t *Terminal) { termMu.Lock(); term = t; termMu.Unlock() }

// GetTerminal 返回全局终端（可能为 nil）。
func GetTerminal() *Terminal { termMu.RLock(); defer termMu.RUnlock(); return term }

// NewTerminal 构造终端提示器。enabled=false 时总是 no-op。
func NewTerminal(w io.Writer, enabled bool) *Terminal {
	if w == nil {
		w = os.Stderr
	}
	t := &Terminal{w: w, enabled: enabled, throttle: newThrottle()}
	// CI 环境视为非 TTY
	if os.Getenv("CI") == "" {
		if f, ok := w.(*os.File); ok {
			t.isTTY = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
	return t
}

// 进度刷新节流：100ms
func newThrottle() *rate.Sometimes { return &rate.Sometimes{Interval: 100 * time.Millisecond} }

// RunStart: 记录运行上下文。
func (t *Terminal) RunStart(workers, restarts, length int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.workers, t.restarts, t.length = workers, restarts, length
	t.done = 0
	t.runStart = time.Now()
	t.throttle = newThrottle()
	t.println(fmt.Sprintf("[run] 并发=%d | 重启=%d | 长度=%d", workers, restarts, length))
}

// Input: 打点一条输入（非 TTY 与 TTY 均输出）。
func (t *Terminal) Input(fileID string, size int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	t.println(fmt.Sprintf("[input] %s | 字节=%d", shortenBase(fileID, 48), size))
}

// RestartProgress: 周期性进度（仅 TTY，100ms 节流）。
func (t *Terminal) RestartProgress(done int, best float64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled || !t.isTTY {
		return
	}
	t.done = done
	t.best = best
	t.throttle.Do(func() {
		t.printInline(fmt.Sprintf("[search] 重启 %d/%d | 最优 %.2f | 并发 %d | 用时 %s",
			t.done, t.restarts, t.best, t.workers, formatSince(t.runStart)))
	})
}

// RunFinish: 结束总览（立即刷新并换行）。
func (t *Terminal) RunFinish(ok bool, dur time.Duration, best float64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	if t.isTTY && t.lastLen > 0 {
		t.printInline("")
	}
	if !ok {
		t.println(fmt.Sprintf("[fail] 未完成 | 总用时 %s", formatDur(dur)))
		return
	}
	t.println(fmt.Sprintf("[ok] 完成 | 最优 %.2f | 总用时 %s", best, formatDur(dur)))
}

func (t *Terminal) println(s string) {
	if t == nil || !t.enabled {
		return
	}
	if _, err := io.WriteString(t.w, s+"\n"); err != nil {
		// 写失败即禁用
		t.enabled = false
	}
	t.lastLen = 0
}

func (t *Terminal) printInline(s string) {
	if t == nil || !t.enabled {
		return
	}
	// 清尾：若新行比旧短，填充空格覆盖
	pad := 0
	if l := visLen(s); t.lastLen > l {
		pad = t.lastLen - l
	}
	var b strings.Builder
	b.WriteByte('\r')
	b.WriteString(s)
	b.WriteString(strings.Repeat(" ", pad))
	if _, err := io.WriteString(t.w, b.String()); err != nil {
		t.enabled = false
		return
	}
	t.lastLen = visLen(s)
}

// shortenBase: 取基名并按可见宽度截断（尾部省略号）。
func shortenBase(s string, max int) string {
	if max <= 0 {
		return ""
	}
	base := filepath.Base(strings.TrimSpace(s))
	if visLen(base) <= max {
		return base
	}
	cut := max - 1
	if cut < 1 {
		cut = 1
	}
	return string([]rune(base)[:cut]) + "…"
}

func visLen(s string) int { return len([]rune(s)) }

func formatSince(t0 time.Time) string { return formatDur(time.Since(t0)) }

func formatDur(d time.Duration) string {
	if d < time.Second {
		ms := d.Milliseconds()
		if ms < 0 {
			ms = 0
		}
		return fmt.Sprintf("%dms", ms)
	}
	// 秒，保留 1 位小数
	return fmt.Sprintf("%.1fs", float64(d.Milliseconds())/1000.0)
}
