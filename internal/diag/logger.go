package diag

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// 级别定义
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Logger 为最小结构化日志器：单行 JSON 写入轮转文件；sink 为空或写失败时写 fallback（默认 stderr）。
// nil *Logger 的所有方法为 no-op。
type Logger struct {
	corrID   string
	level    Level
	sink     *RotatingFile
	fallback io.Writer
	mu       sync.Mutex
}

// NewLogger 以 level 初始化；dir 非空时写入 dir/ttpcrack-current.txt（10MiB 轮转），否则仅写 stderr。
// corrID 为空时生成 UUID。
func NewLogger(corrID, level, dir string) *Logger {
	if strings.TrimSpace(corrID) == "" {
		corrID = NewCorrID()
	}
	l := &Logger{corrID: corrID, level: ParseLevel(level), fallback: os.Stderr}
	if strings.TrimSpace(dir) != "" {
		l.sink = NewRotatingFile(dir, 10*1024*1024)
	}
	return l
}

// NewCorrID 生成运行关联 ID。
func NewCorrID() string { return uuid.NewString() }

// ParseLevel 解析级别；未知值按 info。
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "warn":
		return Warn
	case "error":
		return Error
	default:
		return Info
	}
}

// CorrID 返回关联 ID。
func (l *Logger) CorrID() string {
	if l == nil {
		return ""
	}
	return l.corrID
}

// SetFallback 替换后备输出（测试用）。
func (l *Logger) SetFallback(w io.Writer) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.fallback = w
	l.mu.Unlock()
}

// Close 关闭文件 sink。
func (l *Logger) Close() error {
	if l == nil || l.sink == nil {
		return nil
	}
	return l.sink.Close()
}

// Event 为标准事件结构。
type Event struct {
	Level   string            `json:"level"`
	TS      string            `json:"ts"`
	CorrID  string            `json:"corr_id"`
	Comp    string            `json:"comp"`
	Stage   string            `json:"stage"` // start|finish|error|event
	Code    string            `json:"code,omitempty"`
	DurMS   int64             `json:"dur_ms,omitempty"`
	Count   int64             `json:"count,omitempty"`
	Input   string            `json:"input,omitempty"`
	Restart *int              `json:"restart,omitempty"`
	Msg     string            `json:"msg"`
	KV      map[string]string `json:"kv,omitempty"`
}

func (l *Logger) log(lv Level, ev Event) {
	if l == nil || lv < l.level {
		return
	}
	ev.Level = lv.String()
	ev.TS = NowUTC()
	ev.CorrID = l.corrID
	b, _ := json.Marshal(ev)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		_, _ = l.fallback.Write(append(b, '\n'))
		return
	}
	if err := l.sink.WriteLine(b); err != nil {
		fmt.Fprintf(l.fallback, "logger sink error: %v\n", err)
		_, _ = l.fallback.Write(append(b, '\n'))
	}
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer {
	return l.StartWithKV(comp, msg, "", nil)
}

// StartWith 记录带 input 的 start。
func (l *Logger) StartWith(comp, msg, input string) *Timer {
	return l.StartWithKV(comp, msg, input, nil)
}

// StartWithKV 记录带 input 与键值的 start。
func (l *Logger) StartWithKV(comp, msg, input string, kv map[string]string) *Timer {
	l.log(Info, Event{Comp: comp, Stage: "start", Input: input, Msg: msg, KV: kv})
	return &Timer{l: l, comp: comp, input: input, t0: time.Now()}
}

// Error 记录 error 事件。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWithKV(comp, code, msg, durSince, "", nil)
}

// ErrorWith 支持 input。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, input string) {
	l.ErrorWithKV(comp, code, msg, durSince, input, nil)
}

// ErrorWithKV 支持附带键值对。
func (l *Logger) ErrorWithKV(comp, code, msg string, durSince *time.Time, input string, kv map[string]string) {
	var dur int64
	if durSince != nil {
		dur = time.Since(*durSince).Milliseconds()
	}
	l.log(Error, Event{Comp: comp, Stage: "error", Code: code, DurMS: dur, Msg: msg, Input: input, KV: kv})
}

// Info 记录一般事件。
func (l *Logger) Info(comp, msg string, kv map[string]string) {
	l.log(Info, Event{Comp: comp, Stage: "event", Msg: msg, KV: kv})
}

// Warn 记录告警事件。
func (l *Logger) Warn(comp, msg string, kv map[string]string) {
	l.log(Warn, Event{Comp: comp, Stage: "event", Msg: msg, KV: kv})
}

// InfoFinish 在已有起点的情况下记录 finish。
func (l *Logger) InfoFinish(comp, msg string, start time.Time, count int64) {
	l.log(Info, Event{Comp: comp, Stage: "finish", DurMS: time.Since(start).Milliseconds(), Count: count, Msg: msg})
}

// DebugRestart 输出单次重启的调试事件（仅 level=debug 时生效）。
func (l *Logger) DebugRestart(comp, msg string, restart int, count int64, kv map[string]string) {
	r := restart
	l.log(Debug, Event{Comp: comp, Stage: "event", Restart: &r, Count: count, Msg: msg, KV: kv})
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l     *Logger
	comp  string
	input string
	t0    time.Time
}

// Finish 记录 finish；可选 count。
func (t *Timer) Finish(msg string, count int64) {
	t.FinishKV(msg, count, nil)
}

// FinishKV 记录带键值的 finish。
func (t *Timer) FinishKV(msg string, count int64, kv map[string]string) {
	if t == nil || t.l == nil {
		return
	}
	t.l.log(Info, Event{Comp: t.comp, Stage: "finish", DurMS: time.Since(t.t0).Milliseconds(), Count: count, Input: t.input, Msg: msg, KV: kv})
}

// Since 返回自 start 起的耗时。
func (t *Timer) Since() time.Duration {
	if t == nil {
		return 0
	}
	return time.Since(t.t0)
}

// Started 返回起点（用于 Error 的 durSince）。
func (t *Timer) Started() *time.Time {
	if t == nil {
		return nil
	}
	t0 := t.t0
	return &t0
}
