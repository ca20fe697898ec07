package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 进程内私有注册表；一次运行结束后可整体写出为 textfile（node-exporter 格式）。
// - ttpcrack_op_total{comp,stage,result}
// - ttpcrack_error_total{comp,code}
// - ttpcrack_op_duration_ms{comp,stage}
// - ttpcrack_search_*：搜索计数与最优分
var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	opTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ttpcrack_op_total",
		Help: "Pipeline stage operations by result.",
	}, []string{"comp", "stage", "result"})

	errorTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ttpcrack_error_total",
		Help: "Errors by component and classified code.",
	}, []string{"comp", "code"})

	opDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ttpcrack_op_duration_ms",
		Help:    "Stage duration in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"comp", "stage"})

	searchIterations = factory.NewCounter(prometheus.CounterOpts{
		Name: "ttpcrack_search_iterations_total",
		Help: "Mutations proposed by the annealing search.",
	})

	searchAccepted = factory.NewCounter(prometheus.CounterOpts{
		Name: "ttpcrack_search_accepted_total",
		Help: "Mutations accepted by the annealing search.",
	})

	restartsTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "ttpcrack_restarts_total",
		Help: "Completed annealing restarts.",
	})

	bestScore = factory.NewGauge(prometheus.GaugeOpts{
		Name: "ttpcrack_best_score",
		Help: "Best combined score found so far in the current run.",
	})
)

// IncOp 累加操作计数（result=success|error）。
func IncOp(comp, stage, result string) {
	opTotal.WithLabelValues(comp, stage, result).Inc()
}

// IncError 按分类累加错误计数。
func IncError(comp, code string) {
	errorTotal.WithLabelValues(comp, code).Inc()
}

// ObserveDuration 记录阶段耗时（毫秒）。
func ObserveDuration(comp, stage string, durMS int64) {
	opDuration.WithLabelValues(comp, stage).Observe(float64(durMS))
}

// RestartDone 记录一次重启的搜索计数。
func RestartDone(proposed, accepted int64) {
	restartsTotal.Inc()
	searchIterations.Add(float64(proposed))
	searchAccepted.Add(float64(accepted))
}

// SetBestScore 更新当前最优分。
func SetBestScore(v float64) { bestScore.Set(v) }

// Gatherer 返回私有注册表（测试与导出用）。
func Gatherer() prometheus.Gatherer { return registry }

// WriteTextfile 将全部指标原子写入 path。
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, registry)
}
