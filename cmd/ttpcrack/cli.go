package main

import (
	"github.com/spf13/cobra"
)

// options 为命令行旗标的落点；是否生效以 Flags().Changed 为准。
type options struct {
	config   string
	table    string
	output   string
	sidecar  string
	logLevel string
	trace    string
	metrics  string
	initDir  string

	restarts   int
	iterations int
	workers    int
	seed       uint64
	status     bool

	out1 string
	out2 string
}

// newRootCmd 每次构造新的命令树，避免全局旗标状态在多次调用间残留。
func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "ttpcrack [inputs...]",
		Short: "Recover two plaintexts encrypted with the same one-time pad",
		Long: `ttpcrack 从同一密钥加密的两段密文中恢复明文：
  - 一个输入：按字节对半切分的 blob（例如 2048 字节的 ciphertexts.bin）；
  - 两个输入：各含一段密文（例如 file1.bin file2.bin）；
  - "-" 表示从 STDIN 读取单个 blob。
搜索使用二元字母频率 + 常见词奖励评分的模拟退火与随机重启。`,
		Args:          cobra.MaximumNArgs(2),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, opts, args)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.config, "config", "", "配置文件路径（JSON/YAML）；缺省读取 ./config.json（若存在）")
	pf.StringVar(&opts.logLevel, "log-level", "", "日志等级 debug|info|warn|error（覆盖配置）")
	pf.BoolVar(&opts.status, "status", true, "终端状态提示（stderr）。TTY 动态刷新；非 TTY 打点输出")

	f := root.Flags()
	f.StringVar(&opts.table, "table", "", "二元字母频率表 CSV（覆盖配置）")
	f.StringVar(&opts.output, "output", "", "报告工件名（相对 writer.output_dir）")
	f.StringVar(&opts.sidecar, "sidecar", "", "额外写出 JSON 报告的工件名")
	f.IntVar(&opts.restarts, "restarts", 0, "随机重启次数")
	f.IntVar(&opts.iterations, "iterations", 0, "每次重启的迭代次数（0 表示只取全空格基线）")
	f.IntVar(&opts.workers, "workers", 0, "并发重启数；结果与并发度无关")
	f.Uint64Var(&opts.seed, "seed", 0, "随机种子；0 表示随机生成并记录到日志")
	f.StringVar(&opts.trace, "trace", "", "将 span 以 JSON 写到该文件")
	f.StringVar(&opts.metrics, "metrics-textfile", "", "运行结束后写出 Prometheus textfile")
	f.StringVar(&opts.initDir, "init-config", "", "在指定目录生成默认 config.json 与 .env 模板（已存在的 config.json 不覆盖）；不带值时为当前目录")
	f.Lookup("init-config").NoOptDefVal = "."

	split := &cobra.Command{
		Use:   "split <blob>",
		Short: "Split a ciphertext blob into two equal-length files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSplit(cmd, opts, args[0])
		},
	}
	split.Flags().StringVar(&opts.out1, "out1", "file1.bin", "前半段输出")
	split.Flags().StringVar(&opts.out2, "out2", "file2.bin", "后半段输出")
	root.AddCommand(split)
	return root
}
