package config

import "encoding/json"

// DefaultTemplateConfig 返回一个“可运行”的默认配置模板：
// - 输入为单个 2048 字节的 ciphertexts.bin（对半切分）；
// - 频率表 ftable2.csv，报告写到 recovered_plaintexts.txt；
// - 搜索/评分参数取内置默认值；
// - 选项给出全部键与安全中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := d
	cfg.Inputs = []string{"ciphertexts.bin"}
	cfg.Sidecar = ""
	// Options：包含所有键（值可为空/默认），确保键存在。
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "max_bytes": 67108864
}`)
	cfg.Options.Splitter = json.RawMessage(`{
  "expect_bytes": 2048
}`)
	cfg.Options.Table = json.RawMessage(`{
  "comma": ",",
  "comment": ""
}`)
	cfg.Options.Assembler = json.RawMessage(`{
  "with_score": false
}`)
	cfg.Options.Sidecar = json.RawMessage(`{
  "indent": true
}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": ".",
  "atomic": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	return cfg
}

// DefaultEnvTemplate 返回 .env 模板（全部注释掉，仅示意可用键）。
func DefaultEnvTemplate() string {
	return `# ttpcrack 环境变量（优先级高于 config.json，低于命令行参数）
# TTPCRACK_INPUTS=file1.bin,file2.bin
# TTPCRACK_TABLE=ftable2.csv
# TTPCRACK_OUTPUT=recovered_plaintexts.txt
# TTPCRACK_SIDECAR=recovered_plaintexts.json
# TTPCRACK_RESTARTS=20
# TTPCRACK_ITERATIONS=3000
# TTPCRACK_WORKERS=1
# TTPCRACK_SEED=0
# TTPCRACK_MIN_TEMPERATURE=0.01
# TTPCRACK_FLOOR=1e-9
# TTPCRACK_PENALTY=-100
# TTPCRACK_WORD_WEIGHT=10000
# TTPCRACK_WORDS=the,and,you:5000
# TTPCRACK_LOG_LEVEL=info
# TTPCRACK_LOG_DIR=logs
# TTPCRACK_TRACE_PATH=
# TTPCRACK_METRICS_TEXTFILE=
# TTPCRACK_COMPONENTS_ASSEMBLER=text
# TTPCRACK_OPTIONS_WRITER_JSON={"output_dir":"out"}
`
}
