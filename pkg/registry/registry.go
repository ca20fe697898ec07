package registry

import (
	"bytes"
	"encoding/json"
	"sort"

	"ttpcrack/pkg/contract"
	atext "ttpcrack/plugins/assembler/text"
	ajson "ttpcrack/plugins/assembler/jsonreport"
	dcsv "ttpcrack/plugins/decoder/csvtable"
	rfs "ttpcrack/plugins/reader/filesystem"
	shalves "ttpcrack/plugins/splitter/halves"
	wfs "ttpcrack/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 || string(t) == "null" {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(t))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewSplitter 工厂签名：接收原样 JSON Options。
type NewSplitter func(raw json.RawMessage) (contract.Splitter, error)

// NewTable 工厂签名：接收原样 JSON Options。
type NewTable func(raw json.RawMessage) (contract.TableDecoder, error)

// NewAssembler 工厂签名：接收原样 JSON Options。
type NewAssembler func(raw json.RawMessage) (contract.Assembler, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Splitter 工厂注册表。
var Splitter = map[string]NewSplitter{
	// halves: blob 对半切分
	"halves": func(raw json.RawMessage) (contract.Splitter, error) {
		var opts shalves.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return shalves.New(&opts), nil
	},
}

// Table 频率表解码器注册表。
var Table = map[string]NewTable{
	"csv": func(raw json.RawMessage) (contract.TableDecoder, error) { return dcsv.New(raw) },
}

// Assembler 工厂注册表。
var Assembler = map[string]NewAssembler{
	// text: "--- Plaintext N ---" 文本报告
	"text": func(raw json.RawMessage) (contract.Assembler, error) { return atext.New(raw) },
	// json: 机器可读报告（也用于边车文件）
	"json": func(raw json.RawMessage) (contract.Assembler, error) { return ajson.New(raw) },
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts), nil
	},
}

// Names 返回注册表中的名称（排序），用于校验与错误提示。
func Names[F any](m map[string]F) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
