package contract

import (
	"path"
	"strings"
)

// NormalizeFileID 规范化路径：反斜杠转正斜杠后 path.Clean；不做隐式绝对化。
// "-" 表示 STDIN，原样保留。
func NormalizeFileID(p string) FileID {
	if p == "-" {
		return FileID(p)
	}
	return FileID(path.Clean(strings.ReplaceAll(p, "\\", "/")))
}
