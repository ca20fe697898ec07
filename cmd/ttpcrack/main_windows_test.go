//go:build windows

package main

import "time"

// fileCleanupDelay 让 Windows 有时间释放文件句柄，避免 TempDir 清理失败。
func fileCleanupDelay() {
	time.Sleep(500 * time.Millisecond)
}
