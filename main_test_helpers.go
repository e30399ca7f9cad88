package main

import (
	"bytes"
	"testing"
)

// useBufferWriters 将 CLI 的 stdOut/stdErr 替换为内存缓冲，测试结束后自动恢复，
// 便于断言 -version、-purge 等模式的输出。
func useBufferWriters(t *testing.T) (out, errOut *bytes.Buffer) {
	t.Helper()

	out, errOut = &bytes.Buffer{}, &bytes.Buffer{}
	prevOut, prevErr := stdOut, stdErr
	stdOut, stdErr = out, errOut

	t.Cleanup(func() {
		stdOut, stdErr = prevOut, prevErr
	})
	return out, errOut
}
