package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// configFixture 返回 internal/config/testdata 下的配置样例路径。
func configFixture(t *testing.T, name string) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("无法定位测试文件")
	}
	return filepath.Join(filepath.Dir(file), "internal", "config", "testdata", name)
}

// writeConfigFile 将 content 写入临时 config.toml 并返回路径。
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte(strings.TrimSpace(content)), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	return file
}

// storeConfigFile 生成以 storagePath 为缓存根目录、声明了 stores 的最小配置。
func storeConfigFile(t *testing.T, storagePath string, stores ...string) string {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "StoragePath = %q\n", storagePath)
	for _, name := range stores {
		fmt.Fprintf(&b, "\n[[Store]]\nName = %q\n", name)
	}
	return writeConfigFile(t, b.String())
}
