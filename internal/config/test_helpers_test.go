package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:    5000,
			LogLevel:      "info",
			StoragePath:   "./storage",
			DefaultMaxAge: Duration(time.Hour),
			LockTimeout:   Duration(90 * time.Second),
			StaleLockAge:  Duration(time.Minute),
			MaxPollDelay:  Duration(100 * time.Millisecond),
		},
		Stores: []StoreConfig{
			{Name: "weather", MaxAge: Duration(time.Minute), Codec: "json"},
		},
	}
}
