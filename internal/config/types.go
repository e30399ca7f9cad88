package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有 Store 共享同一份参数。
type GlobalConfig struct {
	ListenPort    int      `mapstructure:"ListenPort"`
	LogLevel      string   `mapstructure:"LogLevel"`
	LogFilePath   string   `mapstructure:"LogFilePath"`
	LogMaxSize    int      `mapstructure:"LogMaxSize"`
	LogMaxBackups int      `mapstructure:"LogMaxBackups"`
	LogCompress   bool     `mapstructure:"LogCompress"`
	StoragePath   string   `mapstructure:"StoragePath"`
	DefaultMaxAge Duration `mapstructure:"DefaultMaxAge"`
	// LockTimeout/StaleLockAge 显式配置为 0 或负数时禁用对应的上限。
	LockTimeout  Duration `mapstructure:"LockTimeout"`
	StaleLockAge Duration `mapstructure:"StaleLockAge"`
	MaxPollDelay Duration `mapstructure:"MaxPollDelay"`
}

// StoreConfig 声明一个需要在诊断接口中展示、可被 -purge 清理的缓存 Store。
type StoreConfig struct {
	Name   string   `mapstructure:"Name"`
	MaxAge Duration `mapstructure:"MaxAge"`
	Silent bool     `mapstructure:"Silent"`
	Codec  string   `mapstructure:"Codec"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig  `mapstructure:",squash"`
	Stores []StoreConfig `mapstructure:"Store"`
}

// StoreNames 返回所有 Store 名称，供日志字段使用。
func StoreNames(stores []StoreConfig) []string {
	if len(stores) == 0 {
		return nil
	}
	result := make([]string, len(stores))
	for i, store := range stores {
		result[i] = store.Name
	}
	return result
}

// FindStore 按名称查找 Store 配置。
func (c *Config) FindStore(name string) (StoreConfig, bool) {
	if c == nil {
		return StoreConfig{}, false
	}
	for _, store := range c.Stores {
		if store.Name == name {
			return store, true
		}
	}
	return StoreConfig{}, false
}

// EffectiveMaxAge 返回特定 Store 生效的过期时间，未覆盖时回退至全局值。
func (c *Config) EffectiveMaxAge(s StoreConfig) time.Duration {
	if s.MaxAge.DurationValue() > 0 {
		return s.MaxAge.DurationValue()
	}
	return c.Global.DefaultMaxAge.DurationValue()
}
