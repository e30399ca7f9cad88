package config

import (
	"time"

	"github.com/any-hub/diskcache/internal/cache"
)

// StoreOptions 将全局与 Store 级配置合并为 cache.Options。Logger/Observer/Storage
// 由调用方按需注入。
func (c *Config) StoreOptions(s StoreConfig) (cache.Options, error) {
	codec, err := cache.CodecByName(s.Codec)
	if err != nil {
		return cache.Options{}, err
	}
	return cache.Options{
		Root:         c.Global.StoragePath,
		MaxAge:       c.EffectiveMaxAge(s),
		Silent:       s.Silent,
		Codec:        codec,
		LockTimeout:  disabledIfNotPositive(c.Global.LockTimeout),
		StaleLockAge: disabledIfNotPositive(c.Global.StaleLockAge),
		MaxPollDelay: c.Global.MaxPollDelay.DurationValue(),
	}, nil
}

// disabledIfNotPositive 将配置中 <= 0 的时长转换为 cache.Options 的“禁用”（负数），
// 未配置的字段已由 setDefaults 填充默认值。
func disabledIfNotPositive(d Duration) time.Duration {
	if d.DurationValue() <= 0 {
		return -1
	}
	return d.DurationValue()
}
