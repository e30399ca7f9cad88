package config

import (
	"errors"
	"fmt"

	"github.com/any-hub/diskcache/internal/cache"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.DefaultMaxAge.DurationValue() <= 0 {
		return newFieldError("Global.DefaultMaxAge", "必须大于 0")
	}
	if g.MaxPollDelay.DurationValue() <= 0 {
		return newFieldError("Global.MaxPollDelay", "必须大于 0")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Stores {
		store := &c.Stores[i]
		if store.Name == "" {
			return newFieldError("Store[].Name", "不能为空")
		}
		if err := cache.ValidateName(store.Name); err != nil {
			return fmt.Errorf("%s: %w", storeField(store.Name, "Name"), err)
		}
		if _, exists := seenNames[store.Name]; exists {
			return newFieldError(storeField(store.Name, "Name"), "重复")
		}
		seenNames[store.Name] = struct{}{}

		if _, err := cache.CodecByName(store.Codec); err != nil {
			return newFieldError(storeField(store.Name, "Codec"), "仅支持 json/msgpack")
		}
	}

	return nil
}
