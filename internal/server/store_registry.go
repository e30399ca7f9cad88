package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/diskcache/internal/cache"
	"github.com/any-hub/diskcache/internal/config"
)

// StoreRoute 将 Store 配置与派生属性（生效的 MaxAge、目录句柄）聚合在一起，
// 供诊断路由直接复用，避免重复解析配置。
type StoreRoute struct {
	// Config 是用户在 config.toml 中声明的 Store 字段副本。
	Config config.StoreConfig
	// MaxAge 是对当前 Store 生效的过期时间，未覆盖时等于全局值。
	MaxAge time.Duration
	// Dir 指向 <StoragePath>/__caches__/<name>，读取状态或清理时使用。
	Dir *cache.StoreDir
}

// StoreRegistry 提供 Store 名称到 StoreRoute 的查询能力。
type StoreRegistry struct {
	routes  map[string]*StoreRoute
	ordered []*StoreRoute
}

// NewStoreRegistry 根据配置构建 Store 映射。调用方应在启动阶段创建一次并复用。
func NewStoreRegistry(cfg *config.Config, storage cache.Storage, logger logrus.FieldLogger) (*StoreRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &StoreRegistry{
		routes: make(map[string]*StoreRoute, len(cfg.Stores)),
	}

	for _, store := range cfg.Stores {
		if _, exists := registry.routes[store.Name]; exists {
			return nil, fmt.Errorf("duplicate store detected: %s", store.Name)
		}

		opts, err := cfg.StoreOptions(store)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", store.Name, err)
		}
		opts.Storage = storage
		opts.Logger = logger

		dir, err := cache.NewStoreDir(store.Name, opts)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", store.Name, err)
		}

		route := &StoreRoute{
			Config: store,
			MaxAge: dir.MaxAge(),
			Dir:    dir,
		}
		registry.routes[store.Name] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据名称查找 StoreRoute。
func (r *StoreRegistry) Lookup(name string) (*StoreRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.routes[name]
	return route, ok
}

// List 返回当前注册的 StoreRoute 列表（按配置定义的顺序）。
func (r *StoreRegistry) List() []StoreRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]StoreRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}
