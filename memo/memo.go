// Package memo is the public entry point for TTL disk memoization:
//
//	temp, err := memo.FromDiskCache(ctx, memo.Options[int]{
//	    Name:   "weather",
//	    Poll:   func(ctx context.Context) (int, error) { return fetchTemp(ctx, "Oslo") },
//	    MaxAge: time.Minute,
//	})
//
// Values live under <root>/__caches__/<name>. Extra producer arguments are
// captured by the Poll closure.
package memo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/diskcache/internal/cache"
)

// RootEnv 覆盖默认缓存根目录。
const RootEnv = "DISKCACHE_ROOT"

// DefaultMaxAge 是未指定 MaxAge 时的过期时间。
const DefaultMaxAge = cache.DefaultMaxAge

// 以下别名让模块外的调用方无需引用 internal 包。
type (
	Storage   = cache.Storage
	Observer  = cache.Observer
	Outcome   = cache.Outcome
	PollError = cache.PollError
)

const (
	OutcomeHit   = cache.OutcomeHit
	OutcomeMiss  = cache.OutcomeMiss
	OutcomeError = cache.OutcomeError
)

// NewOSStorage 返回基于本地文件系统的 Storage。
func NewOSStorage() Storage { return cache.NewOSStorage() }

// NewMemStorage 返回纯内存 Storage，适合测试。
func NewMemStorage() Storage { return cache.NewMemStorage() }

// Options 描述一次 FromDiskCache 调用。
type Options[T any] struct {
	// Name 决定缓存子目录，必填。
	Name string
	// Poll 在缓存缺失或过期时生成新值，必填。
	Poll func(ctx context.Context) (T, error)
	// MaxAge 默认 1 小时。
	MaxAge time.Duration
	// Silent 关闭诊断日志。
	Silent bool

	// Root 为空时依次使用 $DISKCACHE_ROOT 与 os.UserCacheDir()/diskcache。
	Root    string
	Storage Storage
	Logger  logrus.FieldLogger
	// Observer 接收每次调用的结果与耗时，例如 metrics.Collector。
	Observer Observer
}

// FromDiskCache 返回 opts.Name 对应的缓存值；缓存缺失或过期时调用 opts.Poll 并持久化结果。
func FromDiskCache[T any](ctx context.Context, opts Options[T]) (T, error) {
	var zero T
	if opts.Name == "" {
		return zero, errors.New("memo: name required")
	}
	if opts.Poll == nil {
		return zero, errors.New("memo: poll function required")
	}

	root := opts.Root
	if root == "" {
		var err error
		if root, err = DefaultRoot(); err != nil {
			return zero, err
		}
	}

	maxAge := opts.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	store, err := cache.New[T](opts.Name, cache.Options{
		Root:     root,
		MaxAge:   maxAge,
		Silent:   opts.Silent,
		Storage:  opts.Storage,
		Logger:   opts.Logger,
		Observer: opts.Observer,
	})
	if err != nil {
		return zero, fmt.Errorf("memo: %w", err)
	}
	return store.Poll(ctx, opts.Poll)
}

// DefaultRoot 解析默认缓存根目录。
// 优先级：
//  1. DISKCACHE_ROOT（非空时）
//  2. os.UserCacheDir()/diskcache
func DefaultRoot() (string, error) {
	if root, ok := os.LookupEnv(RootEnv); ok && root != "" {
		return root, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		return "", fmt.Errorf("memo: resolve cache root: %w", err)
	}
	return filepath.Join(dir, "diskcache"), nil
}
