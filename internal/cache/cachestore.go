package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Store 是按名称划分的 TTL 磁盘缓存，只保留一个有效槽位。
// 实例本身无状态，除构造参数外不在内存中保存任何缓存值。
type Store[T any] struct {
	dir      *StoreDir
	codec    Codec
	observer Observer

	keepOnProducerError bool
}

// PollError 包装 Poll 过程中的任意失败；出现该错误时 store 已被清空（producer 失败且
// KeepOnProducerError 为 true 的情况除外）。
type PollError struct {
	Store string
	Err   error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("diskcache: store %q: %v", e.Store, e.Err)
}

func (e *PollError) Unwrap() error {
	return e.Err
}

// New 构造名为 name 的 Store，opts 中的零值字段使用默认值。
func New[T any](name string, opts Options) (*Store[T], error) {
	dir, err := NewStoreDir(name, opts)
	if err != nil {
		return nil, err
	}

	codec := opts.Codec
	if codec == nil {
		codec = JSONCodec{}
	}

	return &Store[T]{
		dir:                 dir,
		codec:               codec,
		observer:            opts.Observer,
		keepOnProducerError: opts.KeepOnProducerError,
	}, nil
}

// Name 返回 store 名称。
func (s *Store[T]) Name() string { return s.dir.name }

// Dir 暴露底层目录，便于诊断与清理。
func (s *Store[T]) Dir() *StoreDir { return s.dir }

// Read 读取最新且未过期的条目。found 为 false 表示没有可用缓存；
// found 为 true 时 value 可能恰好是零值或 nil，这同样是合法的缓存结果。
func (s *Store[T]) Read(ctx context.Context) (value T, found bool, err error) {
	entry, ok, err := s.dir.Fresh(ctx)
	if err != nil || !ok {
		return value, false, err
	}

	s.dir.logger.Debug("valid cache found")
	data, err := s.dir.storage.ReadFile(ctx, entry.Path)
	if err != nil {
		return value, false, fmt.Errorf("read entry %s: %w", entry.Name, err)
	}
	if err := s.codec.Unmarshal(data, &value); err != nil {
		return value, false, fmt.Errorf("decode entry %s: %w", entry.Name, err)
	}
	return value, true, nil
}

// Poll 返回未过期的缓存值；缓存缺失时调用 produce，写入后返回新值。
// 任一环节失败都会清空整个 store 并返回 *PollError；ctx 被取消或超时导致的失败除外。
func (s *Store[T]) Poll(ctx context.Context, produce Producer[T]) (value T, err error) {
	started := time.Now()
	outcome := OutcomeHit
	defer func() {
		elapsed := time.Since(started)
		s.dir.logger.WithFields(logrus.Fields{
			"action":     "poll",
			"outcome":    outcome,
			"elapsed_ms": elapsed.Milliseconds(),
		}).Debug("poll finished")
		if s.observer != nil {
			s.observer.ObservePoll(s.dir.name, outcome, elapsed)
		}
	}()

	cached, found, err := s.Read(ctx)
	if err == nil && found {
		return cached, nil
	}

	producerFailed := false
	if err == nil {
		outcome = OutcomeMiss
		var produced T
		produced, err = produce(ctx)
		if err != nil {
			producerFailed = true
			err = fmt.Errorf("produce value: %w", err)
		} else if value, err = s.Write(ctx, produced); err == nil {
			return value, nil
		}
	}

	outcome = OutcomeError
	var zero T
	// 调用方自身的取消或超时不代表文件损坏，保留其他调用方仍可使用的条目。
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		s.dir.logger.WithError(err).Debug("poll canceled, keeping existing caches")
		return zero, &PollError{Store: s.dir.name, Err: err}
	}
	if producerFailed && s.keepOnProducerError {
		s.dir.logger.WithError(err).Warn("producer failed, keeping existing caches")
		return zero, &PollError{Store: s.dir.name, Err: err}
	}

	s.dir.logger.WithError(err).Error("unrecoverable error, files may be corrupted, deleting all caches")
	if cleanupErr := s.dir.Prune(context.WithoutCancel(ctx), true); cleanupErr != nil {
		s.dir.logger.WithError(cleanupErr).Error("failed to delete caches")
	}
	return zero, &PollError{Store: s.dir.name, Err: err}
}
