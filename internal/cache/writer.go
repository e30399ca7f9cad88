package cache

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
)

// Write 持久化 value 并返回实际生效的值。
//
// 写入前后各做一次新鲜度检查：若其他写入者已经写好了未过期的条目，
// 直接返回该条目的值而不再重复写入。锁只覆盖 prune + 写文件这一段。
func (s *Store[T]) Write(ctx context.Context, value T) (result T, err error) {
	cached, found, err := s.Read(ctx)
	if err != nil {
		return result, err
	}
	if found {
		s.dir.logger.Debug("valid cache found while trying to write, using that instead")
		return cached, nil
	}

	release, err := s.dir.lock(ctx)
	if err != nil {
		return result, err
	}
	defer func() {
		if releaseErr := release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()

	cached, found, err = s.Read(ctx)
	if err != nil {
		return result, err
	}
	if found {
		s.dir.logger.Debug("cache written while waiting for lock, using that instead")
		return cached, nil
	}

	if err := s.dir.Prune(ctx, false); err != nil {
		return result, err
	}

	data, err := s.codec.Marshal(value)
	if err != nil {
		return result, fmt.Errorf("encode value: %w", err)
	}

	name := strconv.FormatInt(s.dir.now().UnixMilli(), 10)
	s.dir.logger.WithField("entry", name).Debug("writing new cache value")
	if err := writeBytes(ctx, s.dir.storage, filepath.Join(s.dir.path, name), data); err != nil {
		return result, fmt.Errorf("write entry %s: %w", name, err)
	}

	// 新条目已是最新，再清理一次以丢弃被替换的旧条目。
	if err := s.dir.Prune(ctx, false); err != nil {
		return result, err
	}
	return value, nil
}
