package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
)

// acquireLock 以独占方式创建锁文件，已被占用时返回 fs.ErrExist。
func (d *StoreDir) acquireLock(ctx context.Context) error {
	return d.storage.CreateExclusive(ctx, d.lockPath)
}

func (d *StoreDir) releaseLock(ctx context.Context) error {
	return d.storage.Remove(ctx, d.lockPath)
}

// Locked 报告锁文件当前是否存在。
func (d *StoreDir) Locked(ctx context.Context) (bool, error) {
	return d.storage.Exists(ctx, d.lockPath)
}

// lock 先获取进程内互斥锁，再等待并创建锁文件。返回的 release 负责反向释放两者。
func (d *StoreDir) lock(ctx context.Context) (func() error, error) {
	unlockLocal := writers.lock(d.path)

	// 锁文件位于 store 目录内，首次写入或清理前目录可能尚不存在。
	if err := d.storage.MkdirAll(ctx, d.path); err != nil {
		unlockLocal()
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	for {
		if err := d.awaitUnlock(ctx); err != nil {
			unlockLocal()
			return nil, err
		}
		err := d.acquireLock(ctx)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			unlockLocal()
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		d.logger.Debug("lock taken by another writer, waiting again")
	}
	d.logger.Debug("locking cache store")

	return func() error {
		defer unlockLocal()
		d.logger.Debug("unlocking cache store")
		if err := d.releaseLock(context.WithoutCancel(ctx)); err != nil {
			return fmt.Errorf("release lock: %w", err)
		}
		return nil
	}, nil
}

// awaitUnlock 轮询锁文件直到其消失。每次检查之间随机等待 0~maxPollDelay，
// 以错开并发等待者。锁文件的年龄按文件系统时钟（time.Now）计算。
func (d *StoreDir) awaitUnlock(ctx context.Context) error {
	started := time.Now()
	delays := d.pollDelays()
	logged := false

	for {
		locked, err := d.Locked(ctx)
		if err != nil {
			return err
		}
		if !locked {
			return nil
		}
		if !logged {
			d.logger.Debug("waiting for unlock")
			logged = true
		}

		cleared, err := d.clearStaleLock(ctx)
		if err != nil {
			return err
		}
		if cleared {
			continue
		}

		if d.lockTimeout > 0 && time.Since(started) >= d.lockTimeout {
			return fmt.Errorf("%w after %s", ErrLockTimeout, d.lockTimeout)
		}

		timer := time.NewTimer(delays.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// clearStaleLock 删除超过 staleLockAge 的锁文件，视其为崩溃写入者遗留。
//
// 删除前会再次 Stat 并比较 mtime：若期间另一个等待者已清理旧锁并创建了新锁，
// 这里不会误删新锁。两次 Stat 与 Remove 之间仍有极短的窗口，跨进程互斥本身
// 只是建议性的。
func (d *StoreDir) clearStaleLock(ctx context.Context) (bool, error) {
	if d.staleLockAge <= 0 {
		return false, nil
	}

	info, err := d.storage.Stat(ctx, d.lockPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}

	staleMod := info.ModTime()
	age := time.Since(staleMod)
	if age < d.staleLockAge {
		return false, nil
	}

	current, err := d.storage.Stat(ctx, d.lockPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return true, nil
		}
		return false, err
	}
	if !current.ModTime().Equal(staleMod) {
		d.logger.Debug("lock replaced by another writer, keep waiting")
		return false, nil
	}

	d.logger.WithFields(logrus.Fields{
		"action":      "stale_lock",
		"age_seconds": age.Seconds(),
	}).Warn("removing stale lock")
	if err := d.releaseLock(ctx); err != nil {
		return false, fmt.Errorf("remove stale lock: %w", err)
	}
	return true, nil
}

// pollDelays 产生均匀分布在 [0, maxPollDelay] 内的等待时间。
func (d *StoreDir) pollDelays() *backoff.ExponentialBackOff {
	delays := &backoff.ExponentialBackOff{
		InitialInterval:     d.maxPollDelay / 2,
		RandomizationFactor: 1,
		Multiplier:          1,
		MaxInterval:         d.maxPollDelay,
	}
	delays.Reset()
	return delays
}
