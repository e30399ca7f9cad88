package cache

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	cachesDirName = "__caches__"
	lockFileName  = ".lock"
)

var discardLogger = newDiscardLogger()

func newDiscardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// StoreDir 管理单个 store 目录的条目与锁文件，不关心值的类型。
// 它不缓存任何目录状态，每次调用都重新读取文件系统。
type StoreDir struct {
	name     string
	path     string
	lockPath string
	maxAge   time.Duration

	storage Storage
	logger  logrus.FieldLogger
	now     func() time.Time

	lockTimeout  time.Duration
	staleLockAge time.Duration
	maxPollDelay time.Duration
}

// Status 汇总 store 目录的当前状态，供诊断接口输出。
type Status struct {
	Name       string        `json:"name"`
	Path       string        `json:"path"`
	MaxAge     time.Duration `json:"-"`
	Entries    int           `json:"entries"`
	Newest     *Entry        `json:"newest,omitempty"`
	AgeSeconds float64       `json:"age_seconds"`
	Fresh      bool          `json:"fresh"`
	Locked     bool          `json:"locked"`
}

// ValidateName 确保 name 只对应 __caches__ 下的一层目录。
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// NewStoreDir 以 opts.Root 为根目录构建 name 对应的 StoreDir，目录在首次访问时才创建。
func NewStoreDir(name string, opts Options) (*StoreDir, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if opts.Root == "" {
		return nil, ErrStorageUnavailable
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	dir := &StoreDir{
		name:         name,
		path:         filepath.Join(root, cachesDirName, name),
		maxAge:       opts.MaxAge,
		storage:      opts.Storage,
		now:          opts.Now,
		lockTimeout:  opts.LockTimeout,
		staleLockAge: opts.StaleLockAge,
		maxPollDelay: opts.MaxPollDelay,
	}
	dir.lockPath = filepath.Join(dir.path, lockFileName)

	if dir.maxAge <= 0 {
		dir.maxAge = DefaultMaxAge
	}
	if dir.storage == nil {
		dir.storage = NewOSStorage()
	}
	if dir.now == nil {
		dir.now = time.Now
	}
	if dir.lockTimeout == 0 {
		dir.lockTimeout = DefaultLockTimeout
	}
	if dir.staleLockAge == 0 {
		dir.staleLockAge = DefaultStaleLockAge
	}
	if dir.maxPollDelay <= 0 {
		dir.maxPollDelay = DefaultMaxPollDelay
	}

	switch {
	case opts.Silent:
		dir.logger = discardLogger
	case opts.Logger != nil:
		dir.logger = opts.Logger.WithField("store", name)
	default:
		dir.logger = logrus.StandardLogger().WithField("store", name)
	}

	return dir, nil
}

// Name 返回 store 名称。
func (d *StoreDir) Name() string { return d.name }

// Path 返回 store 目录的绝对路径。
func (d *StoreDir) Path() string { return d.path }

// MaxAge 返回生效的过期时间。
func (d *StoreDir) MaxAge() time.Duration { return d.maxAge }

// Entries 确保目录存在，并按时间戳从新到旧返回所有合法条目。
// 文件名不是无符号十进制整数的子项（.lock、临时文件、子目录）都会被忽略。
func (d *StoreDir) Entries(ctx context.Context) ([]Entry, error) {
	if err := d.storage.MkdirAll(ctx, d.path); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	items, err := d.storage.ReadDir(ctx, d.path)
	if err != nil {
		return nil, fmt.Errorf("list store directory: %w", err)
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		if item.IsDir {
			continue
		}
		millis, err := strconv.ParseUint(item.Name, 10, 63)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:      item.Name,
			Path:      item.Path,
			Timestamp: time.UnixMilli(int64(millis)),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].Name > entries[j].Name
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// Fresh 只检查最新的条目：age < maxAge 时返回该条目，否则视为缺失。
func (d *StoreDir) Fresh(ctx context.Context) (Entry, bool, error) {
	d.logger.Debug("reading most recent cache value")

	entries, err := d.Entries(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	if len(entries) == 0 {
		d.logger.Debug("no caches found")
		return Entry{}, false, nil
	}

	newest := entries[0]
	age := d.now().Sub(newest.Timestamp)
	d.logger.WithField("age_seconds", age.Seconds()).Debug("cache found")

	if age < d.maxAge {
		return newest, true, nil
	}
	return Entry{}, false, nil
}

// Prune 删除除最新条目外的所有条目；all 为 true 时全部删除。
// 删除并发执行，全部完成后才返回，任一失败都会返回错误。
func (d *StoreDir) Prune(ctx context.Context, all bool) error {
	mode := "old"
	if all {
		mode = "all"
	}
	d.logger.WithField("mode", mode).Debug("deleting caches")

	entries, err := d.Entries(ctx)
	if err != nil {
		return err
	}

	targets := entries
	if !all && len(entries) > 0 {
		targets = entries[1:]
	}
	if len(targets) == 0 {
		return nil
	}

	var g errgroup.Group
	for _, entry := range targets {
		g.Go(func() error {
			return d.storage.Remove(ctx, entry.Path)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("prune %s caches: %w", mode, err)
	}
	return nil
}

// Purge 在持有锁的情况下删除全部条目，供运维操作使用。
func (d *StoreDir) Purge(ctx context.Context) (err error) {
	release, err := d.lock(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if releaseErr := release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return d.Prune(ctx, true)
}

// Status 读取当前目录状态。
func (d *StoreDir) Status(ctx context.Context) (Status, error) {
	entries, err := d.Entries(ctx)
	if err != nil {
		return Status{}, err
	}
	locked, err := d.Locked(ctx)
	if err != nil {
		return Status{}, err
	}

	status := Status{
		Name:    d.name,
		Path:    d.path,
		MaxAge:  d.maxAge,
		Entries: len(entries),
		Locked:  locked,
	}
	if len(entries) > 0 {
		newest := entries[0]
		age := d.now().Sub(newest.Timestamp)
		status.Newest = &newest
		status.AgeSeconds = age.Seconds()
		status.Fresh = age < d.maxAge
	}
	return status, nil
}
