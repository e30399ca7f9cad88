package cache

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"time"

	"github.com/sirupsen/logrus"
)

// Storage 抽象缓存目录所需的文件系统能力。磁盘布局遵循：
//
//	<root>/__caches__/<name>/<millis>   # 缓存条目，内容为编码后的值
//	<root>/__caches__/<name>/.lock      # 写入进行中的锁文件（空文件）
//
// 所有方法都需在 ctx 结束后尽快返回 ctx.Err()。
type Storage interface {
	// MkdirAll 递归创建目录，目录已存在时为 no-op。
	MkdirAll(ctx context.Context, dir string) error

	// ReadDir 列出目录的直接子项。
	ReadDir(ctx context.Context, dir string) ([]FileEntry, error)

	// ReadFile 读取完整文件内容。
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile 通过临时文件 + rename 覆盖写入，失败时清理临时文件。
	WriteFile(ctx context.Context, path string, body io.Reader) error

	// CreateExclusive 创建空文件；文件已存在时返回 fs.ErrExist。
	CreateExclusive(ctx context.Context, path string) error

	// Remove 删除文件，文件不存在不视为错误。
	Remove(ctx context.Context, path string) error

	// Stat 返回文件信息，不存在时返回 fs.ErrNotExist。
	Stat(ctx context.Context, path string) (fs.FileInfo, error)

	// Exists 判断路径是否存在。
	Exists(ctx context.Context, path string) (bool, error)
}

// FileEntry 描述目录中的一个子项。
type FileEntry struct {
	Name  string
	Path  string
	IsDir bool
}

// Entry 表示一个缓存条目，Timestamp 由文件名（毫秒时间戳）解析而来。
type Entry struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// Producer 在缓存缺失或过期时生成新值。
type Producer[T any] func(ctx context.Context) (T, error)

// Outcome 描述一次 Poll 的结果类型，供观测使用。
type Outcome string

const (
	OutcomeHit   Outcome = "hit"
	OutcomeMiss  Outcome = "miss"
	OutcomeError Outcome = "error"
)

// Observer 接收每次 Poll 的结果与耗时。
type Observer interface {
	ObservePoll(store string, outcome Outcome, elapsed time.Duration)
}

const (
	// DefaultMaxAge 与 fromDiskCache 的默认值保持一致（1 小时）。
	DefaultMaxAge = time.Hour
	// DefaultLockTimeout 是等待锁释放的上限。
	DefaultLockTimeout = 90 * time.Second
	// DefaultStaleLockAge 之后的锁文件视为崩溃遗留，可强制删除。
	DefaultStaleLockAge = time.Minute
	// DefaultMaxPollDelay 是两次锁检查之间随机等待的上限。
	DefaultMaxPollDelay = 100 * time.Millisecond
)

// Options 控制单个缓存 Store 的行为，零值字段回退到默认值。
type Options struct {
	// Root 是缓存根目录，实际目录为 <Root>/__caches__/<name>。
	Root string
	// MaxAge 为 0 时使用 DefaultMaxAge。
	MaxAge time.Duration
	// Silent 为 true 时不输出任何诊断日志。
	Silent bool

	Storage  Storage
	Codec    Codec
	Logger   logrus.FieldLogger
	Observer Observer

	// LockTimeout/StaleLockAge 为 0 时使用默认值，为负数时禁用。
	LockTimeout  time.Duration
	StaleLockAge time.Duration
	MaxPollDelay time.Duration

	// KeepOnProducerError 为 true 时，producer 失败不会清空已有缓存。
	KeepOnProducerError bool

	// Now 为测试注入时钟，默认 time.Now。
	Now func() time.Time
}

var (
	// ErrInvalidName 表示 store 名称不能映射为单层目录。
	ErrInvalidName = errors.New("invalid store name")
	// ErrLockTimeout 表示等待锁释放超时。
	ErrLockTimeout = errors.New("timed out waiting for store lock")
	// ErrStorageUnavailable 表示未提供缓存根目录。
	ErrStorageUnavailable = errors.New("cache root required")
)
