package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// NewStorage 基于任意 afero.Fs 构建 Storage，整站复用一份实例即可。
func NewStorage(fsys afero.Fs) Storage {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &fileStore{fs: fsys}
}

// NewOSStorage 返回直接读写本地磁盘的 Storage。
func NewOSStorage() Storage {
	return NewStorage(afero.NewOsFs())
}

// NewMemStorage 返回纯内存的 Storage，主要用于测试。
func NewMemStorage() Storage {
	return NewStorage(afero.NewMemMapFs())
}

// fileStore 是 Storage 的 afero 实现，本身不持有状态，所有数据都在文件系统中。
type fileStore struct {
	fs afero.Fs
}

func (s *fileStore) MkdirAll(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.fs.MkdirAll(dir, 0o755)
}

func (s *fileStore) ReadDir(ctx context.Context, dir string) ([]FileEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, err
	}
	entries := make([]FileEntry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, FileEntry{
			Name:  info.Name(),
			Path:  filepath.Join(dir, info.Name()),
			IsDir: info.IsDir(),
		})
	}
	return entries, nil
}

func (s *fileStore) ReadFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return afero.ReadFile(s.fs, path)
}

func (s *fileStore) WriteFile(ctx context.Context, path string, body io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tempFile, err := afero.TempFile(s.fs, dir, ".tmp-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, body)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		s.fs.Remove(tempName)
		return err
	}

	if err := s.fs.Rename(tempName, path); err != nil {
		s.fs.Remove(tempName)
		return err
	}
	return nil
}

func (s *fileStore) CreateExclusive(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := s.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	return f.Close()
}

func (s *fileStore) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Stat(ctx context.Context, path string) (fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.fs.Stat(path)
}

func (s *fileStore) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return ok, nil
}

func writeBytes(ctx context.Context, storage Storage, path string, data []byte) error {
	return storage.WriteFile(ctx, path, bytes.NewReader(data))
}

func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	var copied int64
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return copied, err
		}
		n, err := src.Read(buf)
		if n > 0 {
			w, wErr := dst.Write(buf[:n])
			copied += int64(w)
			if wErr != nil {
				return copied, wErr
			}
			if w < n {
				return copied, io.ErrShortWrite
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return copied, nil
			}
			return copied, err
		}
	}
}
