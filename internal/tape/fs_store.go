package tape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const tempPrefix = ".tape-"

// NewStore 以 basePath 为根目录构建磁盘录音库，整站复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("tape path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve tape path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create tape path: %w", err)
	}

	return &fileStore{basePath: abs}, nil
}

// fileStore 不持有任何内存状态，磁盘是唯一的事实来源。
type fileStore struct {
	basePath string
}

func (s *fileStore) Exists(ctx context.Context, key Key) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	filePath, err := s.Path(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, storageError("stat", filePath, err)
	}
	return !info.IsDir(), nil
}

func (s *fileStore) EnsureContainer(ctx context.Context, key Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	filePath, err := s.Path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return storageError("mkdir", dir, err)
	}
	return nil
}

func (s *fileStore) Read(ctx context.Context, key Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	filePath, err := s.Path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storageError("read", filePath, ErrNotFound)
		}
		return nil, storageError("read", filePath, err)
	}
	return data, nil
}

func (s *fileStore) Write(ctx context.Context, key Key, data []byte) error {
	filePath, err := s.Path(key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return storageError("mkdir", dir, err)
	}

	tempFile, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return storageError("write", filePath, err)
	}
	tempName := tempFile.Name()

	_, err = copyWithContext(ctx, tempFile, bytes.NewReader(data))
	if err == nil {
		err = tempFile.Chmod(0o644)
	}
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		// rename 前最后一次检查，取消的请求不能留下录音
		err = ctx.Err()
	}
	if err != nil {
		os.Remove(tempName)
		return storageError("write", filePath, err)
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return storageError("write", filePath, err)
	}
	return nil
}

func (s *fileStore) Count(ctx context.Context) (int, error) {
	count := 0
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.Type().IsRegular() && !strings.HasPrefix(d.Name(), tempPrefix) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, storageError("stat", s.basePath, err)
	}
	return count, nil
}

// Path 将 Key 映射为 <basePath>/<escaped segments>/<METHOD>。每个路径段单独转义，
// query 跟随最后一段一起转义，"." 与 ".." 被编码，保证结果不会逃出根目录。
func (s *fileStore) Path(key Key) (string, error) {
	if key.Method == "" {
		return "", errors.New("tape key method required")
	}

	rawPath, rawQuery, hasQuery := strings.Cut(key.PathAndQuery, "?")
	var segments []string
	for _, part := range strings.Split(rawPath, "/") {
		if part != "" {
			segments = append(segments, part)
		}
	}
	if hasQuery {
		if len(segments) == 0 {
			segments = append(segments, "?"+rawQuery)
		} else {
			segments[len(segments)-1] += "?" + rawQuery
		}
	}

	elems := make([]string, 0, len(segments)+2)
	elems = append(elems, s.basePath)
	for _, seg := range segments {
		elems = append(elems, escapeSegment(seg))
	}
	elems = append(elems, escapeSegment(key.Method))

	filePath := filepath.Join(elems...)
	root := s.basePath
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	if !strings.HasPrefix(filePath, root) {
		return "", errors.New("invalid tape path")
	}
	return filePath, nil
}

func escapeSegment(seg string) string {
	switch seg {
	case ".":
		return "%2E"
	case "..":
		return "%2E%2E"
	}
	return url.PathEscape(seg)
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
