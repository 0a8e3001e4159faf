package tape

import (
	"context"
	"errors"
	"fmt"
)

// Store 负责录音文件的读写。磁盘布局遵循：
//
//	<TapePath>/<path>/<segments>/<METHOD>    # 原始响应（状态行 + 头 + 空行 + 正文）
//
// 每个 Key 仅对应一个文件，便于人工查看与编辑。
type Store interface {
	// Exists 判断 Key 对应的录音是否存在；目录不算录音。无副作用。
	Exists(ctx context.Context, key Key) (bool, error)

	// EnsureContainer 幂等地创建 Key 所需的目录层级。
	EnsureContainer(ctx context.Context, key Key) error

	// Read 返回完整录音字节；不存在时返回包装了 ErrNotFound 的 StorageError。
	Read(ctx context.Context, key Key) ([]byte, error)

	// Write 通过临时文件 + rename 原子写入录音，失败或取消时清理临时文件。
	Write(ctx context.Context, key Key, data []byte) error

	// Path 返回 Key 对应的绝对文件路径。
	Path(key Key) (string, error)

	// Count 统计根目录下的录音数量（忽略临时文件）。
	Count(ctx context.Context) (int, error)
}

// ErrNotFound 表示录音不存在。
var ErrNotFound = errors.New("tape not found")

// StorageError 描述一次失败的磁盘操作（mkdir/stat/read/write）。
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("tape %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageError(op, path string, err error) error {
	return &StorageError{Op: op, Path: path, Err: err}
}
