package proxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/tapehub/tapehub/internal/recording"
	"github.com/tapehub/tapehub/internal/tape"
)

// Dispatcher 负责 "查找 → 回放 | 501 | 回源 → 录制" 的判定流程。
// 除 KeyLocker 外不持有跨请求的内存状态，每次命中都重新读盘。
type Dispatcher struct {
	store      tape.Store
	upstream   Upstream
	replayOnly bool
	locks      *tape.KeyLocker
}

// NewDispatcher 创建 Dispatcher；replayOnly 为 true 时未命中直接返回 NotImplemented。
func NewDispatcher(store tape.Store, upstream Upstream, replayOnly bool) *Dispatcher {
	return &Dispatcher{
		store:      store,
		upstream:   upstream,
		replayOnly: replayOnly,
		locks:      tape.NewKeyLocker(),
	}
}

// Dispatch 计算 Key 并决定回放、拒绝或回源录制。
// 读盘或解码失败直接返回错误，不会退化为回源。
func (d *Dispatcher) Dispatch(ctx context.Context, in Inbound) (Outcome, error) {
	key := tape.NewKey(in.PathAndQuery, in.Method)

	if err := d.store.EnsureContainer(ctx, key); err != nil {
		return nil, countStorageError(err)
	}

	found, err := d.store.Exists(ctx, key)
	if err != nil {
		return nil, countStorageError(err)
	}
	if found {
		return d.playback(ctx, key)
	}

	if d.replayOnly {
		return NotImplemented{Key: key, Accept: cloneValues(in.Header.Values("Accept"))}, nil
	}

	// 同一 Key 的并发未命中只回源一次，等待者拿到锁后改为回放。
	unlock := d.locks.Lock(key)
	defer unlock()

	found, err = d.store.Exists(ctx, key)
	if err != nil {
		return nil, countStorageError(err)
	}
	if found {
		return d.playback(ctx, key)
	}

	return d.record(ctx, key, in)
}

func (d *Dispatcher) playback(ctx context.Context, key tape.Key) (Outcome, error) {
	data, err := d.store.Read(ctx, key)
	if err != nil {
		return nil, countStorageError(err)
	}
	resp, err := recording.Decode(data)
	if err != nil {
		tapeErrors.WithLabelValues("decode").Inc()
		return nil, fmt.Errorf("decode tape %s: %w", key, err)
	}
	return Playback{Key: key, Response: resp}, nil
}

func (d *Dispatcher) record(ctx context.Context, key tape.Key, in Inbound) (Outcome, error) {
	req, err := d.upstream.BuildOutbound(ctx, in)
	if err != nil {
		return nil, err
	}
	resp, err := d.upstream.Dispatch(req)
	if err != nil {
		return nil, err
	}

	if err := d.store.Write(ctx, key, recording.Encode(resp)); err != nil {
		return nil, countStorageError(err)
	}
	return Recorded{Key: key, Response: resp}, nil
}

func countStorageError(err error) error {
	var storageErr *tape.StorageError
	if errors.As(err, &storageErr) {
		tapeErrors.WithLabelValues(storageErr.Op).Inc()
	}
	return err
}

func cloneValues(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return append([]string(nil), values...)
}
