package tape

import "sync"

// KeyLocker 为每个 Key 提供引用计数的互斥锁，用于串行化同一 Key 的回源与录制。
type KeyLocker struct {
	mu    sync.Mutex
	locks map[Key]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLocker 创建空的锁表。
func NewKeyLocker() *KeyLocker {
	return &KeyLocker{locks: make(map[Key]*entryLock)}
}

// Lock 阻塞直到获得 key 的锁，返回的函数用于释放；无人持有时条目会被回收。
func (l *KeyLocker) Lock(key Key) func() {
	l.mu.Lock()
	lock := l.locks[key]
	if lock == nil {
		lock = &entryLock{}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

func (l *KeyLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
