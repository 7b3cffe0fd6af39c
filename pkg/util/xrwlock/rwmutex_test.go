package xrwlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNilContext(t *testing.T) {
	rw := New()

	//nolint:staticcheck // 测试 nil ctx 行为
	_, err := rw.RLock(nil)
	assert.ErrorIs(t, err, ErrNilContext)

	//nolint:staticcheck // 测试 nil ctx 行为
	_, err = rw.Lock(nil)
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestMultipleReaders(t *testing.T) {
	rw := New()
	ctx := context.Background()

	g1, err := rw.RLock(ctx)
	require.NoError(t, err)
	g2, err := rw.RLock(ctx)
	require.NoError(t, err)
	g3, ok := rw.TryRLock()
	require.True(t, ok)

	// 读锁持有期间写锁不可获取
	_, ok = rw.TryLock()
	assert.False(t, ok)

	require.NoError(t, g1.Release())
	require.NoError(t, g2.Release())
	require.NoError(t, g3.Release())

	w, ok := rw.TryLock()
	require.True(t, ok)
	require.NoError(t, w.Release())
}

func TestWriterExcludesEveryone(t *testing.T) {
	rw := New()

	w, err := rw.Lock(context.Background())
	require.NoError(t, err)

	_, ok := rw.TryRLock()
	assert.False(t, ok)
	_, ok = rw.TryLock()
	assert.False(t, ok)

	require.NoError(t, w.Release())

	r, ok := rw.TryRLock()
	require.True(t, ok)
	require.NoError(t, r.Release())
}

func TestReleaseIdempotent(t *testing.T) {
	rw := New()

	r, err := rw.RLock(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Held())
	assert.NoError(t, r.Release())
	assert.False(t, r.Held())
	assert.ErrorIs(t, r.Release(), ErrNotHeld)

	w, err := rw.Lock(context.Background())
	require.NoError(t, err)
	assert.NoError(t, w.Release())
	assert.ErrorIs(t, w.Release(), ErrNotHeld)

	// 多余的 Release 不得破坏计数：此时锁应完全空闲
	w2, ok := rw.TryLock()
	require.True(t, ok)
	require.NoError(t, w2.Release())
}

func TestLockContextTimeout(t *testing.T) {
	rw := New()

	r, err := rw.RLock(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err = rw.Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, r.Release())

	// 超时的写者不应残留在等待队列中
	w, ok := rw.TryLock()
	require.True(t, ok)
	require.NoError(t, w.Release())
}

func TestRLockContextCanceled(t *testing.T) {
	rw := New()

	w, err := rw.Lock(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = rw.RLock(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, w.Release())
}

func TestDowngrade(t *testing.T) {
	rw := New()

	w, err := rw.Lock(context.Background())
	require.NoError(t, err)

	r, err := w.Downgrade()
	require.NoError(t, err)
	assert.False(t, w.Held())
	assert.True(t, r.Held())

	// 降级后其他读者可进入，写者仍被排除
	r2, ok := rw.TryRLock()
	require.True(t, ok)
	_, ok = rw.TryLock()
	assert.False(t, ok)

	// 已降级的写守卫不可再次释放或降级
	assert.ErrorIs(t, w.Release(), ErrNotHeld)
	_, err = w.Downgrade()
	assert.ErrorIs(t, err, ErrNotHeld)

	require.NoError(t, r.Release())
	require.NoError(t, r2.Release())

	w2, ok := rw.TryLock()
	require.True(t, ok)
	require.NoError(t, w2.Release())
}

func TestDowngradeBlocksPendingWriter(t *testing.T) {
	rw := New()

	w, err := rw.Lock(context.Background())
	require.NoError(t, err)

	var writerAcquired atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w2, err := rw.Lock(context.Background())
		if err != nil {
			return
		}
		writerAcquired.Store(true)
		_ = w2.Release()
	}()

	// 等待写者进入队列
	time.Sleep(20 * time.Millisecond)

	r, err := w.Downgrade()
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, writerAcquired.Load(), "writer must not acquire while downgraded read guard is held")

	require.NoError(t, r.Release())
	wg.Wait()
	assert.True(t, writerAcquired.Load())
}

func TestPendingWriterBlocksNewReaders(t *testing.T) {
	rw := New()

	r, err := rw.RLock(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		w, err := rw.Lock(ctx)
		if err == nil {
			err = w.Release()
		}
		done <- err
	}()

	require.Eventually(t, func() bool {
		g, ok := rw.TryRLock()
		if ok {
			_ = g.Release()
		}
		return !ok
	}, time.Second, 5*time.Millisecond, "queued writer should block new readers")

	require.NoError(t, r.Release())
	assert.NoError(t, <-done)
	cancel()
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	rw := New()
	ctx := context.Background()

	var (
		value   int
		readers atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				w, err := rw.Lock(ctx)
				if err != nil {
					t.Error(err)
					return
				}
				if readers.Load() != 0 {
					t.Error("writer observed active readers")
				}
				value++
				_ = w.Release()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				r, err := rw.RLock(ctx)
				if err != nil {
					t.Error(err)
					return
				}
				readers.Add(1)
				_ = value
				readers.Add(-1)
				_ = r.Release()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 8*200, value)
}
