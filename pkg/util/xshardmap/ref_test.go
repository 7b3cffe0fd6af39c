package xshardmap

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefAccessors(t *testing.T) {
	m := newForTest[int](t)
	m.Insert("answer", 42)

	r, ok := m.Get("answer")
	require.True(t, ok)
	assert.Equal(t, "answer", r.Key())
	assert.Equal(t, 42, r.Value())
	k, v := r.Pair()
	assert.Equal(t, "answer", k)
	assert.Equal(t, 42, v)
	assert.Equal(t, "Ref{k: answer, v: 42}", r.String())

	requireLocked(t, m, "answer")
	require.NoError(t, r.Release())
	requireUnlocked(t, m, "answer")
}

func TestReadersShareShard(t *testing.T) {
	m := newForTest[int](t)
	m.Insert("a", 1)
	m.Insert("b", 2)

	r1, ok := m.Get("a")
	require.True(t, ok)
	r2, err := m.TryGet("b")
	require.NoError(t, err)

	assert.Equal(t, 1, r1.Value())
	assert.Equal(t, 2, r2.Value())

	require.NoError(t, r1.Release())
	require.NoError(t, r2.Release())
}

func TestRefMutAccessors(t *testing.T) {
	m := newForTest[int](t)
	m.Insert("counter", 1)

	r, ok := m.GetMut("counter")
	require.True(t, ok)
	*r.ValueMut() += 10
	assert.Equal(t, 11, r.Value())

	k, p := r.PairMut()
	assert.Equal(t, "counter", k)
	*p *= 2
	_, v := r.Pair()
	assert.Equal(t, 22, v)
	assert.Equal(t, "RefMut{k: counter, v: 22}", r.String())

	// 写锁排斥读者
	_, err := m.TryGet("counter")
	assert.ErrorIs(t, err, ErrWouldBlock)

	require.NoError(t, r.Release())

	got, ok := m.Get("counter")
	require.True(t, ok)
	assert.Equal(t, 22, got.Value())
	require.NoError(t, got.Release())
}

func TestReleaseIdempotent(t *testing.T) {
	m := newForTest[int](t)
	m.Insert("k", 1)

	r, ok := m.Get("k")
	require.True(t, ok)
	assert.NoError(t, r.Release())
	assert.ErrorIs(t, r.Release(), ErrReleased)
	assert.ErrorIs(t, r.Release(), ErrReleased)
	assert.Equal(t, "Ref(released)", r.String())

	w, ok := m.GetMut("k")
	require.True(t, ok)
	assert.NoError(t, w.Release())
	assert.ErrorIs(t, w.Release(), ErrReleased)
	assert.Equal(t, "RefMut(released)", w.String())

	// 多余的 Release 不得多释放锁
	requireUnlocked(t, m, "k")
}

func TestUseAfterReleasePanics(t *testing.T) {
	m := newForTest[int](t)
	m.Insert("k", 1)

	r, ok := m.Get("k")
	require.True(t, ok)
	require.NoError(t, r.Release())

	assert.PanicsWithError(t, ErrReleased.Error(), func() { r.Value() })
	assert.PanicsWithError(t, ErrReleased.Error(), func() { r.Key() })
	assert.PanicsWithError(t, ErrReleased.Error(), func() {
		MapRef(r, func(v *int) *int { return v })
	})

	w, ok := m.GetMut("k")
	require.True(t, ok)
	require.NoError(t, w.Release())
	assert.PanicsWithError(t, ErrReleased.Error(), func() { w.ValueMut() })
	assert.PanicsWithError(t, ErrReleased.Error(), func() { w.Downgrade() })
}

func TestDowngradePreservesValue(t *testing.T) {
	m := newForTest[string](t)
	m.Insert("k", "v1")

	w, ok := m.GetMut("k")
	require.True(t, ok)
	*w.ValueMut() = "v2"

	r := w.Downgrade()
	assert.Equal(t, "v2", r.Value())
	assert.Equal(t, "k", r.Key())

	// 原可变引用已失效
	assert.ErrorIs(t, w.Release(), ErrReleased)
	assert.PanicsWithError(t, ErrReleased.Error(), func() { w.Value() })

	// 降级后允许其他读者，仍排斥写者
	other, err := m.TryGet("k")
	require.NoError(t, err)
	requireLocked(t, m, "k")

	require.NoError(t, other.Release())
	requireLocked(t, m, "k")
	require.NoError(t, r.Release())
	requireUnlocked(t, m, "k")
}

func TestDowngradeExcludesPendingWriter(t *testing.T) {
	m := newForTest[int](t)
	m.Insert("k", 0)

	w, ok := m.GetMut("k")
	require.True(t, ok)

	var (
		writerDone atomic.Bool
		wg         sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		w2, err := m.GetMutContext(context.Background(), "k")
		if err != nil {
			return
		}
		*w2.ValueMut() = -1
		writerDone.Store(true)
		_ = w2.Release()
	}()

	// 等待竞争写者进入等待队列
	time.Sleep(20 * time.Millisecond)

	*w.ValueMut() = 7
	r := w.Downgrade()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, writerDone.Load())
	assert.Equal(t, 7, r.Value(), "no writer may interleave between write and downgraded read")

	require.NoError(t, r.Release())
	wg.Wait()
	assert.True(t, writerDone.Load())

	got, ok := m.Get("k")
	require.True(t, ok)
	assert.Equal(t, -1, got.Value())
	require.NoError(t, got.Release())
}

func TestDowngradedRefCanBeProjected(t *testing.T) {
	type pair struct {
		Left, Right int
	}
	m := newForTest[pair](t)
	m.Insert("p", pair{Left: 1, Right: 2})

	w, ok := m.GetMut("p")
	require.True(t, ok)
	w.ValueMut().Left = 10

	left := MapRef(w.Downgrade(), func(p *pair) *int { return &p.Left })
	assert.Equal(t, 10, left.Value())
	requireLocked(t, m, "p")
	require.NoError(t, left.Release())
	requireUnlocked(t, m, "p")
}
