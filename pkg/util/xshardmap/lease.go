package xshardmap

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/omeyang/xshard/pkg/util/xrwlock"
)

// releaser 是引用对租约的唯一要求：能够释放。
// 投影之后引用不再关心租约的具体类型（读/写/共享），只需要释放能力。
type releaser interface {
	Release() error
}

// lease 是一次已持有的分片锁，附带持有时长统计。
// read 与 write 有且仅有一个非 nil。
type lease struct {
	read  *xrwlock.ReadGuard
	write *xrwlock.WriteGuard
	since time.Time
	tel   *telemetry
}

func (l *lease) mode() lockMode {
	if l.write != nil {
		return modeWrite
	}
	return modeRead
}

// Release 释放分片锁。重复调用返回 [ErrReleased]。
func (l *lease) Release() error {
	var err error
	if l.write != nil {
		err = l.write.Release()
	} else {
		err = l.read.Release()
	}
	if err != nil {
		return ErrReleased
	}
	l.tel.released(l.mode(), time.Since(l.since))
	return nil
}

// downgrade 将写租约就地转换为读租约。l 随后失效。
func (l *lease) downgrade() *lease {
	rg, err := l.write.Downgrade()
	if err != nil {
		panic(ErrReleased)
	}
	now := time.Now()
	l.tel.downgraded(now.Sub(l.since))
	return &lease{read: rg, since: now, tel: l.tel}
}

// sharedLease 由拆分产生的多个引用共同持有，最后一个持有者释放时才释放底层租约。
type sharedLease struct {
	inner releaser
	refs  atomic.Int32
}

func newSharedLease(inner releaser, owners int32) *sharedLease {
	s := &sharedLease{inner: inner}
	s.refs.Store(owners)
	return s
}

func (s *sharedLease) drop() error {
	switch n := s.refs.Add(-1); {
	case n == 0:
		return s.inner.Release()
	case n < 0:
		return ErrReleased
	default:
		return nil
	}
}

// sharePart 是共享租约中属于某一个持有者的那一份。
type sharePart struct {
	s *sharedLease
}

func (p sharePart) Release() error {
	return p.s.drop()
}

// handle 是所有引用类型共用的租约所有权记录。
// 引用不是并发安全的：同一个引用对象同一时刻只应被一个 goroutine 使用。
type handle struct {
	lease   releaser
	tel     *telemetry
	shard   int
	cleanup runtime.Cleanup
	armed   bool
	done    bool
}

// reclaimArg 是 GC 兜底释放所需的全部状态，不得引用引用对象本身。
type reclaimArg struct {
	lease releaser
	tel   *telemetry
	kind  string
	shard int
}

func reclaim(a reclaimArg) {
	if err := a.lease.Release(); err != nil {
		return
	}
	a.tel.leaked(a.kind, a.shard)
}

// arm 为 owner 注册 GC 兜底释放。h 必须是 owner 内嵌的 handle。
// 读取值的方法在拷贝完成后调用 runtime.KeepAlive(owner)，
// 防止拷贝过程中 owner 变得不可达而被提前释放锁。
func arm[T any](owner *T, h *handle, kind string) {
	if !h.tel.releaseOnCollect {
		return
	}
	h.cleanup = runtime.AddCleanup(owner, reclaim, reclaimArg{
		lease: h.lease,
		tel:   h.tel,
		kind:  kind,
		shard: h.shard,
	})
	h.armed = true
}

func (h *handle) disarm() {
	if h.armed {
		h.cleanup.Stop()
		h.armed = false
	}
}

// check 在引用已失效时 panic。
func (h *handle) check() {
	if h.done {
		panic(ErrReleased)
	}
}

// release 释放租约。幂等：首次返回 nil（或底层错误），后续返回 [ErrReleased]。
func (h *handle) release() error {
	if h.done {
		return ErrReleased
	}
	h.done = true
	h.disarm()
	return h.lease.Release()
}

// handoff 将租约所有权移出，h 随后失效。返回的 handle 尚未注册兜底释放。
func (h *handle) handoff() handle {
	h.check()
	h.done = true
	h.disarm()
	return handle{lease: h.lease, tel: h.tel, shard: h.shard}
}

// with 返回持有另一个租约、其余信息相同的新 handle。
func (h handle) with(l releaser) handle {
	return handle{lease: l, tel: h.tel, shard: h.shard}
}
