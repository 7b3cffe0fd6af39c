package xshardmap

import (
	"fmt"
	"runtime"
)

// Ref 是持有分片读锁的只读引用。
// 只能由 [Map] 创建；Release 之前，同一分片上的写者全部被阻塞。
type Ref[K, V any] struct {
	h handle
	k *K
	v *V
}

func newRef[K, V any](h handle, k *K, v *V) *Ref[K, V] {
	r := &Ref[K, V]{h: h, k: k, v: v}
	arm(r, &r.h, "Ref")
	return r
}

// Key 返回引用的 key。
func (r *Ref[K, V]) Key() K {
	r.h.check()
	return *r.k
}

// Value 返回引用的值。
func (r *Ref[K, V]) Value() V {
	r.h.check()
	v := *r.v
	runtime.KeepAlive(r)
	return v
}

// Pair 同时返回 key 和值。
func (r *Ref[K, V]) Pair() (K, V) {
	r.h.check()
	k, v := *r.k, *r.v
	runtime.KeepAlive(r)
	return k, v
}

// Release 释放分片读锁。
// 幂等：第一次调用返回 nil，后续返回 [ErrReleased]。
// 租约已通过 MapRef/TryMap/MapSplit 移交时同样返回 [ErrReleased]。
func (r *Ref[K, V]) Release() error {
	return r.h.release()
}

func (r *Ref[K, V]) String() string {
	if r.h.done {
		return "Ref(released)"
	}
	return fmt.Sprintf("Ref{k: %v, v: %v}", *r.k, *r.v)
}

// RefMut 是持有分片写锁的可变引用。
// 只能由 [Map] 创建；Release 之前，同一分片上的读者与写者全部被阻塞。
type RefMut[K, V any] struct {
	h handle
	k *K
	v *V
}

func newRefMut[K, V any](h handle, k *K, v *V) *RefMut[K, V] {
	r := &RefMut[K, V]{h: h, k: k, v: v}
	arm(r, &r.h, "RefMut")
	return r
}

// Key 返回引用的 key。key 不可修改。
func (r *RefMut[K, V]) Key() K {
	r.h.check()
	return *r.k
}

// Value 返回值的副本。
func (r *RefMut[K, V]) Value() V {
	r.h.check()
	v := *r.v
	runtime.KeepAlive(r)
	return v
}

// ValueMut 返回指向 map 内部值的指针。
// 指针只在 Release 之前有效。
func (r *RefMut[K, V]) ValueMut() *V {
	r.h.check()
	return r.v
}

// Pair 同时返回 key 和值的副本。
func (r *RefMut[K, V]) Pair() (K, V) {
	r.h.check()
	k, v := *r.k, *r.v
	runtime.KeepAlive(r)
	return k, v
}

// PairMut 同时返回 key 和指向值的指针。
func (r *RefMut[K, V]) PairMut() (K, *V) {
	r.h.check()
	return *r.k, r.v
}

// Release 释放分片写锁。
// 幂等：第一次调用返回 nil，后续返回 [ErrReleased]。
func (r *RefMut[K, V]) Release() error {
	return r.h.release()
}

// Downgrade 将可变引用转换为指向同一条目的只读引用。
// 写锁被就地降级为读锁，期间不释放，因此其他写者无法在调用方的写入与随后的读取之间修改该值。
// 调用后 r 失效。
func (r *RefMut[K, V]) Downgrade() *Ref[K, V] {
	h := r.h.handoff()
	l, ok := h.lease.(*lease)
	if !ok || l.write == nil {
		panic("xshardmap: RefMut without write lease")
	}
	return newRef(h.with(l.downgrade()), r.k, r.v)
}

func (r *RefMut[K, V]) String() string {
	if r.h.done {
		return "RefMut(released)"
	}
	return fmt.Sprintf("RefMut{k: %v, v: %v}", *r.k, *r.v)
}
