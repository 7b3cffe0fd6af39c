package xshardmap

import (
	"fmt"
	"runtime"
)

// MappedRef 是经过投影的只读引用：暴露值的某个派生部分，仍持有原始分片读锁。
type MappedRef[K, T any] struct {
	h handle
	k *K
	v *T
}

func newMappedRef[K, T any](h handle, k *K, v *T) *MappedRef[K, T] {
	r := &MappedRef[K, T]{h: h, k: k, v: v}
	arm(r, &r.h, "MappedRef")
	return r
}

// Key 返回引用的 key。
func (r *MappedRef[K, T]) Key() K {
	r.h.check()
	return *r.k
}

// Value 返回投影后的值。
func (r *MappedRef[K, T]) Value() T {
	r.h.check()
	v := *r.v
	runtime.KeepAlive(r)
	return v
}

// Pair 同时返回 key 和投影后的值。
func (r *MappedRef[K, T]) Pair() (K, T) {
	r.h.check()
	k, v := *r.k, *r.v
	runtime.KeepAlive(r)
	return k, v
}

// Release 释放原始分片锁。
// 幂等：第一次调用返回 nil，后续返回 [ErrReleased]。
func (r *MappedRef[K, T]) Release() error {
	return r.h.release()
}

// String 只格式化投影后的值，便于把投影直接用于 %v 输出。
func (r *MappedRef[K, T]) String() string {
	if r.h.done {
		return "MappedRef(released)"
	}
	s := fmt.Sprint(*r.v)
	runtime.KeepAlive(r)
	return s
}

// GoString 返回包含 key 的调试形式，用于 %#v。
func (r *MappedRef[K, T]) GoString() string {
	if r.h.done {
		return "MappedRef(released)"
	}
	return fmt.Sprintf("MappedRef{k: %v, v: %v}", *r.k, *r.v)
}

// MappedRefMut 是经过投影的可变引用，仍持有原始分片写锁。
type MappedRefMut[K, T any] struct {
	h handle
	k *K
	v *T
}

func newMappedRefMut[K, T any](h handle, k *K, v *T) *MappedRefMut[K, T] {
	r := &MappedRefMut[K, T]{h: h, k: k, v: v}
	arm(r, &r.h, "MappedRefMut")
	return r
}

// Key 返回引用的 key。
func (r *MappedRefMut[K, T]) Key() K {
	r.h.check()
	return *r.k
}

// Value 返回投影后值的副本。
func (r *MappedRefMut[K, T]) Value() T {
	r.h.check()
	v := *r.v
	runtime.KeepAlive(r)
	return v
}

// ValueMut 返回指向投影区域的指针，只在 Release 之前有效。
func (r *MappedRefMut[K, T]) ValueMut() *T {
	r.h.check()
	return r.v
}

// Pair 同时返回 key 和投影后值的副本。
func (r *MappedRefMut[K, T]) Pair() (K, T) {
	r.h.check()
	k, v := *r.k, *r.v
	runtime.KeepAlive(r)
	return k, v
}

// PairMut 同时返回 key 和指向投影区域的指针。
func (r *MappedRefMut[K, T]) PairMut() (K, *T) {
	r.h.check()
	return *r.k, r.v
}

// Release 释放原始分片锁。
// 幂等：第一次调用返回 nil，后续返回 [ErrReleased]。
func (r *MappedRefMut[K, T]) Release() error {
	return r.h.release()
}

func (r *MappedRefMut[K, T]) String() string {
	if r.h.done {
		return "MappedRefMut(released)"
	}
	return fmt.Sprintf("MappedRefMut{k: %v, v: %v}", *r.k, *r.v)
}
