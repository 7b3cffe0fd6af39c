package xshardmap

import (
	"fmt"
	"runtime"
)

// RefMulti 是 [MapSplit] 产生的只读引用之一。
// 拆分出的引用共同持有原始分片锁，全部 Release 后锁才释放。
// RefMulti 是终态引用，不能再投影或拆分。
type RefMulti[K, T any] struct {
	h handle
	k *K
	v *T
}

func newRefMulti[K, T any](h handle, k *K, v *T) *RefMulti[K, T] {
	r := &RefMulti[K, T]{h: h, k: k, v: v}
	arm(r, &r.h, "RefMulti")
	return r
}

// Key 返回引用的 key。
func (r *RefMulti[K, T]) Key() K {
	r.h.check()
	return *r.k
}

// Value 返回本引用所持部分的值。
func (r *RefMulti[K, T]) Value() T {
	r.h.check()
	v := *r.v
	runtime.KeepAlive(r)
	return v
}

// Pair 同时返回 key 和值。
func (r *RefMulti[K, T]) Pair() (K, T) {
	r.h.check()
	k, v := *r.k, *r.v
	runtime.KeepAlive(r)
	return k, v
}

// Release 放弃本引用对分片锁的共享所有权；最后一个持有者释放时分片锁被释放。
// 幂等：第一次调用返回 nil，后续返回 [ErrReleased]。
func (r *RefMulti[K, T]) Release() error {
	return r.h.release()
}

func (r *RefMulti[K, T]) String() string {
	if r.h.done {
		return "RefMulti(released)"
	}
	return fmt.Sprintf("RefMulti{k: %v, v: %v}", *r.k, *r.v)
}

// RefMutMulti 是 [MapSplitMut] 产生的可变引用之一。
// 两个拆分引用指向互不重叠的区域，可分别交给不同 goroutine 修改，无需额外同步。
type RefMutMulti[K, T any] struct {
	h handle
	k *K
	v *T
}

func newRefMutMulti[K, T any](h handle, k *K, v *T) *RefMutMulti[K, T] {
	r := &RefMutMulti[K, T]{h: h, k: k, v: v}
	arm(r, &r.h, "RefMutMulti")
	return r
}

// Key 返回引用的 key。
func (r *RefMutMulti[K, T]) Key() K {
	r.h.check()
	return *r.k
}

// Value 返回本引用所持部分的副本。
func (r *RefMutMulti[K, T]) Value() T {
	r.h.check()
	v := *r.v
	runtime.KeepAlive(r)
	return v
}

// ValueMut 返回指向本引用所持部分的指针，只在 Release 之前有效。
func (r *RefMutMulti[K, T]) ValueMut() *T {
	r.h.check()
	return r.v
}

// Pair 同时返回 key 和值的副本。
func (r *RefMutMulti[K, T]) Pair() (K, T) {
	r.h.check()
	k, v := *r.k, *r.v
	runtime.KeepAlive(r)
	return k, v
}

// PairMut 同时返回 key 和指向本引用所持部分的指针。
func (r *RefMutMulti[K, T]) PairMut() (K, *T) {
	r.h.check()
	return *r.k, r.v
}

// Release 放弃本引用对分片锁的共享所有权；最后一个持有者释放时分片锁被释放。
// 幂等：第一次调用返回 nil，后续返回 [ErrReleased]。
func (r *RefMutMulti[K, T]) Release() error {
	return r.h.release()
}

func (r *RefMutMulti[K, T]) String() string {
	if r.h.done {
		return "RefMutMulti(released)"
	}
	return fmt.Sprintf("RefMutMulti{k: %v, v: %v}", *r.k, *r.v)
}
