package xshardmap

// 投影与拆分。
//
// Go 方法不能携带类型参数，因此 map/try_map/map_split 以包级泛型函数提供，
// 每种源引用各有一组：
//
//	源引用           投影                 可失败投影              拆分
//	*Ref            MapRef              TryMap                MapSplit
//	*RefMut         MapMut              TryMapMut             MapSplitMut
//	*MappedRef      MapMapped           TryMapMapped          -
//	*MappedRefMut   MapMappedMut        TryMapMappedMut       -
//
// 所有函数都先调用 f 并校验结果，再移交租约：f panic 或返回 nil 时源引用保持完整，仍可 Release。
// 成功时源引用失效（租约移入新引用），Try* 失败时源引用原样保留，可继续使用或换一种投影重试。
//
// 设计决策: f 通过同一个指针探测并（对可变引用）修改值，成功时只暴露投影区域，
// 失败时调用方继续通过源引用访问整个值；任一时刻对外只存在一个可写视图。

// MapRef 将只读引用投影为指向派生值的只读引用，原始读锁随之移交。
// f 不得为 nil，也不得返回 nil，否则 panic。
func MapRef[K, V, T any](r *Ref[K, V], f func(*V) *T) *MappedRef[K, T] {
	if f == nil {
		panic(ErrNilFunc)
	}
	r.h.check()
	t := mustProject(f(r.v))
	return newMappedRef(r.h.handoff(), r.k, t)
}

// TryMap 与 MapRef 相同，但 f 可以拒绝投影。
// f 返回 false 时结果为 (nil, false)，r 不受影响。
func TryMap[K, V, T any](r *Ref[K, V], f func(*V) (*T, bool)) (*MappedRef[K, T], bool) {
	if f == nil {
		panic(ErrNilFunc)
	}
	r.h.check()
	t, ok := f(r.v)
	if !ok {
		return nil, false
	}
	t = mustProject(t)
	return newMappedRef(r.h.handoff(), r.k, t), true
}

// MapSplit 将只读引用拆分为两个共享原始读锁的引用。
// 两个引用全部 Release 后读锁才释放。没有可失败的拆分，需要校验时应在调用前完成。
func MapSplit[K, V, A, B any](r *Ref[K, V], f func(*V) (*A, *B)) (*RefMulti[K, A], *RefMulti[K, B]) {
	if f == nil {
		panic(ErrNilFunc)
	}
	r.h.check()
	a, b := f(r.v)
	a, b = mustProject(a), mustProject(b)
	h := r.h.handoff()
	s := newSharedLease(h.lease, 2)
	return newRefMulti(h.with(sharePart{s}), r.k, a), newRefMulti(h.with(sharePart{s}), r.k, b)
}

// MapMut 将可变引用投影为指向派生区域的可变引用，原始写锁随之移交。
func MapMut[K, V, T any](r *RefMut[K, V], f func(*V) *T) *MappedRefMut[K, T] {
	if f == nil {
		panic(ErrNilFunc)
	}
	r.h.check()
	t := mustProject(f(r.v))
	return newMappedRefMut(r.h.handoff(), r.k, t)
}

// TryMapMut 与 MapMut 相同，但 f 可以拒绝投影。
// f 可在判断过程中读取或修改值；返回 false 时结果为 (nil, false)，
// r 仍持有写锁并可继续访问整个值。
func TryMapMut[K, V, T any](r *RefMut[K, V], f func(*V) (*T, bool)) (*MappedRefMut[K, T], bool) {
	if f == nil {
		panic(ErrNilFunc)
	}
	r.h.check()
	t, ok := f(r.v)
	if !ok {
		return nil, false
	}
	t = mustProject(t)
	return newMappedRefMut(r.h.handoff(), r.k, t), true
}

// MapSplitMut 将可变引用拆分为两个共享原始写锁的可变引用。
// f 必须返回互不重叠的两个区域（如结构体的两个字段、切片在某下标处的两半），
// 本包不校验不相交性。两个引用全部 Release 后写锁才释放。
func MapSplitMut[K, V, A, B any](r *RefMut[K, V], f func(*V) (*A, *B)) (*RefMutMulti[K, A], *RefMutMulti[K, B]) {
	if f == nil {
		panic(ErrNilFunc)
	}
	r.h.check()
	a, b := f(r.v)
	a, b = mustProject(a), mustProject(b)
	h := r.h.handoff()
	s := newSharedLease(h.lease, 2)
	return newRefMutMulti(h.with(sharePart{s}), r.k, a), newRefMutMulti(h.with(sharePart{s}), r.k, b)
}

// MapMapped 在已投影的只读引用上继续投影，仍持有最初的读锁。
func MapMapped[K, T, U any](r *MappedRef[K, T], f func(*T) *U) *MappedRef[K, U] {
	if f == nil {
		panic(ErrNilFunc)
	}
	r.h.check()
	u := mustProject(f(r.v))
	return newMappedRef(r.h.handoff(), r.k, u)
}

// TryMapMapped 是 MapMapped 的可失败版本，失败时 r 不受影响。
func TryMapMapped[K, T, U any](r *MappedRef[K, T], f func(*T) (*U, bool)) (*MappedRef[K, U], bool) {
	if f == nil {
		panic(ErrNilFunc)
	}
	r.h.check()
	u, ok := f(r.v)
	if !ok {
		return nil, false
	}
	u = mustProject(u)
	return newMappedRef(r.h.handoff(), r.k, u), true
}

// MapMappedMut 在已投影的可变引用上继续投影，仍持有最初的写锁。
func MapMappedMut[K, T, U any](r *MappedRefMut[K, T], f func(*T) *U) *MappedRefMut[K, U] {
	if f == nil {
		panic(ErrNilFunc)
	}
	r.h.check()
	u := mustProject(f(r.v))
	return newMappedRefMut(r.h.handoff(), r.k, u)
}

// TryMapMappedMut 是 MapMappedMut 的可失败版本，失败时 r 不受影响。
func TryMapMappedMut[K, T, U any](r *MappedRefMut[K, T], f func(*T) (*U, bool)) (*MappedRefMut[K, U], bool) {
	if f == nil {
		panic(ErrNilFunc)
	}
	r.h.check()
	u, ok := f(r.v)
	if !ok {
		return nil, false
	}
	u = mustProject(u)
	return newMappedRefMut(r.h.handoff(), r.k, u), true
}

func mustProject[T any](p *T) *T {
	if p == nil {
		panic(ErrNilProjection)
	}
	return p
}
