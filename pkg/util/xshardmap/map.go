package xshardmap

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/omeyang/xshard/pkg/util/xrwlock"
)

// Map 是分片的并发安全 map。
// 每个分片由一把可降级读写锁保护；Get/GetMut 返回持有该分片锁的引用对象，
// 引用存活期间分片保持锁定，调用方必须在用完后 Release。
//
// 必须通过 [New] 或 [NewWithHasher] 创建，零值不可用。所有方法都是并发安全的。
//
// 设计决策: 锁是非可重入的。同一 goroutine 持有某分片的引用时，
// 再对同一分片发起冲突的操作（如持有 Ref 时 Insert 同分片的 key）会永久阻塞。
// 需要在持有引用时探测分片状态，应使用 TryGet/TryGetMut。
type Map[K comparable, V any] struct {
	shards []shard[K, V]
	mask   uint64
	hasher func(K) uint64
	tel    *telemetry
}

type shard[K comparable, V any] struct {
	lock    *xrwlock.RWMutex
	entries map[K]*entry[K, V]
}

// entry 以指针形式存放，map 扩容时引用持有的 key/value 地址保持不变。
type entry[K comparable, V any] struct {
	key   K
	value V
}

// New 创建一个空 Map。配置无效时返回错误（如分片数不是 2 的幂）。
func New[K comparable, V any](opts ...Option) (*Map[K, V], error) {
	return newMap[K, V](defaultHasher[K](), opts)
}

// NewWithHasher 使用自定义哈希函数创建 Map。hasher 为 nil 时返回 [ErrNilHasher]。
func NewWithHasher[K comparable, V any](hasher func(K) uint64, opts ...Option) (*Map[K, V], error) {
	if hasher == nil {
		return nil, ErrNilHasher
	}
	return newMap[K, V](hasher, opts)
}

func newMap[K comparable, V any](hasher func(K) uint64, opts []Option) (*Map[K, V], error) {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if err := o.validate(); err != nil {
		return nil, err
	}
	tel, err := newTelemetry(&o)
	if err != nil {
		return nil, err
	}

	shards := make([]shard[K, V], o.shardCount)
	for i := range shards {
		shards[i] = shard[K, V]{
			lock:    xrwlock.New(),
			entries: make(map[K]*entry[K, V]),
		}
	}
	o.logger.Debug("xshardmap: map created",
		slog.Int("shards", o.shardCount),
		slog.Bool("release_on_collect", o.releaseOnCollect),
	)
	// shardCount 已验证为 [1, 65536] 内的 2 的幂，int→uint64 转换安全。
	return &Map[K, V]{
		shards: shards,
		mask:   uint64(o.shardCount - 1),
		hasher: hasher,
		tel:    tel,
	}, nil
}

// ShardCount 返回分片数量。
func (m *Map[K, V]) ShardCount() int {
	return len(m.shards)
}

// ShardIndex 返回 key 所属分片的下标。
func (m *Map[K, V]) ShardIndex(key K) int {
	return int(m.hasher(key) & m.mask)
}

func (m *Map[K, V]) shardFor(key K) (int, *shard[K, V]) {
	idx := m.ShardIndex(key)
	return idx, &m.shards[idx]
}

// =============================================================================
// 租约获取
// =============================================================================

func (m *Map[K, V]) readLease(ctx context.Context, s *shard[K, V]) (*lease, error) {
	start := time.Now()
	g, err := s.lock.RLock(ctx)
	if err != nil {
		return nil, err
	}
	return m.newLease(g, nil, start), nil
}

func (m *Map[K, V]) writeLease(ctx context.Context, s *shard[K, V]) (*lease, error) {
	start := time.Now()
	g, err := s.lock.Lock(ctx)
	if err != nil {
		return nil, err
	}
	return m.newLease(nil, g, start), nil
}

func (m *Map[K, V]) newLease(r *xrwlock.ReadGuard, w *xrwlock.WriteGuard, start time.Time) *lease {
	now := time.Now()
	l := &lease{read: r, write: w, since: now, tel: m.tel}
	m.tel.acquired(l.mode(), now.Sub(start))
	return l
}

// mustReadLease 以不可取消的 context 获取读租约。
func (m *Map[K, V]) mustReadLease(s *shard[K, V]) *lease {
	l, err := m.readLease(context.Background(), s)
	if err != nil {
		// context.Background 永不取消，到达此处说明锁实现违背约定。
		panic(err)
	}
	return l
}

// mustWriteLease 以不可取消的 context 获取写租约。
func (m *Map[K, V]) mustWriteLease(s *shard[K, V]) *lease {
	l, err := m.writeLease(context.Background(), s)
	if err != nil {
		panic(err)
	}
	return l
}

func (m *Map[K, V]) handleOf(l *lease, idx int) handle {
	return handle{lease: l, tel: m.tel, shard: idx}
}

// =============================================================================
// 引用获取
// =============================================================================

// Get 阻塞获取 key 的只读引用。key 不存在时返回 (nil, false)。
func (m *Map[K, V]) Get(key K) (*Ref[K, V], bool) {
	idx, s := m.shardFor(key)
	r, err := m.get(context.Background(), idx, s, key)
	return r, err == nil
}

// GetContext 与 Get 相同，但等待分片锁时支持 ctx 超时/取消。
// key 不存在时返回 [ErrNotFound]；ctx 为 nil 时返回 [ErrNilContext]。
// 配置了 TracerProvider 时，等待区间记录为一个 span。
func (m *Map[K, V]) GetContext(ctx context.Context, key K) (*Ref[K, V], error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	idx, s := m.shardFor(key)
	ctx, span := m.tel.startSpan(ctx, spanNameGet, modeRead, idx)
	r, err := m.get(ctx, idx, s, key)
	endSpan(span, err)
	return r, err
}

func (m *Map[K, V]) get(ctx context.Context, idx int, s *shard[K, V], key K) (*Ref[K, V], error) {
	l, err := m.readLease(ctx, s)
	if err != nil {
		return nil, err
	}
	return m.refFrom(l, idx, s, key)
}

// TryGet 非阻塞获取只读引用。
// 分片写锁被持有（或有写者排队）时返回 [ErrWouldBlock]，key 不存在时返回 [ErrNotFound]。
func (m *Map[K, V]) TryGet(key K) (*Ref[K, V], error) {
	idx, s := m.shardFor(key)
	start := time.Now()
	g, ok := s.lock.TryRLock()
	if !ok {
		return nil, ErrWouldBlock
	}
	return m.refFrom(m.newLease(g, nil, start), idx, s, key)
}

func (m *Map[K, V]) refFrom(l *lease, idx int, s *shard[K, V], key K) (*Ref[K, V], error) {
	e, ok := s.entries[key]
	if !ok {
		_ = l.Release()
		return nil, ErrNotFound
	}
	return newRef(m.handleOf(l, idx), &e.key, &e.value), nil
}

// GetMut 阻塞获取 key 的可变引用。key 不存在时返回 (nil, false)。
func (m *Map[K, V]) GetMut(key K) (*RefMut[K, V], bool) {
	idx, s := m.shardFor(key)
	r, err := m.getMut(context.Background(), idx, s, key)
	return r, err == nil
}

// GetMutContext 与 GetMut 相同，但等待分片锁时支持 ctx 超时/取消。
// key 不存在时返回 [ErrNotFound]；ctx 为 nil 时返回 [ErrNilContext]。
func (m *Map[K, V]) GetMutContext(ctx context.Context, key K) (*RefMut[K, V], error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	idx, s := m.shardFor(key)
	ctx, span := m.tel.startSpan(ctx, spanNameGetMut, modeWrite, idx)
	r, err := m.getMut(ctx, idx, s, key)
	endSpan(span, err)
	return r, err
}

func (m *Map[K, V]) getMut(ctx context.Context, idx int, s *shard[K, V], key K) (*RefMut[K, V], error) {
	l, err := m.writeLease(ctx, s)
	if err != nil {
		return nil, err
	}
	return m.refMutFrom(l, idx, s, key)
}

// TryGetMut 非阻塞获取可变引用。
// 分片被任意模式锁定时返回 [ErrWouldBlock]，key 不存在时返回 [ErrNotFound]。
func (m *Map[K, V]) TryGetMut(key K) (*RefMut[K, V], error) {
	idx, s := m.shardFor(key)
	start := time.Now()
	g, ok := s.lock.TryLock()
	if !ok {
		return nil, ErrWouldBlock
	}
	return m.refMutFrom(m.newLease(nil, g, start), idx, s, key)
}

func (m *Map[K, V]) refMutFrom(l *lease, idx int, s *shard[K, V], key K) (*RefMut[K, V], error) {
	e, ok := s.entries[key]
	if !ok {
		_ = l.Release()
		return nil, ErrNotFound
	}
	return newRefMut(m.handleOf(l, idx), &e.key, &e.value), nil
}

// GetOrInsert 返回 key 的可变引用；key 不存在时先插入 value。
func (m *Map[K, V]) GetOrInsert(key K, value V) *RefMut[K, V] {
	return m.GetOrInsertWith(key, func() V { return value })
}

// GetOrInsertWith 返回 key 的可变引用；key 不存在时插入 fn 的返回值。
// fn 在分片写锁内执行，严禁在 fn 中访问同一个 Map。
func (m *Map[K, V]) GetOrInsertWith(key K, fn func() V) *RefMut[K, V] {
	if fn == nil {
		panic(ErrNilFunc)
	}
	idx, s := m.shardFor(key)
	l := m.mustWriteLease(s)
	e, ok := s.entries[key]
	if !ok {
		// fn panic 时释放写锁，避免分片永久锁死
		func() {
			defer func() {
				if r := recover(); r != nil {
					_ = l.Release()
					panic(r)
				}
			}()
			e = &entry[K, V]{key: key, value: fn()}
		}()
		s.entries[key] = e
	}
	return newRefMut(m.handleOf(l, idx), &e.key, &e.value)
}

// =============================================================================
// 直接操作
// =============================================================================

// Insert 插入或覆盖 key 的值，返回旧值以及 key 是否已存在。
func (m *Map[K, V]) Insert(key K, value V) (old V, loaded bool) {
	_, s := m.shardFor(key)
	l := m.mustWriteLease(s)
	defer l.Release() //nolint:errcheck // 新获取的租约释放不会失败

	if e, ok := s.entries[key]; ok {
		old, e.value = e.value, value
		return old, true
	}
	s.entries[key] = &entry[K, V]{key: key, value: value}
	return old, false
}

// Remove 删除 key，返回被删除的值以及 key 是否存在。
func (m *Map[K, V]) Remove(key K) (V, bool) {
	_, s := m.shardFor(key)
	l := m.mustWriteLease(s)
	defer l.Release() //nolint:errcheck // 新获取的租约释放不会失败

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(s.entries, key)
	return e.value, true
}

// Alter 在分片写锁内以 fn 的返回值替换 key 的值。key 不存在时返回 false。
// fn 中严禁访问同一个 Map。
func (m *Map[K, V]) Alter(key K, fn func(K, V) V) bool {
	if fn == nil {
		panic(ErrNilFunc)
	}
	_, s := m.shardFor(key)
	l := m.mustWriteLease(s)
	defer l.Release() //nolint:errcheck // 新获取的租约释放不会失败

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.value = fn(e.key, e.value)
	return true
}

// ContainsKey 报告 key 是否存在。
func (m *Map[K, V]) ContainsKey(key K) bool {
	_, s := m.shardFor(key)
	l := m.mustReadLease(s)
	defer l.Release() //nolint:errcheck // 新获取的租约释放不会失败

	_, ok := s.entries[key]
	return ok
}

// Len 返回条目总数。逐个分片加读锁统计，结果不保证跨分片原子性。
func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		l := m.mustReadLease(s)
		n += len(s.entries)
		_ = l.Release()
	}
	return n
}

// IsEmpty 报告 Map 是否为空。
func (m *Map[K, V]) IsEmpty() bool {
	return m.Len() == 0
}

// Clear 删除所有条目。逐个分片加写锁清空。
func (m *Map[K, V]) Clear() {
	for i := range m.shards {
		s := &m.shards[i]
		l := m.mustWriteLease(s)
		clear(s.entries)
		_ = l.Release()
	}
}

// Range 依次对每个条目调用 fn，fn 返回 false 时停止。
// 遍历某个分片时持有该分片读锁，fn 中严禁写同一个 Map（会死锁）。
// 不保证遍历顺序，也不保证跨分片的一致性快照。
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	if fn == nil {
		panic(ErrNilFunc)
	}
	for i := range m.shards {
		if !m.rangeShard(&m.shards[i], fn) {
			return
		}
	}
}

func (m *Map[K, V]) rangeShard(s *shard[K, V], fn func(K, V) bool) bool {
	l := m.mustReadLease(s)
	defer l.Release() //nolint:errcheck // 新获取的租约释放不会失败

	for _, e := range s.entries {
		if !fn(e.key, e.value) {
			return false
		}
	}
	return true
}

// All 返回遍历所有条目的迭代器，语义与 [Map.Range] 相同。
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		m.Range(yield)
	}
}
