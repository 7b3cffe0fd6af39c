// Package xshardmap 提供分片的并发安全 map，以及持有分片锁的引用类型。
//
// Map 按 key 的哈希把条目分布到多个分片，每个分片一把可降级读写锁（见 xrwlock）。
// 与"回调内访问"风格不同，Get/GetMut 把已获取的锁包装进引用对象交给调用方：
// 引用存活期间锁保持持有，调用方用完后 Release。
//
// # 引用类型
//
//	类型             锁所有权        暴露的值        可写   产生方式
//	─────────────────────────────────────────────────────────────────────
//	Ref             独占读租约       V              否     Get / Downgrade
//	RefMut          独占写租约       V              是     GetMut / GetOrInsert
//	MappedRef       独占（类型擦除）  投影类型 T       否     MapRef / TryMap
//	MappedRefMut    独占（类型擦除）  投影类型 T       是     MapMut / TryMapMut
//	RefMulti        共享（引用计数）  拆分出的一半      否     MapSplit
//	RefMutMulti     共享（引用计数）  拆分出的一半      是     MapSplitMut
//
// # 不变量
//
//   - 先锁后数据：引用中的 key/value 指针只在租约持有期间构造和访问
//   - 租约移交：MapRef/TryMap/MapSplit/Downgrade 成功后源引用失效，租约进入新引用；
//     在失效引用上访问值会以 [ErrReleased] panic，Release 返回 [ErrReleased]
//   - Try* 失败不改变任何东西：源引用仍持有租约并可继续使用
//   - 拆分共享租约：两半都 Release 后锁才释放；两半的不相交性由拆分函数保证
//   - 原子降级：RefMut.Downgrade 不经过无锁状态，写者无法插入
//   - key 只读，投影与拆分只作用于值
//
// # 示例
//
//	m, _ := xshardmap.New[string, []byte]()
//	m.Insert("greeting", []byte("hello world"))
//
//	r, _ := m.GetMut("greeting")
//	head, tail := xshardmap.MapSplitMut(r, func(v *[]byte) (*[]byte, *[]byte) {
//	    a, b := (*v)[:5:5], (*v)[5:]
//	    return &a, &b
//	})
//	// head 与 tail 可分别修改，全部 Release 后分片写锁释放
//	_ = head.Release()
//	_ = tail.Release()
//
// # 生命周期
//
// Go 没有析构，引用必须显式 Release。作为兜底，引用在未 Release 的情况下被 GC 回收时，
// 会自动释放其租约并记录 Warn 日志和泄漏指标（可通过 WithReleaseOnCollect(false) 关闭）。
// 兜底释放的时机不确定，不能替代 Release。
//
// # 可观测性
//
// 通过 OpenTelemetry 记录租约指标（WithMeterProvider 注入，默认全局 MeterProvider）：
//   - xshardmap.lease.active：当前持有的租约数（mode=read/write）
//   - xshardmap.lease.wait.duration：获取分片锁的等待时长
//   - xshardmap.lease.hold.duration：分片锁持有时长
//   - xshardmap.lease.downgrade.total：降级次数
//   - xshardmap.lease.leaked.total：被 GC 兜底释放的引用数
//
// GetContext/GetMutContext 额外为锁等待区间创建 span（WithTracerProvider 注入），
// 属性包含分片下标、锁模式和 key 是否存在；key 不存在不视为错误。
//
// # 注意事项
//
//   - 锁非可重入：持有某分片引用时，同一 goroutine 对该分片的冲突操作会永久阻塞
//   - 单个引用对象不是并发安全的；MapSplitMut 的两半可以分别交给不同 goroutine
//   - Ref.Value 返回值的副本；切片、map 等引用语义类型的副本仍指向 map 内部数据，
//     通过只读引用得到的数据不得修改
//   - ValueMut 返回的指针只在 Release 之前有效
package xshardmap
