package xshardmap

import "errors"

var (
	// ErrReleased 表示引用已释放，或其租约已移交给投影/拆分/降级产生的新引用。
	// 重复调用 Release 返回此错误；在已失效的引用上访问值或继续变换会以此错误 panic。
	ErrReleased = errors.New("xshardmap: reference released")

	// ErrNotFound 表示 key 不存在。
	ErrNotFound = errors.New("xshardmap: key not found")

	// ErrWouldBlock 表示 TryGet/TryGetMut 所需的分片锁正被冲突模式持有。
	ErrWouldBlock = errors.New("xshardmap: shard lock held")

	// ErrNilContext 表示传入的 context 为 nil。
	ErrNilContext = errors.New("xshardmap: nil context")

	// ErrNilHasher 表示 NewWithHasher 传入了 nil 哈希函数。
	ErrNilHasher = errors.New("xshardmap: nil hasher")

	// ErrNilFunc 表示投影、拆分或更新函数为 nil。
	ErrNilFunc = errors.New("xshardmap: nil function")

	// ErrNilProjection 表示投影或拆分函数返回了 nil 指针。
	ErrNilProjection = errors.New("xshardmap: projection returned nil")

	// ErrInvalidShardCount 表示分片数量配置无效。
	ErrInvalidShardCount = errors.New("xshardmap: invalid shard count")

	// ErrUnsupportedFormat 表示配置格式不受支持。
	ErrUnsupportedFormat = errors.New("xshardmap: unsupported config format")

	// ErrInvalidConfig 表示配置数据无法解析。
	ErrInvalidConfig = errors.New("xshardmap: invalid config")
)
