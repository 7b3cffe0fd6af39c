package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omeyang/xshard/pkg/util/xshardmap"
)

// counters 是压测使用的值类型。两个字段可被 MapSplitMut 拆成互不相交的两半。
type counters struct {
	Hits   int64
	Misses int64
}

type stressConfig struct {
	logFile string
	workers int
	keys    int
	ops     int
	seed    uint64
	level   slog.Level
	mapOpts []xshardmap.Option
}

// opKind 是 worker 执行的一类操作。
type opKind int

const (
	opIncrement opKind = iota // GetMut 后自增 Hits
	opRead                    // Get 只读
	opDowngrade               // GetMut 自增后降级并复核
	opProject                 // MapMut 投影到 Misses 后自增
	opTryProject              // TryMapMut 成功或失败两条路径都自增一次
	opSplitRead               // MapSplit 同时读取两半
	opSplitWrite              // MapSplitMut 两半各自增一次
	opChainRead               // MapRef 后经 TryMapMapped/MapMapped 链式投影读取
	opChainWrite              // MapMut 后经 TryMapMappedMut 或 MapMappedMut 链式投影自增
	numOps
)

var opNames = [numOps]string{
	opIncrement:  "increment",
	opRead:       "read",
	opDowngrade:  "downgrade",
	opProject:    "project",
	opTryProject: "try-project",
	opSplitRead:  "split-read",
	opSplitWrite: "split-write",
	opChainRead:  "chain-read",
	opChainWrite: "chain-write",
}

func (k opKind) String() string {
	if k < 0 || k >= numOps {
		return fmt.Sprintf("op(%d)", int(k))
	}
	return opNames[k]
}

// stressResult 汇总所有 worker 的计数。
type stressResult struct {
	ops        [numOps]int64
	increments int64
	observed   int64
	elapsed    time.Duration
}

type workerStats struct {
	ops        [numOps]int64
	increments int64
}

func keyName(i int) string { return fmt.Sprintf("key-%d", i) }

// stress 预置键后并发执行随机操作，最后统计所有计数之和。
func stress(ctx context.Context, logger *slog.Logger, m *xshardmap.Map[string, counters], cfg stressConfig) (stressResult, error) {
	for i := range cfg.keys {
		m.Insert(keyName(i), counters{})
	}
	logger.Info("xmapstress: run started",
		"shards", m.ShardCount(), "workers", cfg.workers, "keys", cfg.keys, "ops", cfg.ops)

	stats := make([]workerStats, cfg.workers)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	for w := range cfg.workers {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(cfg.seed, uint64(w)))
			if err := runWorker(gctx, m, cfg, rng, &stats[w]); err != nil {
				return fmt.Errorf("worker %d: %w", w, err)
			}
			logger.Debug("xmapstress: worker done", "worker", w, "increments", stats[w].increments)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stressResult{}, err
	}

	res := stressResult{elapsed: time.Since(start)}
	for _, s := range stats {
		res.increments += s.increments
		for k, n := range s.ops {
			res.ops[k] += n
		}
	}
	for _, v := range m.All() {
		res.observed += v.Hits + v.Misses
	}
	logger.Info("xmapstress: run finished", "elapsed", res.elapsed, "increments", res.increments)
	return res, nil
}

func runWorker(ctx context.Context, m *xshardmap.Map[string, counters], cfg stressConfig, rng *rand.Rand, st *workerStats) error {
	for range cfg.ops {
		key := keyName(rng.IntN(cfg.keys))
		kind := opKind(rng.IntN(int(numOps)))
		n, err := runOp(ctx, m, kind, key)
		if err != nil {
			return fmt.Errorf("%s %s: %w", kind, key, err)
		}
		st.ops[kind]++
		st.increments += n
	}
	return nil
}

// runOp 执行一次操作，返回完成的自增次数。
func runOp(ctx context.Context, m *xshardmap.Map[string, counters], kind opKind, key string) (int64, error) {
	switch kind {
	case opRead, opSplitRead, opChainRead:
		r, err := m.GetContext(ctx, key)
		if err != nil {
			return 0, err
		}
		return 0, readOp(kind, r)
	default:
		w, err := m.GetMutContext(ctx, key)
		if err != nil {
			return 0, err
		}
		return writeOp(kind, w)
	}
}

func readOp(kind opKind, r *xshardmap.Ref[string, counters]) error {
	switch kind {
	case opRead:
		v := r.Value()
		if err := r.Release(); err != nil {
			return err
		}
		if v.Hits < 0 || v.Misses < 0 {
			return fmt.Errorf("negative counters %+v", v)
		}
		return nil

	case opChainRead:
		whole := xshardmap.MapRef(r, func(v *counters) *counters { return v })
		hits, ok := xshardmap.TryMapMapped(whole, func(v *counters) (*int64, bool) { return &v.Hits, v.Hits >= 0 })
		if !ok {
			v := whole.Value()
			_ = whole.Release()
			return fmt.Errorf("negative counters %+v", v)
		}
		same := xshardmap.MapMapped(hits, func(h *int64) *int64 { return h })
		h := same.Value()
		if err := same.Release(); err != nil {
			return err
		}
		if h < 0 {
			return fmt.Errorf("negative hits %d", h)
		}
		return nil
	}

	hits, misses := xshardmap.MapSplit(r, func(v *counters) (*int64, *int64) { return &v.Hits, &v.Misses })
	h, mi := hits.Value(), misses.Value()
	if err := hits.Release(); err != nil {
		return err
	}
	if err := misses.Release(); err != nil {
		return err
	}
	if h < 0 || mi < 0 {
		return fmt.Errorf("negative counters hits=%d misses=%d", h, mi)
	}
	return nil
}

func writeOp(kind opKind, w *xshardmap.RefMut[string, counters]) (int64, error) {
	switch kind {
	case opDowngrade:
		w.ValueMut().Hits++
		want := w.Value()
		r := w.Downgrade()
		got := r.Value()
		if err := r.Release(); err != nil {
			return 1, err
		}
		if got != want {
			return 1, fmt.Errorf("value changed across downgrade: wrote %+v, read %+v", want, got)
		}
		return 1, nil

	case opProject:
		p := xshardmap.MapMut(w, func(v *counters) *int64 { return &v.Misses })
		*p.ValueMut()++
		return 1, p.Release()

	case opTryProject:
		// Hits 为偶数时投影成功；失败时原引用仍可用
		p, ok := xshardmap.TryMapMut(w, func(v *counters) (*int64, bool) {
			if v.Hits%2 != 0 {
				return nil, false
			}
			return &v.Misses, true
		})
		if ok {
			*p.ValueMut()++
			return 1, p.Release()
		}
		w.ValueMut().Hits++
		return 1, w.Release()

	case opChainWrite:
		// Misses 为偶数时经可失败投影写 Hits，否则回退到 MapMappedMut 写 Misses
		whole := xshardmap.MapMut(w, func(v *counters) *counters { return v })
		if p, ok := xshardmap.TryMapMappedMut(whole, func(v *counters) (*int64, bool) {
			return &v.Hits, v.Misses%2 == 0
		}); ok {
			*p.ValueMut()++
			return 1, p.Release()
		}
		misses := xshardmap.MapMappedMut(whole, func(v *counters) *int64 { return &v.Misses })
		*misses.ValueMut()++
		return 1, misses.Release()

	case opSplitWrite:
		hits, misses := xshardmap.MapSplitMut(w, func(v *counters) (*int64, *int64) { return &v.Hits, &v.Misses })
		*hits.ValueMut()++
		if err := hits.Release(); err != nil {
			return 1, err
		}
		*misses.ValueMut()++
		return 2, misses.Release()

	default:
		w.ValueMut().Hits++
		return 1, w.Release()
	}
}
