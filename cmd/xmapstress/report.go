package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const metricLeaseActive = "xshardmap.lease.active"

// metricLine 是报告中的一行指标。
type metricLine struct {
	name  string
	attrs string
	text  string
}

// report 是从 ManualReader 采集的指标快照。
type report struct {
	lines []metricLine
	// activeLeases 是所有模式下仍未释放的租约数。
	activeLeases int64
}

func collectReport(ctx context.Context, reader *sdkmetric.ManualReader) (report, error) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		return report{}, err
	}

	var rep report
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					rep.lines = append(rep.lines, metricLine{
						name:  m.Name,
						attrs: formatAttrs(dp.Attributes),
						text:  fmt.Sprintf("%d", dp.Value),
					})
					if m.Name == metricLeaseActive {
						rep.activeLeases += dp.Value
					}
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					var mean float64
					if dp.Count > 0 {
						mean = dp.Sum / float64(dp.Count)
					}
					rep.lines = append(rep.lines, metricLine{
						name:  m.Name,
						attrs: formatAttrs(dp.Attributes),
						text:  fmt.Sprintf("count=%d mean=%.3gs", dp.Count, mean),
					})
				}
			}
		}
	}
	slices.SortFunc(rep.lines, func(a, b metricLine) int {
		return cmp.Or(cmp.Compare(a.name, b.name), cmp.Compare(a.attrs, b.attrs))
	})
	return rep, nil
}

func formatAttrs(set attribute.Set) string {
	if set.Len() == 0 {
		return ""
	}
	parts := make([]string, 0, set.Len())
	for it := set.Iter(); it.Next(); {
		kv := it.Attribute()
		parts = append(parts, string(kv.Key)+"="+kv.Value.Emit())
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func (r report) print(w io.Writer) {
	fmt.Fprintln(w, "指标:")
	for _, l := range r.lines {
		fmt.Fprintf(w, "  %s%s %s\n", l.name, l.attrs, l.text)
	}
}

func printResult(w io.Writer, runID string, shards int, cfg stressConfig, res stressResult) {
	var total int64
	for _, n := range res.ops {
		total += n
	}
	fmt.Fprintf(w, "xmapstress 报告 (run %s)\n", runID)
	fmt.Fprintf(w, "  分片:   %d\n", shards)
	fmt.Fprintf(w, "  worker: %d\n", cfg.workers)
	fmt.Fprintf(w, "  键:     %d\n", cfg.keys)
	fmt.Fprintf(w, "  操作:   %d (%s)\n", total, res.elapsed)
	for k, n := range res.ops {
		fmt.Fprintf(w, "    %-12s %d\n", opKind(k), n)
	}
	fmt.Fprintf(w, "  自增:   expected=%d observed=%d\n", res.increments, res.observed)
}

// verify 返回被破坏的不变量描述，全部成立时返回 nil。
func (res stressResult) verify(rep report) []string {
	var out []string
	if res.observed != res.increments {
		out = append(out, fmt.Sprintf("计数之和 %d 不等于自增次数 %d", res.observed, res.increments))
	}
	if rep.activeLeases != 0 {
		out = append(out, fmt.Sprintf("仍有 %d 个租约未释放", rep.activeLeases))
	}
	return out
}
