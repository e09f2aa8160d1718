// Package procstats reads Go runtime and process statistics for sinks which
// report them next to the registry.
package procstats

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// GCStats is the accumulated work of one garbage collector.
type GCStats struct {
	Time time.Duration
	Runs int64
}

// Stats is one reading. Usages are ratios of used to reserved, in [0, 1].
type Stats struct {
	HeapUsage    float64
	NonHeapUsage float64
	MemoryPools  map[string]float64
	Goroutines   int
	Threads      int
	Uptime       time.Duration
	FDUsage      float64
	Collectors   map[string]GCStats
}

// Source produces Stats.
type Source interface {
	Read() (Stats, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func() (Stats, error)

func (f SourceFunc) Read() (Stats, error) { return f() }

// Default reads the current process.
var Default Source = SourceFunc(Read)

// Collector is the name Go's single collector is reported under.
const Collector = "mark-sweep"

var processStart = time.Now()

// Read reads the runtime memory statistics, then the process statistics
// the OS provides. Process statistics which cannot be read are left zero and
// their errors returned together with the partial Stats.
func Read() (Stats, error) {
	return ReadContext(context.Background())
}

// ReadContext is Read with a context for the OS queries.
func ReadContext(ctx context.Context) (Stats, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := Stats{
		HeapUsage: ratio(ms.HeapInuse, ms.HeapSys),
		NonHeapUsage: ratio(ms.StackInuse+ms.MSpanInuse+ms.MCacheInuse,
			ms.StackSys+ms.MSpanSys+ms.MCacheSys),
		MemoryPools: map[string]float64{
			"heap":   ratio(ms.HeapInuse, ms.HeapSys),
			"stack":  ratio(ms.StackInuse, ms.StackSys),
			"mspan":  ratio(ms.MSpanInuse, ms.MSpanSys),
			"mcache": ratio(ms.MCacheInuse, ms.MCacheSys),
		},
		Goroutines: runtime.NumGoroutine(),
		Uptime:     time.Since(processStart),
		Collectors: map[string]GCStats{
			Collector: {Time: time.Duration(ms.PauseTotalNs), Runs: int64(ms.NumGC)},
		},
	}

	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return s, fmt.Errorf("procstats: %w", err)
	}
	var errs []error
	if created, err := p.CreateTimeWithContext(ctx); err == nil {
		s.Uptime = time.Since(time.UnixMilli(created))
	} else {
		errs = append(errs, fmt.Errorf("create time: %w", err))
	}
	if n, err := p.NumThreadsWithContext(ctx); err == nil {
		s.Threads = int(n)
	} else {
		errs = append(errs, fmt.Errorf("threads: %w", err))
	}
	if usage, err := fdUsage(ctx, p); err == nil {
		s.FDUsage = usage
	} else {
		errs = append(errs, fmt.Errorf("fd usage: %w", err))
	}
	if len(errs) > 0 {
		return s, fmt.Errorf("procstats: %w", errors.Join(errs...))
	}
	return s, nil
}

func fdUsage(ctx context.Context, p *process.Process) (float64, error) {
	n, err := p.NumFDsWithContext(ctx)
	if err != nil {
		return 0, err
	}
	limits, err := p.RlimitWithContext(ctx)
	if err != nil {
		return 0, err
	}
	for _, l := range limits {
		if l.Resource == process.RLIMIT_NOFILE {
			return ratio(uint64(n), l.Soft), nil
		}
	}
	return 0, errors.New("no open files limit")
}

func ratio(used, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total)
}
