package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentuity/go-memocache/cache"
	"github.com/agentuity/go-memocache/logger"
	"github.com/agentuity/go-memocache/memo"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"
)

const benchPrefix = "bench:"

type payload struct {
	ID        string    `msgpack:"id"`
	Key       string    `msgpack:"key"`
	CreatedAt time.Time `msgpack:"created_at"`
}

type benchResult struct {
	RunID         string
	Requests      int
	Errors        int64
	Invocations   uint64
	Invalidations int64
	Stats         cache.Stats
	Elapsed       time.Duration
	RSS           uint64
}

func runBench(ctx context.Context, cfg benchConfig, log logger.Logger) (benchResult, error) {
	if err := cfg.validate(); err != nil {
		return benchResult{}, err
	}
	result := benchResult{
		RunID:    uuid.NewString(),
		Requests: cfg.Workers * cfg.Requests,
	}
	cacheOpts := []cache.Option{cache.WithLogger(log)}
	if cfg.CleanupInterval > 0 {
		cacheOpts = append(cacheOpts, cache.WithCleanupInterval(time.Duration(cfg.CleanupInterval)))
	}
	if cfg.Serialize {
		cacheOpts = append(cacheOpts, cache.WithSerialization())
	}
	c := cache.NewMemoryCache(ctx, cacheOpts...)
	defer c.Close()

	d := memo.New(c,
		memo.WithLogger(log),
		memo.WithDefaults(
			memo.TTL(time.Duration(cfg.TTL)),
			memo.Tags("bench"),
			memo.Debug(cfg.Debug),
		),
	)
	produce := func(key string) memo.Producer[payload] {
		return func(ctx context.Context) (payload, error) {
			if cfg.Latency > 0 {
				select {
				case <-ctx.Done():
					return payload{}, ctx.Err()
				case <-time.After(time.Duration(cfg.Latency)):
				}
			}
			return payload{ID: uuid.NewString(), Key: key, CreatedAt: time.Now()}, nil
		}
	}

	log.Info("bench %s: %d workers x %d requests over %d keys", result.RunID, cfg.Workers, cfg.Requests, cfg.Keys)
	var issued, errs, invalidations atomic.Int64
	started := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < cfg.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < cfg.Requests; i++ {
				if ctx.Err() != nil {
					return
				}
				key := benchPrefix + strconv.Itoa((w+i)%cfg.Keys)
				if _, err := memo.Wrap(ctx, d, key, produce(key)); err != nil {
					errs.Add(1)
					log.Warn("request for %s failed: %v", key, err)
				}
				if n := issued.Add(1); cfg.InvalidateEvery > 0 && n%int64(cfg.InvalidateEvery) == 0 {
					d.InvalidateByPrefix(benchPrefix)
					invalidations.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	result.Elapsed = time.Since(started)
	result.Errors = errs.Load()
	result.Invalidations = invalidations.Load()
	result.Invocations = d.Invocations()
	result.Stats = d.Stats()
	result.RSS = processRSS()
	return result, ctx.Err()
}

func processRSS() uint64 {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		return 0
	}
	return mem.RSS
}

func (r benchResult) rows() [][]string {
	rss := "n/a"
	if r.RSS > 0 {
		rss = humanize.Bytes(r.RSS)
	}
	return [][]string{
		{"run id", r.RunID},
		{"requests", humanize.Comma(int64(r.Requests))},
		{"producer calls", humanize.Comma(int64(r.Invocations))},
		{"invalidations", humanize.Comma(r.Invalidations)},
		{"errors", humanize.Comma(r.Errors)},
		{"hits", humanize.Comma(int64(r.Stats.Hits))},
		{"misses", humanize.Comma(int64(r.Stats.Misses))},
		{"hit rate", fmt.Sprintf("%.2f%%", r.Stats.HitRate*100)},
		{"entries", humanize.Comma(int64(r.Stats.Size))},
		{"elapsed", r.Elapsed.Round(time.Millisecond).String()},
		{"rss", rss},
	}
}
