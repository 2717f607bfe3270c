// Command bench runs a synthetic workload against the cache and exposes optional pprof/Prometheus endpoints.
package main

import (
	"context"
	"flag"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/bellirodrigo2/flexcache/cache"
	pmet "github.com/bellirodrigo2/flexcache/metrics/prom"
)

func main() {
	// ---- Flags ----
	var (
		policy   = flag.String("policy", "lru", "eviction policy: lru | fifo | random")
		maxItems = flag.Int("max_items", 100_000, "entry count limit (0 = unbounded)")
		maxBytes = flag.Int64("max_bytes", 0, "byte weight limit (0 = unbounded)")
		scanIv   = flag.Duration("scan", 0, "periodic TTL sweep interval (0 = disabled)")
		ttl      = flag.Duration("ttl", 0, "per-entry TTL for writes (0 = none)")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys    = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS   = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV   = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed    = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload = flag.Int("preload", 0, "preload entries (0 = max_items/2)")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr")
	)
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// ---- pprof server (on DefaultServeMux) ----
	if *pprofAddr != "" {
		go func() {
			log.Info().Str("addr", *pprofAddr).Msg("pprof: serving")
			log.Err(http.ListenAndServe(*pprofAddr, nil)).Msg("pprof: stopped")
		}()
	}

	// ---- Prometheus metrics (on DefaultServeMux) ----
	metrics := pmet.New(nil, "flexcache", "bench", nil)
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		log.Info().Str("addr", *metricsAddr).Msg("metrics: serving")
		log.Err(http.ListenAndServe(*metricsAddr, nil)).Msg("metrics: stopped")
	}()

	// ---- Build cache ----
	c, err := cache.New[string](cache.Options[string]{
		Eviction:     *policy,
		MaxItems:     *maxItems,
		MaxBytes:     *maxBytes,
		ScanInterval: *scanIv,
		Metrics:      metrics,
		Logger:       &log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("cache construction failed")
	}
	defer func() { _ = c.Close() }()

	// ---- Preload half the item cap to get a realistic hit-rate ----
	pl := *preload
	if pl == 0 {
		pl = *maxItems / 2
	}
	for i := 0; i < pl; i++ {
		k := "k:" + strconv.Itoa(i)
		_ = c.Set(k, "v"+strconv.Itoa(i))
	}

	// ---- Snapshot flags for goroutines ----
	readPctVal := *readPct
	keysMax := uint64(*keys - 1)
	seedBase := *seed
	zipfSVal := *zipfS
	zipfVVal := *zipfV
	ttlVal := *ttl
	workersN := *workers
	if workersN <= 0 {
		workersN = 1
	}

	// ---- Load generation ----
	var reads, writes, hits, misses, total uint64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(workersN)
	for w := 0; w < workersN; w++ {
		go func(id int) {
			defer wg.Done()

			// Each worker gets its own RNG + Zipf (rand.Rand is NOT goroutine-safe).
			localR := rand.New(rand.NewSource(seedBase + int64(id)*9973))
			localZipf := rand.NewZipf(localR, zipfSVal, zipfVVal, keysMax)

			keyByZipf := func() string {
				return "k:" + strconv.FormatUint(localZipf.Uint64(), 10)
			}

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}

				atomic.AddUint64(&total, 1)
				if int(localR.Int31n(100)) < readPctVal {
					atomic.AddUint64(&reads, 1)
					if _, ok := c.Get(keyByZipf()); ok {
						atomic.AddUint64(&hits, 1)
					} else {
						atomic.AddUint64(&misses, 1)
					}
				} else {
					atomic.AddUint64(&writes, 1)
					k := keyByZipf()
					// Set inserts only; refresh a live key by replacing it.
					if err := c.SetWithTTL(k, "v"+strconv.Itoa(localR.Int()), ttlVal); err != nil {
						c.Delete(k)
						_ = c.SetWithTTL(k, "v"+strconv.Itoa(localR.Int()), ttlVal)
					}
				}
			}
		}(w)
	}
	wg.Wait()
	elapsed := time.Since(start)

	// ---- Report ----
	ops := atomic.LoadUint64(&total)
	readsN := atomic.LoadUint64(&reads)
	writesN := atomic.LoadUint64(&writes)
	hitsN := atomic.LoadUint64(&hits)
	missesN := atomic.LoadUint64(&misses)

	hitRate := 0.0
	if readsN > 0 {
		hitRate = float64(hitsN) / float64(readsN) * 100
	}

	log.Info().
		Str("policy", *policy).
		Int("max_items", *maxItems).
		Int64("max_bytes", *maxBytes).
		Int("workers", workersN).
		Int("keys", *keys).
		Dur("elapsed", elapsed).
		Int64("seed", seedBase).
		Msg("run")
	log.Info().
		Uint64("ops", ops).
		Float64("ops_per_sec", float64(ops)/elapsed.Seconds()).
		Uint64("reads", readsN).
		Uint64("writes", writesN).
		Msg("throughput")
	log.Info().
		Uint64("hits", hitsN).
		Uint64("misses", missesN).
		Float64("hit_rate_pct", hitRate).
		Int("len", c.Len()).
		Int64("bytes", c.Bytes()).
		Msg("result")
}
