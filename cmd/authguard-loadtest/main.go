package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	"github.com/MrEthical07/authguard"
	"github.com/MrEthical07/authguard/authtest"
	"github.com/MrEthical07/authguard/route"
	"github.com/MrEthical07/authguard/session"
)

var paths = []string{"/dashboard", "/settings/profile", "/login", "/docs/intro", "/missing"}

func main() {
	var (
		concurrency = pflag.Int("concurrency", 256, "number of concurrent workers")
		ops         = pflag.Int("ops", 200000, "operations per phase (evaluate + refresh)")
		latency     = pflag.Duration("service-latency", time.Millisecond, "simulated authentication service latency")
		redisAddr   = pflag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = pflag.String("prefix", "authguard-loadtest", "session key prefix")
	)
	pflag.Parse()

	if *concurrency <= 0 || *ops <= 0 || *latency < 0 {
		fmt.Fprintln(os.Stderr, "concurrency and ops must be > 0, service-latency >= 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	service := &slowService{
		Authenticator: authtest.NewAuthenticator(nil, time.Hour),
		delay:         *latency,
	}
	service.AddUser("load", "test", session.Identity{ID: "u1", Name: "Load"})

	cfg := authguard.DefaultConfig()
	cfg.Refresh.Auto = false
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.Secret = authtest.Secret

	store, err := authguard.New().
		WithConfig(cfg).
		WithAuthenticator(service).
		WithPersistence(session.NewRedisPersistence(client, *prefix, "load")).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if _, err := store.Hydrate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "hydrate failed: %v\n", err)
		os.Exit(1)
	}
	if !store.CurrentSession().Authenticated() {
		if _, err := store.Login(ctx, authguard.Credentials{Identifier: "load", Password: "test"}); err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
	}

	table := route.MustTable("/dashboard",
		route.Spec{Path: "/login", GuestOnly: true},
		route.Spec{Path: "/dashboard", RequiresAuth: true, RedirectOnFail: "/login"},
		route.Spec{Path: "/settings/*", RequiresAuth: true, RedirectOnFail: "/login"},
		route.Spec{Path: "/docs/**"},
	)

	var notified atomic.Int64
	unsubscribe := store.Subscribe(func(session.Session) { notified.Add(1) })
	defer unsubscribe()

	evaluateStats := runEvaluatePhase(store, table, *ops, *concurrency)
	refreshStats, rejected := runRefreshPhase(ctx, store, *ops, *concurrency)

	fmt.Println("---- results ----")
	printStats("evaluate", evaluateStats)
	printStats("refresh", refreshStats)
	fmt.Printf("refresh: rejected as concurrent=%d notifications=%d\n", rejected, notified.Load())

	snapshot := store.MetricsSnapshot()
	fmt.Printf("metrics: refresh_success=%d concurrent_rejected=%d stale_discarded=%d\n",
		snapshot.Counters[authguard.MetricRefreshSuccess],
		snapshot.Counters[authguard.MetricConcurrentRejected],
		snapshot.Counters[authguard.MetricStaleDiscarded],
	)
}

// slowService delays every call to keep refreshes overlapping.
type slowService struct {
	*authtest.Authenticator
	delay time.Duration
}

func (s *slowService) Renew(ctx context.Context, token string) (authguard.Renewal, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return authguard.Renewal{}, ctx.Err()
		}
	}
	return s.Authenticator.Renew(ctx, token)
}

func runEvaluatePhase(store *authguard.Store, table *route.Table, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				p := paths[r.Intn(len(paths))]
				t0 := time.Now()
				d := table.Evaluate(p, store.CurrentSession())
				elapsed := time.Since(t0)
				if d.Kind == route.Defer {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

// runRefreshPhase hammers Refresh from every worker. Only one refresh can be
// in flight; the rest are rejected and counted separately from failures.
func runRefreshPhase(ctx context.Context, store *authguard.Store, ops, concurrency int) (phaseStats, int64) {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		rejected  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				_, err := store.Refresh(ctx)
				elapsed := time.Since(t0)
				switch {
				case err == nil:
				case errors.Is(err, authguard.ErrConcurrentOperation):
					atomic.AddInt64(&rejected, 1)
				default:
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, elapsed)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures), rejected
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
