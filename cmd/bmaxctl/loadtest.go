package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/Adithya-Monish-Kumar-K/bmax-search/internal/searcher/handler"
)

var defaultQueries = []string{
	"red apple",
	"green apple pie",
	"apple",
	"pear tart recipe",
	"fresh fruit",
	"baked apple with cinnamon",
	"orchard harvest",
	"cider",
}

type loadTestConfig struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	QPS         float64
	Queries     []string
	Params      url.Values
}

// loadStats collects per-request outcomes from all workers.
type loadStats struct {
	total     atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newLoadStats() *loadStats {
	return &loadStats{
		latencies: make([]time.Duration, 0, 1<<16),
		codes:     make(map[int]int64),
	}
}

func (s *loadStats) record(d time.Duration, code int, cacheHit bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.failed.Add(1)
		return
	}
	if code >= 200 && code < 300 {
		s.succeeded.Add(1)
	} else {
		s.failed.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func newLoadTestCmd() *cobra.Command {
	var (
		cfg         loadTestConfig
		queriesFile string
		extra       []string
	)
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive a running searcher with concurrent queries",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestParams(extra)
			if err != nil {
				return err
			}
			cfg.Params = url.Values(req)
			cfg.Queries = defaultQueries
			if queriesFile != "" {
				if cfg.Queries, err = readQueries(queriesFile); err != nil {
					return err
				}
			}
			if cfg.Concurrency < 1 {
				return fmt.Errorf("concurrency must be at least 1")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "target %s, %d workers, %s, %d queries", cfg.BaseURL, cfg.Concurrency, cfg.Duration, len(cfg.Queries))
			if cfg.QPS > 0 {
				fmt.Fprintf(out, ", %.0f qps", cfg.QPS)
			}
			fmt.Fprintln(out)

			stats := runLoadTest(cmd.Context(), cfg)
			report(out, stats, cfg.Duration)
			if stats.total.Load() == 0 {
				return fmt.Errorf("no requests completed; is the searcher running?")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the search service")
	cmd.Flags().IntVar(&cfg.Concurrency, "concurrency", 10, "concurrent workers")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	cmd.Flags().Float64Var(&cfg.QPS, "qps", 0, "overall request rate limit (0 means unlimited)")
	cmd.Flags().StringVar(&queriesFile, "queries", "", "file with one query per line")
	cmd.Flags().StringArrayVarP(&extra, "param", "p", nil, "request parameter sent with every query (repeatable)")
	return cmd
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" {
			out = append(out, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return out, nil
}

func runLoadTest(parent context.Context, cfg loadTestConfig) *loadStats {
	stats := newLoadStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), cfg.Concurrency)
	}

	ctx, cancel := context.WithTimeout(parent, cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}
				q := cfg.Queries[next%len(cfg.Queries)]
				next++

				v := url.Values{}
				for k, vs := range cfg.Params {
					v[k] = vs
				}
				v.Set("q", q)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/api/v1/search?"+v.Encode(), nil)
				if err != nil {
					stats.record(0, 0, false, err)
					return
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if ctx.Err() != nil {
					return
				}
				if err != nil {
					stats.record(elapsed, 0, false, err)
					continue
				}
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.record(elapsed, resp.StatusCode, resp.Header.Get(handler.CacheHeader) == "HIT", nil)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func report(w io.Writer, s *loadStats, duration time.Duration) {
	total := s.total.Load()
	failed := s.failed.Load()
	fmt.Fprintf(w, "\nrequests:   %s (%s ok, %s failed)\n",
		humanize.Comma(total), humanize.Comma(s.succeeded.Load()), humanize.Comma(failed))
	if total == 0 {
		return
	}
	fmt.Fprintf(w, "error rate: %.2f%%\n", float64(failed)/float64(total)*100)
	fmt.Fprintf(w, "cache hits: %.2f%%\n", float64(s.cacheHits.Load())/float64(total)*100)
	fmt.Fprintf(w, "throughput: %.1f req/s\n", float64(total)/duration.Seconds())

	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	codes := make([]int, 0, len(s.codes))
	for c := range s.codes {
		codes = append(codes, c)
	}
	slices.Sort(codes)
	counts := make([]int64, len(codes))
	for i, c := range codes {
		counts[i] = s.codes[c]
	}
	s.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		fmt.Fprintf(w, "\nlatency min %s  p50 %s  p90 %s  p99 %s  max %s  stddev %s\n",
			latencies[0],
			percentile(latencies, 50),
			percentile(latencies, 90),
			percentile(latencies, 99),
			latencies[len(latencies)-1],
			stddev(latencies),
		)
	}
	fmt.Fprintln(w, "\nstatus codes:")
	for i, c := range codes {
		fmt.Fprintf(w, "  %d: %s\n", c, humanize.Comma(counts[i]))
	}
}

// percentile uses the nearest-rank method on sorted latencies.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func stddev(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	var sum float64
	for _, l := range latencies {
		sum += float64(l)
	}
	mean := sum / float64(len(latencies))
	var sq float64
	for _, l := range latencies {
		d := float64(l) - mean
		sq += d * d
	}
	return time.Duration(math.Sqrt(sq / float64(len(latencies))))
}
