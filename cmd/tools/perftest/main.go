// main.go - Load testing tool for the sitepulse track endpoint
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gofiber/fiber/v2"

	"sitepulse/pkg/beacon"
)

// PerfConfig holds the configuration for the performance test
type PerfConfig struct {
	BaseURL      string
	Origin       string
	Concurrency  int
	Duration     time.Duration
	EventsPerSec int
	Timeout      time.Duration
	// SpreadIPs sends a distinct public X-Forwarded-For per worker so the
	// per-IP limit does not dominate the run.
	SpreadIPs bool
}

// Result captures the result of a single request
type Result struct {
	Duration   time.Duration
	StatusCode int
	Error      error
	Timestamp  time.Time
}

// PerfStats holds statistics about the performance test. Only the collector
// goroutine touches it.
type PerfStats struct {
	TotalRequests      int64
	SuccessfulRequests int64
	RateLimited        int64
	FailedRequests     int64
	StatusCodes        map[int]int64
	ResponseTimes      []time.Duration
	StartTime          time.Time
	EndTime            time.Time
}

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "Base URL of the server")
	origin := flag.String("origin", "https://example.com", "Origin header sent with each event")
	concurrency := flag.Int("c", 10, "Number of concurrent clients")
	duration := flag.Duration("d", 30*time.Second, "Duration of the test")
	eventsPerSec := flag.Int("rate", 0, "Target events per second (0 = unlimited)")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	spreadIPs := flag.Bool("spread-ips", true, "Use a different client IP per worker")
	output := flag.String("o", "perf_results.json", "Where to write the JSON results")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg := &PerfConfig{
		BaseURL:      strings.TrimRight(*baseURL, "/"),
		Origin:       *origin,
		Concurrency:  *concurrency,
		Duration:     *duration,
		EventsPerSec: *eventsPerSec,
		Timeout:      *timeout,
		SpreadIPs:    *spreadIPs,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting load test",
		slog.String("target", cfg.BaseURL+"/api/v1/track"),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Duration("duration", cfg.Duration),
		slog.Int("rate", cfg.EventsPerSec))

	testCtx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	stats := &PerfStats{StatusCodes: make(map[int]int64), StartTime: time.Now()}
	for result := range runTest(testCtx, cfg) {
		processResult(result, stats)
	}
	stats.EndTime = time.Now()

	printResults(stats)
	if err := exportResults(stats, *output); err != nil {
		logger.Error("Failed to write results", slog.Any("error", err))
		os.Exit(1)
	}
}

// runTest starts the workers and returns a channel of their results
func runTest(ctx context.Context, cfg *PerfConfig) <-chan Result {
	results := make(chan Result, cfg.Concurrency*10)
	var wg sync.WaitGroup

	var interval time.Duration
	if cfg.EventsPerSec > 0 {
		interval = time.Duration(float64(time.Second) * float64(cfg.Concurrency) / float64(cfg.EventsPerSec))
	}

	for i := 0; i < cfg.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(workerID)))
			ip := fmt.Sprintf("203.0.%d.%d", 113+workerID/250, 1+workerID%250)

			var ticker *time.Ticker
			if interval > 0 {
				ticker = time.NewTicker(interval)
				defer ticker.Stop()
			}

			for {
				if ticker != nil {
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				} else if ctx.Err() != nil {
					return
				}

				results <- sendRequest(cfg, randomEvent(rng, workerID), ip)
			}
		}(i)
	}

	go func() {
		wg.Wait()
		close(results)
	}()
	return results
}

func sendRequest(cfg *PerfConfig, ev beacon.Event, ip string) Result {
	agent := fiber.Post(cfg.BaseURL + "/api/v1/track")
	agent.Timeout(cfg.Timeout)
	agent.UserAgent(userAgents[rand.IntN(len(userAgents))])
	agent.Set(fiber.HeaderOrigin, cfg.Origin)
	if cfg.SpreadIPs {
		agent.Set(fiber.HeaderXForwardedFor, ip)
	}
	agent.JSON(ev)

	started := time.Now()
	if err := agent.Parse(); err != nil {
		return Result{Error: fmt.Errorf("failed to prepare request: %w", err), Timestamp: started}
	}
	code, _, errs := agent.Bytes()
	took := time.Since(started)
	if len(errs) > 0 {
		return Result{Duration: took, Error: errors.Join(errs...), Timestamp: started}
	}
	return Result{Duration: took, StatusCode: code, Timestamp: started}
}

var paths = []string{"/", "/blog", "/blog/hello-world", "/blog/go-generics", "/projects", "/about", "/uses", "/now"}

var referrerURLs = []string{
	"https://google.com/search?q=blog",
	"https://news.ycombinator.com/item?id=1",
	"https://www.reddit.com/r/golang/",
	"https://duckduckgo.com/",
	"https://bsky.app/profile/someone",
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_4 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
}

func randomEvent(rng *rand.Rand, workerID int) beacon.Event {
	ev := beacon.Event{
		SessionID:  fmt.Sprintf("%d-perf%d%d", time.Now().UnixMilli(), workerID, rng.IntN(1000)),
		PagePath:   paths[rng.IntN(len(paths))],
		StatusCode: fiber.StatusOK,
	}
	if rng.Float64() < 0.6 {
		ev.Referrer = referrerURLs[rng.IntN(len(referrerURLs))]
	}
	if rng.IntN(50) == 0 {
		ev.PagePath = "/old-post"
		ev.StatusCode = fiber.StatusNotFound
	}
	return ev
}

func processResult(result Result, stats *PerfStats) {
	stats.TotalRequests++
	if result.Error != nil {
		stats.FailedRequests++
		return
	}

	stats.ResponseTimes = append(stats.ResponseTimes, result.Duration)
	stats.StatusCodes[result.StatusCode]++

	switch result.StatusCode {
	case fiber.StatusAccepted, fiber.StatusOK:
		stats.SuccessfulRequests++
	case fiber.StatusTooManyRequests:
		stats.RateLimited++
	default:
		stats.FailedRequests++
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func pct(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(n) / float64(total)
}

// printResults displays the test results as aligned tables
func printResults(stats *PerfStats) {
	elapsed := stats.EndTime.Sub(stats.StartTime)
	slices.Sort(stats.ResponseTimes)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "\n%s\t%s\n", "METRIC", "VALUE")
	fmt.Fprintf(w, "%s\t%s\n", "------", "-----")
	fmt.Fprintf(w, "Duration\t%v\n", elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Requests Per Second\t%.2f\n", float64(stats.TotalRequests)/elapsed.Seconds())
	fmt.Fprintf(w, "Total Requests\t%d\n", stats.TotalRequests)
	fmt.Fprintf(w, "Accepted\t%d (%.2f%%)\n", stats.SuccessfulRequests, pct(stats.SuccessfulRequests, stats.TotalRequests))
	fmt.Fprintf(w, "Rate Limited\t%d (%.2f%%)\n", stats.RateLimited, pct(stats.RateLimited, stats.TotalRequests))
	fmt.Fprintf(w, "Failed\t%d (%.2f%%)\n", stats.FailedRequests, pct(stats.FailedRequests, stats.TotalRequests))
	fmt.Fprintf(w, "p50\t%v\n", percentile(stats.ResponseTimes, 0.50))
	fmt.Fprintf(w, "p90\t%v\n", percentile(stats.ResponseTimes, 0.90))
	fmt.Fprintf(w, "p99\t%v\n", percentile(stats.ResponseTimes, 0.99))
	w.Flush()

	if len(stats.StatusCodes) == 0 {
		return
	}

	codes := make([]int, 0, len(stats.StatusCodes))
	var maxCount int64 = 1
	for code, count := range stats.StatusCodes {
		codes = append(codes, code)
		maxCount = max(maxCount, count)
	}
	slices.Sort(codes)

	const maxBarLength = 50
	fmt.Println("\nStatus Code Distribution:")
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t%s\n", "STATUS", "COUNT", "GRAPH")
	for _, code := range codes {
		count := stats.StatusCodes[code]
		bar := strings.Repeat("█", int(float64(count)/float64(maxCount)*maxBarLength))
		fmt.Fprintf(w, "%d\t%d\t%s\n", code, count, bar)
	}
	w.Flush()
}

// exportResults saves the summary as JSON for external visualization
func exportResults(stats *PerfStats, path string) error {
	elapsed := stats.EndTime.Sub(stats.StartTime)
	result := map[string]any{
		"summary": map[string]any{
			"totalRequests":     stats.TotalRequests,
			"accepted":          stats.SuccessfulRequests,
			"rateLimited":       stats.RateLimited,
			"failed":            stats.FailedRequests,
			"requestsPerSecond": float64(stats.TotalRequests) / elapsed.Seconds(),
			"p50LatencyMs":      percentile(stats.ResponseTimes, 0.50).Milliseconds(),
			"p90LatencyMs":      percentile(stats.ResponseTimes, 0.90).Milliseconds(),
			"p99LatencyMs":      percentile(stats.ResponseTimes, 0.99).Milliseconds(),
			"startTime":         stats.StartTime.Format(time.RFC3339),
			"endTime":           stats.EndTime.Format(time.RFC3339),
		},
		"statusCodes": stats.StatusCodes,
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Printf("\nDetailed results saved to %s\n", path)
	return nil
}
