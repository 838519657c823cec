package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/joho/godotenv"
	"github.com/panjf2000/ants/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/waitlist-ops/internal/model"
	"gitlab.com/timkado/api/waitlist-ops/pkg/logger"
)

var (
	loadgenRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waitlist_loadgen_requests_total",
			Help: "Intake form posts sent by the load generator, by outcome.",
		},
		[]string{"outcome"},
	)
	loadgenRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waitlist_loadgen_request_duration_seconds",
			Help:    "Latency of intake form posts.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// submitTask is one form post handed to the pool.
type submitTask struct {
	form url.Values
}

// tally counts redirect outcomes across workers.
type tally struct {
	mu     sync.Mutex
	counts map[string]int
}

func (t *tally) add(outcome string) {
	t.mu.Lock()
	t.counts[outcome]++
	t.mu.Unlock()
	loadgenRequestsTotal.WithLabelValues(outcome).Inc()
}

func (t *tally) fields() []zap.Field {
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.counts))
	for k := range t.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.Int(k, t.counts[k]))
	}
	return fields
}

func main() {
	_ = godotenv.Load()

	target := flag.String("url", envOr("WAITLIST_URL", "http://localhost:8080"), "Base URL of the waitlist service")
	rate := flag.Int("rate", 20, "Target submissions per second")
	duration := flag.Duration("duration", 30*time.Second, "Load test duration")
	concurrency := flag.Int("concurrency", 8, "Number of concurrent workers")
	dupRatio := flag.Float64("dup-ratio", 0.3, "Share of submissions reusing an earlier email (exercises merges)")
	invalidRatio := flag.Float64("invalid-ratio", 0.05, "Share of submissions with a malformed email")
	botRatio := flag.Float64("bot-ratio", 0.05, "Share of submissions filling the honeypot")
	metricsPort := flag.Int("metrics-port", 9091, "Port for Prometheus metrics endpoint, 0 disables it")
	logLevel := flag.String("log-level", envOr("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Waitlist intake load generator\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Posts fake waitlist forms to /api/waitlist and tallies the redirect outcomes.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *rate <= 0 {
		*rate = 1
	}

	if err := logger.Initialize(*logLevel, "console"); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	var metricsServer *http.Server
	if *metricsPort > 0 {
		metricsServer = startMetricsServer(*metricsPort)
	}

	endpoint := strings.TrimRight(*target, "/") + "/api/waitlist"
	logger.Log.Info("Starting waitlist load generator",
		zap.String("endpoint", endpoint),
		zap.Int("rate_per_sec", *rate),
		zap.Duration("duration", *duration),
		zap.Int("concurrency", *concurrency),
		zap.Float64("dup_ratio", *dupRatio),
	)

	client := &http.Client{
		Timeout: 10 * time.Second,
		// The service always answers 303; the Location header is the result
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	results := &tally{counts: make(map[string]int)}
	var wg sync.WaitGroup
	pool, err := ants.NewPoolWithFunc(*concurrency, func(data interface{}) {
		defer wg.Done()
		post(client, endpoint, data.(submitTask), results)
	})
	if err != nil {
		logger.Log.Fatal("Failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Log.Info("Received termination signal, stopping", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	gofakeit.Seed(time.Now().UnixNano())
	gen := &formGenerator{dupRatio: *dupRatio, invalidRatio: *invalidRatio, botRatio: *botRatio}

	ticker := time.NewTicker(time.Second / time.Duration(*rate))
	defer ticker.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			wg.Add(1)
			if err := pool.Invoke(submitTask{form: gen.next()}); err != nil {
				wg.Done()
				results.add("dispatch_error")
				logger.Log.Warn("Failed to dispatch submission", zap.Error(err))
			}
		}
	}

	logger.Log.Info("Waiting for in-flight submissions")
	wg.Wait()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Log.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	logger.Log.Info("Load generation complete", results.fields()...)
}

// formGenerator produces fake form posts, optionally reusing earlier emails.
type formGenerator struct {
	dupRatio     float64
	invalidRatio float64
	botRatio     float64
	seen         []string
}

func (g *formGenerator) next() url.Values {
	sub := model.NewSubmission()

	switch roll := gofakeit.Float64Range(0, 1); {
	case roll < g.invalidRatio:
		sub.Email = strings.ReplaceAll(sub.Email, "@", "")
	case roll < g.invalidRatio+g.botRatio:
		sub.Honeypot = gofakeit.URL()
	case roll < g.invalidRatio+g.botRatio+g.dupRatio && len(g.seen) > 0:
		sub.Email = strings.ToUpper(g.seen[gofakeit.Number(0, len(g.seen)-1)])
	default:
		g.seen = append(g.seen, sub.Email)
	}

	form := url.Values{}
	form.Set("email", sub.Email)
	form.Set("source", sub.Source)
	form.Set("intent", sub.Intent)
	form.Set("fullName", sub.FullName)
	form.Set("company", sub.Company)
	form.Set("role", sub.Role)
	form.Set("location", sub.Location)
	form.Set("module", sub.Module)
	form.Set("volume", sub.Volume)
	form.Set("notes", sub.Notes)
	form.Set("returnTo", "/"+gofakeit.RandomString([]string{"coming-soon", "trust", "solutions"}))
	if sub.Honeypot != "" {
		form.Set("company_website", sub.Honeypot)
	}
	return form
}

// post sends one form and classifies the redirect target.
func post(client *http.Client, endpoint string, task submitTask, results *tally) {
	start := time.Now()
	resp, err := client.PostForm(endpoint, task.form)
	loadgenRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		logger.Log.Debug("Submission failed", zap.Error(err))
		results.add("transport_error")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusSeeOther {
		results.add("status_" + strconv.Itoa(resp.StatusCode))
		return
	}

	location := resp.Header.Get("Location")
	switch {
	case strings.Contains(location, "ok=1"):
		results.add("ok")
	case strings.Contains(location, "error=invalid"):
		results.add("invalid")
	default:
		results.add("server_error")
	}
}

func startMetricsServer(port int) *http.Server {
	logger.Log.Info("Starting Prometheus metrics server", zap.Int("port", port))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error("Failed to start Prometheus metrics server", zap.Error(err))
		}
	}()

	return server
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
