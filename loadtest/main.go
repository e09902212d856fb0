package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"pulsehub/client"
	"pulsehub/pkg/constraints"
)

// Configuration
var (
	targetURL   = flag.String("url", "http://localhost:8080", "Hub base URL")
	apiKey      = flag.String("key", "pulse-admin-key-1", "API key")
	totalVUs    = flag.Int("c", 2000, "Total Virtual Users (Concurrency)")
	rampUp      = flag.Duration("ramp", 60*time.Second, "Ramp up duration")
	prefix      = flag.String("prefix", "loadtest.", "Prefix every VU watches")
	publishRate = flag.Duration("every", 100*time.Millisecond, "Interval between published samples")
)

// Metrics
var (
	activeClients int64
	totalconnects int64
	connectErrors int64
	publishErrors int64
	messagesRx    int64
	latencySum    int64 // milliseconds
	latencyCount  int64
)

func main() {
	flag.Parse()

	fmt.Printf("🚀 Starting Load Test\n")
	fmt.Printf("   Target: %s\n", *targetURL)
	fmt.Printf("   VUs: %d\n", *totalVUs)
	fmt.Printf("   Ramp: %v\n", *rampUp)

	http.DefaultTransport.(*http.Transport).MaxIdleConns = *totalVUs
	http.DefaultTransport.(*http.Transport).MaxConnsPerHost = *totalVUs

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go report(ctx)
	go publish(ctx)

	var wg sync.WaitGroup
	interval := *rampUp / time.Duration(*totalVUs)
	for i := 0; i < *totalVUs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runClient(ctx)
		}()
		select {
		case <-time.After(interval):
		case <-ctx.Done():
		}
	}

	fmt.Println("✅ All VUs launched. Waiting...")
	wg.Wait()
}

func report(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			msgs := atomic.SwapInt64(&messagesRx, 0)
			latSum := atomic.SwapInt64(&latencySum, 0)
			latCnt := atomic.SwapInt64(&latencyCount, 0)

			avgLat := float64(0)
			if latCnt > 0 {
				avgLat = float64(latSum) / float64(latCnt)
			}
			fmt.Printf("[%s] Active: %d | Total: %d | Errors: %d/%d | Msgs/s: %d | Avg Latency: %.2f ms\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&activeClients), atomic.LoadInt64(&totalconnects),
				atomic.LoadInt64(&connectErrors), atomic.LoadInt64(&publishErrors),
				msgs, avgLat)
		}
	}
}

// publish ingests the current unix time in ms so watchers can measure
// end-to-end latency.
func publish(ctx context.Context) {
	c := client.NewPulseClient(*targetURL, *apiKey)
	label := *prefix + "latency"
	ticker := time.NewTicker(*publishRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := float64(time.Now().UnixMilli())
			if _, err := c.Publish(ctx, label, string(constraints.Milliseconds), now); err != nil {
				if atomic.AddInt64(&publishErrors, 1) == 1 {
					fmt.Printf("Error publishing: %v\n", err)
				}
			}
		}
	}
}

func runClient(ctx context.Context) {
	c := client.NewPulseClient(*targetURL, *apiKey)
	ch, err := c.Stream(ctx, *prefix)
	if err != nil {
		if atomic.AddInt64(&connectErrors, 1) == 1 {
			fmt.Printf("Error connecting: %v\n", err)
		}
		return
	}

	atomic.AddInt64(&activeClients, 1)
	atomic.AddInt64(&totalconnects, 1)
	defer atomic.AddInt64(&activeClients, -1)

	for rv := range ch {
		atomic.AddInt64(&messagesRx, 1)

		var sent float64
		if err := json.Unmarshal(rv.Value, &sent); err != nil {
			continue
		}
		latency := time.Now().UnixMilli() - int64(sent)
		// Filter reasonable range to avoid clock skew weirdness
		if latency >= 0 && latency < 10000 {
			atomic.AddInt64(&latencySum, latency)
			atomic.AddInt64(&latencyCount, 1)
		}
	}
}
