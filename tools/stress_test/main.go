package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/api"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/data"
	"github.com/VanDung-dev/HieraChain-RouterNet/routernet/ledger"
)

// StressTestConfig holds configuration for the stress test.
type StressTestConfig struct {
	Address      string
	Concurrency  int
	RequestCount int
	BatchSize    int
	Duration     time.Duration
	AuthToken    string
	From         string
	To           string
	Amount       string
	ReportFile   string
}

// StressTestResult holds the results of a stress test.
type StressTestResult struct {
	TotalRequests  int64
	SuccessfulReqs int64
	FailedReqs     int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
}

func main() {
	config := parseFlags()

	batch, err := buildBatch(config)
	if err != nil {
		log.Fatalf("Invalid batch: %v", err)
	}

	fmt.Println("=== RouterNet Arrow Server Stress Test ===")
	fmt.Printf("Target: %s\n", config.Address)
	fmt.Printf("Concurrency: %d workers\n", config.Concurrency)
	fmt.Printf("Batch: %d x %s -> %s\n", config.BatchSize, config.Amount, config.To)
	fmt.Printf("Duration: %v\n", config.Duration)
	fmt.Printf("Auth: %v\n", config.AuthToken != "")
	fmt.Println()

	result := runStressTest(config, batch)

	printResults(result)

	if config.ReportFile != "" {
		saveReport(config, result)
	}
}

func parseFlags() StressTestConfig {
	config := StressTestConfig{}

	flag.StringVar(&config.Address, "addr", "127.0.0.1:50051", "Arrow server address")
	flag.IntVar(&config.Concurrency, "c", 10, "Number of concurrent workers")
	flag.IntVar(&config.RequestCount, "n", 0, "Total number of batches (0 = unlimited, use -d instead)")
	flag.IntVar(&config.BatchSize, "b", 16, "Transfers per batch")
	flag.DurationVar(&config.Duration, "d", 30*time.Second, "Duration of test")
	flag.StringVar(&config.AuthToken, "token", "", "Authentication token (empty disables the handshake)")
	flag.StringVar(&config.From, "from", "0x00000000000000000000000000000000000000a0", "Sending account")
	flag.StringVar(&config.To, "to", "", "Network entry unit to send into")
	flag.StringVar(&config.Amount, "amount", "1gwei", "Value of each transfer")
	flag.StringVar(&config.ReportFile, "o", "", "Output report file (JSON)")

	flag.Parse()

	if config.BatchSize < 1 {
		config.BatchSize = 1
	}
	return config
}

func runStressTest(config StressTestConfig, batch []data.TransferRow) StressTestResult {
	var (
		totalReqs    int64
		successReqs  int64
		failedReqs   int64
		totalLatency int64
		minLatency   int64 = 1<<63 - 1
		maxLatency   int64
		wg           sync.WaitGroup
		stopChan     = make(chan struct{})
	)

	startTime := time.Now()

	// Start workers
	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runWorker(workerID, config, batch, stopChan, &totalReqs, &successReqs, &failedReqs, &totalLatency, &minLatency, &maxLatency)
		}(i)
	}

	// Wait for duration or until every worker hit the request limit
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-time.After(config.Duration):
	case <-done:
	}
	close(stopChan)
	wg.Wait()

	duration := time.Since(startTime)
	total := atomic.LoadInt64(&totalReqs)
	success := atomic.LoadInt64(&successReqs)
	failed := atomic.LoadInt64(&failedReqs)
	latencySum := atomic.LoadInt64(&totalLatency)
	minLat := atomic.LoadInt64(&minLatency)
	maxLat := atomic.LoadInt64(&maxLatency)

	var avgLatency time.Duration
	if success > 0 {
		avgLatency = time.Duration(latencySum / success)
	}

	return StressTestResult{
		TotalRequests:  total,
		SuccessfulReqs: success,
		FailedReqs:     failed,
		TotalDuration:  duration,
		AvgLatency:     avgLatency,
		MinLatency:     time.Duration(minLat),
		MaxLatency:     time.Duration(maxLat),
		RequestsPerSec: float64(total) / duration.Seconds(),
	}
}

func runWorker(_ int, config StressTestConfig, batch []data.TransferRow, stop chan struct{}, totalReqs, successReqs, failedReqs, totalLatency, minLatency, maxLatency *int64) {
	ctx := context.Background()

	var client *api.Client
	defer func() {
		if client != nil {
			client.Close()
		}
	}()

	for {
		select {
		case <-stop:
			return
		default:
			if config.RequestCount > 0 && atomic.LoadInt64(totalReqs) >= int64(config.RequestCount) {
				return
			}

			if client == nil {
				c, err := api.Dial(ctx, config.Address, config.AuthToken)
				if err != nil {
					atomic.AddInt64(totalReqs, 1)
					atomic.AddInt64(failedReqs, 1)
					time.Sleep(10 * time.Millisecond)
					continue
				}
				client = c
			}

			latency, err := sendBatch(ctx, client, batch)
			atomic.AddInt64(totalReqs, 1)

			if err != nil {
				atomic.AddInt64(failedReqs, 1)
				if !errors.Is(err, api.ErrRemote) {
					// Drop the connection on transport errors
					client.Close()
					client = nil
				}
				// Small sleep on error to avoid hammering
				time.Sleep(10 * time.Millisecond)
			} else {
				atomic.AddInt64(successReqs, 1)
				atomic.AddInt64(totalLatency, int64(latency))

				// Update min/max latency
				lat := int64(latency)
				for {
					old := atomic.LoadInt64(minLatency)
					if lat >= old || atomic.CompareAndSwapInt64(minLatency, old, lat) {
						break
					}
				}
				for {
					old := atomic.LoadInt64(maxLatency)
					if lat <= old || atomic.CompareAndSwapInt64(maxLatency, old, lat) {
						break
					}
				}
			}
		}
	}
}

func sendBatch(ctx context.Context, client *api.Client, batch []data.TransferRow) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	start := time.Now()
	receipts, err := client.Submit(ctx, batch)
	latency := time.Since(start)
	if err != nil {
		return latency, err
	}

	for _, r := range receipts {
		if r.Status != "succeeded" {
			return latency, fmt.Errorf("transfer %s reverted: %s", r.ID, r.Error)
		}
	}
	return latency, nil
}

func buildBatch(config StressTestConfig) ([]data.TransferRow, error) {
	from, err := parseAddress(config.From)
	if err != nil {
		return nil, err
	}
	to, err := parseAddress(config.To)
	if err != nil {
		return nil, err
	}
	amount, err := ledger.ParseAmount(config.Amount)
	if err != nil {
		return nil, err
	}

	batch := make([]data.TransferRow, config.BatchSize)
	for i := range batch {
		batch[i] = data.TransferRow{From: from, To: to, Amount: amount}
	}
	return batch, nil
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func printResults(result StressTestResult) {
	fmt.Println("=== Results ===")
	fmt.Printf("Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Total Requests:  %d\n", result.TotalRequests)
	fmt.Printf("Successful:      %d (%.2f%%)\n", result.SuccessfulReqs, float64(result.SuccessfulReqs)/float64(result.TotalRequests)*100)
	fmt.Printf("Failed:          %d (%.2f%%)\n", result.FailedReqs, float64(result.FailedReqs)/float64(result.TotalRequests)*100)
	fmt.Printf("Requests/sec:    %.2f\n", result.RequestsPerSec)
	fmt.Printf("Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Printf("Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Printf("Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
}

func saveReport(config StressTestConfig, result StressTestResult) {
	report := map[string]interface{}{
		"config": map[string]interface{}{
			"address":     config.Address,
			"concurrency": config.Concurrency,
			"batch_size":  config.BatchSize,
			"amount":      config.Amount,
			"duration":    config.Duration.String(),
		},
		"results": map[string]interface{}{
			"total_requests":   result.TotalRequests,
			"successful":       result.SuccessfulReqs,
			"failed":           result.FailedReqs,
			"requests_per_sec": result.RequestsPerSec,
			"avg_latency_ms":   float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":   float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":   float64(result.MaxLatency.Microseconds()) / 1000,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	out, _ := json.MarshalIndent(report, "", "  ")
	if err := os.WriteFile(config.ReportFile, out, 0644); err != nil {
		log.Printf("Failed to write report: %v", err)
	} else {
		fmt.Printf("Report saved to: %s\n", config.ReportFile)
	}
}
