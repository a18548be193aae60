package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nulzo/llm-proxy/internal/cli"
	vegeta "github.com/tsenart/vegeta/v12/lib"
)

const (
	mockPort = 9091
	appPort  = 8081
)

var (
	streamChunk1 = []byte(`data: {"choices":[{"delta":{"content":"Bench"}}]}\n\n`)
	streamChunk2 = []byte(`data: {"choices":[{"delta":{"content":"mark"}}]}\n\n`)
	streamChunk3 = []byte(`data: {"choices":[{"delta":{"content":" safe"}}]}\n\n`)
	streamChunk4 = []byte(`data: {"choices":[{"delta":{"content":" response"}}]}\n\n`)
	streamDone   = []byte(`data: [DONE]\n\n`)
	unaryResp    = []byte(`{"id":"bench-123","created":1700000000,"choices":[{"index":0,"message":{"role":"assistant","content":"Hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`)
)

func main() {
	duration := flag.Duration("duration", 10*time.Second, "Duration of the test")
	rate := flag.Int("rate", 50, "Requests per second")
	stream := flag.Bool("stream", false, "Use streaming requests")
	chaos := flag.Bool("chaos", false, "Simulate random client disconnections")
	flag.Parse()

	// start mock server
	go startMockServer()

	// build and start application
	fmt.Println("Building application...")
	buildCmd := exec.Command("go", "build", "-o", "bin/server", "./cmd/server")
	buildCmd.Stdout = os.Stdout
	buildCmd.Stderr = os.Stderr
	if err := buildCmd.Run(); err != nil {
		log.Fatalf("Failed to build app: %v", err)
	}

	// Create a temporary config file for the benchmark
	configFile := "bench_config_safe.yaml"
	if err := os.WriteFile(configFile, []byte(benchConfig), 0644); err != nil {
		log.Fatalf("Failed to write config: %v", err)
	}
	defer os.Remove(configFile)

	fmt.Println("Starting application...")
	cmd := exec.Command("./bin/server")

	// FORCE the app to use our config file and specific port
	cmd.Env = append(os.Environ(), fmt.Sprintf("CONFIG_FILE=%s", configFile))
	cmd.Env = append(cmd.Env, fmt.Sprintf("SERVER_PORT=%d", appPort))
	cmd.Env = append(cmd.Env, "LOG_LEVEL=error", "LOG_FORMAT=json")

	// Redirect output to file for debugging
	logFile, _ := os.Create("bench_server.log")
	defer logFile.Close()
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		log.Fatalf("Failed to start app: %v", err)
	}
	defer func() {
		if cmd.Process != nil {
			cmd.Process.Kill()
		}
	}()

	// Wait for app to be ready
	waitForApp(fmt.Sprintf("http://localhost:%d/health", appPort))

	// Signal channel to stop background tasks (monitor, chaos monkey)
	done := make(chan struct{})

	go monitorResources(cmd.Process.Pid, done)

	// run vegeta attack
	mode := "Unary"
	if *stream {
		mode = "Streaming"
	}
	fmt.Printf("Running %s benchmark: %s duration, %d req/s\n", mode, *duration, *rate)

	body := fmt.Sprintf(`{"model": "gpt-3.5-turbo", "provider": "openai", "stream": %t, "messages": [{"role": "user", "content": "Hello"}]}`, *stream)

	// the start timestamp travels to the mock upstream to measure proxy overhead
	targeter := func(t *vegeta.Target) error {
		t.Method = "POST"
		t.URL = fmt.Sprintf("http://localhost:%d/chat/completions", appPort)
		t.Body = []byte(body)
		t.Header = http.Header{
			"Content-Type":      []string{"application/json"},
			"Authorization":     []string{"Bearer bench-key-12345"},
			"X-Openai-Api-Key":  []string{"mock-key"},
			"X-Benchmark-Start": []string{strconv.FormatInt(time.Now().UnixNano(), 10)},
		}
		return nil
	}

	if *chaos {
		fmt.Println("CHAOS MODE ENABLED: Starting Chaos Monkey sidecar...")
		chaosConcurrency := *rate / 10
		if chaosConcurrency < 5 {
			chaosConcurrency = 5
		}
		if chaosConcurrency > 50 {
			chaosConcurrency = 50
		}
		go startChaosMonkey(fmt.Sprintf("http://localhost:%d/chat/completions", appPort), chaosConcurrency, done)
	}

	attacker := vegeta.NewAttacker(vegeta.KeepAlive(true))
	var metrics vegeta.Metrics

	for res := range attacker.Attack(targeter, vegeta.Rate{Freq: *rate, Per: time.Second}, *duration, "Benchmark") {
		metrics.Add(res)
	}
	metrics.Close()

	// stop monitoring and chaos monkey
	close(done)

	cli.PrettyPrint(map[string]interface{}{
		"p99":        metrics.Latencies.P99.String(),
		"mean":       metrics.Latencies.Mean.String(),
		"max":        metrics.Latencies.Max.String(),
		"success":    fmt.Sprintf("%.2f%%", metrics.Success*100),
		"throughput": fmt.Sprintf("%.2f req/s", metrics.Throughput),
	})

	if len(metrics.Errors) > 0 {
		fmt.Println("Error Set (first 5 unique):")

		uniqueErrors := make(map[string]bool)
		count := 0
		for _, msg := range metrics.Errors {
			if !uniqueErrors[msg] && count < 5 {
				fmt.Println(msg)

				uniqueErrors[msg] = true
				count++
			}
		}
	}

	// Cleanup
	os.Remove("bench.db")
	os.Remove("bench.db-wal")
	os.Remove("bench.db-shm")
}

func startChaosMonkey(url string, concurrency int, done chan struct{}) {
	fmt.Printf("Starting Chaos Monkey with %d concurrent disrupters (random disconnects 1-200ms)\n", concurrency)
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			client := &http.Client{
				Transport: &http.Transport{
					MaxIdleConns:        100,
					MaxIdleConnsPerHost: 100,
					DisableKeepAlives:   false,
				},
			}

			payload := `{"model": "gpt-3.5-turbo", "provider": "openai", "stream": true, "messages": [{"role": "user", "content": "Chaos Request"}]}`

			for {
				select {
				case <-done:
					return
				default:
					// Randomly disconnect between 1ms and 200ms
					timeout := time.Duration(rand.Intn(200)+1) * time.Millisecond

					ctx, cancel := context.WithTimeout(context.Background(), timeout)
					req, _ := http.NewRequestWithContext(ctx, "POST", url, strings.NewReader(payload))
					req.Header.Set("Content-Type", "application/json")
					req.Header.Set("Authorization", "Bearer bench-key-12345")
					req.Header.Set("X-OPENAI-API-KEY", "mock-key")

					resp, err := client.Do(req)
					if err == nil {
						resp.Body.Close()
					}
					cancel()

					// Sleep briefly to control request rate per goroutine
					time.Sleep(time.Duration(rand.Intn(50)) * time.Millisecond)
				}
			}
		}()
	}
}

func startMockServer() {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		startStr := r.Header.Get("X-Benchmark-Start")
		if startStr != "" {
			start, _ := strconv.ParseInt(startStr, 10, 64)
			latency := time.Now().UnixNano() - start
			// Sample 1% of requests to avoid console spam
			if rand.Intn(100) == 0 {
				fmt.Printf("DEBUG: Proxy Overhead: %v\n", time.Duration(latency))
			}
		}

		var req map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&req)

		if val, ok := req["stream"].(bool); ok && val {
			w.Header().Set("Content-Type", "text/event-stream")
			flusher, _ := w.(http.Flusher)

			chunks := [][]byte{streamChunk1, streamChunk2, streamChunk3, streamChunk4}
			for _, chunk := range chunks {
				time.Sleep(50 * time.Millisecond)
				w.Write(chunk)
				flusher.Flush()
			}
			w.Write(streamDone)
			flusher.Flush()
			return
		}

		time.Sleep(10 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		w.Write(unaryResp)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	_ = http.ListenAndServe(fmt.Sprintf(":%d", mockPort), mux)
}

// monitorResources samples the server's own /metrics and ps for CPU.
func monitorResources(pid int, done chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	metricsURL := fmt.Sprintf("http://127.0.0.1:%d/metrics", appPort)

	fmt.Println("\n--- Resource Usage (/metrics + ps) ---")
	fmt.Printf("% -10s % -10s % -10s % -10s\n", "Time", "Heap(MB)", "Alloc(MB)", "CPU(%)")

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			samples, err := scrape(metricsURL, "go_memstats_heap_inuse_bytes", "go_memstats_alloc_bytes")
			if err != nil {
				fmt.Printf("DEBUG: monitorResources failed to scrape metrics: %v\n", err)
				continue
			}

			cpu := 0.0
			out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "%cpu").Output()
			if err == nil {
				lines := strings.Split(strings.TrimSpace(string(out)), "\n")
				if len(lines) >= 2 {
					val, _ := strconv.ParseFloat(strings.TrimSpace(lines[1]), 64)
					cpu = val
				}
			}

			fmt.Printf("% -10s % -10.2f % -10.2f % -10.2f\n",
				time.Now().Format("15:04:05"),
				samples["go_memstats_heap_inuse_bytes"]/1024/1024,
				samples["go_memstats_alloc_bytes"]/1024/1024,
				cpu,
			)
		}
	}
}

// scrape reads unlabelled gauges from a Prometheus text exposition.
func scrape(url string, names ...string) (map[string]float64, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(names))
	for _, line := range strings.Split(string(body), "\n") {
		for _, name := range names {
			if v, ok := strings.CutPrefix(line, name+" "); ok {
				out[name], _ = strconv.ParseFloat(strings.TrimSpace(v), 64)
			}
		}
	}
	return out, nil
}

func waitForApp(url string) {
	for i := 0; i < 20; i++ {
		resp, err := http.Get(url)
		if err == nil && resp.StatusCode == 200 {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	log.Fatal("App timed out")
}

var benchConfig = fmt.Sprintf(`
server:
  port: "%d"
  env: production
  api_keys: ["bench-key-12345"]
rate_limit:
  enabled: false
log:
  level: "error"
  format: "json"
database:
  path: "file:bench.db?_journal_mode=WAL&_busy_timeout=5000"
providers:
  openai:
    base_url: "http://localhost:%d/v1"
`, appPort, mockPort)
