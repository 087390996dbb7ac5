package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/logging"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	statementID int64
	eventID     int64
	userID      int64
	cityID      int64
	amount      string
	replayRate  float64
)

// Metrics
var (
	totalRequests uint64
	success201    uint64 // Created or replayed
	replayed      uint64 // Idempotent replays
	fail409       uint64 // Conflicts
	failOther     uint64
)

// posted is the sum of every expense the server acknowledged as newly created.
var (
	postedMu sync.Mutex
	posted   = decimal.Zero
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.Int64Var(&statementID, "statement", 1, "Petty cash statement to post against")
	flag.Int64Var(&eventID, "event", 1, "Event the expenses are booked to")
	flag.Int64Var(&userID, "user", 2, "Treasurer user id sent in the identity headers")
	flag.Int64Var(&cityID, "city", 1, "City id of the treasurer")
	flag.StringVar(&amount, "amount", "0.01", "Total of each posted expense")
	flag.Float64Var(&replayRate, "replay", 0.1, "Fraction of posts that are resent with the same idempotency key")
}

func main() {
	flag.Parse()
	log, err := logging.New("info", "text", os.Stderr)
	if err != nil {
		logrus.Fatal(err)
	}
	log.Infof("Starting Benchmark: statement %d | Workers: %d | Duration: %s", statementID, concurrency, duration)

	before, err := fetchAudit()
	if err != nil {
		log.Fatalf("Initial audit failed: %v", err)
	}

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	after, err := fetchAudit()
	if err != nil {
		log.Fatalf("Final audit failed: %v", err)
	}
	ok := printResults(elapsed, before, after)
	if !ok {
		log.Error("statement totals do not match the acknowledged postings")
		os.Exit(1)
	}
}

func worker(wg *sync.WaitGroup, start time.Time, id int) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}
	payload, _ := json.Marshal(map[string]any{
		"event_id":          eventID,
		"nature_of_expense": "Benchmark",
		"vendor":            fmt.Sprintf("worker-%d", id),
		"total_amount":      amount,
	})
	total := decimal.RequireFromString(amount)
	every := 0
	if replayRate > 0 {
		every = max(1, int(1/replayRate))
	}

	n := 0
	for time.Since(start) < duration {
		key := uuid.NewString()
		sends := 1
		// every n-th post is sent twice with the same key
		if every > 0 && n%every == 0 {
			sends = 2
		}
		n++

		for s := 0; s < sends; s++ {
			status, wasReplay, err := post(client, key, payload)
			if err != nil {
				atomic.AddUint64(&failOther, 1)
				continue
			}

			atomic.AddUint64(&totalRequests, 1)
			switch {
			case status == http.StatusCreated && wasReplay:
				atomic.AddUint64(&success201, 1)
				atomic.AddUint64(&replayed, 1)
			case status == http.StatusCreated:
				atomic.AddUint64(&success201, 1)
				postedMu.Lock()
				posted = posted.Add(total)
				postedMu.Unlock()
			case status == http.StatusConflict:
				atomic.AddUint64(&fail409, 1)
			default:
				atomic.AddUint64(&failOther, 1)
			}
		}
	}
}

func post(client *http.Client, key string, body []byte) (int, bool, error) {
	url := fmt.Sprintf("%s/api/v1/petty-cash/statements/%d/expenses", targetURL, statementID)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", key)
	setIdentity(req)

	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, resp.Header.Get("Idempotent-Replayed") == "true", nil
}

func setIdentity(req *http.Request) {
	req.Header.Set("X-User-ID", strconv.FormatInt(userID, 10))
	req.Header.Set("X-User-Role", string(domain.RoleTreasurer))
	req.Header.Set("X-City-ID", strconv.FormatInt(cityID, 10))
}

func fetchAudit() (*domain.StatementAudit, error) {
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/v1/petty-cash/statements/%d/audit", targetURL, statementID), nil)
	if err != nil {
		return nil, err
	}
	setIdentity(req)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("audit returned %s", resp.Status)
	}
	var audit domain.StatementAudit
	if err := json.NewDecoder(resp.Body).Decode(&audit); err != nil {
		return nil, err
	}
	return &audit, nil
}

// printResults writes the run summary and reports whether the statement moved by
// exactly the acknowledged postings and still audits clean.
func printResults(d time.Duration, before, after *domain.StatementAudit) bool {
	total := atomic.LoadUint64(&totalRequests)
	delta := after.StoredSpent.Sub(before.StoredSpent)
	consistent := after.Balanced && delta.Equal(posted)

	results := map[string]interface{}{
		"statement_id":      statementID,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    float64(total) / d.Seconds(),
		"success_created":   atomic.LoadUint64(&success201),
		"success_replay":    atomic.LoadUint64(&replayed),
		"aborts_conflict":   atomic.LoadUint64(&fail409),
		"errors":            atomic.LoadUint64(&failOther),
		"posted_total":      posted.StringFixed(domain.CurrencyPlaces),
		"total_spent_delta": delta.StringFixed(domain.CurrencyPlaces),
		"audit_balanced":    after.Balanced,
		"consistent":        consistent,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	file, err := os.Create(fmt.Sprintf("results_statement_%d.json", statementID))
	if err == nil {
		defer file.Close()
		json.NewEncoder(file).Encode(results)
	}
	return consistent
}
