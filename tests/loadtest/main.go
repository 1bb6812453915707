package main

import (
	"attendees/internal/models"
	"bytes"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

const (
	numWorkers   = 50
	testDuration = 10 * time.Second
	numUsers     = 5000
	numEvents    = 20
	pageLimit    = 50
)

var (
	shardURL       = flag.String("shard", "http://127.0.0.1:18091", "shard accepting joins")
	coordinatorURL = flag.String("coordinator", "http://127.0.0.1:18090", "coordinator serving fan-out reads")
	eventsAddr     = flag.String("events", "127.0.0.1:18099", "listen address of the stub event service")
)

var httpClient = &http.Client{
	Timeout: 5 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        200,
		MaxIdleConnsPerHost: 200,
		IdleConnTimeout:     30 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   2 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	},
}

type result struct {
	endpoint string
	status   int
	latency  time.Duration
	err      bool
}

type stats struct {
	count     int64
	errors    int64
	latencies []time.Duration
}

var (
	events []models.Principal
	groups []models.Principal
)

// serveEvents answers privacy lookups with public and accepts count updates.
func serveEvents() {
	mux := http.NewServeMux()
	mux.HandleFunc("/events/privacy", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.EventPrivacy{Owner: "owner", Privacy: models.PrivacyPublic})
	})
	mux.HandleFunc("/events/attendee-count", func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusNoContent)
	})
	go func() {
		if err := http.ListenAndServe(*eventsAddr, mux); err != nil {
			fmt.Println("event stub stopped:", err)
		}
	}()
}

func main() {
	flag.Parse()
	unit := models.Principal("http://" + *eventsAddr)
	for i := 1; i <= numEvents; i++ {
		events = append(events, models.Identifier{Unit: unit, Counter: uint64(i), Kind: models.KindEvent}.Encode())
		groups = append(groups, models.Identifier{Unit: unit, Counter: uint64(i), Kind: models.KindGroup}.Encode())
	}
	serveEvents()

	fmt.Println("=== Attendees Load Test ===")
	fmt.Printf("Workers: %d | Duration: %s\n", numWorkers, testDuration)
	fmt.Printf("Users: %d | Events: %d\n\n", numUsers, numEvents)

	fmt.Print("Waiting for units... ")
	for _, base := range []string{*shardURL, *coordinatorURL} {
		for i := 0; i < 30; i++ {
			resp, err := httpClient.Get(base + "/health")
			if err == nil {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				break
			}
			if i == 29 {
				fmt.Println("FAILED:", base, "not responding")
				return
			}
			time.Sleep(200 * time.Millisecond)
		}
	}
	fmt.Println("OK")

	fmt.Println("\n--- Phase 1: Joining events (POST /events/join) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		return doJoin(rng)
	})

	fmt.Println("\n--- Phase 2: Mixed load (50% join, 50% fan-out reads) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.50:
			return doJoin(rng)
		case r < 0.85:
			return doGetMembers(rng)
		default:
			return doGetShards()
		}
	})

	fmt.Println("\n--- Phase 3: Read-heavy load (5% join, 95% reads) ---")
	runPhase(testDuration, func(rng *rand.Rand) result {
		r := rng.Float64()
		switch {
		case r < 0.05:
			return doJoin(rng)
		case r < 0.80:
			return doGetMembers(rng)
		default:
			return doGetAttendees(rng)
		}
	})
}

func runPhase(duration time.Duration, workFn func(rng *rand.Rand) result) {
	results := make(chan result, 10000)
	var wg sync.WaitGroup
	var totalOps atomic.Int64
	stop := make(chan struct{})

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for {
				select {
				case <-stop:
					return
				default:
					r := workFn(rng)
					totalOps.Add(1)
					results <- r
				}
			}
		}(rand.Int63() + int64(i))
	}

	allResults := make(map[string]*stats)
	done := make(chan struct{})
	go func() {
		for r := range results {
			s, ok := allResults[r.endpoint]
			if !ok {
				s = &stats{}
				allResults[r.endpoint] = s
			}
			s.count++
			if r.err {
				s.errors++
			}
			s.latencies = append(s.latencies, r.latency)
		}
		close(done)
	}()

	time.Sleep(duration)
	close(stop)
	wg.Wait()
	close(results)
	<-done

	printResults(allResults, duration)
}

func printResults(allResults map[string]*stats, duration time.Duration) {
	var totalOps int64
	var totalErrors int64

	endpoints := make([]string, 0, len(allResults))
	for ep := range allResults {
		endpoints = append(endpoints, ep)
	}
	sort.Strings(endpoints)

	fmt.Printf("\n  %-22s %8s %6s %10s %10s %10s %10s\n",
		"Endpoint", "Reqs", "Errs", "Avg", "P50", "P95", "P99")
	fmt.Println("  " + repeat("-", 88))

	for _, ep := range endpoints {
		s := allResults[ep]
		totalOps += s.count
		totalErrors += s.errors

		sort.Slice(s.latencies, func(i, j int) bool {
			return s.latencies[i] < s.latencies[j]
		})

		avg := avgDuration(s.latencies)
		p50 := percentile(s.latencies, 0.50)
		p95 := percentile(s.latencies, 0.95)
		p99 := percentile(s.latencies, 0.99)

		fmt.Printf("  %-22s %8d %6d %10s %10s %10s %10s\n",
			ep, s.count, s.errors, fmtDur(avg), fmtDur(p50), fmtDur(p95), fmtDur(p99))
	}

	rps := float64(totalOps) / duration.Seconds()
	fmt.Println("  " + repeat("-", 88))
	fmt.Printf("  Total: %d reqs | Errors: %d (%.1f%%) | RPS: %.0f\n",
		totalOps, totalErrors, float64(totalErrors)/float64(totalOps)*100, rps)
}

func doJoin(rng *rand.Rand) result {
	i := rng.Intn(numEvents)
	body := models.EventRequest{EventIdentifier: events[i], GroupIdentifier: groups[i]}
	data, _ := json.Marshal(body)

	req, _ := http.NewRequest(http.MethodPost, *shardURL+"/events/join", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-Principal", fmt.Sprintf("user-%d", rng.Intn(numUsers)))

	start := time.Now()
	resp, err := httpClient.Do(req)
	lat := time.Since(start)
	if err != nil {
		return result{"POST /events/join", 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	// Repeat joins answer 400 ALREADY_JOINED and a full shard answers 409.
	ok := resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict
	return result{"POST /events/join", resp.StatusCode, lat, !ok}
}

func doGet(endpoint, url string) result {
	start := time.Now()
	resp, err := httpClient.Get(url)
	lat := time.Since(start)
	if err != nil {
		return result{endpoint, 0, lat, true}
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return result{endpoint, resp.StatusCode, lat, resp.StatusCode != 200}
}

func doGetMembers(rng *rand.Rand) result {
	event := events[rng.Intn(numEvents)]
	url := fmt.Sprintf("%s/members?event=%s&limit=%d&page=%d", *coordinatorURL, event, pageLimit, rng.Intn(3))
	return doGet("GET /members", url)
}

func doGetAttendees(rng *rand.Rand) result {
	event := events[rng.Intn(numEvents)]
	return doGet("GET /events/attendees", fmt.Sprintf("%s/events/attendees?event=%s", *shardURL, event))
}

func doGetShards() result {
	return doGet("GET /shards", *coordinatorURL+"/shards")
}

func avgDuration(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

func percentile(d []time.Duration, p float64) time.Duration {
	if len(d) == 0 {
		return 0
	}
	idx := int(float64(len(d)) * p)
	if idx >= len(d) {
		idx = len(d) - 1
	}
	return d[idx]
}

func fmtDur(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dus", d.Microseconds())
	}
	return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000.0)
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
