// Package loadtest drives concurrent session traffic through a storage
// adapter.
//
// It simulates many clients answering questions on their own sessions while
// others list and read, and reports per-operation latency. Any adapter can
// be exercised: the embedded store directly, or a remote store over a live
// connection.
package loadtest

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/mschirtzinger/sessionvault/internal/vault/schema"
	"github.com/mschirtzinger/sessionvault/internal/vault/storage"
)

// Config shapes the simulated traffic.
type Config struct {
	// Sessions is how many sessions are seeded before the run
	Sessions int

	// Clients is the number of concurrent writers
	Clients int

	// AnswersPerClient is how many answers each writer saves
	AnswersPerClient int

	// Readers is the number of concurrent list/get loops running alongside
	Readers int
}

// DefaultConfig returns a small, quick run.
func DefaultConfig() *Config {
	return &Config{
		Sessions:         100,
		Clients:          10,
		AnswersPerClient: 20,
		Readers:          4,
	}
}

// LatencyStats captures performance metrics for one operation.
type LatencyStats struct {
	Min          time.Duration `json:"min"`
	Max          time.Duration `json:"max"`
	Mean         time.Duration `json:"mean"`
	P50          time.Duration `json:"p50"`
	P95          time.Duration `json:"p95"`
	P99          time.Duration `json:"p99"`
	TotalQueries int           `json:"total"`
	Errors       int           `json:"errors"`
}

// Report is the outcome of a Run.
type Report struct {
	Adapter  storage.Kind  `json:"adapter"`
	Duration time.Duration `json:"duration"`
	Save     LatencyStats  `json:"save"`
	Get      LatencyStats  `json:"get"`
	List     LatencyStats  `json:"list"`
	// Lost counts answers missing from their session after the run.
	Lost int `json:"lost"`
}

// Seed writes n sessions with a few answers each and returns their IDs.
func Seed(ctx context.Context, a storage.Adapter, n int) ([]string, error) {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		sess := &schema.Session{
			ID:           fmt.Sprintf("load-%05d", i),
			CurrentStage: "seed",
			Responses: schema.Responses{
				"name":  schema.StringValue(fmt.Sprintf("user %d", i)),
				"ready": schema.BoolValue(i%2 == 0),
				"tags":  schema.ListValue("loadtest", fmt.Sprintf("batch-%d", i/25)),
			},
		}
		if _, err := a.SaveSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("failed to seed session %s: %w", sess.ID, err)
		}
		ids = append(ids, sess.ID)
	}
	return ids, nil
}

type recorder struct {
	mu        sync.Mutex
	durations map[string][]time.Duration
	errors    map[string]int
}

func (r *recorder) observe(op string, start time.Time, err error) {
	d := time.Since(start)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[op] = append(r.durations[op], d)
	if err != nil {
		r.errors[op]++
	}
}

// Run seeds the adapter and drives concurrent traffic. Each writer owns one
// session so the lost-answer count is exact.
func Run(ctx context.Context, a storage.Adapter, cfg *Config) (*Report, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Clients <= 0 || cfg.AnswersPerClient <= 0 {
		return nil, fmt.Errorf("clients and answers per client must be positive")
	}

	ids, err := Seed(ctx, a, cfg.Sessions)
	if err != nil {
		return nil, err
	}

	rec := &recorder{durations: map[string][]time.Duration{}, errors: map[string]int{}}
	start := time.Now()

	readCtx, stopReaders := context.WithCancel(ctx)
	var readers sync.WaitGroup
	for i := 0; i < cfg.Readers; i++ {
		readers.Add(1)
		go func(reader int) {
			defer readers.Done()
			for n := 0; readCtx.Err() == nil; n++ {
				t := time.Now()
				_, err := a.ListSessions(readCtx, storage.DefaultListLimit)
				if readCtx.Err() != nil {
					return
				}
				rec.observe("list", t, err)

				if len(ids) > 0 {
					t = time.Now()
					_, err = a.GetSession(readCtx, ids[(reader+n)%len(ids)])
					if readCtx.Err() != nil {
						return
					}
					rec.observe("get", t, err)
				}
			}
		}(i)
	}

	var writers sync.WaitGroup
	for c := 0; c < cfg.Clients; c++ {
		writers.Add(1)
		go func(client int) {
			defer writers.Done()

			sess := &schema.Session{ID: fmt.Sprintf("client-%03d", client), CurrentStage: "answering"}
			sess.SetDefaults(time.Now())
			for q := 0; q < cfg.AnswersPerClient; q++ {
				sess.Responses[fmt.Sprintf("q%03d", q)] = schema.StringValue(fmt.Sprintf("answer %d", q))
				sess.CurrentQuestionIndex = q
				t := time.Now()
				_, err := a.SaveSession(ctx, sess)
				rec.observe("save", t, err)
			}
		}(c)
	}

	writers.Wait()
	stopReaders()
	readers.Wait()

	report := &Report{
		Adapter:  a.Kind(),
		Duration: time.Since(start),
		Save:     computeLatencyStats(rec.durations["save"]),
		Get:      computeLatencyStats(rec.durations["get"]),
		List:     computeLatencyStats(rec.durations["list"]),
	}
	report.Save.Errors = rec.errors["save"]
	report.Get.Errors = rec.errors["get"]
	report.List.Errors = rec.errors["list"]

	for c := 0; c < cfg.Clients; c++ {
		sess, err := a.GetSession(ctx, fmt.Sprintf("client-%03d", c))
		if err != nil {
			return nil, fmt.Errorf("failed to verify client %d: %w", c, err)
		}
		got := 0
		if sess != nil {
			got = len(sess.Responses)
		}
		report.Lost += cfg.AnswersPerClient - got
	}
	return report, nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(sorted)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(sorted),
	}
}

// Print writes a human-readable summary.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintf(w, "Adapter:  %s\n", r.Adapter)
	fmt.Fprintf(w, "Duration: %v\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Lost answers: %d\n\n", r.Lost)
	fmt.Fprintf(w, "%-6s %7s %7s %10s %10s %10s %10s\n", "op", "total", "errors", "mean", "p50", "p95", "max")
	for _, row := range []struct {
		name string
		s    LatencyStats
	}{{"save", r.Save}, {"get", r.Get}, {"list", r.List}} {
		fmt.Fprintf(w, "%-6s %7d %7d %10v %10v %10v %10v\n",
			row.name, row.s.TotalQueries, row.s.Errors,
			row.s.Mean.Round(time.Microsecond), row.s.P50.Round(time.Microsecond),
			row.s.P95.Round(time.Microsecond), row.s.Max.Round(time.Microsecond))
	}
}
