// README: Bench checks: environment, schema, auth, the ride lifecycle, concurrent accepts and dashboard load.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"quickauto/internal/infra"
	"quickauto/internal/modules/ride"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client

	// current is the ride the lifecycle checks walk through.
	current *ride.Ride
	winner  string
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{cfg: cfg, httpc: &http.Client{Timeout: 10 * time.Second}}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := infra.NewDB(ctx, r.cfg.DSN); err == nil {
			r.db = db
			defer db.Close()
		} else {
			fmt.Printf("postgres unavailable: %v\n", err)
		}
	}
	if r.cfg.RedisAddr != "" {
		if rdb, err := infra.NewRedis(ctx, r.cfg.RedisAddr); err == nil {
			r.redis = rdb
			defer rdb.Close()
		} else {
			fmt.Printf("redis unavailable: %v\n", err)
		}
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkPostgres},
		{Name: "Env: Redis connect", Run: checkRedis},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "API: health", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodGet, "/health", "", nil, http.StatusOK, nil)
		}},
		{Name: "API: metrics exposed", Run: checkMetrics},
		{Name: "Auth: missing token -> 401", Run: func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/rides/normal", "", map[string]any{}, http.StatusUnauthorized, nil)
		}},
		{Name: "Ride: unknown category -> 400", Run: withStudent(func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/rides/luxury", r.cfg.StudentToken,
				map[string]any{"source": "a", "destination": "b"}, http.StatusBadRequest, nil)
		})},
		{Name: "Ride: bid above cap -> 400", Run: withStudent(func(ctx context.Context, r *Runner) Result {
			return r.expect(ctx, http.MethodPost, "/api/rides/normal", r.cfg.StudentToken,
				map[string]any{"source": "a", "destination": "b", "amount": 50}, http.StatusBadRequest, nil)
		})},
		{Name: "Ride: create normal", Run: withStudent(createRide)},
		{Name: "Ride: drivers race to accept, one wins", Run: withDrivers(concurrentAccept)},
		{Name: "Ride: rider pays", Run: withDrivers(payRide)},
		{Name: "Ride: winning driver finishes", Run: withDrivers(finishRide)},
		{Name: "Ride: reject, reset, resubmit, cancel", Run: withDrivers(rejectCycle)},
		{Name: "Ride: pending timeout", Run: func(context.Context, *Runner) Result {
			return Result{Status: statusSkip, Note: "watch a pending ride past QA_NORMAL_TIMEOUT_SECONDS"}
		}},
		{Name: "Perf: dashboard throughput", Run: withDrivers(dashboardLoad)},
	}
}

func withStudent(fn func(context.Context, *Runner) Result) func(context.Context, *Runner) Result {
	return func(ctx context.Context, r *Runner) Result {
		if r.cfg.StudentToken == "" {
			return Result{Status: statusSkip, Note: "student-token not set"}
		}
		return fn(ctx, r)
	}
}

func withDrivers(fn func(context.Context, *Runner) Result) func(context.Context, *Runner) Result {
	return withStudent(func(ctx context.Context, r *Runner) Result {
		if len(r.cfg.DriverTokens) == 0 {
			return Result{Status: statusSkip, Note: "driver-tokens not set"}
		}
		return fn(ctx, r)
	})
}

func checkPostgres(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func checkRedis(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := r.redis.Ping(ctx).Err(); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	tables, err := extractTables(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: strings.Join(tables, ",")}
}

func checkMetrics(ctx context.Context, r *Runner) Result {
	var body string
	res := r.expect(ctx, http.MethodGet, "/metrics", "", nil, http.StatusOK, func(b []byte) error {
		body = string(b)
		return nil
	})
	if res.Status == statusPass && !strings.Contains(body, "quickauto_") {
		return Result{Status: statusFail, Latency: res.Latency, Note: "no quickauto_ series"}
	}
	return res
}

func createRide(ctx context.Context, r *Runner) Result {
	return r.expect(ctx, http.MethodPost, "/api/rides/normal", r.cfg.StudentToken, map[string]any{
		"source": "Hostel 5", "destination": "Main Gate", "amount": 20,
	}, http.StatusCreated, func(b []byte) error {
		var out ride.Ride
		if err := json.Unmarshal(b, &out); err != nil {
			return err
		}
		if out.Status != ride.StatusPending {
			return fmt.Errorf("status %s", out.Status)
		}
		r.current = &out
		return nil
	})
}

// concurrentAccept fires accepts from every driver token; exactly one must win.
func concurrentAccept(ctx context.Context, r *Runner) Result {
	if r.current == nil {
		return Result{Status: statusSkip, Note: "no ride created"}
	}
	path := driverPath(r.current, "accept")
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
		start     = make(chan struct{})
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		token := r.cfg.DriverTokens[i%len(r.cfg.DriverTokens)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			status, _, err := r.do(ctx, http.MethodPost, path, token, nil)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case http.StatusOK:
				wins++
				r.winner = token
			case http.StatusConflict:
				conflicts++
			}
		}()
	}
	began := time.Now()
	close(start)
	wg.Wait()

	note := fmt.Sprintf("wins=%d conflicts=%d", wins, conflicts)
	if wins != 1 || wins+conflicts != r.cfg.Concurrency {
		return Result{Status: statusFail, Latency: time.Since(began), Note: note}
	}
	return Result{Status: statusPass, Latency: time.Since(began), Note: note}
}

func payRide(ctx context.Context, r *Runner) Result {
	if r.current == nil || r.winner == "" {
		return Result{Status: statusSkip, Note: "no accepted ride"}
	}
	return r.expect(ctx, http.MethodPost, ridePath(r.current, "pay"), r.cfg.StudentToken, nil, http.StatusOK,
		statusIs(ride.StatusPaid))
}

func finishRide(ctx context.Context, r *Runner) Result {
	if r.current == nil || r.winner == "" {
		return Result{Status: statusSkip, Note: "no accepted ride"}
	}
	return r.expect(ctx, http.MethodPost, driverPath(r.current, "finish"), r.winner, nil, http.StatusOK,
		statusIs(ride.StatusFinished))
}

func rejectCycle(ctx context.Context, r *Runner) Result {
	var rd ride.Ride
	res := r.expect(ctx, http.MethodPost, "/api/rides/normal", r.cfg.StudentToken, map[string]any{
		"source": "Library", "destination": "Hostel 2", "amount": 10,
	}, http.StatusCreated, func(b []byte) error { return json.Unmarshal(b, &rd) })
	if res.Status != statusPass {
		return res
	}
	driver := r.cfg.DriverTokens[0]
	steps := []struct {
		path  string
		token string
		want  int
		check func([]byte) error
	}{
		{driverPath(&rd, "reject"), driver, http.StatusOK, statusIs(ride.StatusRejected)},
		{ridePath(&rd, "reset"), r.cfg.StudentToken, http.StatusOK, statusIs(ride.StatusIdle)},
		{ridePath(&rd, "resubmit"), r.cfg.StudentToken, http.StatusOK, statusIs(ride.StatusPending)},
		{ridePath(&rd, "cancel"), r.cfg.StudentToken, http.StatusNoContent, nil},
	}
	began := time.Now()
	for _, s := range steps {
		if res := r.expect(ctx, http.MethodPost, s.path, s.token, nil, s.want, s.check); res.Status != statusPass {
			res.Note = s.path + ": " + res.Note
			return res
		}
	}
	return Result{Status: statusPass, Latency: time.Since(began)}
}

func dashboardLoad(ctx context.Context, r *Runner) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Concurrency; i++ {
		token := r.cfg.DriverTokens[i%len(r.cfg.DriverTokens)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.do(ctx, http.MethodGet, "/api/drivers/dashboard", token, nil)
				if err != nil || status != http.StatusOK {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}()
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: statusFail, Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func (r *Runner) do(ctx context.Context, method, path, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return resp.StatusCode, b, err
}

// expect runs one request and passes when the status matches and check (if any) accepts the body.
func (r *Runner) expect(ctx context.Context, method, path, token string, body any, want int, check func([]byte) error) Result {
	start := time.Now()
	status, b, err := r.do(ctx, method, path, token, body)
	latency := time.Since(start)
	if err != nil {
		return Result{Status: statusFail, Latency: latency, Note: err.Error()}
	}
	if status != want {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d want=%d", status, want)}
	}
	if check != nil {
		if err := check(b); err != nil {
			return Result{Status: statusFail, Latency: latency, Note: err.Error()}
		}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", status)}
}

func statusIs(want ride.Status) func([]byte) error {
	return func(b []byte) error {
		var out ride.Ride
		if err := json.Unmarshal(b, &out); err != nil {
			return err
		}
		if out.Status != want {
			return fmt.Errorf("status %s, want %s", out.Status, want)
		}
		return nil
	}
}

func ridePath(rd *ride.Ride, action string) string {
	return "/api/rides/" + string(rd.Category) + "/" + string(rd.ID) + "/" + action
}

func driverPath(rd *ride.Ride, action string) string {
	return "/api/drivers/rides/" + string(rd.Category) + "/" + string(rd.ID) + "/" + action
}

func extractTables(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	re := regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	matches := re.FindAllStringSubmatch(string(b), -1)
	tables := make([]string, 0, len(matches))
	for _, m := range matches {
		tables = append(tables, m[1])
	}
	return tables, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
