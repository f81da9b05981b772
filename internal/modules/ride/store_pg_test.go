// README: PostgreSQL ride store tests (skipped without QA_TEST_DSN).
package ride

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestPGStore_CompareAndSwap(t *testing.T) {
	store := setupPGStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	r := &Ride{
		Category: CategoryNormal, RiderUID: "rider-pg", RollNo: "ME20B1", Source: "Gate", Destination: "Library",
		RideNumber: "NR123456", Amount: 10, Status: StatusPending, TransactionID: PendingTransaction,
		CreatedAt: now, SubmittedAt: now,
	}
	if err := store.Create(ctx, r); err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.ID == "" {
		t.Fatal("create should assign an id")
	}

	d1 := idPtr("d1")
	got, err := store.Apply(ctx, r.Ref(), Mutation{From: StatusPending, Version: 0, To: StatusRejected, AddRejectedBy: d1})
	if err != nil {
		t.Fatalf("apply reject: %v", err)
	}
	if got.StatusVersion != 1 || len(got.RejectedBy) != 1 {
		t.Fatalf("after reject: v%d %v", got.StatusVersion, got.RejectedBy)
	}

	got, err = store.Apply(ctx, r.Ref(), Mutation{From: StatusRejected, Version: 1, To: StatusRejected, AddRejectedBy: d1})
	if err != nil {
		t.Fatalf("apply duplicate reject: %v", err)
	}
	if len(got.RejectedBy) != 1 {
		t.Errorf("rejected_by should de-duplicate, got %v", got.RejectedBy)
	}

	if _, err := store.Apply(ctx, r.Ref(), Mutation{From: StatusRejected, Version: 0, To: StatusIdle}); !errors.Is(err, ErrConflict) {
		t.Errorf("stale version error = %v, want ErrConflict", err)
	}
	if _, err := store.Apply(ctx, Ref{Category: CategoryNormal, ID: "00000000-0000-0000-0000-000000000000"},
		Mutation{From: StatusPending, To: StatusAccepted}); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing ride error = %v, want ErrNotFound", err)
	}

	pending, err := store.ListByStatus(ctx, CategoryNormal, StatusRejected)
	if err != nil || len(pending) != 1 {
		t.Errorf("list rejected = %v, %v", pending, err)
	}

	if err := store.Delete(ctx, r.Ref(), StatusRejected, 1); !errors.Is(err, ErrConflict) {
		t.Errorf("stale delete error = %v, want ErrConflict", err)
	}
	if err := store.Delete(ctx, r.Ref(), StatusRejected, 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, r.Ref()); !errors.Is(err, ErrNotFound) {
		t.Errorf("get deleted = %v, want ErrNotFound", err)
	}
}

func TestPGStore_ServiceFlowAndEvents(t *testing.T) {
	store := setupPGStore(t)
	ctx := context.Background()
	svc := NewService(store, testPricing(), stubRiders{riderA: "CS21B001"}, WithEvents(NewPGEventLog(store)))

	r, err := svc.Create(ctx, CreateCommand{Category: CategoryVIP, RiderUID: riderA, Name: "A", Phone: "9", Source: "S", Destination: "D"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.TryAccept(ctx, AcceptCommand{Ref: r.Ref(), DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.TryAccept(ctx, AcceptCommand{Ref: r.Ref(), DriverID: "d2"}); !errors.Is(err, ErrAlreadyTaken) {
		t.Fatalf("second accept = %v, want ErrAlreadyTaken", err)
	}

	events, err := store.ListEvents(ctx, r.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 || events[1].ToStatus != StatusAccepted {
		t.Fatalf("events = %+v", events)
	}
}

func setupPGStore(t *testing.T) *PGStore {
	t.Helper()

	dsn := os.Getenv("QA_TEST_DSN")
	if dsn == "" {
		t.Skip("QA_TEST_DSN not set; skipping DB-backed ride store tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := applyMigration(ctx, db); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Exec(ctx, "TRUNCATE TABLE ride_events, rides"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
	return NewPGStore(db)
}

func applyMigration(ctx context.Context, db *pgxpool.Pool) error {
	root, err := repoRoot()
	if err != nil {
		return err
	}
	content, err := os.ReadFile(filepath.Join(root, "migrations", "0001_init.sql"))
	if err != nil {
		return err
	}
	for _, stmt := range splitSQL(stripSQLComments(string(content))) {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", os.ErrNotExist
}

func stripSQLComments(input string) string {
	var b strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		b.WriteString(scanner.Text())
		b.WriteString("\n")
	}
	return b.String()
}

func splitSQL(input string) []string {
	parts := strings.Split(input, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if stmt := strings.TrimSpace(p); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
