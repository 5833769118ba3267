package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"agreeproof/agreement"
	"agreeproof/test/actors"
	"agreeproof/test/chaos"
	"agreeproof/test/infra"
	"agreeproof/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func TestAgreementConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	rand.Seed(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	repo := agreement.NewRepository(pool)
	svc := agreement.NewService(repo, nil)

	ownerID := seedOwner(t, ctx, pool)

	// One contested agreement every confirmer, payer, updater and
	// canceller fights over.
	contested, err := svc.Create(ctx, agreement.CreateParams{
		OwnerID: &ownerID,
		Title:   "Contested stress agreement",
		Content: "Every actor races over this record.",
		PartyA:  agreement.Party{Name: "Owner", Contact: "owner@example.com"},
		PartyB:  agreement.Party{Name: "Counterparty", Contact: "counterparty@example.com"},
		Amount:  1000,
	})
	if err != nil {
		t.Fatalf("seed contested agreement: %v", err)
	}

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Confirmer(ctx2, svc, contested.AgreementID, stop) })
		g.Go(func() error { return actors.Updater(ctx2, svc, contested.AgreementID, ownerID, stop) })
	}
	g.Go(func() error { return actors.Payer(ctx2, svc, contested.AgreementID, ownerID, stop) })
	g.Go(func() error { return actors.Canceller(ctx2, svc, contested.AgreementID, ownerID, stop) })
	g.Go(func() error { return actors.Creator(ctx2, svc, ownerID, stop) })
	g.Go(func() error { return actors.Reader(ctx2, svc, contested.AgreementID, contested.ShareToken, stop) })

	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}

	// The contested record must have settled in exactly one of the
	// reachable terminal or locked states.
	final, err := repo.GetByID(context.Background(), contested.AgreementID)
	if err != nil {
		t.Fatalf("read contested agreement: %v", err)
	}
	switch final.Status {
	case agreement.StatusConfirmed, agreement.StatusPaid, agreement.StatusCancelled:
	default:
		t.Fatalf("contested agreement ended in unexpected status %s", final.Status)
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func seedOwner(t *testing.T, ctx context.Context, pool *pgxpool.Pool) string {
	t.Helper()
	var id string
	if err := pool.QueryRow(ctx,
		`INSERT INTO users (name, email, password_hash) VALUES ($1, $2, $3) RETURNING id`,
		"Stress Owner", fmt.Sprintf("owner%d@example.com", rand.Int63()), "x",
	).Scan(&id); err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	return id
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"agreements", `SELECT agreement_id, status, is_immutable, confirmed_at, updated_at FROM agreements ORDER BY updated_at DESC LIMIT 50`},
		{"users", `SELECT id, email, agreement_count FROM users ORDER BY updated_at DESC LIMIT 10`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
