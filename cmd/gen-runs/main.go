package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pv/sortmachine-go/internal/sorter"
	"github.com/pv/sortmachine-go/internal/storage"
	"github.com/pv/sortmachine-go/internal/storage/clickhouse"
	"github.com/pv/sortmachine-go/internal/storage/postgres"
	sqliteStore "github.com/pv/sortmachine-go/internal/storage/sqlite"
	"github.com/pv/sortmachine-go/pkg/config"
)

type options struct {
	dbURL      string
	configPath string
	selector   string
	runs       int
	count      int
	seed       uint64
}

// Заполняет журнал прогонами без пауз, для проверки хранилищ и API на объёме.
func main() {
	opts := parseFlags()
	if opts.runs <= 0 || opts.count <= 0 {
		log.Fatal("--runs and --count must be > 0")
	}

	profile := config.Default()
	if opts.configPath != "" {
		var err error
		if profile, err = config.Load(opts.configPath); err != nil {
			log.Fatalf("load profile: %v", err)
		}
	}
	algos, err := profile.Resolve(opts.selector)
	if err != nil {
		log.Fatalf("resolve --algorithms: %v", err)
	}

	ctx := context.Background()
	store, closer, err := openStore(ctx, opts.dbURL)
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}
	defer closer()

	src := rand.New(rand.NewPCG(opts.seed, opts.seed))
	var totalSwaps int
	for i := 0; i < opts.runs; i++ {
		run := generateRun(algos[i%len(algos)], opts.count, src)
		if err := store.SaveRun(ctx, run); err != nil {
			log.Fatalf("save run %d: %v", i+1, err)
		}
		totalSwaps += len(run.Swaps)
		if (i+1)%100 == 0 {
			log.Printf("saved %d/%d runs", i+1, opts.runs)
		}
	}
	log.Printf("done: saved %d runs (%d swaps) into %s", opts.runs, totalSwaps, opts.dbURL)
}

func parseFlags() options {
	var opt options
	flag.StringVar(&opt.dbURL, "db", "sqlite://runs.db", "journal DSN (sqlite://, postgres://, clickhouse://)")
	flag.StringVar(&opt.configPath, "confile", "", "optional algorithm profile (YAML/JSON)")
	flag.StringVar(&opt.selector, "algorithms", "ALL", "algorithm selector from profile")
	flag.IntVar(&opt.runs, "runs", 100, "number of runs to generate")
	flag.IntVar(&opt.count, "count", 100, "elements per run")
	flag.Uint64Var(&opt.seed, "seed", 1, "shuffle seed")
	flag.Parse()
	return opt
}

// generateRun сортирует перемешанную перестановку и записывает лог обменов.
func generateRun(algo sorter.Algorithm, count int, src sorter.Shuffler) storage.Run {
	started := time.Now().UTC()
	buf := sorter.Shuffle(count, src)
	initial := buf.Snapshot()
	swaps := algo.New(buf).Drain()

	events := make([]storage.SwapEvent, len(swaps))
	for i, sw := range swaps {
		events[i] = storage.SwapEvent{Seq: i + 1, A: sw.A, B: sw.B}
	}
	return storage.Run{
		ID:         uuid.NewString(),
		Algorithm:  algo.Name,
		Initial:    initial,
		Swaps:      events,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
	}
}

func openStore(ctx context.Context, dsn string) (storage.Storage, func(), error) {
	switch {
	case postgres.IsPostgresURL(dsn):
		s, err := postgres.New(ctx, postgres.Config{ConnString: dsn})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case sqliteStore.IsSource(dsn):
		s, err := sqliteStore.New(ctx, sqliteStore.Config{
			Source:  sqliteStore.NormalizeSource(dsn),
			Pragmas: sqliteStore.Pragmas{CacheMB: 100, WAL: true, SyncOff: true, TempMemory: true},
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case clickhouse.IsSource(dsn):
		s, err := clickhouse.New(ctx, clickhouse.Config{DSN: dsn})
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported --db value: %s", strings.TrimSpace(dsn))
}
