package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"solarshare/internal/eventing"
	ledger "solarshare/internal/ledger/domain"
	"solarshare/internal/metering"
)

const timeLayout = time.RFC3339

type config struct {
	dbURL  string
	outDir string
}

type roundRow struct {
	Seq      int64
	At       time.Time
	Round    uint64
	Produced int64
	Consumed int64
	Residual int64
}

type allocationRow struct {
	Seq      int64
	At       time.Time
	Identity string
	Name     string
	Used     int64
	OfTotal  int64
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create out dir:", err)
		os.Exit(2)
	}

	db, err := sql.Open("pgx", cfg.dbURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(2)
	}
	defer db.Close()

	registry := eventing.NewRegistry()
	registry.Register(ledger.AllocationComputed{})
	registry.Register(ledger.RoundCompleted{})

	rounds, allocations, err := loadRounds(context.Background(), db, registry)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load rounds:", err)
		os.Exit(2)
	}

	if err := writeRounds(cfg.outDir, rounds); err != nil {
		fmt.Fprintln(os.Stderr, "write rounds:", err)
		os.Exit(2)
	}
	if err := writeAllocations(cfg.outDir, allocations); err != nil {
		fmt.Fprintln(os.Stderr, "write allocations:", err)
		os.Exit(2)
	}

	fmt.Printf("Round report written to %s (%d rounds, %d allocations)\n", cfg.outDir, len(rounds), len(allocations))
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.dbURL, "db", getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")), "Postgres DSN")
	flag.StringVar(&cfg.outDir, "out", "./out", "output directory")
	flag.Parse()

	if cfg.dbURL == "" {
		return cfg, errors.New("missing --db or DATABASE_URL/PG_DSN")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

// loadRounds reads allocation and round completion events. Each event's time
// is the open time of the segment holding it.
func loadRounds(ctx context.Context, db *sql.DB, registry *eventing.Registry) ([]roundRow, []allocationRow, error) {
	rows, err := db.QueryContext(ctx, `
SELECT l.seq, l.event_type, l.payload, s.opened_at
FROM event_log l
JOIN event_log_segments s ON s.segment = l.segment
WHERE l.event_type = ANY($1)
ORDER BY l.seq ASC`, []string{
		eventing.EventTypeOf[ledger.AllocationComputed](),
		eventing.EventTypeOf[ledger.RoundCompleted](),
	})
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var rounds []roundRow
	var allocations []allocationRow
	for rows.Next() {
		var seq int64
		var eventType string
		var payload []byte
		var openedAt time.Time
		if err := rows.Scan(&seq, &eventType, &payload, &openedAt); err != nil {
			return nil, nil, err
		}
		decoded, err := registry.Decode(eventType, payload)
		if err != nil {
			return nil, nil, err
		}
		switch event := decoded.(type) {
		case ledger.RoundCompleted:
			rounds = append(rounds, roundRow{
				Seq:      seq,
				At:       openedAt.UTC(),
				Round:    event.Round,
				Produced: event.Produced,
				Consumed: event.Consumed,
				Residual: event.Residual,
			})
		case ledger.AllocationComputed:
			allocations = append(allocations, allocationRow{
				Seq:      seq,
				At:       openedAt.UTC(),
				Identity: event.Identity,
				Name:     event.Name,
				Used:     event.Used,
				OfTotal:  event.OfTotal,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return rounds, allocations, nil
}

func writeRounds(outDir string, rows []roundRow) error {
	path := filepath.Join(outDir, "rounds.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"seq",
		"at",
		"round",
		"produced_kwh",
		"consumed_kwh",
		"residual_kwh",
	}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			strconv.FormatInt(row.Seq, 10),
			row.At.Format(timeLayout),
			strconv.FormatUint(row.Round, 10),
			metering.FormatAmount(row.Produced),
			metering.FormatAmount(row.Consumed),
			metering.FormatAmount(row.Residual),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeAllocations(outDir string, rows []allocationRow) error {
	path := filepath.Join(outDir, "allocations.csv")
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"seq",
		"at",
		"identity",
		"name",
		"used_kwh",
		"demand_kwh",
	}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			strconv.FormatInt(row.Seq, 10),
			row.At.Format(timeLayout),
			row.Identity,
			row.Name,
			metering.FormatAmount(row.Used),
			metering.FormatAmount(row.OfTotal),
		}); err != nil {
			return err
		}
	}
	return nil
}
