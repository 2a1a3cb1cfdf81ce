package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"solarshare/internal/agent"
	apihttp "solarshare/internal/api/http"
	"solarshare/internal/auth"
	"solarshare/internal/eventing"
	"solarshare/internal/eventlog"
	eventlogmemory "solarshare/internal/eventlog/memory"
	eventlogpostgres "solarshare/internal/eventlog/postgres"
	"solarshare/internal/ledger/application"
	ledger "solarshare/internal/ledger/domain"
	"solarshare/internal/metering"
	"solarshare/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	fleet, err := agent.LoadFleetConfig(cfg.FleetConfigPath)
	if err != nil {
		logger.Fatalf("fleet config error: %v", err)
	}

	metrics.Init()

	var store eventlog.Store
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		pgStore, err := eventlogpostgres.NewStore(db, cfg.SegmentSize)
		if err != nil {
			logger.Fatalf("event log error: %v", err)
		}
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			logger.Fatalf("event log schema error: %v", err)
		}
		store = pgStore
		logger.Printf("event log: postgres, segment size %d", cfg.SegmentSize)
	} else {
		memStore, err := eventlogmemory.NewStore(cfg.SegmentSize, nil)
		if err != nil {
			logger.Fatalf("event log error: %v", err)
		}
		store = memStore
		logger.Printf("event log: in-memory, segment size %d", cfg.SegmentSize)
	}

	registry := eventing.NewRegistry()
	registry.Register(ledger.ActivationCompleted{})
	registry.Register(ledger.ProducerReported{})
	registry.Register(ledger.ConsumerReported{})
	registry.Register(ledger.AllocationComputed{})
	registry.Register(ledger.RoundCompleted{})

	bus := eventing.NewInMemoryBus()
	bus.Subscribe(eventing.EventTypeOf[ledger.ActivationCompleted](), func(_ context.Context, event any) error {
		evt, ok := event.(ledger.ActivationCompleted)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		logger.Printf("community active: %d participants at %s", evt.Participants, evt.At.Format(time.RFC3339))
		return nil
	})
	bus.Subscribe(eventing.EventTypeOf[ledger.RoundCompleted](), func(_ context.Context, event any) error {
		evt, ok := event.(ledger.RoundCompleted)
		if !ok {
			return eventing.ErrInvalidEventType
		}
		logger.Printf("round %d: produced=%s consumed=%s residual=%s kWh",
			evt.Round,
			metering.FormatAmount(evt.Produced),
			metering.FormatAmount(evt.Consumed),
			metering.FormatAmount(evt.Residual))
		return nil
	})

	ledgerService, err := application.NewService(len(fleet.Participants), ledger.SystemClock{}, store, bus, logger)
	if err != nil {
		logger.Fatalf("ledger service error: %v", err)
	}
	for _, p := range fleet.Participants {
		if err := ledgerService.Register(context.Background(), p.Identity, p.Name, p.Role); err != nil {
			logger.Fatalf("register %s error: %v", p.Identity, err)
		}
	}

	meterClient, err := metering.NewClient(fleet.MeterAddr, cfg.MeterTimeout, logger)
	if err != nil {
		logger.Fatalf("meter client error: %v", err)
	}
	for _, p := range fleet.Participants {
		member, err := agent.New(agent.Config{
			Identity: p.Identity,
			MeterID:  p.MeterID,
			Period:   fleet.Period(),
			Retry:    fleet.Retry(),
			Fetcher:  meterClient,
			Reporter: ledgerService,
			Logger:   logger,
		})
		if err != nil {
			logger.Fatalf("agent %s error: %v", p.Identity, err)
		}
		go func() {
			if err := member.Run(context.Background()); err != nil {
				logger.Printf("agent stopped: %v", err)
			}
		}()
	}

	indexer, err := eventlog.NewIndexer(store)
	if err != nil {
		logger.Fatalf("indexer error: %v", err)
	}
	registryHandler, err := apihttp.NewRegistryHandler(ledgerService)
	if err != nil {
		logger.Fatalf("registry handler error: %v", err)
	}
	participantHandler, err := apihttp.NewParticipantHandler(ledgerService)
	if err != nil {
		logger.Fatalf("participant handler error: %v", err)
	}
	phaseHandler, err := apihttp.NewPhaseHandler(ledgerService)
	if err != nil {
		logger.Fatalf("phase handler error: %v", err)
	}
	eventsHandler, err := apihttp.NewEventsHandler(indexer, registry)
	if err != nil {
		logger.Fatalf("events handler error: %v", err)
	}
	exportHandler, err := apihttp.NewExportHandler(ledgerService, indexer)
	if err != nil {
		logger.Fatalf("export handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/registry", registryHandler)
	mux.Handle("/api/v1/participants/", participantHandler)
	mux.Handle("/api/v1/phase", phaseHandler)
	mux.Handle("/api/v1/events", eventsHandler)
	mux.Handle("/api/v1/exports/", exportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	var handler http.Handler = mux
	if cfg.JWTSecret != "" {
		policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
		handler = auth.NewMiddleware([]byte(cfg.JWTSecret), policy).Wrap(mux)
	} else {
		logger.Printf("AUTH_JWT_SECRET not set, read API is open")
	}

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(handler, logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	HTTPAddr        string
	DatabaseURL     string
	SegmentSize     int64
	FleetConfigPath string
	MeterTimeout    time.Duration
	JWTSecret       string
}

func loadConfig() config {
	cfg := config{
		HTTPAddr:        getenvDefault("HTTP_ADDR", ":8080"),
		DatabaseURL:     getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		SegmentSize:     int64(getenvIntDefault("EVENT_LOG_SEGMENT_SIZE", int(eventlog.DefaultSegmentSize))),
		FleetConfigPath: getenvDefault("FLEET_CONFIG", "fleet.yaml"),
		MeterTimeout:    getenvDuration("METER_TIMEOUT", 5*time.Second),
		JWTSecret:       getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
