package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/risk/internal/api"
	"example.com/risk/internal/auth"
	"example.com/risk/internal/config"
	"example.com/risk/internal/domain"
	"example.com/risk/internal/observability"
	"example.com/risk/internal/outbox"
	persistence "example.com/risk/internal/persistence/postgres"
	"example.com/risk/internal/rating"
	httptransport "example.com/risk/internal/transport/http"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	// A registry without a global default segment is a configuration defect;
	// refuse to start rather than fail per request.
	snapshot, err := persistence.LoadSegmentSnapshot(ctx, pool)
	if err != nil {
		log.Fatalf("failed to load segment snapshot: %v", err)
	}
	registry := rating.NewRegistry(snapshot)
	observability.RecordRegistrySwap(snapshot.Len())
	log.Printf("serving segment snapshot %s (%d segments)", snapshot.Version(), snapshot.Len())

	go refreshRegistry(ctx, pool, registry, cfg.RegistryRefresh)

	engine, err := rating.NewEngine(cfg.LoadingFactor, cfg.AnomalyLoad, rating.BuhlmannCredibility(cfg.CredibilityK))
	if err != nil {
		log.Fatalf("invalid pricing configuration: %v", err)
	}

	repo := persistence.NewRepository(pool)
	service := domain.NewService(repo, registry, engine)

	producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
	defer producer.Close()

	schemaRegistry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, schemaRegistry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	go dispatcher.Start(ctx)

	forwarder := outbox.NewTelemetryForwarder(producer, schemaRegistry)

	handler := api.NewHandler(service, forwarder)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, authMiddleware.Wrap(logger(mux)))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("risk-service listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	dispatcher.Wait()
}

// refreshRegistry periodically rebuilds the segment snapshot and swaps it in
// atomically. A failed refresh keeps the previous snapshot serving.
func refreshRegistry(ctx context.Context, pool *pgxpool.Pool, registry *rating.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		snapshot, err := persistence.LoadSegmentSnapshot(ctx, pool)
		if err != nil {
			log.Printf("segment snapshot refresh failed, keeping %s: %v", registry.Version(), err)
			continue
		}
		if snapshot.Version() == registry.Version() {
			continue
		}
		registry.Swap(snapshot)
		observability.RecordRegistrySwap(snapshot.Len())
		log.Printf("swapped in segment snapshot %s (%d segments)", snapshot.Version(), snapshot.Len())
	}
}
