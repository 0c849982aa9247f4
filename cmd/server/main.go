package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/medride/internal/auth"
	"github.com/example/medride/internal/config"
	"github.com/example/medride/internal/eta"
	httpapi "github.com/example/medride/internal/http"
	"github.com/example/medride/internal/ingest"
	"github.com/example/medride/internal/locations"
	"github.com/example/medride/internal/logging"
	"github.com/example/medride/internal/realtime"
	"github.com/example/medride/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	if cfg.PGDSN != "" && cfg.RunMigrations {
		runMigrations(cfg.PGDSN, logger.Info)
	}

	var store storage.BookingStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
		logger.Warn("no PG_DSN set, using in-memory booking store")
	}

	registry := realtime.NewRegistry()
	bcast := realtime.NewBroadcaster(registry, logger)

	var routes eta.RouteClient
	if cfg.RoutingEndpoint != "" {
		routes = eta.NewOSRMClient(cfg.RoutingEndpoint, cfg.RoutingTimeout)
	} else {
		logger.Warn("no ROUTING_ENDPOINT set, using haversine fallback for ETA")
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	var last *locations.RedisCache
	if cfg.RedisAddr != "" {
		last = locations.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword)
		defer last.Close()
	}

	estimator := &eta.Estimator{
		Store:           store,
		Routes:          routes,
		Legs:            eta.NewCache(10 * time.Minute),
		Emit:            bcast,
		Log:             logger,
		DefaultSpeedMps: cfg.DefaultSpeedMps,
	}
	if producer != nil {
		estimator.Kafka = producer
	}
	if last != nil {
		estimator.Last = last
	}

	deps := httpapi.Deps{
		Store:       store,
		Verifier:    auth.NewJWTVerifier(cfg.JWTSecret),
		Registry:    registry,
		Broadcaster: bcast,
		Estimator:   estimator,
		Logger:      logger,
		SendBuffer:  cfg.SendBuffer,
	}
	if last != nil {
		deps.Last = last
	}
	api := httpapi.NewServer(deps)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	// Transport is listening; events may flow now.
	bcast.Start()
	logger.Info("medride listening", "addr", cfg.HTTPAddr)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}
}

func runMigrations(dsn string, info func(msg string, args ...any)) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Printf("migration db open error: %v", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_bookings.sql"))
	if err != nil {
		log.Printf("migration read error: %v", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		log.Printf("migration exec error: %v", err)
		return
	}
	info("migration applied", "file", "001_create_bookings.sql")
}
