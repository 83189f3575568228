package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/ecociel/taskmanager/config"
	"github.com/ecociel/taskmanager/gate"
	"github.com/ecociel/taskmanager/gateway/kafka"
	"github.com/ecociel/taskmanager/gateway/rest"
	"github.com/ecociel/taskmanager/metrics"
	"github.com/ecociel/taskmanager/repos/sql"
	"github.com/ecociel/taskmanager/runner"
	"github.com/ecociel/taskmanager/uc"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DbConnectionUri)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	store := sql.NewPostgresRepo(pool)
	if cfg.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatalf("ensure schema: %v", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewPromMetrics(reg)

	gateCfg := cfg.Gate()
	keys := gate.NewKeySet(gateCfg, &http.Client{Timeout: cfg.AuthFetchTimeout})
	keys.OnRefresh(m.KeyRefresh)
	if err := keys.Refresh(ctx); err != nil {
		// Requests are rejected until a later refresh succeeds.
		log.Printf("initial signing key fetch failed: %v", err)
	}
	go runner.NewRunner("signing key refresh", keys.Refresh, cfg.AuthRefreshInterval).Run(ctx)
	authGate := gate.New(gateCfg, keys, m)

	var publisher uc.EventPublisher
	var closeEvents func()
	if cfg.EventsEnabled() {
		client, err := kafka.NewClient(cfg.EventsHostPorts, cfg.EventsTopic)
		if err != nil {
			log.Fatalf("kafka client: %v", err)
		}
		publisher = kafka.NewPublisher(client, cfg.EventsTopic)
		closeEvents = client.Close
		log.Printf("publishing task events to %s", cfg.EventsTopic)
	}

	tasks := uc.MakeTasks(store, publisher, m)
	srv := &http.Server{
		Addr:              cfg.HttpAddr,
		Handler:           rest.NewContainer(tasks, authGate, reg),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("listening on %s", cfg.HttpAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				cancel()
				err := srv.Shutdown(ctx)
				pool.Close()
				if closeEvents != nil {
					closeEvents()
				}
				return err
			},
		},
	)

	exitCode := <-wait
	log.Printf("exited with code %d", exitCode)
	os.Exit(exitCode)
}
