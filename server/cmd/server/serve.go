package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/senseease/senseease/server/internal/alerts"
	"github.com/senseease/senseease/server/internal/api"
	"github.com/senseease/senseease/server/internal/auth"
	"github.com/senseease/senseease/server/internal/config"
	"github.com/senseease/senseease/server/internal/metrics"
	"github.com/senseease/senseease/server/internal/prefs"
	"github.com/senseease/senseease/server/internal/scheduler"
	"github.com/senseease/senseease/server/internal/store"
	"github.com/senseease/senseease/server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, stress stream and gRPC health service",
	Long: `Run the senseease server.

The REST API, the /ws/stress live stream and /metrics share the HTTP port.
The gRPC port serves the standard health service. The config file is watched
and pricing, scoring and calming rules are swapped in without a restart.

Examples:
  senseease-server serve --config config.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, found, err := loadConfig()
	if err != nil {
		return err
	}
	level := setupLogging(cfg)
	sc := cfg.Server

	slog.Info("senseease-server starting",
		"version", version,
		"config", configPath,
		"config_found", found,
		"grpc_port", sc.GRPCPort,
		"http_port", sc.HTTPPort,
		"auth_mode", sc.Auth.Mode,
		"storage", sc.Storage.Backend,
		"state_ttl", sc.State.TTL,
	)

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()

	policy, err := sc.Pricing.Policy()
	if err != nil {
		return fmt.Errorf("pricing policy: %w", err)
	}
	storeOpts := []store.Option{
		store.WithPolicy(policy),
		store.WithScorer(sc.Stress.Scorer()),
		store.WithLogCapacity(sc.Stress.LogCapacity),
	}

	// Preferences live in SQLite when persistence is on, else in memory.
	var (
		db         *store.SQLite
		pruner     scheduler.Pruner
		prefsStore interface {
			prefs.Loader
			prefs.Saver
		} = prefs.NewMemoryStore()
	)
	if sc.Storage.Backend == "sqlite" {
		db, err = openDatabase(ctx, sc.Storage.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		storeOpts = append(storeOpts, store.WithPersister(db))
		prefsStore = db
		pruner = db
	}

	st := store.New(sc.State.TTL, storeOpts...)
	if db != nil {
		n, err := st.Restore(ctx)
		if err != nil {
			return fmt.Errorf("restore carts: %w", err)
		}
		slog.Info("carts restored from storage", "count", n, "path", sc.Storage.Path)
	}

	prefSvc := prefs.NewService(prefsStore, prefsStore)

	eng := alerts.New(sc.Alerts)
	eng.OnTransition(func(a alerts.Alert) {
		m.CalmingChanges.WithLabelValues(a.State).Inc()
	})

	limiter := auth.NewRateLimiter(sc.RateLimit.RequestsPerSecond, sc.RateLimit.Burst)

	sched := scheduler.New(pruner, sc.Storage.Retention, scheduler.SweeperFunc(eng.Prune), limiter, m)
	sched.ResolveIdleAlerts(scheduler.SweeperFunc(eng.ResolveIdle), sc.State.TTL)
	if err := sched.Register(sc.Storage.PruneSchedule); err != nil {
		return err
	}

	hub := ws.New(st, eng, m, sc.Stress.StreamInterval)

	// HTTP: REST API, live stream and metrics behind rate limiting and auth.
	mux := http.NewServeMux()
	mux.Handle("/api/", api.New(st, eng, prefSvc, m))
	mux.Handle("/ws/stress", hub)
	mux.Handle("/metrics", m.Handler())

	requireKey := auth.APIKeyMiddleware(sc.Auth.Mode, sc.Auth.EffectiveHeader(), sc.Auth.Key(),
		"/api/v1/health", "/metrics")
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", sc.HTTPPort),
		Handler:           m.Instrument(limiter.Middleware(requireKey(mux))),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC: health service only, with the same API key rules.
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(
		auth.APIKeyInterceptor(sc.Auth.Mode, strings.ToLower(sc.Auth.EffectiveHeader()), sc.Auth.Key(),
			auth.HealthCheckMethod),
	))
	healthSrv := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcSrv, healthSrv)

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
	if err != nil {
		return fmt.Errorf("listen on gRPC port %d: %w", sc.GRPCPort, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("HTTP server listening", "port", sc.HTTPPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("gRPC health service listening", "port", sc.GRPCPort)
		healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})
	g.Go(func() error { st.Run(gctx); return nil })
	g.Go(func() error { hub.Run(gctx); return nil })
	g.Go(func() error { sched.Run(gctx); return nil })

	if found {
		g.Go(func() error {
			err := config.Watch(gctx, configPath, func(next *config.Config) {
				applyReload(next, st, eng, level)
			})
			if err != nil {
				// Hot reload is optional; keep serving.
				slog.Error("config watch stopped", "err", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("senseease-server shutting down")
		healthSrv.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		grpcSrv.GracefulStop()
		return err
	})

	return g.Wait()
}

// openDatabase opens and migrates the SQLite database at path.
func openDatabase(ctx context.Context, path string) (*store.SQLite, error) {
	db, err := store.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// applyReload swaps the hot-reloadable parts of next into the running
// server. Invalid rules or pricing keep the previous values.
func applyReload(next *config.Config, st *store.Store, eng *alerts.Engine, level *slog.LevelVar) {
	sc := next.Server
	level.Set(sc.Log.SlogLevel())

	if p, err := sc.Pricing.Policy(); err != nil {
		slog.Error("config: invalid pricing, keeping previous policy", "err", err)
	} else {
		st.SetPolicy(p)
	}

	st.SetScorer(sc.Stress.Scorer())

	if err := alerts.CheckRules(sc.Alerts.Rules); err != nil {
		slog.Error("config: invalid calming rules, keeping previous rules", "err", err)
	} else {
		eng.SetRules(sc.Alerts)
	}

	slog.Info("config: applied",
		"rules", len(sc.Alerts.Rules),
		"tax_rate", sc.Pricing.TaxRate,
		"window", sc.Stress.Window)
}
