package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantfall/tradegate/internal/audit"
	"github.com/quantfall/tradegate/internal/data/cache"
	feedws "github.com/quantfall/tradegate/internal/data/ws"
	"github.com/quantfall/tradegate/internal/domain/gates"
	"github.com/quantfall/tradegate/internal/domain/regime"
	httpiface "github.com/quantfall/tradegate/internal/interfaces/http"
	"github.com/quantfall/tradegate/internal/metrics"
	"github.com/quantfall/tradegate/internal/models"
	"github.com/quantfall/tradegate/internal/net/ratelimit"
	"github.com/quantfall/tradegate/internal/persistence/postgres"
	"github.com/quantfall/tradegate/internal/reports/weakness"
	"github.com/quantfall/tradegate/internal/telemetry/latency"
)

// feedUnavailable fails the data-validity gate closed when serve mode
// runs without a market data feed.
type feedUnavailable struct{}

func (feedUnavailable) Freshness(context.Context, string) (gates.Freshness, error) {
	return gates.Freshness{}, errors.New("no market data feed configured")
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the reporting surface (health, metrics, audit reports)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := sqlx.Open("postgres", cfg.Postgres.DSN)
			if err != nil {
				return fmt.Errorf("open postgres: %w", err)
			}
			defer db.Close()

			timeout := time.Duration(cfg.Postgres.TimeoutSeconds) * time.Second
			repo := postgres.NewTradesRepo(db, timeout)

			stages := latency.NewRegistry(1000)
			auditor := audit.NewAuditor(cfg.Audit, repo, repo, stages)
			detector := regime.NewDetector(cfg.Regime)
			reporter := weakness.NewReporter()

			m := metrics.NewRegistry(prometheus.DefaultRegisterer)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var regimes *cache.RegimeCache
			if cfg.Redis.Addr != "" {
				rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, DB: cfg.Redis.DB})
				defer rdb.Close()
				regimes = cache.NewRegimeCache(rdb, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
			}

			var freshness gates.FreshnessProvider = feedUnavailable{}
			if cfg.Feed.URL != "" {
				heartbeat := time.Duration(cfg.Feed.HeartbeatSeconds) * time.Second
				watcher := feedws.NewWatcher(cfg.Feed.URL, heartbeat)
				freshness = watcher
				watcher.OnFeature(func(f models.MicrostructuralFeature) {
					detector.Observe(f)
					r := detector.DetectRegime(f.Symbol)
					if regimes != nil {
						if err := regimes.SetRegime(ctx, r); err != nil {
							log.Warn().Err(err).Str("symbol", f.Symbol).Msg("regime cache publish failed")
						}
					}
				})
				go func() {
					if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						log.Error().Err(err).Msg("feed watcher stopped")
					}
				}()
			}

			limiter := ratelimit.NewLimiter(cfg.Feed.VenueRPS, cfg.Feed.VenueBurst)
			validator := gates.NewValidator(cfg.Gates, freshness, nil, limiter)

			server := httpiface.NewServer(cfg.HTTP.Addr, validator, auditor, detector, reporter, m)
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					log.Error().Err(err).Msg("server shutdown failed")
				}
			}()

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	return cmd
}
