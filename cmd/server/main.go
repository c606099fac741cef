package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/binary-amm/internal/archive"
	"github.com/atmx/binary-amm/internal/auth"
	"github.com/atmx/binary-amm/internal/config"
	"github.com/atmx/binary-amm/internal/exposure"
	"github.com/atmx/binary-amm/internal/ledger"
	"github.com/atmx/binary-amm/internal/lock"
	"github.com/atmx/binary-amm/internal/metrics"
	"github.com/atmx/binary-amm/internal/model"
	"github.com/atmx/binary-amm/internal/scheduler"
	"github.com/atmx/binary-amm/internal/store"
	"github.com/atmx/binary-amm/internal/trade"
)

func main() {
	configPath := flag.String("config", os.Getenv("AMM_CONFIG"), "path to TOML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("binary-amm exited", "err", err)
		os.Exit(1)
	}
	fmt.Println("binary-amm stopped")
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.SlogLevel())); err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize store and ledger ---
	var (
		st      store.Store
		led     ledger.Ledger
		rdb     *redis.Client
		cleanup []func()
	)
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	var pool *pgxpool.Pool
	if cfg.Database.URL != "" {
		pool, err = pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		if cfg.Database.RunMigrations {
			if err := store.Migrate(pool); err != nil {
				return err
			}
		}
		st = store.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")
	} else {
		slog.Warn("database url not set, using in-memory store (data will not persist)")
		st = store.NewMemoryStore()
	}

	if cfg.Ledger.Backend == "postgres" {
		led = ledger.NewPostgresLedger(pool)
		slog.Info("using PostgreSQL ledger")
	} else {
		slog.Warn("using in-memory ledger (balances will not persist)")
		led = ledger.NewMemoryLedger()
	}

	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		rdb = redis.NewClient(opt)
		cleanup = append(cleanup, func() { rdb.Close() })
		st = store.NewCachedStore(st, rdb, cfg.Redis.CacheTTL.Duration)
		slog.Info("Redis cache enabled", "ttl", cfg.Redis.CacheTTL.Duration)
	}

	// --- Trade service ---
	wsHub := trade.NewWSHub()
	opts := []trade.Option{
		trade.WithHub(wsHub),
		trade.WithMinSeed(cfg.Market.MinSeed),
		trade.WithClaimWindow(cfg.Market.ClaimWindow.Duration),
	}
	if lim := exposure.NewLimiter(cfg.Limits.MaxPerMarket, cfg.Limits.MaxPerCategory); lim.Enabled() {
		opts = append(opts, trade.WithLimiter(lim))
	}
	if cfg.Redis.DistributedLocks {
		opts = append(opts, trade.WithLocker(lock.NewRedisLocker(rdb, cfg.Redis.LockTTL.Duration, 25*time.Millisecond)))
		slog.Info("distributed market locks enabled")
	}
	if cfg.S3.Bucket != "" {
		arch, err := archive.NewS3Archiver(ctx, archive.Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return err
		}
		opts = append(opts, trade.WithArchiver(arch))
		slog.Info("settlement archive enabled", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
	}
	tradeSvc := trade.NewService(st, led, opts...)

	if _, err := tradeSvc.Initialize(ctx, model.Config{
		Authority:         cfg.Market.Authority,
		FeeBps:            uint16(cfg.Market.FeeBps),
		FeeAccumulatorRef: cfg.Market.FeeAccount,
	}); err != nil {
		return fmt.Errorf("initialize market config: %w", err)
	}
	if markets, err := tradeSvc.Markets(ctx, store.MarketFilter{Resolved: new(bool)}); err == nil {
		metrics.ActiveMarkets.Set(float64(len(markets)))
	}

	var minter ledger.Minter
	if m, ok := led.(ledger.Minter); ok && cfg.Ledger.AllowMint {
		minter = m
		slog.Warn("POST /api/v1/admin/credit enabled")
	}
	handler := trade.NewHandler(tradeSvc, minter)
	signer := auth.NewSigner([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL.Duration)

	// --- HTTP router ---
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)
	r.Use(cors(cfg.Server.CORSOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"binary-amm"}`))
	})

	// Prometheus metrics endpoint.
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// WebSocket endpoint for real-time market updates. Registered
		// outside the timeout middleware.
		r.Get("/ws", wsHub.HandleWS)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.Server.RequestTimeout.Duration))
			r.Use(signer.Middleware)
			handler.Routes(r)
		})
	})

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout.Duration + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	watcher := scheduler.NewWatcher(st, wsHub, cfg.Scheduler.Interval.Duration, slog.Default())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return wsHub.Run(gctx) })
	g.Go(func() error { return watcher.Run(gctx) })
	g.Go(func() error {
		slog.Info("binary-amm listening", "port", cfg.Server.Port, "authority", cfg.Market.Authority)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down binary-amm...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// cors allows cross-origin requests from the configured origins.
func cors(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case allowed["*"]:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case origin != "" && allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
