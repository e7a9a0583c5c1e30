package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/openrentals/rentals-backend/internal/auth"
	"github.com/openrentals/rentals-backend/internal/buildings"
	"github.com/openrentals/rentals-backend/internal/cache"
	"github.com/openrentals/rentals-backend/internal/config"
	"github.com/openrentals/rentals-backend/internal/db"
	"github.com/openrentals/rentals-backend/internal/geo"
	"github.com/openrentals/rentals-backend/internal/logger"
	"github.com/openrentals/rentals-backend/internal/metrics"
	"github.com/openrentals/rentals-backend/internal/middleware"
	"github.com/openrentals/rentals-backend/internal/proximity"
	"github.com/openrentals/rentals-backend/internal/refdata"
	"github.com/openrentals/rentals-backend/internal/utils"
)

func RootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintln(w, "Server is up!")
}

type healthResponse struct {
	Status       string `json:"status"`
	Database     string `json:"database"`
	StoreVersion uint64 `json:"store_version"`
}

func healthHandler(gdb *gorm.DB, store *geo.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Database: "ok", StoreVersion: store.Snapshot().Version}
		status := http.StatusOK

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := gdb.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			resp.Status, resp.Database = "degraded", err.Error()
			status = http.StatusServiceUnavailable
		}
		utils.WriteJSON(w, status, resp)
	}
}

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load(".env.local")

	cfg := config.Load()
	lg := logger.Build(logger.Config{Level: cfg.LogLevel, Console: cfg.LogConsole, Component: "api"}, os.Stdout)
	if err := cfg.Validate(); err != nil {
		lg.Error().Err(err).Msg("invalid configuration")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = lg.WithContext(ctx)

	gdb, err := db.Connect(cfg.DatabaseURL, lg)
	if err != nil {
		lg.Error().Err(err).Msg("database connection failed")
		return 1
	}
	if err := auth.Init(gdb); err != nil {
		lg.Error().Err(err).Msg("auth init failed")
		return 1
	}
	if err := refdata.Init(gdb); err != nil {
		lg.Error().Err(err).Msg("refdata init failed")
		return 1
	}
	if err := buildings.Init(gdb); err != nil {
		lg.Error().Err(err).Msg("buildings init failed")
		return 1
	}

	var src geo.Source = refdata.DBSource{DB: gdb}
	if cfg.RefdataSource != "db" {
		src = refdata.ManifestSource{Path: cfg.RefdataSource}
	}
	store := geo.NewStore(src, geo.Sphere{})
	if _, err := refdata.Reload(ctx, store); err != nil {
		lg.Error().Err(err).Msg("initial reference data load failed")
		return 1
	}

	nearbyCache, closeCache := buildCache(ctx, cfg, lg)
	defer closeCache()

	resolver := proximity.NewResolver(store, nearbyCache)
	sessions := auth.SessionInfo{DB: gdb}

	authH := &auth.Handler{
		DB:         gdb,
		SessionTTL: cfg.SessionTTL,
		Sessions:   sessions,
		Links:      buildings.Cleaner{},
		LoginRate:  cfg.LoginRate,
		LoginBurst: cfg.LoginBurst,
	}
	buildingH := &buildings.Handler{
		DB:        gdb,
		Repo:      buildings.GormRepository{DB: gdb},
		Resolver:  resolver,
		Validator: geo.NewValidator(store),
		Sessions:  sessions,
	}
	refdataH := &refdata.Handler{DB: gdb, Store: store, Sessions: sessions}
	poiH := &proximity.Handler{Resolver: resolver}

	users := authH.UserRoutes()
	users.Get("/{user_id}/buildings", buildingH.ListUserBuildings)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(lg))
	if cfg.MetricsEnabled {
		r.Use(metrics.Middleware)
	}
	r.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	r.Get("/", RootHandler)
	r.Get("/healthz", healthHandler(gdb, store))
	if cfg.MetricsEnabled {
		r.Handle("/metrics", metrics.Handler())
	}

	r.Mount("/auth", authH.SetupRoutes())
	r.Mount("/users", users)
	r.Mount("/buildings", buildingH.SetupRoutes())
	r.Mount("/districts", refdataH.SetupRoutes())
	r.Mount("/pois", poiH.SetupRoutes())

	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lg.Warn().Err(err).Msg("shutdown")
		}
		lg.Info().Msg("server stopped")
		return 0
	case err := <-errCh:
		lg.Error().Err(err).Msg("server exited with error")
		return 1
	}
}

// buildCache returns the nearby-POI cache: an in-process LRU, backed by
// Redis when REDIS_ADDR is set. A nil cache disables caching.
func buildCache(ctx context.Context, cfg config.Config, lg zerolog.Logger) (cache.Cache, func()) {
	noop := func() {}
	if cfg.NearbyCacheSize <= 0 {
		return nil, noop
	}
	local, err := cache.NewLRU(cfg.NearbyCacheSize)
	if err != nil {
		lg.Warn().Err(err).Msg("nearby cache disabled")
		return nil, noop
	}
	if cfg.RedisAddr == "" {
		return local, noop
	}

	shared, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.NearbyCacheTTL)
	if err != nil {
		lg.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using local cache only")
		return local, noop
	}
	return cache.Tiered{Local: local, Shared: shared}, func() { _ = shared.Close() }
}
