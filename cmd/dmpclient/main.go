// Command dmpclient is the DarkMultiPlayer client options daemon. It owns the
// persisted client settings, the universe cache, and the server session,
// and serves them to the in-game options window over a local HTTP API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/time/rate"

	"github.com/Planetworks/DarkMultiPlayer/internal/api"
	"github.com/Planetworks/DarkMultiPlayer/internal/auth"
	"github.com/Planetworks/DarkMultiPlayer/internal/cache"
	"github.com/Planetworks/DarkMultiPlayer/internal/config"
	"github.com/Planetworks/DarkMultiPlayer/internal/events"
	"github.com/Planetworks/DarkMultiPlayer/internal/identity"
	"github.com/Planetworks/DarkMultiPlayer/internal/maintenance"
	"github.com/Planetworks/DarkMultiPlayer/internal/models"
	"github.com/Planetworks/DarkMultiPlayer/internal/network"
	"github.com/Planetworks/DarkMultiPlayer/internal/preferences"
	"github.com/Planetworks/DarkMultiPlayer/internal/settings"
	"github.com/Planetworks/DarkMultiPlayer/internal/zeroconf"
)

// envConfig holds defaults read from the environment. Flags override them.
type envConfig struct {
	Addr           string        `env:"DMP_ADDR"            envDefault:"127.0.0.1:8020"`
	ConfigDir      string        `env:"DMP_CONFIG_DIR"`
	CacheDir       string        `env:"DMP_CACHE_DIR"`
	BackupDir      string        `env:"DMP_BACKUP_DIR"`
	Server         string        `env:"DMP_SERVER"`
	Debug          bool          `env:"DMP_DEBUG"`
	Advertise      bool          `env:"DMP_ADVERTISE"`
	ExpireInterval time.Duration `env:"DMP_EXPIRE_INTERVAL" envDefault:"1h"`
	CacheMaxAge    time.Duration `env:"DMP_CACHE_MAX_AGE"   envDefault:"24h"`
	RemoveRate     float64       `env:"DMP_CACHE_REMOVE_RATE"`
}

func main() {
	var cfg envConfig
	if err := env.Parse(&cfg); err != nil {
		slog.Error("cannot parse environment", "err", err)
		os.Exit(1)
	}

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	cfgDir := flag.String("config-dir", cfg.ConfigDir, "settings directory (default: ~/.config/dmpclient)")
	cacheDir := flag.String("cache-dir", cfg.CacheDir, "universe cache directory (default: ~/.cache/dmpclient)")
	backupDir := flag.String("backup-dir", cfg.BackupDir, "settings backup directory (default: <config-dir>/backups)")
	server := flag.String("server", cfg.Server, "DarkMultiPlayer server address (host:port); empty stays offline")
	debug := flag.Bool("debug", cfg.Debug, "enable debug logging")
	advertise := flag.Bool("advertise", cfg.Advertise, "advertise the API over mDNS")
	expireEvery := flag.Duration("expire-interval", cfg.ExpireInterval, "time between cache expiry runs; negative disables")
	maxAge := flag.Duration("cache-max-age", cfg.CacheMaxAge, "expire cached objects unused for this long; negative disables")
	removeRate := flag.Float64("cache-remove-rate", cfg.RemoveRate, "cache removals per second during expiry; 0 is unlimited")
	flag.Parse()

	// Configure logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// Resolve directories
	if *cfgDir == "" {
		*cfgDir = identity.DefaultConfigDir()
	}
	if *cacheDir == "" {
		*cacheDir = identity.DefaultCacheDir()
	}
	if *backupDir == "" {
		*backupDir = identity.DefaultBackupDir()
	}
	for _, dir := range []string{*cfgDir, *cacheDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			slog.Error("cannot create directory", "path", dir, "err", err)
			os.Exit(1)
		}
	}

	// Graceful shutdown context
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	bus := events.NewBus()

	// Settings
	store, err := settings.New(config.NewJSONStore(*cfgDir), bus)
	if err != nil {
		slog.Error("settings initialization failed", "err", err)
		os.Exit(1)
	}
	watcher, err := config.Watch(store.Path(), func() {
		if err := store.Reload(); err != nil {
			slog.Warn("settings: file not adopted, keeping in-memory settings", "err", err)
		}
	})
	if err != nil {
		slog.Warn("settings file watch disabled", "err", err)
	}

	// Universe cache
	limit := rate.Inf
	if *removeRate > 0 {
		limit = rate.Limit(*removeRate)
	}
	cacheStorage := cache.NewDirStorage(*cacheDir)
	cacheCtrl, err := cache.New(cacheStorage, store, bus, cache.Options{
		MaxAge:     *maxAge,
		RemoveRate: limit,
	})
	if err != nil {
		slog.Error("cache initialization failed", "err", err)
		os.Exit(1)
	}

	// Server session
	session := network.NewSession(store.Get().PlayerName, 0)
	if *server != "" {
		go session.Connect(ctx, *server)
	} else {
		slog.Info("no server configured, staying offline")
	}
	prefs := preferences.New(store, session, session)

	// Auth service
	authSvc, err := auth.NewService(*cfgDir)
	if err != nil {
		slog.Error("auth service initialization failed", "err", err)
		os.Exit(1)
	}
	defer authSvc.Close()

	// Maintenance goroutines (cache expiry, settings backups)
	maint := maintenance.New(*cfgDir, *backupDir, cacheCtrl, maintenance.Options{
		ExpireInterval: *expireEvery,
	})
	go maint.Start(ctx)

	// Zeroconf mDNS registration
	if *advertise {
		zc := zeroconf.New(identity.GetHostname(), listenPort(*addr), "version="+identity.GetVersion())
		go func() {
			if err := zc.Start(ctx); err != nil {
				slog.Warn("zeroconf failed", "err", err)
			}
		}()
	}

	// HTTP server
	router := api.NewRouter(api.Deps{
		Settings:    store,
		Cache:       cacheCtrl,
		Preferences: prefs,
		Connection:  session,
		Backups:     maint,
		Events:      bus,
		Auth:        authSvc,
		Info: func() models.Info {
			return models.Info{
				Version:    identity.GetVersion(),
				ConfigPath: store.Path(),
				CacheDir:   cacheStorage.Dir(),
				Connection: session.State(),
			}
		},
	})

	srv := &http.Server{
		Addr:         *addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout (needed for SSE)
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("dmpclient listening", "addr", *addr, "config", store.Path(), "cache", *cacheDir, "version", identity.GetVersion())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("server shutdown error", "err", err)
	}

	if watcher != nil {
		watcher.Close()
	}
	// Retry any save that failed while running
	if err := store.Close(); err != nil {
		slog.Warn("failed to flush settings", "err", err)
	}

	slog.Info("shutdown complete")
}

// listenPort extracts the port from a listen address, defaulting to 80.
func listenPort(addr string) int {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 80
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return 80
	}
	return port
}
