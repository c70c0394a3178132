// Command troubadour is the Discord music bot entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/troubadourbot/troubadour/internal/config"
	discordbot "github.com/troubadourbot/troubadour/internal/discord"
	"github.com/troubadourbot/troubadour/internal/health"
	"github.com/troubadourbot/troubadour/internal/observe"
	"github.com/troubadourbot/troubadour/internal/resolver"
)

// version is stamped by the build via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	stringsPath := flag.String("strings", "", "optional YAML file overriding localized message strings")
	flag.Parse()

	// Secrets come from the environment; .env is a development convenience.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "troubadour: load .env: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "troubadour: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "troubadour: %v\n", err)
		}
		return 1
	}
	if cfg.Command.Prefix == "" {
		cfg.Command.Prefix = "!"
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("troubadour starting",
		"version", version,
		"config", *configPath,
		"language", cfg.Language,
		"prefix", cfg.Command.Prefix,
	)

	token := os.Getenv("DISCORD_TOKEN")
	if token == "" {
		slog.Error("DISCORD_TOKEN is not set")
		return 1
	}

	strs, err := loadStrings(*stringsPath, cfg.Language)
	if err != nil {
		slog.Error("failed to load localized strings", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry providers: OTel metrics bridged to Prometheus.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "troubadour",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	adapter := buildResolver(ctx)

	bot, err := discordbot.New(discordbot.Options{
		Token:    token,
		Config:   cfg,
		Strings:  strs,
		Resolver: adapter,
		PersistVolume: func(volume int) error {
			return config.SaveVolume(*configPath, volume)
		},
		Metrics: metrics,
	})
	if err != nil {
		slog.Error("failed to start discord bot", "err", err)
		return 1
	}

	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		health.New(version,
			health.Check{Name: "discord", Probe: func(_ context.Context) error {
				return bot.Ready()
			}},
			health.Check{Name: "ffmpeg", Probe: func(_ context.Context) error {
				_, err := exec.LookPath(cfg.FFmpeg())
				return err
			}},
		).Register(mux)
		metricsSrv = &http.Server{
			Addr:    cfg.Server.MetricsAddr,
			Handler: observe.Middleware(metrics)(mux),
		}
		go func() {
			slog.Info("operational endpoint listening", "addr", cfg.Server.MetricsAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
	}

	// Hot reload for volume, language, and embed footer. The watcher hashes
	// the file, so our own SaveVolume writes that carry no semantic change
	// still produce a diff callback with only VolumeChanged set.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if !diff.Any() {
			return
		}
		slog.Info("configuration changed",
			"volume", diff.VolumeChanged,
			"language", diff.LanguageChanged,
			"footer", diff.FooterChanged,
		)
		bot.ApplyConfig(new, diff)
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	slog.Info("bot ready — press Ctrl+C to shut down")

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
	}

	slog.Info("shutdown signal received, stopping…")

	if err := bot.Close(); err != nil {
		slog.Warn("discord bot close error", "err", err)
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown error", "err", err)
		}
	}
	slog.Info("goodbye")
	return 0
}

// buildResolver wires the track resolution stack: YouTube search, yt-dlp
// stream probing and playlist expansion, and (when credentials are present)
// the Spotify catalog.
func buildResolver(ctx context.Context) *resolver.Adapter {
	opts := resolver.Options{
		Search:   resolver.NewYouTubeSearch(),
		Prober:   resolver.NewYtdlpProber(),
		Expander: resolver.NewYtdlpExpander(),
	}

	clientID := os.Getenv("SPOTIFY_CLIENT_ID")
	clientSecret := os.Getenv("SPOTIFY_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		catalog, err := resolver.NewSpotifyClient(ctx, clientID, clientSecret)
		if err != nil {
			slog.Warn("spotify catalog unavailable", "err", err)
		} else {
			opts.Catalog = catalog
			slog.Info("spotify catalog enabled")
		}
	} else {
		slog.Info("spotify credentials not set, spotify links disabled")
	}

	return resolver.New(opts)
}

// loadStrings loads the localized string table, applying the optional
// override file on top of the built-in languages.
func loadStrings(path, language string) (config.Strings, error) {
	if path == "" {
		return config.ForLanguage(language), nil
	}
	return config.LoadStrings(path, language)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
