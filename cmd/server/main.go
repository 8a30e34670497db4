package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apihttp "mediaplayer/internal/api/http"
	"mediaplayer/internal/app"
	"mediaplayer/internal/domain"
	"mediaplayer/internal/domain/ports"
	"mediaplayer/internal/media/fake"
	"mediaplayer/internal/metrics"
	"mediaplayer/internal/player"
	"mediaplayer/internal/player/clock"
	mongorepo "mediaplayer/internal/repository/mongo"
	"mediaplayer/internal/session"
	"mediaplayer/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	metrics.Register(prometheus.DefaultRegisterer)

	shutdownTracer, err := telemetry.Init(context.Background(), "mediaplayer")
	if err != nil {
		logger.Warn("otel init failed", slog.String("error", err.Error()))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	logger.Info("configuration loaded",
		slog.String("service", "mediaplayer"),
		slog.String("httpAddr", cfg.HTTPAddr),
		slog.String("logLevel", cfg.LogLevel),
		slog.String("logFormat", cfg.LogFormat),
		slog.Int64("demoWindowDurationMs", cfg.DemoWindowDurationMs),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var settingsStore session.SettingsStore
	if cfg.MongoURI != "" {
		ctx, cancel := context.WithTimeout(rootCtx, 10*time.Second)
		defer cancel()
		mongoClient, err := mongorepo.Connect(ctx, cfg.MongoURI,
			options.Client().SetMonitor(otelmongo.NewMonitor()))
		if err != nil {
			logger.Error("mongo connect failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		if err := mongoClient.Ping(ctx, readpref.Primary()); err != nil {
			logger.Error("mongo ping failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer func() { _ = mongoClient.Disconnect(context.Background()) }()
		settingsStore = mongorepo.NewPlayerSettingsRepository(mongoClient, cfg.MongoDatabase)
	} else {
		logger.Info("MONGO_URI not set, player settings are in-memory only")
	}

	loadControl := player.NewDefaultLoadControl()
	loadControl.BackBufferUs = domain.MsToUs(cfg.BackBufferMs)
	loadControl.MinBufferUs = domain.MsToUs(cfg.MinBufferMs)
	loadControl.MaxBufferUs = domain.MsToUs(cfg.MaxBufferMs)
	loadControl.BufferForPlaybackUs = domain.MsToUs(cfg.BufferForPlaybackMs)

	p := player.New(player.Config{
		Renderers: []ports.Renderer{
			fake.NewRenderer(domain.TrackTypeVideo),
			fake.NewRenderer(domain.TrackTypeAudio),
		},
		TrackSelector: player.NewDefaultTrackSelector(),
		LoadControl:   loadControl,
		Clock:         clock.NewSystemClock(),
		Logger:        logger,
	})

	settings := session.NewManager(p, settingsStore)
	if err := settings.Load(rootCtx); err != nil {
		logger.Warn("player settings load failed", slog.String("error", err.Error()))
	}

	api := apihttp.NewServer(apihttp.Options{
		Logger:             logger,
		Player:             p,
		Settings:           settings,
		SourceFactory:      demoSourceFactory(cfg),
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(api, "http.server"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown failed", slog.String("error", err.Error()))
	}
	if err := settings.SavePosition(); err != nil {
		logger.Warn("save position failed", slog.String("error", err.Error()))
	}
	api.Close()
	p.Release()
	logger.Info("shutdown complete")
}

// demoSourceFactory builds the synthetic media source the control API
// plays: one window, optionally with a single mid-roll ad break.
func demoSourceFactory(cfg app.Config) func() ports.MediaSource {
	return func() ports.MediaSource {
		durationUs := domain.MsToUs(cfg.DemoWindowDurationMs)
		ads := domain.NoAds
		if cfg.DemoAdPositionMs > 0 {
			ads = domain.AdPlaybackState{
				Groups: []domain.AdGroup{{
					TimeUs:      domain.MsToUs(cfg.DemoAdPositionMs),
					Count:       1,
					States:      []domain.AdState{domain.AdStateAvailable},
					DurationsUs: []int64{domain.MsToUs(cfg.DemoAdDurationMs)},
				}},
			}
		}
		timeline := domain.MustTimeline(
			[]domain.Window{{
				FirstPeriodIndex:       0,
				LastPeriodIndex:        0,
				DefaultStartPositionUs: 0,
				DurationUs:             durationUs,
				IsSeekable:             true,
			}},
			[]domain.Period{{
				UID:        "demo-period-0",
				DurationUs: durationUs,
				Ads:        ads,
			}},
		)
		return fake.NewSource(timeline,
			domain.TrackGroup{Formats: []domain.Format{
				{ID: "video-main", Type: domain.TrackTypeVideo, Bitrate: 2_000_000},
				{ID: "video-low", Type: domain.TrackTypeVideo, Bitrate: 600_000},
			}},
			domain.TrackGroup{Formats: []domain.Format{
				{ID: "audio-main", Type: domain.TrackTypeAudio, Bitrate: 128_000, Language: "en"},
			}},
		)
	}
}

func newLogger(levelRaw, formatRaw string) *slog.Logger {
	var level slog.Level
	switch levelRaw {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatRaw == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
