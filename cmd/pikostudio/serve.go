package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pikomusic/studio/internal/api"
	"github.com/pikomusic/studio/internal/config"
	"github.com/pikomusic/studio/internal/graph"
	"github.com/pikomusic/studio/internal/logger"
	"github.com/pikomusic/studio/internal/store"
	"github.com/pikomusic/studio/internal/stream"
	"github.com/pikomusic/studio/internal/studio"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the studio and its HTTP control surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
		}
		if err := logger.InitLogger(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}); err != nil {
			return err
		}
		defer logger.Sync()

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "HTTP port (overrides PIKO_PORT)")
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg config.Config) error {
	stores, closeStores := openStores(ctx, cfg)
	defer closeStores()

	opts := studio.OptionsFromConfig(cfg)
	opts.Stores = stores
	sess, err := studio.New(opts)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer sess.Close()
	if err := sess.Start(); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	hub := api.NewHub()
	go hub.Run(ctx)
	unsubscribe := sess.Subscribe(hub.Publish)
	defer unsubscribe()

	handler := api.NewHandler(sess, hub)
	master := sess.Router.Tap(graph.TapMaster)
	httpStream := stream.NewHTTPHandler(master, cfg.SampleRate)
	httpStream.FFmpeg = cfg.FFmpegPath
	webrtcStream := stream.NewWebRTCHandler(master, cfg.SampleRate)
	handler.Router().Handle("/stream", httpStream)
	handler.Router().Handle("/offer", webrtcStream)

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: handler}

	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			server.Close()
		}
	}()

	logger.Info("pikostudio live",
		logger.String("addr", addr),
		logger.Int("sample_rate", cfg.SampleRate),
		logger.String("session", sess.ID))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// openStores connects the optional backing services. A service that is not
// configured or not reachable is left nil and its routes answer 503.
func openStores(ctx context.Context, cfg config.Config) (studio.Stores, func()) {
	var (
		stores  studio.Stores
		closers []func() error
	)

	if cfg.RedisAddr != "" {
		ps, err := store.NewPatternStore(ctx, store.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.ShareTTL,
		})
		if err != nil {
			logger.Warn("share links disabled", logger.ErrorField(err))
		} else {
			stores.Patterns = ps
			closers = append(closers, ps.Close)
			logger.Info("share links enabled", logger.String("redis", cfg.RedisAddr))
		}
	}

	if cfg.MinioEndpoint != "" {
		ar, err := store.NewArchive(ctx, store.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.Warn("recording archive disabled", logger.ErrorField(err))
		} else {
			stores.Archive = ar
			logger.Info("recording archive enabled", logger.String("bucket", cfg.MinioBucket))
		}
	}

	if cfg.MySQLDSN != "" {
		cat, err := store.OpenCatalog(cfg.MySQLDSN)
		if err != nil {
			logger.Warn("recording catalog disabled", logger.ErrorField(err))
		} else {
			stores.Catalog = cat
			closers = append(closers, cat.Close)
			logger.Info("recording catalog enabled")
		}
	}

	return stores, func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("close store", logger.ErrorField(err))
			}
		}
	}
}
