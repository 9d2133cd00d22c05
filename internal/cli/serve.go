package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/leozhang/finsight/internal/logger"
	"github.com/leozhang/finsight/internal/tracing"
	"github.com/leozhang/finsight/pkg/gateway"
	"github.com/leozhang/finsight/pkg/history"
	"github.com/leozhang/finsight/pkg/runqueue"
	"github.com/leozhang/finsight/pkg/schedule"
	"github.com/leozhang/finsight/pkg/session"
	"github.com/leozhang/finsight/pkg/watchlist"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway server with the scheduler and watchlist watcher",
	Long: `Run the WebSocket/HTTP gateway in the foreground, together with the
job scheduler, the watchlist file watcher and the session janitor.
The process shuts down cleanly on SIGINT or SIGTERM: connected clients
receive a shutdown frame and in-flight analyses are allowed to finish.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The configured file logger replaces the stderr bootstrap logger.
	lg, err := logger.New(logger.Config{
		Level:     effectiveLogLevel(cfg),
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = lg.Close() }()

	if err := tracing.InitOpenTelemetry("finsight"); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracing")
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}

	queue := runqueue.New()

	sessions, err := session.New(cfg.Session.Dir)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	historyStore, err := history.Open(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}

	watchStore, err := watchlist.NewStore(cfg.Watchlist.Path)
	if err != nil {
		return fmt.Errorf("failed to open watchlist store: %w", err)
	}
	watcher, err := watchlist.NewWatcher(watchStore)
	if err != nil {
		return fmt.Errorf("failed to create watchlist watcher: %w", err)
	}
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("failed to start watchlist watcher: %w", err)
	}

	srv, err := gateway.NewServer(gateway.Config{
		Host:         cfg.Gateway.Host,
		Port:         cfg.Gateway.Port,
		SharedSecret: cfg.Gateway.SharedSecret,
		Executor:     rt.Executor,
		Queue:        queue,
		Sessions:     sessions,
		History:      historyStore,
		Logger:       log.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build gateway: %w", err)
	}

	var scheduler *schedule.Service
	if cfg.Schedule.Enabled {
		scheduler, err = schedule.NewService(schedule.Options{
			StorePath:  cfg.Schedule.StorePath,
			Executor:   rt.Executor,
			Queue:      queue,
			Sessions:   sessions,
			Watchlists: watchStore,
			History:    historyStore,
			OnEvent:    gateway.NewScheduleForwarder(srv).Forward,
		})
		if err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		log.Info().Msg("Scheduler disabled in config")
	}

	janitor := session.NewJanitor(sessions, 0)
	if err := janitor.Start(); err != nil {
		log.Warn().Err(err).Msg("Failed to start session janitor")
	}

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	log.Info().
		Str("host", cfg.Gateway.Host).
		Int("port", cfg.Gateway.Port).
		Bool("scheduler", scheduler != nil).
		Str("watchlist", watchStore.Path()).
		Msg("Finsight is serving")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("Shutting down")

	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			log.Warn().Err(err).Msg("Scheduler stop failed")
		}
	}
	if err := watcher.Stop(); err != nil {
		log.Warn().Err(err).Msg("Watchlist watcher stop failed")
	}
	if err := janitor.Stop(); err != nil {
		log.Warn().Err(err).Msg("Session janitor stop failed")
	}
	if err := srv.Stop(); err != nil {
		log.Warn().Err(err).Msg("Gateway stop failed")
	}
	if err := queue.Close(); err != nil {
		log.Warn().Err(err).Msg("Run queue close failed")
	}
	if err := historyStore.Close(); err != nil {
		log.Warn().Err(err).Msg("History store close failed")
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
