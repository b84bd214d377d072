package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hircd/hircd/internal/config"
	"github.com/hircd/hircd/internal/daemon"
	"github.com/hircd/hircd/internal/logging"
)

var runForeground bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the hircd daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		syscall.Umask(0077)

		cfgPath, err := config.ConfigFilePath()
		if err != nil {
			return err
		}
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		socketPath, err := config.SocketPath()
		if err != nil {
			return err
		}

		logDir, err := config.LogDir()
		if err != nil {
			return err
		}
		if err := config.EnsureDir(logDir, 0700); err != nil {
			fmt.Fprintf(os.Stderr, "hircd: cannot create log directory: %v\n", err)
		}

		level := parseLogLevel(cfg.LogLevel)
		logger, logCleanup, logErr := logging.Setup(logDir, level, runForeground)
		if logErr != nil {
			fmt.Fprintf(os.Stderr, "hircd: cannot set up file logging: %v\n", logErr)
			logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			logCleanup = func() {}
		}
		defer logCleanup()

		d := daemon.New(cfg, socketPath, logger)

		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		go func() {
			<-sigCh
			logger.Info("received shutdown signal")
			cancel()
		}()

		go d.RunMetrics(ctx)

		return d.Run(ctx)
	},
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	runCmd.Flags().BoolVar(&runForeground, "foreground", false, "Also log to stderr")
	rootCmd.AddCommand(runCmd)
}
