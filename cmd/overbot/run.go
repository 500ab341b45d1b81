package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/overbot/pkg/overbot/config"
	"github.com/randalmurphal/overbot/pkg/overbot/observability"
)

const shutdownTimeout = 30 * time.Second

type runOptions struct {
	configPath string
	mode       string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	signals    bool
}

func newRunCmd(configPath *string) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the router until interrupted",
		Long: `Loads the configuration, attaches the command processor and bridges,
and routes events until SIGINT, SIGTERM or SIGQUIT. In foreground mode the
console is attached and closing its input also stops the router. In daemon
mode SIGHUP is ignored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), runOptions{
				configPath: *configPath,
				mode:       mode,
				stdin:      cmd.InOrStdin(),
				stdout:     cmd.OutOrStdout(),
				stderr:     cmd.ErrOrStderr(),
				signals:    true,
			})
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "override run_mode (foreground or daemon)")
	return cmd
}

func run(ctx context.Context, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	settings, err := loadSettings(opts.configPath, opts.mode)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(opts.stderr, settings.Log.Level, settings.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if opts.signals {
		if settings.RunMode == config.RunDaemon {
			signal.Ignore(syscall.SIGHUP)
		}
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
		defer stop()
	}
	ctx, quit := context.WithCancelCause(ctx)
	defer quit(nil)

	a, err := newApp(settings, opts.stdin, opts.stdout, logger, quit)
	if err != nil {
		return err
	}
	shutdown := func() error {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return a.shutdown(sctx)
	}
	if err := a.start(ctx); err != nil {
		return errors.Join(err, shutdown())
	}

	<-ctx.Done()
	cause := context.Cause(ctx)
	logger.Info("shutting down", slog.String("cause", cause.Error()))
	if err := shutdown(); err != nil {
		return err
	}
	if cause != nil && !errors.Is(cause, context.Canceled) && !errors.Is(cause, errConsoleClosed) {
		return fmt.Errorf("stopped: %w", cause)
	}
	return nil
}
