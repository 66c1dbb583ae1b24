package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orquestra-ai/orquestra/internal/approval"
	"github.com/orquestra-ai/orquestra/internal/config"
	"github.com/orquestra-ai/orquestra/internal/controller"
	"github.com/orquestra-ai/orquestra/internal/event"
	"github.com/orquestra-ai/orquestra/internal/logging"
	"github.com/orquestra-ai/orquestra/internal/runner"
	"github.com/orquestra-ai/orquestra/internal/server"
	"github.com/orquestra-ai/orquestra/internal/storage"
	"github.com/orquestra-ai/orquestra/internal/team"
)

var (
	servePort int
	serveHost string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestration server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Server host (overrides config)")
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if serveHost != "" {
		cfg.Host = serveHost
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if pretty {
		cfg.Pretty = true
	}

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: cfg.Pretty,
	})
	log := logging.Component("serve")

	if cfg.Runner.Command == "" {
		return fmt.Errorf("no runner configured: set runner.command in the config file or ORQUESTRA_RUNNER")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rn, err := runner.NewExec(ctx, cfg.Runner.Command, cfg.Runner.Args...)
	if err != nil {
		return fmt.Errorf("launch runner: %w", err)
	}

	store := storage.New(cfg.DataDir)
	bus := event.NewBus()
	defer bus.Close()

	mediator, err := approval.NewMediator(ctx, store, rn)
	if err != nil {
		return err
	}

	ctrl := controller.New(store, rn, mediator, bus)
	if err := ctrl.Load(ctx); err != nil {
		return err
	}
	go ctrl.Run(ctx)

	var teams *team.Engine
	if cfg.TeamsDir != "" {
		teams = team.NewEngine(ctrl, bus)
		ctrl.SetTeamTracker(teams)
		teams.Rehydrate(ctrl.TeamBindings())

		poller := team.NewPoller(teams, team.NewFileRuntime(cfg.TeamsDir), cfg.TeamPollInterval(), cfg.TeamsDir)
		go poller.Run(ctx)
	}

	serverCfg := server.DefaultConfig()
	serverCfg.Host = cfg.Host
	serverCfg.Port = cfg.Port
	srv := server.New(serverCfg, ctrl, mediator, teams, bus)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).Msg("server listening")
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := rn.Close(); err != nil {
		log.Warn().Err(err).Msg("runner shutdown")
	}
	return nil
}
