package cmd

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agent-pulse/backend/internal/config"
	"github.com/agent-pulse/backend/internal/monitor"
	"github.com/agent-pulse/backend/internal/statestore"
	"github.com/agent-pulse/backend/internal/stats"
	"github.com/agent-pulse/backend/internal/ws"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		port       int
		sessionDir string
	)

	cmd := &cobra.Command{
		Use:   "run [workspace]",
		Short: "Monitor a workspace's agent sessions and serve metrics",
		Long:  "run attaches to the most recent agent session for the given workspace (default: the current directory), streams its transcript into the stats engine, and serves the results on /ws and /api/*.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if port != 0 {
				cfg.Server.Port = port
			}

			workspace, err := resolveWorkspace(args)
			if err != nil {
				return err
			}

			bus := stats.NewBus()
			engine := stats.NewEngine(stats.Options{
				MaxTimeline:         cfg.Limits.MaxTimeline,
				MaxLatencyRecords:   cfg.Limits.MaxLatencyRecords,
				StaleRequestTimeout: cfg.Monitor.StaleRequestTimeout,
				RecentUsageWindow:   cfg.Monitor.RecentUsageWindow,
			}, bus)
			store := statestore.New(cfg.StateFile())
			ctrl := monitor.NewController(cfg, engine, bus, store)
			defer ctrl.Close()

			broadcaster := ws.NewBroadcaster(func() ws.SnapshotPayload {
				return ws.SnapshotPayload{
					Stats:  ctrl.Snapshot(),
					State:  ctrl.State().String(),
					Pinned: ctrl.Pinned(),
				}
			})
			broadcaster.Attach(bus)
			defer broadcaster.Close()

			mux := http.NewServeMux()
			ws.NewServer(cfg, ctrl, broadcaster).SetupRoutes(mux)

			log.Printf("monitoring workspace %s", workspace)
			ctrl.Start(workspace)
			if sessionDir != "" {
				ctrl.StartWithCustomPath(sessionDir)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux)
			}()

			select {
			case <-ctx.Done():
				log.Println("shutting down")
				return nil
			case err := <-errCh:
				return err
			}
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().IntVar(&port, "port", 0, "override the listen port")
	cmd.Flags().StringVar(&sessionDir, "session-dir", "", "monitor this directory instead of the workspace's (persisted)")

	return cmd
}

func resolveWorkspace(args []string) (string, error) {
	if len(args) == 1 {
		abs, err := filepath.Abs(args[0])
		if err != nil {
			return "", fmt.Errorf("resolve workspace: %w", err)
		}
		return abs, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("resolve workspace: %w", err)
	}
	return filepath.Clean(wd), nil
}
