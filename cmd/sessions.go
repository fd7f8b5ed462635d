package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/agent-pulse/backend/internal/config"
	"github.com/agent-pulse/backend/internal/locator"
)

func newSessionsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "sessions [workspace]",
		Short: "List session files for a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			workspace, err := resolveWorkspace(args)
			if err != nil {
				return err
			}

			dir := locator.ResolveSessionDirectory(cfg.SessionsRoot(), cfg.ScratchRoot(), workspace)
			if dir == "" {
				return fmt.Errorf("no session directory found for %s", workspace)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-40s %-25s %10s  %s\n", "SESSION", "MODIFIED", "SIZE", "ACTIVE")
			for _, path := range locator.FindAllSessions(dir) {
				info, err := os.Stat(path)
				if err != nil {
					continue
				}
				active := ""
				if time.Since(info.ModTime()) < cfg.Monitor.ActiveSessionThreshold {
					active = "*"
				}
				fmt.Fprintf(out, "%-40s %-25s %10d  %s\n",
					locator.SessionID(path),
					info.ModTime().Format(time.RFC3339),
					info.Size(),
					active)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")

	return cmd
}
