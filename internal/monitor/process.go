package monitor

import (
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/agent-pulse/backend/internal/stats"
)

// Snapshot returns the engine's aggregate state decorated with the session
// path and, best effort, the agent process working in the workspace.
func (c *Controller) Snapshot() *stats.Snapshot {
	c.mu.Lock()
	snap := c.engine.Snapshot()
	if c.reader != nil {
		snap.SessionPath = c.reader.Path()
	}
	workspace := c.workspace
	c.mu.Unlock()

	if pid, cpu, ok := probeAgentProcess(workspace); ok {
		snap.PID = pid
		snap.CPUPercent = cpu
	}
	return snap
}

// probeAgentProcess finds the agent process whose working directory is the
// monitored workspace. All errors degrade to not-found.
func probeAgentProcess(workspace string) (int, float64, bool) {
	if workspace == "" {
		return 0, 0, false
	}
	procs, err := process.Processes()
	if err != nil {
		return 0, 0, false
	}
	for _, p := range procs {
		cwd, err := p.Cwd()
		if err != nil || cwd != workspace {
			continue
		}
		cmdline, err := p.CmdlineSlice()
		if err != nil || !isAgentCmdline(cmdline) {
			continue
		}
		cpu, _ := p.CPUPercent()
		return int(p.Pid), cpu, true
	}
	return 0, 0, false
}

// isAgentCmdline matches the main agent process, not subprocesses it
// spawns. The agent runs either as its own binary or under node.
func isAgentCmdline(args []string) bool {
	if len(args) == 0 {
		return false
	}
	exe := filepath.Base(args[0])
	if exe == "claude" || exe == "claude-code" {
		return true
	}
	if exe == "node" {
		for _, a := range args[1:] {
			if strings.Contains(a, "claude") && !strings.Contains(a, "node_modules/.bin") {
				return true
			}
		}
	}
	return false
}
