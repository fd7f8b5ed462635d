// Package monitor owns the session lifecycle: finding a session for the
// workspace, attaching to it, streaming its transcript into the stats
// engine, and recovering when the session ends or a newer one appears.
package monitor

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/agent-pulse/backend/internal/config"
	"github.com/agent-pulse/backend/internal/locator"
	"github.com/agent-pulse/backend/internal/statestore"
	"github.com/agent-pulse/backend/internal/stats"
	"github.com/agent-pulse/backend/internal/transcript"
	"github.com/agent-pulse/backend/internal/watch"
)

// State is the controller's lifecycle state. Pinned is orthogonal: it
// suppresses automatic switching in any state.
type State int

const (
	// StateDiscovery means no session is attached and the controller polls
	// at the normal discovery interval.
	StateDiscovery State = iota
	// StateActive means a session file is attached and being read.
	StateActive
	// StateFastDiscovery means a session just ended; polling runs at the
	// fast interval for a bounded window before reverting to normal.
	StateFastDiscovery
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateFastDiscovery:
		return "fast_discovery"
	default:
		return "discovery"
	}
}

// Controller is the lifecycle state machine. All mutable state is guarded
// by mu; timers and the watcher call back into it from other goroutines.
type Controller struct {
	cfg    *config.Config
	engine *stats.Engine
	bus    *stats.Bus
	store  *statestore.Store // nil disables persistence

	mu         sync.Mutex
	state      State
	pinned     bool
	workspace  string
	sessionDir string
	customDir  string
	reader     *transcript.Reader
	dedup      *transcript.Deduplicator
	lastSwitch time.Time
	fastUntil  time.Time
	readTimer  *time.Timer
	checkTimer *time.Timer

	watcher   *watch.DirWatcher
	done      chan struct{}
	closeOnce sync.Once
}

// NewController wires the controller to an engine and bus owned by the
// caller. Pass a nil store to skip persisting the custom directory.
func NewController(cfg *config.Config, engine *stats.Engine, bus *stats.Bus, store *statestore.Store) *Controller {
	return &Controller{
		cfg:    cfg,
		engine: engine,
		bus:    bus,
		store:  store,
		dedup:  transcript.NewDeduplicator(cfg.Limits.MaxDedup),
		done:   make(chan struct{}),
	}
}

// Start resolves the workspace's session directory, attaches to the most
// recent session if one exists, and begins discovery polling otherwise.
func (c *Controller) Start(workspace string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.workspace = workspace

	if c.store != nil {
		if st, err := c.store.Load(); err != nil {
			log.Printf("state load: %v", err)
		} else if st.CustomSessionDir != "" {
			c.customDir = st.CustomSessionDir
		}
	}

	c.watcher = watch.NewDirWatcher(c.cfg.Monitor.DiscoveryInterval, c.onDirectoryActivity)
	c.sessionDir = c.resolveDirLocked()
	if c.sessionDir != "" {
		if err := c.watcher.Watch(c.sessionDir); err != nil {
			log.Printf("watch %s: %v", c.sessionDir, err)
		}
	}

	if !c.tryAttachLocked() {
		c.enterDiscoveryLocked(StateDiscovery)
	}

	go c.discoveryLoop()
}

// Close tears the controller down: timers stopped, watcher closed, bus
// released. Idempotent.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.readTimer != nil {
			c.readTimer.Stop()
		}
		if c.checkTimer != nil {
			c.checkTimer.Stop()
		}
		if c.watcher != nil {
			c.watcher.Close()
		}
		c.reader = nil
		c.mu.Unlock()
		c.bus.Close()
	})
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pinned reports whether automatic switching is suppressed.
func (c *Controller) Pinned() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinned
}

// SessionPath returns the attached session file, or "" in discovery.
func (c *Controller) SessionPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader == nil {
		return ""
	}
	return c.reader.Path()
}

// SessionDir returns the directory currently being monitored.
func (c *Controller) SessionDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionDir
}

// TogglePin flips the pinned flag and returns the new value.
func (c *Controller) TogglePin() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = !c.pinned
	return c.pinned
}

// SwitchToSession attaches the given session file. An explicit choice
// always clears the pin.
func (c *Controller) SwitchToSession(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pinned = false
	if c.reader != nil && c.reader.Path() == path {
		return
	}
	if c.reader != nil {
		c.bus.SessionEnd.Publish(c.reader.Path())
	}
	c.attachLocked(path)
}

// StartWithCustomPath overrides workspace-based discovery with an explicit
// session directory, persisted across restarts.
func (c *Controller) StartWithCustomPath(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.customDir = dir
	if c.store != nil {
		if err := c.store.SetCustomSessionDir(dir); err != nil {
			log.Printf("persist custom dir: %v", err)
		}
	}
	c.rehomeLocked(dir)
}

// ClearCustomPath drops the custom directory override and re-resolves the
// session directory from the workspace.
func (c *Controller) ClearCustomPath() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.customDir = ""
	if c.store != nil {
		if err := c.store.ClearCustomSessionDir(); err != nil {
			log.Printf("clear custom dir: %v", err)
		}
	}
	c.rehomeLocked(c.resolveDirLocked())
}

// rehomeLocked moves monitoring to dir: the attached session (if any) ends
// and discovery restarts against the new directory.
func (c *Controller) rehomeLocked(dir string) {
	c.sessionDir = dir
	if c.watcher != nil && dir != "" {
		if err := c.watcher.Watch(dir); err != nil {
			log.Printf("watch %s: %v", dir, err)
		}
	}
	if c.reader != nil {
		c.bus.SessionEnd.Publish(c.reader.Path())
		c.reader = nil
	}
	if !c.tryAttachLocked() {
		c.enterDiscoveryLocked(StateDiscovery)
	}
}

func (c *Controller) resolveDirLocked() string {
	if c.customDir != "" {
		return c.customDir
	}
	return locator.ResolveSessionDirectory(c.cfg.SessionsRoot(), c.cfg.ScratchRoot(), c.workspace)
}

// onDirectoryActivity is the watcher callback. Activity on the attached
// file schedules a debounced read; activity on a sibling session file
// schedules a debounced newer-session check; in discovery any session-file
// activity is an immediate attach attempt.
func (c *Controller) onDirectoryActivity(filename string) {
	if !locator.IsSessionFile(filename) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
	}

	if c.state != StateActive {
		c.tryAttachLocked()
		return
	}
	if c.reader != nil && filename == filepath.Base(c.reader.Path()) {
		c.scheduleReadLocked()
		return
	}
	c.scheduleCheckLocked()
}

// scheduleReadLocked debounces incremental reads so a line mid-write is not
// picked up. The timer is replaced, never stacked.
func (c *Controller) scheduleReadLocked() {
	if c.readTimer != nil {
		c.readTimer.Stop()
	}
	c.readTimer = time.AfterFunc(c.cfg.Monitor.FileChangeDebounce, c.readNow)
}

func (c *Controller) scheduleCheckLocked() {
	if c.checkTimer != nil {
		c.checkTimer.Stop()
	}
	c.checkTimer = time.AfterFunc(c.cfg.Monitor.NewSessionDebounce, c.checkForNewerSession)
}

// readNow performs one incremental read of the attached file and feeds the
// decoded events through dedup into the engine.
func (c *Controller) readNow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readLocked()
}

func (c *Controller) readLocked() {
	if c.state != StateActive || c.reader == nil {
		return
	}
	if !c.reader.Exists() {
		c.endSessionLocked()
		return
	}

	events, err := c.reader.ReadNew()
	if err != nil {
		log.Printf("read %s: %v", c.reader.Path(), err)
	}
	if c.reader.WasTruncated() {
		// Rewritten file: replay from the top. Derivable counters are
		// zeroed and the dedup set cleared so identical lines count again.
		log.Printf("truncation detected on %s, replaying", c.reader.Path())
		c.engine.ResetDerivable()
		c.dedup.Reset()
	}
	for _, ev := range events {
		if c.dedup.IsDuplicate(ev) {
			continue
		}
		c.engine.HandleEvent(ev)
	}
}

// checkForNewerSession runs the debounced newer-session check. Skipped when
// pinned, when nothing is attached, or within the switch cooldown.
func (c *Controller) checkForNewerSession() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pinned || c.state != StateActive || c.reader == nil {
		return
	}
	if time.Since(c.lastSwitch) < c.cfg.Monitor.SwitchCooldown {
		return
	}

	best := locator.FindActiveSession(c.sessionDir, c.cfg.Monitor.ActiveSessionThreshold)
	switch {
	case best == "":
		c.endSessionLocked()
	case best != c.reader.Path():
		log.Printf("newer session detected: %s", locator.SessionID(best))
		c.bus.SessionEnd.Publish(c.reader.Path())
		c.attachLocked(best)
	}
}

// tryAttachLocked attempts to find and attach a session. Returns true on
// success.
func (c *Controller) tryAttachLocked() bool {
	if c.sessionDir == "" {
		c.sessionDir = c.resolveDirLocked()
		if c.sessionDir == "" {
			return false
		}
		if c.watcher != nil {
			if err := c.watcher.Watch(c.sessionDir); err != nil {
				log.Printf("watch %s: %v", c.sessionDir, err)
			}
		}
	}
	path := locator.FindActiveSession(c.sessionDir, c.cfg.Monitor.ActiveSessionThreshold)
	if path == "" {
		return false
	}
	c.attachLocked(path)
	return true
}

// attachLocked resets all per-session state, reads the file's full current
// content through the normal pipeline, and announces the session. At most
// one session is attached at a time.
func (c *Controller) attachLocked(path string) {
	c.engine.Reset()
	c.dedup.Reset()
	c.reader = transcript.NewReader(path, func(err error, line string) {
		log.Printf("parse error in %s: %v", locator.SessionID(path), err)
	})

	dir := filepath.Dir(path)
	c.sessionDir = dir
	if c.watcher != nil {
		if err := c.watcher.Watch(dir); err != nil {
			log.Printf("watch %s: %v", dir, err)
		}
	}

	c.state = StateActive
	c.lastSwitch = time.Now()
	c.bus.DiscoveryMode.Publish(false)

	log.Printf("attached to session %s", locator.SessionID(path))
	c.readLocked()
	c.bus.SessionStart.Publish(path)
}

// endSessionLocked detaches the current session and enters fast discovery.
func (c *Controller) endSessionLocked() {
	if c.reader != nil {
		log.Printf("session ended: %s", locator.SessionID(c.reader.Path()))
		c.bus.SessionEnd.Publish(c.reader.Path())
		c.reader = nil
	}
	c.enterDiscoveryLocked(StateFastDiscovery)
}

func (c *Controller) enterDiscoveryLocked(s State) {
	c.state = s
	if s == StateFastDiscovery {
		c.fastUntil = time.Now().Add(c.cfg.Monitor.FastDiscoveryDuration)
	}
	c.bus.DiscoveryMode.Publish(true)
}

// discoveryLoop polls for a session while none is attached. The interval
// tracks the state: fast after a session end, normal otherwise. Polling
// never stops itself; only an attach ends it (by making ticks no-ops).
func (c *Controller) discoveryLoop() {
	for {
		timer := time.NewTimer(c.discoveryInterval())
		select {
		case <-c.done:
			timer.Stop()
			return
		case <-timer.C:
			c.discoveryTick()
		}
	}
}

func (c *Controller) discoveryInterval() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateFastDiscovery && time.Now().Before(c.fastUntil) {
		return c.cfg.Monitor.FastDiscoveryInterval
	}
	return c.cfg.Monitor.DiscoveryInterval
}

func (c *Controller) discoveryTick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateActive {
		return
	}
	if c.state == StateFastDiscovery && time.Now().After(c.fastUntil) {
		c.state = StateDiscovery
	}
	c.tryAttachLocked()
}
