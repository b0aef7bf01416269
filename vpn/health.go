package vpn

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/yllada/openvpn3-go/common"
	"github.com/yllada/openvpn3-go/proxy"
)

// HealthState represents the current health state of a session.
type HealthState int

const (
	HealthUnknown HealthState = iota
	HealthHealthy
	HealthDegraded
	HealthUnhealthy
)

// String returns a human-readable representation of the health state.
func (h HealthState) String() string {
	switch h {
	case HealthHealthy:
		return "Healthy"
	case HealthDegraded:
		return "Degraded"
	case HealthUnhealthy:
		return "Unhealthy"
	default:
		return "Unknown"
	}
}

// HealthConfig holds configuration for the health checker.
type HealthConfig struct {
	// CheckInterval is how often to sample session status.
	CheckInterval time.Duration
	// FailureThreshold is how many consecutive failed samples before a
	// session is marked unhealthy.
	FailureThreshold int
	// AutoRestart restarts sessions that become unhealthy.
	AutoRestart bool
	// RestartDelay is the delay before a restart.
	RestartDelay time.Duration
	// MaxRestartAttempts bounds restarts per session (0 = unlimited).
	MaxRestartAttempts int
}

// DefaultHealthConfig returns sensible defaults for health checking.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		CheckInterval:      common.HealthCheckInterval,
		FailureThreshold:   3,
		AutoRestart:        false,
		RestartDelay:       common.RestartDelay,
		MaxRestartAttempts: 5,
	}
}

// SessionLister lists the sessions to watch. *Client implements it.
type SessionLister interface {
	Sessions(ctx context.Context) ([]*Session, error)
}

// SessionHealth tracks the health of one session.
type SessionHealth struct {
	Path             dbus.ObjectPath
	ConfigName       string
	State            HealthState
	Status           proxy.Status
	LastCheck        time.Time
	LastSuccess      time.Time
	LastError        error
	ConsecutiveFails int
	RestartAttempts  int
}

// HealthChecker samples the status of every session and optionally
// restarts sessions whose tunnel keeps failing.
type HealthChecker struct {
	mu              sync.RWMutex
	config          HealthConfig
	sessions        SessionLister
	logger          common.Logger
	running         bool
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	health          map[dbus.ObjectPath]*SessionHealth
	onHealthChange  func(path dbus.ObjectPath, oldState, newState HealthState)
	onRestarting    func(path dbus.ObjectPath, attempt int)
	onRestartFailed func(path dbus.ObjectPath, err error)
}

// NewHealthChecker creates a health checker for the sessions listed by
// sessions.
func NewHealthChecker(sessions SessionLister, config HealthConfig, logger common.Logger) *HealthChecker {
	if logger == nil {
		logger = common.NopLogger{}
	}
	return &HealthChecker{
		config:   config,
		sessions: sessions,
		logger:   logger,
		health:   make(map[dbus.ObjectPath]*SessionHealth),
	}
}

// SetOnHealthChange sets a callback for health state changes.
func (hc *HealthChecker) SetOnHealthChange(callback func(path dbus.ObjectPath, oldState, newState HealthState)) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.onHealthChange = callback
}

// SetOnRestarting sets a callback for restart attempts.
func (hc *HealthChecker) SetOnRestarting(callback func(path dbus.ObjectPath, attempt int)) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.onRestarting = callback
}

// SetOnRestartFailed sets a callback for failed or abandoned restarts.
func (hc *HealthChecker) SetOnRestartFailed(callback func(path dbus.ObjectPath, err error)) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.onRestartFailed = callback
}

// Start begins the health checking loop.
func (hc *HealthChecker) Start() {
	hc.mu.Lock()
	if hc.running {
		hc.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	hc.running = true
	hc.ctx, hc.cancel = ctx, cancel
	interval := hc.config.CheckInterval
	hc.mu.Unlock()

	hc.logger.Info("Health checker started (interval: %v)", interval)

	hc.wg.Add(1)
	go func() {
		defer hc.wg.Done()
		hc.runLoop(ctx, interval)
	}()
}

// Stop stops the health checking loop and waits for pending restarts
// to give up.
func (hc *HealthChecker) Stop() {
	hc.mu.Lock()
	if !hc.running {
		hc.mu.Unlock()
		return
	}
	hc.running = false
	hc.cancel()
	hc.mu.Unlock()

	hc.wg.Wait()
	hc.logger.Info("Health checker stopped")
}

// IsRunning returns whether the health checker is currently running.
func (hc *HealthChecker) IsRunning() bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.running
}

// GetHealth returns the current health of a session.
func (hc *HealthChecker) GetHealth(path dbus.ObjectPath) (SessionHealth, bool) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	health, exists := hc.health[path]
	if !exists {
		return SessionHealth{}, false
	}
	return *health, true
}

func (hc *HealthChecker) runLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = common.HealthCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := hc.check(ctx); err != nil && ctx.Err() == nil {
				hc.logger.Warn("Health check failed: %v", err)
			}
		}
	}
}

// CheckNow samples every session once and returns their health, ordered
// by path. It only triggers automatic restarts while the checker is
// running.
func (hc *HealthChecker) CheckNow(ctx context.Context) ([]SessionHealth, error) {
	return hc.check(ctx)
}

func (hc *HealthChecker) check(ctx context.Context) ([]SessionHealth, error) {
	sessions, err := hc.sessions.Sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	seen := make(map[dbus.ObjectPath]bool, len(sessions))
	out := make([]SessionHealth, 0, len(sessions))
	for _, s := range sessions {
		seen[s.Path()] = true
		out = append(out, hc.checkSession(ctx, s))
	}

	hc.mu.Lock()
	for path := range hc.health {
		if !seen[path] {
			delete(hc.health, path)
		}
	}
	hc.mu.Unlock()

	slices.SortFunc(out, func(a, b SessionHealth) int {
		return cmp.Compare(a.Path, b.Path)
	})
	return out, nil
}

// checkSession samples the status of one session.
func (hc *HealthChecker) checkSession(ctx context.Context, s *Session) SessionHealth {
	path := s.Path()
	status, err := s.Status(ctx)
	failed := err != nil
	state := HealthDegraded
	if err == nil {
		state, failed = assessStatus(status)
	}

	var configName string
	if name, nerr := s.ConfigName(ctx); nerr == nil {
		configName = name
	}

	hc.mu.Lock()
	defer hc.mu.Unlock()

	health, exists := hc.health[path]
	if !exists {
		health = &SessionHealth{Path: path, State: HealthUnknown}
		hc.health[path] = health
	}
	health.LastCheck = time.Now()
	health.LastError = err
	if err == nil {
		health.Status = status
	}
	if configName != "" {
		health.ConfigName = configName
	}
	oldState := health.State

	if failed {
		health.ConsecutiveFails++
		hc.logger.Warn("Session %s unhealthy sample (%d/%d): %s",
			common.ShortPath(string(path)), health.ConsecutiveFails, hc.config.FailureThreshold, failureReason(status, err))
		if health.ConsecutiveFails >= hc.config.FailureThreshold {
			health.State = HealthUnhealthy
		} else {
			health.State = HealthDegraded
		}
	} else {
		health.ConsecutiveFails = 0
		health.State = state
		if state == HealthHealthy {
			health.LastSuccess = health.LastCheck
			health.RestartAttempts = 0
		}
	}

	if oldState != health.State {
		hc.logger.Info("Health state changed for %s: %s -> %s",
			common.ShortPath(string(path)), oldState, health.State)

		if hc.onHealthChange != nil {
			go hc.onHealthChange(path, oldState, health.State)
		}
		if health.State == HealthUnhealthy && hc.config.AutoRestart && hc.running {
			restartCtx := hc.ctx
			hc.wg.Add(1)
			go func() {
				defer hc.wg.Done()
				hc.attemptRestart(restartCtx, s)
			}()
		}
	}
	return *health
}

// assessStatus maps a session status onto a health state and reports
// whether it counts as a failed sample.
func assessStatus(st proxy.Status) (HealthState, bool) {
	switch st.Minor {
	case proxy.StatusMinorConnConnected:
		return HealthHealthy, false
	case proxy.StatusMinorConnFailed,
		proxy.StatusMinorConnAuthFailed,
		proxy.StatusMinorConnDisconnected,
		proxy.StatusMinorConnDone,
		proxy.StatusMinorProcStopped,
		proxy.StatusMinorProcKilled,
		proxy.StatusMinorCfgError,
		proxy.StatusMinorCfgInlineMissing,
		proxy.StatusMinorSessRemoved:
		return HealthUnhealthy, true
	}
	// Starting, paused, reconnecting or waiting for input.
	return HealthDegraded, false
}

func failureReason(st proxy.Status, err error) string {
	if err != nil {
		return err.Error()
	}
	return st.String()
}

// attemptRestart restarts an unhealthy session, retrying until it
// succeeds or MaxRestartAttempts is reached.
func (hc *HealthChecker) attemptRestart(ctx context.Context, s *Session) {
	path := s.Path()
	for {
		hc.mu.Lock()
		health, exists := hc.health[path]
		if !exists {
			hc.mu.Unlock()
			return
		}
		cfg := hc.config
		if cfg.MaxRestartAttempts > 0 && health.RestartAttempts >= cfg.MaxRestartAttempts {
			onFailed := hc.onRestartFailed
			hc.mu.Unlock()
			hc.logger.Error("Max restart attempts reached for %s", common.ShortPath(string(path)))
			if onFailed != nil {
				onFailed(path, fmt.Errorf("%w: %d restart attempts", common.ErrRetriesExhausted, cfg.MaxRestartAttempts))
			}
			return
		}
		health.RestartAttempts++
		attempt := health.RestartAttempts
		onRestarting, onFailed := hc.onRestarting, hc.onRestartFailed
		hc.mu.Unlock()

		hc.logger.Info("Restarting session %s (attempt %d)", common.ShortPath(string(path)), attempt)
		if onRestarting != nil {
			onRestarting(path, attempt)
		}

		if err := sleepContext(ctx, cfg.RestartDelay); err != nil {
			return
		}

		err := s.Restart(ctx)
		if err == nil {
			hc.logger.Info("Restart requested for %s", common.ShortPath(string(path)))
			return
		}
		if ctx.Err() != nil {
			return
		}
		hc.logger.Error("Restart failed for %s: %v", common.ShortPath(string(path)), err)
		if onFailed != nil {
			onFailed(path, err)
		}
	}
}

// RemoveSession removes health tracking for a session.
func (hc *HealthChecker) RemoveSession(path dbus.ObjectPath) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	delete(hc.health, path)
}

// UpdateConfig updates the health checker configuration. A new check
// interval applies after a restart of the checker.
func (hc *HealthChecker) UpdateConfig(config HealthConfig) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.config = config
}
