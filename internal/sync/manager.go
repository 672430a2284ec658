package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/robfig/cron/v3"

	"notecal/internal/config"
	"notecal/internal/gcal"
	appLog "notecal/internal/log"
	"notecal/internal/model"
)

// Status is the observable sync state exposed to the host UI.
type Status struct {
	// Active reports whether a pass is currently running.
	Active bool `json:"active"`
	// Enabled mirrors the configuration flag.
	Enabled bool `json:"enabled"`
	// LastSyncAt is the completion time of the last successful pass.
	LastSyncAt time.Time `json:"last_sync_at"`
	// LastError is the normalized message of the most recent failure,
	// empty after a successful pass.
	LastError string `json:"last_error,omitempty"`
	// PendingConflicts counts conflicts flagged by the last pass.
	PendingConflicts int `json:"pending_conflicts"`
}

// RemoteFactory builds the remote calendar client for a configuration.
// Tests substitute fakes here.
type RemoteFactory func(ctx context.Context, cfg *config.Config, onToken gcal.TokenCallback) (RemoteCalendar, error)

func defaultRemoteFactory(ctx context.Context, cfg *config.Config, onToken gcal.TokenCallback) (RemoteCalendar, error) {
	oauthCfg := gcal.NewOAuthConfig(cfg.ClientID, cfg.ClientSecret)
	return gcal.NewClient(ctx, oauthCfg, cfg.AccessToken, cfg.RefreshToken, onToken)
}

// Manager is the process-wide lifecycle wrapper around the engine. It
// holds at most one live engine, rebuilt whenever configuration
// changes, schedules periodic passes, exposes the per-record
// incremental hooks used by interactive edits, and persists refreshed
// credentials back to disk.
type Manager struct {
	store   RecordStore
	cfgPath string
	factory RemoteFactory

	mu     stdsync.Mutex
	cfg    *config.Config
	engine *Engine
	sched  *cron.Cron

	lastSyncAt time.Time
	lastErr    error
	conflicts  int
}

// NewManager creates a manager over the given store. cfgPath is where
// refreshed tokens and the last-sync timestamp are persisted; it may be
// empty, in which case nothing is written back to disk.
func NewManager(store RecordStore, cfgPath string) *Manager {
	return &Manager{store: store, cfgPath: cfgPath, factory: defaultRemoteFactory}
}

// SetRemoteFactory overrides remote client construction; used by tests.
func (m *Manager) SetRemoteFactory(f RemoteFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factory = f
}

// Configure atomically replaces the manager's configuration, tearing
// down any running periodic timer and rebuilding the engine. Passing a
// disabled config simply drops the engine.
func (m *Manager) Configure(ctx context.Context, cfg *config.Config) error {
	if cfg == nil {
		return newError(KindInvalidConfig, "configure", errors.New("config is nil"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopSchedulerLocked()
	m.engine = nil

	snapshot := cfg.Clone()
	snapshot.Normalize()
	m.cfg = snapshot

	if !snapshot.Enabled {
		appLog.Info("sync disabled by configuration")
		return nil
	}
	if snapshot.ClientID == "" || snapshot.ClientSecret == "" {
		return newError(KindInvalidConfig, "configure", errors.New("missing oauth client credentials"))
	}
	if snapshot.CalendarID == "" {
		return newError(KindInvalidConfig, "configure", errors.New("missing calendar id"))
	}

	remote, err := m.factory(ctx, snapshot, m.persistAccessToken)
	if err != nil {
		return Normalize("build remote client", err)
	}
	m.engine = NewEngine(remote, m.store, snapshot.Location())

	if snapshot.AutoSync {
		m.startSchedulerLocked(snapshot.SyncIntervalMinutes)
	}

	appLog.Info("sync configured",
		"calendar", snapshot.CalendarID,
		"auto_sync", snapshot.AutoSync,
		"interval_minutes", snapshot.SyncIntervalMinutes)
	return nil
}

// persistAccessToken stores a refreshed access token in the live config
// and writes it through to disk so it survives restarts.
func (m *Manager) persistAccessToken(accessToken string) {
	m.mu.Lock()
	cfg := m.cfg
	path := m.cfgPath
	if cfg != nil {
		cfg.AccessToken = accessToken
	}
	m.mu.Unlock()

	if cfg == nil || path == "" {
		return
	}
	if err := config.Save(path, cfg); err != nil {
		appLog.Error("failed to persist refreshed token", err, "path", path)
	}
}

func (m *Manager) startSchedulerLocked(intervalMinutes int) {
	m.sched = cron.New()
	spec := fmt.Sprintf("@every %dm", intervalMinutes)
	if _, err := m.sched.AddFunc(spec, m.autoSyncTick); err != nil {
		appLog.Error("failed to schedule auto-sync", err, "spec", spec)
		m.sched = nil
		return
	}
	m.sched.Start()
}

func (m *Manager) stopSchedulerLocked() {
	if m.sched == nil {
		return
	}
	stopCtx := m.sched.Stop()
	m.sched = nil
	<-stopCtx.Done()
}

// autoSyncTick runs one scheduled pass. Failures are swallowed to avoid
// notification spam; a tick that finds the engine busy silently skips.
// Observable status is still updated either way.
func (m *Manager) autoSyncTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if _, err := m.Sync(ctx); err != nil {
		if KindOf(err) == KindInProgress {
			appLog.Debug("auto-sync tick skipped; engine busy")
			return
		}
		appLog.Warn("auto-sync pass failed", "err", err)
	}
}

// Sync runs a manual full pass. It fails fast when synchronization is
// not configured or a pass is already running.
func (m *Manager) Sync(ctx context.Context) (Result, error) {
	m.mu.Lock()
	engine := m.engine
	cfg := m.cfg
	m.mu.Unlock()

	if engine == nil || cfg == nil {
		err := newError(KindInvalidConfig, "sync", errors.New("synchronization is not configured"))
		m.recordFailure(err)
		return Result{}, err
	}

	records, err := m.store.Records()
	if err != nil {
		nerr := newError(KindValidation, "read record set", err)
		m.recordFailure(nerr)
		return Result{}, nerr
	}

	res, err := engine.PerformSync(ctx, cfg.CalendarID, records, nil)
	if err != nil {
		m.recordFailure(err)
		return res, err
	}

	m.recordSuccess(res)
	return res, nil
}

func (m *Manager) recordFailure(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// recordSuccess stamps the completion time into status and config, and
// persists the config so the last-sync timestamp survives restarts.
func (m *Manager) recordSuccess(res Result) {
	now := time.Now()

	m.mu.Lock()
	m.lastSyncAt = now
	m.lastErr = nil
	m.conflicts = res.Conflicts
	cfg := m.cfg
	path := m.cfgPath
	if cfg != nil {
		cfg.LastSync = now
	}
	m.mu.Unlock()

	if cfg != nil && path != "" {
		if err := config.Save(path, cfg); err != nil {
			appLog.Error("failed to persist last-sync timestamp", err, "path", path)
		}
	}
}

// OnRecordUpdate is the fire-and-forget hook for interactive edits.
// Items that are not calendar events no-op silently; virtual
// occurrences are unwrapped to their master record before the push.
// When synchronization is not configured the hook is also a silent
// no-op, so note editing keeps working with sync turned off.
func (m *Manager) OnRecordUpdate(ctx context.Context, item model.Item) error {
	m.mu.Lock()
	engine := m.engine
	cfg := m.cfg
	m.mu.Unlock()

	if engine == nil || cfg == nil {
		return nil
	}

	rec := item.Unwrap()
	if !ShouldSync(rec) {
		return nil
	}

	if err := engine.SyncRecord(ctx, cfg.CalendarID, rec); err != nil {
		m.recordFailure(err)
		return err
	}
	return nil
}

// OnRecordDelete propagates a deletion. The remote delete is
// best-effort: local deletion proceeds regardless of the remote
// outcome. Virtual occurrences are never locally deleted; only their
// owning master record can be.
func (m *Manager) OnRecordDelete(ctx context.Context, item model.Item) error {
	if item.IsOccurrence() {
		occ, _ := item.Occurrence()
		appLog.Warn("ignoring delete of virtual occurrence; delete the master record instead",
			"occurrence", occ.ID, "master", occ.BaseID)
		return nil
	}

	rec := item.Unwrap()

	m.mu.Lock()
	engine := m.engine
	cfg := m.cfg
	m.mu.Unlock()

	if engine != nil && cfg != nil {
		if err := engine.DeleteRemote(ctx, cfg.CalendarID, rec); err != nil {
			appLog.Warn("best-effort remote delete failed", "record", rec.ID, "err", err)
		}
	}

	return m.store.Delete(rec.ID)
}

// Status reports the observable sync state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Status{
		LastSyncAt:       m.lastSyncAt,
		PendingConflicts: m.conflicts,
	}
	if m.cfg != nil {
		st.Enabled = m.cfg.Enabled
	}
	if m.engine != nil {
		st.Active = m.engine.State() == StateRunning
	}
	if m.lastErr != nil {
		st.LastError = Normalize("", m.lastErr).Kind.Message()
	}
	return st
}

// Close tears the manager down, guaranteeing the periodic scheduler is
// stopped.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopSchedulerLocked()
	m.engine = nil
}
