package quill

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"quill/internal/model"
)

// SnapshotWatermarkKey is the preference holding the epoch-millisecond time
// of the last successful snapshot.
const SnapshotWatermarkKey = "backup.snapshot_watermark"

// Observer is told about finished backups and restores.
type Observer interface {
	BackupFinished(res Result)
	RestoreFinished(res RestoreResult)
}

type nopObserver struct{}

func (nopObserver) BackupFinished(Result)         {}
func (nopObserver) RestoreFinished(RestoreResult) {}

// Manager is the single point of control for backups: it runs at most one
// worker at a time, applies retention, lists and deletes artifacts, and
// restores them.
type Manager struct {
	db        Database
	fsmgr     FilesystemManager
	remote    RemoteStore // nil when remote sync is off
	backupDir string
	retention Retention
	logger    Logger
	clock     Clock
	idgen     IDGenerator
	observer  Observer

	mu      sync.Mutex
	busy    bool
	running *Worker
	wg      sync.WaitGroup
	events  chan ArtifactEvent
}

// NewManager creates a Manager writing artifacts to backupDir. remote may
// be nil.
func NewManager(db Database, fsmgr FilesystemManager, remote RemoteStore, backupDir string,
	retention Retention, logger Logger, clock Clock, idgen IDGenerator) *Manager {
	return &Manager{
		db:        db,
		fsmgr:     fsmgr,
		remote:    remote,
		backupDir: backupDir,
		retention: retention,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		observer:  nopObserver{},
		events:    make(chan ArtifactEvent, 16),
	}
}

// SetObserver installs o. Call before the first dispatch.
func (m *Manager) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	m.observer = o
}

// BackupDir returns the local artifact directory.
func (m *Manager) BackupDir() string {
	return m.backupDir
}

// Events delivers an ArtifactEvent for every artifact written. Events are
// dropped when nobody keeps up.
func (m *Manager) Events() <-chan ArtifactEvent {
	return m.events
}

// Running returns the state of the in-flight worker, or WorkerIdle.
func (m *Manager) Running() WorkerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running == nil {
		return WorkerIdle
	}
	return m.running.State()
}

// acquire claims the single worker slot.
func (m *Manager) acquire() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy {
		return false
	}
	m.busy = true
	return true
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = false
	m.running = nil
}

// Dispatch starts a backup of kind in the background. The returned channel
// yields exactly one Result. If a backup or restore is already running the
// request is dropped and ErrBusy returned.
func (m *Manager) Dispatch(kind Kind) (<-chan Result, error) {
	if !m.acquire() {
		m.logger.Info("backup request dropped: worker busy", "kind", kind)
		return nil, ErrBusy
	}

	out := make(chan Result, 1)
	runID := m.idgen.New()

	if kind == KindArchive {
		exists, err := m.archiveExistsToday()
		if err != nil {
			m.release()
			out <- m.finish(Result{RunID: runID, Kind: kind, Message: fmt.Sprintf("archive backup failed: %v", err)})
			close(out)
			return out, nil
		}
		if exists {
			m.release()
			m.logger.Info("archive for today already exists, skipping", "run_id", runID)
			out <- m.finish(Result{RunID: runID, Kind: kind, Success: true, Skipped: true, Message: "today's archive already exists"})
			close(out)
			return out, nil
		}
	}

	var (
		payload   []*model.ModifiedChapter
		watermark int64
	)
	if kind == KindSnapshot {
		var err error
		payload, watermark, err = m.snapshotPayload()
		if err != nil {
			m.release()
			out <- m.finish(Result{RunID: runID, Kind: kind, Message: fmt.Sprintf("snapshot backup failed: %v", err)})
			close(out)
			return out, nil
		}
	}

	w := newWorker(runID, kind, m.db, m.fsmgr, m.backupDir, payload, m.clock, m.logger)
	m.mu.Lock()
	m.running = w
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		res := w.Run()
		if res.Success && kind == KindSnapshot {
			m.advanceWatermark(watermark)
		}
		if res.Success && res.Filename != "" {
			m.afterArtifact(res)
		}
		m.release()
		out <- m.finish(res)
		close(out)
	}()
	return out, nil
}

// RunBackup dispatches a backup and waits for its result.
func (m *Manager) RunBackup(kind Kind) Result {
	ch, err := m.Dispatch(kind)
	if err != nil {
		return Result{Kind: kind, Message: err.Error()}
	}
	return <-ch
}

// Wait blocks until the in-flight worker, if any, has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) finish(res Result) Result {
	m.observer.BackupFinished(res)
	return res
}

// afterArtifact runs the post-success steps: notification, local retention
// and the opportunistic remote copy.
func (m *Manager) afterArtifact(res Result) {
	select {
	case m.events <- ArtifactEvent{Kind: res.Kind, Filename: res.Filename}:
	default:
		m.logger.Debug("artifact event dropped", "file", res.Filename)
	}

	if _, err := m.Cleanup(res.Kind); err != nil {
		m.logger.Warn("retention cleanup failed", "kind", res.Kind, "error", err)
	}

	if m.remoteStore() != nil {
		if err := m.pushAndPrune(res.Kind, res.Filename); err != nil {
			m.logger.Warn("remote sync failed", "kind", res.Kind, "file", res.Filename, "error", err)
		}
	}
}

func (m *Manager) archiveExistsToday() (bool, error) {
	files, err := m.fsmgr.List(m.backupDir)
	if err != nil {
		return false, fmt.Errorf("listing backups: %w", err)
	}
	prefix := archiveDayPrefix(m.clock.Now())
	for _, f := range files {
		if strings.HasPrefix(f.Name, prefix) && isKind(f.Name, KindArchive) {
			return true, nil
		}
	}
	return false, nil
}

// snapshotPayload reads the chapters edited since the stored watermark and
// returns them with the time the new watermark should take on success.
// The first call only records the watermark.
func (m *Manager) snapshotPayload() ([]*model.ModifiedChapter, int64, error) {
	now := NowMillis(m.clock)

	raw, err := m.db.GetPreference(SnapshotWatermarkKey, "")
	if err != nil {
		return nil, 0, fmt.Errorf("reading snapshot watermark: %w", err)
	}
	if raw == "" {
		m.advanceWatermark(now)
		return nil, now, nil
	}
	since, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		m.logger.Warn("bad snapshot watermark, resetting", "value", raw)
		m.advanceWatermark(now)
		return nil, now, nil
	}

	chapters, err := m.db.GetChaptersModifiedSince(since)
	if err != nil {
		return nil, 0, err
	}
	return chapters, now, nil
}

// InitWatermark records now as the snapshot watermark unless one exists.
func (m *Manager) InitWatermark() error {
	raw, err := m.db.GetPreference(SnapshotWatermarkKey, "")
	if err != nil {
		return err
	}
	if raw != "" {
		return nil
	}
	return m.db.SetPreference(SnapshotWatermarkKey, strconv.FormatInt(NowMillis(m.clock), 10))
}

func (m *Manager) advanceWatermark(ts int64) {
	if err := m.db.SetPreference(SnapshotWatermarkKey, strconv.FormatInt(ts, 10)); err != nil {
		m.logger.Warn("saving snapshot watermark", "error", err)
	}
}
