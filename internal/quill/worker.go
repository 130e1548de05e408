package quill

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"quill/internal/model"
)

// WorkerState is the lifecycle of one worker run.
type WorkerState int32

const (
	WorkerIdle WorkerState = iota
	WorkerRunning
	WorkerSucceeded
	WorkerFailed
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerRunning:
		return "running"
	case WorkerSucceeded:
		return "succeeded"
	case WorkerFailed:
		return "failed"
	}
	return fmt.Sprintf("WorkerState(%d)", int32(s))
}

// Result is the outcome of one backup run.
type Result struct {
	RunID   string
	Kind    Kind
	Success bool
	Message string

	// Filename is the artifact written, empty when the run wrote nothing.
	Filename string
	Size     int64

	// Skipped is set when the run was not needed, e.g. today's archive
	// already exists.
	Skipped  bool
	Duration time.Duration
}

// ArtifactEvent announces a newly written artifact.
type ArtifactEvent struct {
	Kind     Kind
	Filename string
}

// Worker produces exactly one artifact. Full backups read through a
// private session that is closed when the run ends.
type Worker struct {
	id        string
	kind      Kind
	db        Database
	fsmgr     FilesystemManager
	backupDir string
	clock     Clock
	logger    Logger

	// payload is the snapshot content, computed before dispatch.
	payload []*model.ModifiedChapter

	state atomic.Int32
}

func newWorker(id string, kind Kind, db Database, fsmgr FilesystemManager, backupDir string,
	payload []*model.ModifiedChapter, clock Clock, logger Logger) *Worker {
	return &Worker{
		id:        id,
		kind:      kind,
		db:        db,
		fsmgr:     fsmgr,
		backupDir: backupDir,
		payload:   payload,
		clock:     clock,
		logger:    logger,
	}
}

func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Run performs the backup. It never panics; every failure is reported in
// the returned Result.
func (w *Worker) Run() (res Result) {
	w.state.Store(int32(WorkerRunning))
	start := w.clock.Now()
	w.logger.Info("backup started", "run_id", w.id, "kind", w.kind)

	defer func() {
		if r := recover(); r != nil {
			res = w.failed(fmt.Errorf("panic: %v", r))
		}
		res.Duration = w.clock.Now().Sub(start)
		if res.Success {
			w.state.Store(int32(WorkerSucceeded))
		} else {
			w.state.Store(int32(WorkerFailed))
		}
	}()

	var (
		name string
		err  error
	)
	if w.kind == KindSnapshot {
		name, err = w.writeSnapshot()
	} else {
		name, err = w.writeFullBackup()
	}
	if err != nil {
		return w.failed(err)
	}

	if name == "" {
		w.logger.Info("backup skipped: no data to back up", "run_id", w.id, "kind", w.kind)
		return Result{RunID: w.id, Kind: w.kind, Success: true, Skipped: true, Message: "no data to back up"}
	}

	res = Result{RunID: w.id, Kind: w.kind, Success: true, Filename: name}
	if info, err := w.fsmgr.Stat(filepath.Join(w.backupDir, name)); err == nil && info != nil {
		res.Size = info.Size
	}
	res.Message = fmt.Sprintf("%s backup created: %s", w.kind, name)
	w.logger.Info("backup created", "run_id", w.id, "kind", w.kind, "file", name, "bytes", res.Size)
	return res
}

func (w *Worker) failed(err error) Result {
	w.logger.Error("backup failed", "run_id", w.id, "kind", w.kind, "error", err)
	return Result{RunID: w.id, Kind: w.kind, Message: fmt.Sprintf("%s backup failed: %v", w.kind, err)}
}

// target returns the artifact name and path for now, refusing to replace
// an existing artifact.
func (w *Worker) target() (string, string, error) {
	name := ArtifactName(w.kind, w.clock.Now())
	path := filepath.Join(w.backupDir, name)
	info, err := w.fsmgr.Stat(path)
	if err != nil {
		return "", "", err
	}
	if info != nil {
		return "", "", fmt.Errorf("%s already exists", name)
	}
	return name, path, nil
}

func (w *Worker) writeSnapshot() (string, error) {
	if len(w.payload) == 0 {
		return "", nil
	}
	if err := w.fsmgr.MkdirAll(w.backupDir); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	name, path, err := w.target()
	if err != nil {
		return "", err
	}

	data, err := encodeJSON(newSnapshotDocument(w.clock.Now(), w.payload), "  ")
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	if err := w.fsmgr.WriteFile(path, data); err != nil {
		return "", fmt.Errorf("writing snapshot: %w", err)
	}
	return name, nil
}

func (w *Worker) writeFullBackup() (string, error) {
	sess, err := w.db.OpenSession()
	if err != nil {
		return "", fmt.Errorf("opening session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			w.logger.Warn("closing worker session", "run_id", w.id, "error", err)
		}
	}()

	tmp, err := w.fsmgr.MkdirTemp("", "quill-"+string(w.kind)+"-*")
	if err != nil {
		return "", fmt.Errorf("creating temp directory: %w", err)
	}
	defer func() {
		if err := w.fsmgr.RemoveAll(tmp); err != nil {
			w.logger.Warn("removing temp directory", "path", tmp, "error", err)
		}
	}()

	exp := &exporter{store: sess, fsmgr: w.fsmgr, root: tmp, logger: w.logger}
	wrote, err := exp.export()
	if err != nil {
		return "", err
	}
	if !wrote {
		return "", nil
	}

	if err := w.fsmgr.MkdirAll(w.backupDir); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	name, path, err := w.target()
	if err != nil {
		return "", err
	}
	if err := w.fsmgr.Zip(tmp, path); err != nil {
		return "", fmt.Errorf("compressing backup: %w", err)
	}
	return name, nil
}
