package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"

	"quill/internal/config"
	"quill/internal/database"
	"quill/internal/encryption"
	"quill/internal/fs"
	"quill/internal/metrics"
	"quill/internal/quill"
	"quill/internal/remote"
	"quill/internal/scheduler"
)

// App is the application layer between the CLI and the backup manager.
// It constructs all dependencies from config and manages the DB lifecycle
// on Close.
type App struct {
	cfg       *config.Config
	db        *database.SQLiteDatabase
	fsmgr     quill.FilesystemManager
	encryptor quill.Encryptor
	manager   *quill.Manager
	metrics   *metrics.Collector
	slog      *slog.Logger
	logger    quill.Logger
	op        *Operation
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// operation names the CLI command being run (e.g. "backup create").
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	op := NewOperation(operation)
	sl, logFile, err := newLogger(cfg.LogDir, op.ID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl}

	closeLog := func() {
		if logFile != nil {
			logFile.Close()
		}
	}

	clock := quill.RealClock{}
	db, err := database.NewDatabaseFromConfig(cfg.Database, clock, logger)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		closeLog()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		db.Close()
		closeLog()
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	// Downloads from an encrypted remote need UnlockRemote first.
	rs, err := remote.NewRemoteFromConfig(cfg.Remote, enc, nil, logger)
	if err != nil {
		db.Close()
		closeLog()
		return nil, fmt.Errorf("creating remote store: %w", err)
	}

	keep := cfg.Backup.WithDefaults()
	retention := quill.Retention{Snapshot: keep.SnapshotKeep, Stage: keep.StageKeep, Archive: keep.ArchiveKeep}

	fsmgr := fs.NewOSFilesystemManager()
	mgr := quill.NewManager(db, fsmgr, rs, cfg.BackupDir, retention, logger, clock, quill.UUIDGenerator{})
	collector := metrics.NewCollector()
	mgr.SetObserver(collector)

	sl.Debug("operation started", "operation", op.Name)

	return &App{
		cfg:       cfg,
		db:        db,
		fsmgr:     fsmgr,
		encryptor: enc,
		manager:   mgr,
		metrics:   collector,
		slog:      sl,
		logger:    logger,
		op:        op,
		logFile:   logFile,
	}, nil
}

func (a *App) Config() *config.Config { return a.cfg }

// Store is the writing database, for the book and chapter commands.
func (a *App) Store() quill.Store { return a.db }

func (a *App) Manager() *quill.Manager { return a.manager }

func (a *App) Encryptor() quill.Encryptor { return a.encryptor }

// RemoteEnabled reports whether a remote store is configured.
func (a *App) RemoteEnabled() bool { return a.cfg.Remote.Enabled() }

// RemoteEncrypted reports whether remote copies are encrypted, in which
// case downloads require UnlockRemote.
func (a *App) RemoteEncrypted() bool { return a.cfg.Remote.Enabled() && a.cfg.Remote.Encrypt }

// UnlockRemote opens the private key with passphrase and rebuilds the
// remote store so it can decrypt downloads.
func (a *App) UnlockRemote(passphrase string) error {
	dec, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}
	rs, err := remote.NewRemoteFromConfig(a.cfg.Remote, a.encryptor, dec, a.logger)
	if err != nil {
		return fmt.Errorf("creating remote store: %w", err)
	}
	a.manager.SetRemote(rs)
	return nil
}

// SetupEncryption generates the age key pair guarded by passphrase.
func (a *App) SetupEncryption(passphrase string) error {
	return a.encryptor.Setup(passphrase)
}

// ChangePassphrase re-encrypts the private key. Only age keys support it.
func (a *App) ChangePassphrase(oldPassphrase, newPassphrase string) error {
	age, ok := a.encryptor.(*encryption.AgeEncryptor)
	if !ok {
		return fmt.Errorf("encryption type %q has no passphrase", a.cfg.Encryption.Type)
	}
	return age.ChangePassphrase(oldPassphrase, newPassphrase)
}

// Schema returns the current database schema DDL.
func (a *App) Schema() (string, error) {
	return a.db.Schema()
}

// CheckMigrations reports whether the database schema is current.
func (a *App) CheckMigrations() error {
	return a.db.CheckMigrations()
}

// DatabaseFiles lists the files backing the database.
func (a *App) DatabaseFiles() []string {
	return a.db.Files()
}

// CopyDatabase writes a consistent copy of the live database to dest.
func (a *App) CopyDatabase(dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("%s already exists", dest)
	}
	return a.db.BackupTo(dest)
}

// Serve runs the backup scheduler, and the metrics endpoint when
// configured, under a supervisor until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	snapshotEvery, stageEvery, err := a.cfg.Schedule.Intervals()
	if err != nil {
		return err
	}
	if err := a.manager.InitWatermark(); err != nil {
		return fmt.Errorf("initialising snapshot watermark: %w", err)
	}

	root := suture.New("quill", suture.Spec{
		EventHook: (&sutureslog.Handler{Logger: a.slog}).MustHook(),
	})
	root.Add(scheduler.New(a.manager, snapshotEvery, stageEvery, a.logger))
	root.Add(&artifactLog{mgr: a.manager, logger: a.logger})
	if a.cfg.Metrics.Listen != "" {
		root.Add(metrics.NewServer(a.cfg.Metrics.Listen, a.metrics))
		a.logger.Info("metrics endpoint enabled", "listen", a.cfg.Metrics.Listen)
	}

	err = root.Serve(ctx)
	a.manager.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Close closes the database and the log file.
func (a *App) Close() error {
	var firstErr error

	a.manager.Wait()
	if err := a.db.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	a.slog.Debug("operation finished", "operation", a.op.Name, "elapsed", a.op.Elapsed())
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

// artifactLog drains the manager's artifact events so they show up in the
// daemon log.
type artifactLog struct {
	mgr    *quill.Manager
	logger quill.Logger
}

func (s *artifactLog) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.mgr.Events():
			s.logger.Debug("artifact written", "kind", ev.Kind, "file", ev.Filename)
		}
	}
}

func (s *artifactLog) String() string { return "artifact-log" }
