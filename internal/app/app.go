package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"zbackup/internal/archive"
	"zbackup/internal/catalog"
	"zbackup/internal/config"
	"zbackup/internal/database"
	"zbackup/internal/encryption"
	"zbackup/internal/fs"
	"zbackup/internal/metrics"
	"zbackup/internal/model"
	"zbackup/internal/offsite"
	"zbackup/internal/zb"
)

// ZBApp is the application layer between the CLI and BackupService.
// It constructs all dependencies from config, exposes high-level operations
// and manages the history database and log file on Close.
type ZBApp struct {
	mu         sync.RWMutex
	cfg        *config.Config
	configPath string // empty unless opened from a file
	baseDir    string

	logger    zb.Logger
	logFile   *os.File
	fsmgr     zb.FilesystemManager
	catalog   zb.Catalog
	space     zb.SpaceOracle
	writer    *archive.Writer
	encryptor zb.Encryptor
	history   zb.History
	metrics   *metrics.RunMetrics
	clock     zb.Clock
	idgen     zb.IDGenerator
	service   *zb.BackupService
}

type options struct {
	space      zb.SpaceOracle
	clock      zb.Clock
	idgen      zb.IDGenerator
	engineOpts []zb.EngineOption
	logFile    *os.File
	configPath string
	baseDir    string
}

// Option configures a ZBApp.
type Option func(*options)

// WithSpaceOracle replaces the disk free-space query.
func WithSpaceOracle(space zb.SpaceOracle) Option {
	return func(o *options) { o.space = space }
}

// WithClock replaces the wall clock.
func WithClock(clock zb.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithEngineOptions passes options to the eviction engine.
func WithEngineOptions(opts ...zb.EngineOption) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

func withLogFile(f *os.File) Option {
	return func(o *options) { o.logFile = f }
}

func withConfigFile(path, baseDir string) Option {
	return func(o *options) {
		o.configPath = path
		o.baseDir = baseDir
	}
}

// Open reads the config file, sets up logging under logDir and returns a
// wired ZBApp. Every failure to load the config wraps ErrConfig.
// The caller must call Close when done.
func Open(ctx context.Context, configPath, baseDir string, opts ...Option) (*ZBApp, error) {
	raw, err := config.ReadRawFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	runID := zb.UUIDGenerator{}.New()
	slogger, logFile, err := newLogger(filepath.Join(baseDir, "log"), runID, config.ConsoleLevel(raw))
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	cfg, err := config.Load(raw, configPath, baseDir, logger)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	a, err := NewZBApp(ctx, cfg, logger, append(opts, withLogFile(logFile), withConfigFile(configPath, baseDir))...)
	if err != nil {
		logFile.Close()
		return nil, err
	}
	return a, nil
}

// NewZBApp creates a fully wired ZBApp from a parsed config.
func NewZBApp(ctx context.Context, cfg *config.Config, logger zb.Logger, opts ...Option) (*ZBApp, error) {
	o := options{
		space: fs.DiskSpace{},
		clock: zb.RealClock{},
		idgen: zb.UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zb.NewNopLogger()
	}

	fsmgr := fs.NewOSFilesystemManager(logger)

	enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("%w: creating encryptor: %w", ErrConfig, err)
	}

	codec, err := archive.NewCodec(cfg.Arguments.Codec, cfg.Arguments.Level, cfg.Arguments.Threads)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	var writerOpts []archive.Option
	if cfg.Encryption.Enabled {
		if !enc.IsConfigured() {
			return nil, fmt.Errorf("%w: encryption enabled but no keys found, run `zbackup keys init`", ErrConfig)
		}
		writerOpts = append(writerOpts, archive.WithEncryptor(enc))
	}
	if cfg.Settings.ProgressBar.Enabled {
		writerOpts = append(writerOpts, archive.WithProgress(archive.TerminalOutput(os.Stderr)))
	}
	writer := archive.NewWriter(codec, fsmgr, logger, writerOpts...)

	history, err := database.NewHistoryFromConfig(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("creating history: %w", err)
	}

	svcOpts := []zb.ServiceOption{zb.WithEngineOptions(o.engineOpts...)}
	if cfg.Offsite.Enabled() {
		uploader, err := offsite.NewS3Uploader(ctx, cfg.Offsite, logger)
		if err != nil {
			history.Close()
			return nil, fmt.Errorf("creating offsite uploader: %w", err)
		}
		svcOpts = append(svcOpts, zb.WithUploader(uploader))
	}

	cat := catalog.NewFileSystemCatalog(time.Local)
	svc := zb.NewBackupService(cat, o.space, writer, fsmgr, history, logger, o.clock, o.idgen, svcOpts...)

	return &ZBApp{
		cfg:        cfg,
		configPath: o.configPath,
		baseDir:    o.baseDir,
		logger:     logger,
		logFile:    o.logFile,
		fsmgr:      fsmgr,
		catalog:    cat,
		space:      o.space,
		writer:     writer,
		encryptor:  enc,
		history:    history,
		metrics:    metrics.NewRunMetrics(),
		clock:      o.clock,
		idgen:      o.idgen,
		service:    svc,
	}, nil
}

// Config returns the effective configuration.
func (a *ZBApp) Config() *config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// reloadConfig re-reads the config file and applies the settings that are
// read on every run: include, ignore, destination and old_backups. Other
// sections are fixed when the app is built.
func (a *ZBApp) reloadConfig() error {
	cfg, err := config.ReadFromFile(a.configPath, a.baseDir, a.logger)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	next := *a.cfg
	next.Include = cfg.Include
	next.Ignore = cfg.Ignore
	next.Destination = cfg.Destination
	next.OldBackups = cfg.OldBackups
	if cfg.Schedule != a.cfg.Schedule {
		a.logger.Warn("schedule changed, restart the daemon to apply it", "schedule", cfg.Schedule)
	}
	a.cfg = &next

	a.logger.Info("config reloaded", "path", a.configPath, "policy", next.OldBackups.Policy().String())
	return nil
}

// Backup selects the configured files, evicts old archives and writes a new one.
func (a *ZBApp) Backup(ctx context.Context) (*zb.BackupResult, error) {
	cfg := a.Config()
	sel := zb.Selection{
		Include:     cfg.Include,
		Ignore:      fs.NewIgnoreMatcher(cfg.Ignore),
		Destination: cfg.Destination,
	}

	started := a.clock.Now()
	result, err := a.service.Backup(ctx, sel, cfg.OldBackups.Policy())

	run := &model.Run{StartedAt: started, Status: runStatus(err)}
	var report *zb.EvictionReport
	if result != nil {
		run.ID = result.RunID
		run.Archive = archiveName(result.Archive)
		run.ArchiveSize = result.ArchiveSize
		report = result.Report
	}
	a.writeMetrics(run, report)

	return result, err
}

// Prune applies the retention policy to the destination without writing a
// new archive. With dryRun the engine runs against an in-memory copy of the
// destination and nothing is deleted.
func (a *ZBApp) Prune(ctx context.Context, dryRun bool) (*zb.EvictionReport, error) {
	cfg := a.Config()
	policy := cfg.OldBackups.Policy()
	if !dryRun {
		return a.service.Prune(ctx, cfg.Destination, policy)
	}

	vol, err := catalog.Snapshot(ctx, a.catalog, a.space, cfg.Destination)
	if err != nil {
		return nil, fmt.Errorf("snapshotting destination: %w", err)
	}
	svc := zb.NewBackupService(vol, vol, a.writer, a.fsmgr, database.NopHistory{}, a.logger, a.clock, a.idgen,
		zb.WithEngineOptions(zb.WithReclaimDelay(0)))
	return svc.Prune(ctx, cfg.Destination, policy)
}

// ListArchives returns the archives at the destination, oldest first.
func (a *ZBApp) ListArchives(ctx context.Context) ([]*zb.Archive, error) {
	return a.service.ListArchives(ctx, a.Config().Destination)
}

// GetHistory returns the most recent runs.
func (a *ZBApp) GetHistory(limit int) ([]*model.Run, error) {
	return a.service.GetHistory(limit)
}

// GetEvictions returns the archives a run deleted.
func (a *ZBApp) GetEvictions(runID string) ([]*model.Eviction, error) {
	return a.service.GetEvictions(runID)
}

// InitKeys generates the encryption key pair protected by passphrase.
func (a *ZBApp) InitKeys(passphrase string) error {
	if err := a.encryptor.Setup(passphrase); err != nil {
		return fmt.Errorf("initializing keys: %w", err)
	}
	a.logger.Info("encryption keys created",
		"public_key", a.Config().Encryption.PublicKeyPath, "private_key", a.Config().Encryption.PrivateKeyPath)
	return nil
}

// Decrypt unlocks the private key and writes the plaintext of an encrypted
// archive to out. out is written through a temporary file and never left
// half-written.
func (a *ZBApp) Decrypt(archivePath, out, passphrase string) error {
	dc, err := a.encryptor.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}

	in, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(out), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err := dc.Decrypt(in, tmp); err != nil {
		return fmt.Errorf("decrypting %s: %w", archivePath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Daemon runs Backup on the configured schedule until ctx is cancelled.
func (a *ZBApp) Daemon(ctx context.Context) error {
	s, err := NewScheduler(a.Config().Schedule, func(ctx context.Context) {
		if _, err := a.Backup(ctx); err != nil && ExitCode(err) != ExitOK {
			a.logger.Error("scheduled backup failed", "error", err)
		}
	}, a.logger)
	if err != nil {
		return err
	}

	if a.configPath != "" {
		w := NewConfigWatcher(a.configPath, DefaultReloadDebounce, a.logger)
		go func() {
			if err := w.Watch(ctx, a.reloadConfig); err != nil {
				a.logger.Warn("config changes will not be picked up", "error", err)
			}
		}()
	}

	s.Run(ctx)
	return nil
}

// writeMetrics exports the run when a metrics textfile is configured.
func (a *ZBApp) writeMetrics(run *model.Run, report *zb.EvictionReport) {
	textfile := a.Config().Metrics.Textfile
	if textfile == "" {
		return
	}

	finished := a.clock.Now()
	run.FinishedAt = &finished

	summary := metrics.RunSummary{Run: run, Report: report}
	if run.Status == model.RunStatusSuccess {
		summary.LastSuccess = finished
	} else {
		summary.LastSuccess = a.lastSuccess()
	}

	a.metrics.Observe(summary)
	if err := a.metrics.WriteTextfile(textfile); err != nil {
		a.logger.Warn("failed to write metrics", "path", textfile, "error", err)
	}
}

// lastSuccess looks up the most recent successful backup in the history.
func (a *ZBApp) lastSuccess() time.Time {
	runs, err := a.history.ListRuns(100)
	if err != nil {
		return time.Time{}
	}
	for _, r := range runs {
		if r.Operation == model.OperationBackup && r.Status == model.RunStatusSuccess && r.FinishedAt != nil {
			return *r.FinishedAt
		}
	}
	return time.Time{}
}

// Close closes the history database and the log file.
func (a *ZBApp) Close() error {
	var firstErr error
	if err := a.history.Close(); err != nil {
		firstErr = fmt.Errorf("closing history: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}

func runStatus(err error) string {
	switch {
	case err == nil:
		return model.RunStatusSuccess
	case errors.Is(err, zb.ErrNothingToBackup):
		return model.RunStatusNothing
	default:
		return model.RunStatusFailed
	}
}

func archiveName(a *zb.Archive) string {
	if a == nil {
		return ""
	}
	return a.Name
}
