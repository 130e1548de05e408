package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Default retention counts and schedule, used when the config leaves them
// unset.
const (
	DefaultSnapshotKeep     = 15
	DefaultStageKeep        = 5
	DefaultArchiveKeep      = 15
	DefaultSnapshotInterval = 5 * time.Minute
	DefaultStageInterval    = 30 * time.Minute
	DefaultRemoteTimeout    = 60 * time.Second
	DefaultBreakerFailures  = 3
	DefaultBreakerCooldown  = 5 * time.Minute
)

// Config represents the main configuration for quill.
type Config struct {
	DataDir    string           `toml:"data_dir"`
	BackupDir  string           `toml:"backup_dir"`
	LogDir     string           `toml:"log_dir"`
	LogLevel   string           `toml:"log_level"` // debug, info (default), warn, error
	Database   DatabaseConfig   `toml:"database"`
	Backup     BackupConfig     `toml:"backup"`
	Schedule   ScheduleConfig   `toml:"schedule"`
	Remote     RemoteConfig     `toml:"remote"`
	Encryption EncryptionConfig `toml:"encryption"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// DatabaseConfig selects the writing database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite
}

// BackupConfig holds per-kind retention counts.
type BackupConfig struct {
	SnapshotKeep int `toml:"snapshot_keep"`
	StageKeep    int `toml:"stage_keep"`
	ArchiveKeep  int `toml:"archive_keep"`
}

// WithDefaults returns a copy with zero counts replaced by the defaults.
func (b BackupConfig) WithDefaults() BackupConfig {
	if b.SnapshotKeep <= 0 {
		b.SnapshotKeep = DefaultSnapshotKeep
	}
	if b.StageKeep <= 0 {
		b.StageKeep = DefaultStageKeep
	}
	if b.ArchiveKeep <= 0 {
		b.ArchiveKeep = DefaultArchiveKeep
	}
	return b
}

// ScheduleConfig drives `quill serve`. Intervals use time.ParseDuration
// syntax ("5m", "1h30m").
type ScheduleConfig struct {
	SnapshotInterval string `toml:"snapshot_interval"`
	StageInterval    string `toml:"stage_interval"`
}

// Intervals parses both intervals, applying defaults to empty values.
func (s ScheduleConfig) Intervals() (snapshot, stage time.Duration, err error) {
	if snapshot, err = parseDuration(s.SnapshotInterval, DefaultSnapshotInterval); err != nil {
		return 0, 0, fmt.Errorf("snapshot_interval: %w", err)
	}
	if stage, err = parseDuration(s.StageInterval, DefaultStageInterval); err != nil {
		return 0, 0, fmt.Errorf("stage_interval: %w", err)
	}
	return snapshot, stage, nil
}

// RemoteConfig represents configuration for the off-site backup store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type    string `toml:"type"`    // "" or "none" (disabled), "memory", "filesystem", "s3"
	Encrypt bool   `toml:"encrypt"` // encrypt artifacts with the age key pair before upload
	Timeout string `toml:"timeout"` // per-call timeout, default 60s

	// Circuit breaker around every remote call.
	BreakerFailures uint32 `toml:"breaker_failures"` // consecutive failures before opening
	BreakerCooldown string `toml:"breaker_cooldown"` // how long to stay open

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket          string `toml:"s3_bucket,omitempty"`
	S3Prefix          string `toml:"s3_prefix,omitempty"`
	S3Region          string `toml:"s3_region,omitempty"`
	S3Endpoint        string `toml:"s3_endpoint,omitempty"` // S3-compatible servers
	S3UsePathStyle    bool   `toml:"s3_use_path_style,omitempty"`
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"` // empty uses the default credential chain
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`
}

// Enabled reports whether a remote store is configured.
func (r RemoteConfig) Enabled() bool {
	return r.Type != "" && r.Type != "none"
}

// CallTimeout returns the parsed per-call timeout.
func (r RemoteConfig) CallTimeout() (time.Duration, error) {
	return parseDuration(r.Timeout, DefaultRemoteTimeout)
}

// Breaker returns the failure threshold and cooldown of the circuit breaker.
func (r RemoteConfig) Breaker() (uint32, time.Duration, error) {
	failures := r.BreakerFailures
	if failures == 0 {
		failures = DefaultBreakerFailures
	}
	cooldown, err := parseDuration(r.BreakerCooldown, DefaultBreakerCooldown)
	if err != nil {
		return 0, 0, fmt.Errorf("breaker_cooldown: %w", err)
	}
	return failures, cooldown, nil
}

// EncryptionConfig holds paths to the age key pair used for remote copies.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// MetricsConfig controls the Prometheus endpoint of `quill serve`.
type MetricsConfig struct {
	Listen string `toml:"listen"` // e.g. "127.0.0.1:9464"; empty disables
}

// NewConfig creates a Config rooted at baseDir with default paths.
func NewConfig(baseDir string) *Config {
	return &Config{
		DataDir:   baseDir,
		BackupDir: filepath.Join(baseDir, "backups"),
		LogDir:    filepath.Join(baseDir, "log"),
		LogLevel:  "info",
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: filepath.Join(baseDir, "novels.db"),
		},
		Backup: BackupConfig{
			SnapshotKeep: DefaultSnapshotKeep,
			StageKeep:    DefaultStageKeep,
			ArchiveKeep:  DefaultArchiveKeep,
		},
		Schedule: ScheduleConfig{
			SnapshotInterval: DefaultSnapshotInterval.String(),
			StageInterval:    DefaultStageInterval.String(),
		},
		Remote: RemoteConfig{Type: "none"},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "quill.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "quill.key"),
		},
	}
}

// Validate checks the fields that would otherwise fail late.
func (c *Config) Validate() error {
	if c.BackupDir == "" {
		return fmt.Errorf("backup_dir must be set")
	}
	if _, _, err := c.Schedule.Intervals(); err != nil {
		return err
	}
	if _, err := c.Remote.CallTimeout(); err != nil {
		return fmt.Errorf("remote timeout: %w", err)
	}
	if _, _, err := c.Remote.Breaker(); err != nil {
		return err
	}
	return nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads and validates a Config from path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
