package remote

import (
	"context"
	"fmt"

	"quill/internal/config"
	"quill/internal/quill"
)

// NewRemoteFromConfig creates the remote store described by cfg, wrapped
// with encryption when cfg.Encrypt is set and always with a circuit
// breaker. It returns nil when no remote is configured. dec may be nil;
// an encrypted remote then refuses downloads.
func NewRemoteFromConfig(cfg config.RemoteConfig, enc quill.Encryptor, dec quill.DecryptionContext, logger quill.Logger) (quill.RemoteStore, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	var (
		base quill.RemoteStore
		err  error
	)
	switch cfg.Type {
	case "memory":
		base = NewMemoryStore(nil)
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem remote requires fs_root to be set")
		}
		base, err = NewFileSystemStore(cfg.FSRoot)
	case "s3":
		base, err = NewS3Store(context.Background(), cfg)
	default:
		return nil, fmt.Errorf("unknown remote type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Encrypt {
		if enc == nil || !enc.IsConfigured() {
			return nil, fmt.Errorf("remote encryption requires keys: run 'quill encryption setup'")
		}
		base = NewEncryptedStore(base, enc, dec)
	}

	failures, cooldown, err := cfg.Breaker()
	if err != nil {
		return nil, err
	}
	return NewBreakerStore(base, failures, cooldown, logger), nil
}
