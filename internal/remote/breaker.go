package remote

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"quill/internal/quill"
)

// ErrRemoteUnavailable is returned while the breaker is open.
var ErrRemoteUnavailable = errors.New("remote store unavailable")

// BreakerStore stops calling an unhealthy remote after a run of consecutive
// failures and lets a single probe through once the cooldown has passed.
type BreakerStore struct {
	next   quill.RemoteStore
	cb     *gobreaker.CircuitBreaker[interface{}]
	logger quill.Logger
}

var _ quill.RemoteStore = (*BreakerStore)(nil)

// NewBreakerStore wraps next. The breaker opens after failures consecutive
// errors and half-opens after cooldown.
func NewBreakerStore(next quill.RemoteStore, failures uint32, cooldown time.Duration, logger quill.Logger) *BreakerStore {
	b := &BreakerStore{next: next, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        "remote",
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: isHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return b
}

// isHealthy reports whether err leaves the remote looking healthy. Missing
// objects, bad names and a locked decryption key are the caller's problem.
func isHealthy(err error) bool {
	return err == nil ||
		errors.Is(err, ErrObjectNotFound) ||
		errors.Is(err, ErrInvalidName) ||
		errors.Is(err, ErrLocked)
}

// State returns the breaker state, for status output.
func (b *BreakerStore) State() string {
	return b.cb.State().String()
}

func (b *BreakerStore) execute(op string, fn func() (interface{}, error)) (interface{}, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Debug("remote call rejected", "op", op, "state", b.cb.State().String())
		return nil, fmt.Errorf("%s: %w", op, ErrRemoteUnavailable)
	}
	return v, err
}

func (b *BreakerStore) Upload(localPath, remoteName string) error {
	_, err := b.execute("upload", func() (interface{}, error) {
		return nil, b.next.Upload(localPath, remoteName)
	})
	return err
}

func (b *BreakerStore) Download(remoteName, localDir string) (string, error) {
	v, err := b.execute("download", func() (interface{}, error) {
		return b.next.Download(remoteName, localDir)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (b *BreakerStore) List() ([]quill.RemoteFile, error) {
	v, err := b.execute("list", func() (interface{}, error) {
		return b.next.List()
	})
	if err != nil {
		return nil, err
	}
	files, _ := v.([]quill.RemoteFile)
	return files, nil
}

func (b *BreakerStore) Delete(remoteName string) error {
	_, err := b.execute("delete", func() (interface{}, error) {
		return nil, b.next.Delete(remoteName)
	})
	return err
}
