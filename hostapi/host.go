package hostapi

import (
	"crypto/rand"
	"net/http"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/lfedgeai/spear-hostapi/capability"
	"github.com/lfedgeai/spear-hostapi/errors"
	"github.com/lfedgeai/spear-hostapi/poll"
	"github.com/lfedgeai/spear-hostapi/storage"
)

// MaxRandomBytes limits single-call allocation from random_bytes (1MB).
const MaxRandomBytes = 1 << 20

// StartFD is the first descriptor number handed to guests. Starting well
// above the POSIX stdio range catches guests that hardcode small fds.
const StartFD = 1000

// Config configures a production Host. Zero values get defaults.
type Config struct {
	Logger     *zap.Logger
	Caps       *capability.Set
	Env        map[string]string
	Store      storage.Store
	HTTPClient *http.Client

	// PoolSize bounds the goroutine pool running background sources.
	PoolSize int
}

// Host is the production host API backing one task execution environment.
type Host struct {
	logger *zap.Logger
	caps   *capability.Set
	env    map[string]string
	store  storage.Store
	client *http.Client
	table  *poll.Table
	pool   *ants.Pool
}

// NewHost creates a production host with its own fd table and background
// source pool.
func NewHost(cfg Config) (*Host, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Caps == nil {
		cfg.Caps = capability.Default()
	}
	if cfg.Env == nil {
		cfg.Env = make(map[string]string)
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemoryStore()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 32
	}

	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, errors.New(errors.PhaseHost, errors.KindInternal).
			Op("new_host").Cause(err).Detail("create source pool").Build()
	}

	return &Host{
		logger: cfg.Logger,
		caps:   cfg.Caps,
		env:    cfg.Env,
		store:  cfg.Store,
		client: cfg.HTTPClient,
		table:  poll.NewTable(StartFD),
		pool:   pool,
	}, nil
}

// Table exposes the fd table to the owning runtime for teardown hooks.
func (h *Host) Table() *poll.Table { return h.table }

// Close tears down every descriptor and releases the source pool.
func (h *Host) Close() {
	h.table.CloseAll()
	h.pool.Release()
}

// Log writes a structured guest log line at the requested level. Without
// the log capability the line is dropped.
func (h *Host) Log(level, message string) {
	if !h.caps.SupportsOperation(capability.OpLog) {
		return
	}
	switch level {
	case "trace", "debug":
		h.logger.Debug(message, zap.String("origin", "guest"))
	case "warn":
		h.logger.Warn(message, zap.String("origin", "guest"))
	case "error":
		h.logger.Error(message, zap.String("origin", "guest"))
	default:
		h.logger.Info(message, zap.String("origin", "guest"))
	}
}

// TimeNowMS returns wall-clock milliseconds since the Unix epoch, or zero
// without the clock capability.
func (h *Host) TimeNowMS() uint64 {
	if !h.caps.SupportsOperation(capability.OpTimeNowMS) {
		return 0
	}
	return uint64(time.Now().UnixMilli())
}

// RandomBytes returns n cryptographically-sourced random bytes.
func (h *Host) RandomBytes(n int) ([]byte, error) {
	if !h.caps.SupportsOperation(capability.OpRandomBytes) {
		return nil, errors.NotSupported(capability.OpRandomBytes)
	}
	if n < 0 || n > MaxRandomBytes {
		return nil, errors.InvalidInput(capability.OpRandomBytes,
			"requested length out of range")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, errors.New(errors.PhaseHost, errors.KindInternal).
			Op(capability.OpRandomBytes).Cause(err).Build()
	}
	return buf, nil
}

// GetEnv looks up a task environment variable. Without the env capability
// every key reads as absent.
func (h *Host) GetEnv(key string) (string, bool) {
	if !h.caps.SupportsOperation(capability.OpGetEnv) {
		return "", false
	}
	v, ok := h.env[key]
	return v, ok
}

func (h *Host) spawn(task func()) {
	if err := h.pool.Submit(task); err != nil {
		h.logger.Warn("background source rejected", zap.Error(err))
	}
}
