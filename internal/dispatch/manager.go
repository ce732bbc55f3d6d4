package dispatch

import (
	"fmt"
	"sync"

	"github.com/gobwas/glob"

	"github.com/MarcFord/netlog/internal/applog"
	"github.com/MarcFord/netlog/internal/backend"
	"github.com/MarcFord/netlog/internal/config"
	"github.com/MarcFord/netlog/internal/level"
	"github.com/MarcFord/netlog/internal/record"
)

// target pairs an initialized backend with its dispatch gate.
type target struct {
	backend  backend.Backend
	minLevel level.Level
}

// Manager owns the configured backends and fans records out to those
// whose severity threshold the record meets. Delivery failures are
// reported through the application log and the record is dropped for
// that backend; logging must never take the application down.
type Manager struct {
	mu        sync.RWMutex
	targets   map[string]target
	appLogger *applog.Logger
}

// NewManager creates an empty backend manager.
func NewManager() *Manager {
	return &Manager{
		targets:   make(map[string]target),
		appLogger: applog.Default(),
	}
}

// InitBackends initializes the backends active in the given application
// environment. Backends whose environments patterns do not match appEnv
// are skipped entirely, as are disabled ones. Existing backends are
// closed first, so the manager can be re-initialized on config reload.
func (m *Manager) InitBackends(appEnv string, backends []config.Backend) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, tgt := range m.targets {
		if err := tgt.backend.Close(); err != nil {
			m.appLogger.Warn("Error closing existing backend '%s' during re-initialization: %v", name, err)
		}
	}
	m.targets = make(map[string]target)

	var initErrors []error
	for _, cfg := range backends {
		if !cfg.Enabled {
			continue
		}

		match, err := environmentMatches(appEnv, cfg.Environments)
		if err != nil {
			return fmt.Errorf("backend '%s': %w", cfg.Name, err)
		}
		if !match {
			m.appLogger.Debug("Backend '%s' not active in environment '%s', skipping", cfg.Name, appEnv)
			continue
		}

		b, err := newBackend(cfg, appEnv)
		if err != nil {
			m.appLogger.Error("Failed to initialize backend '%s' (type: %s): %v", cfg.Name, cfg.Type, err)
			initErrors = append(initErrors, fmt.Errorf("backend '%s': %w", cfg.Name, err))
			continue
		}

		m.targets[cfg.Name] = target{backend: b, minLevel: cfg.MinLevel()}
		m.appLogger.Info("Initialized backend '%s' (type: %s, min level: %s)", cfg.Name, cfg.Type, cfg.MinLevel())
	}

	if len(initErrors) > 0 {
		return fmt.Errorf("failed to initialize some backends: %v", initErrors)
	}
	return nil
}

// newBackend constructs a backend by type. Remote backends are wrapped
// with the retry and circuit breaker layer; the local file backend is not.
func newBackend(cfg config.Backend, appEnv string) (backend.Backend, error) {
	var b backend.Backend
	var err error

	switch cfg.Type {
	case config.TypeGELF:
		b, err = backend.NewGELFBackend(cfg)
	case config.TypeCloudWatch:
		b, err = backend.NewCloudWatchBackend(cfg)
	case config.TypeGCP:
		b, err = backend.NewGCPBackend(cfg)
	case config.TypeAzure:
		b, err = backend.NewAzureBackend(cfg)
	case config.TypeIBM:
		b, err = backend.NewIBMBackend(cfg, appEnv)
	case config.TypeOCI:
		b, err = backend.NewOCIBackend(cfg)
	case config.TypeFile:
		return backend.NewFileBackend(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return backend.WrapResilient(b, cfg.Retry), nil
}

// environmentMatches reports whether appEnv matches any of the glob
// patterns. An empty pattern list matches every environment.
func environmentMatches(appEnv string, patterns []string) (bool, error) {
	if len(patterns) == 0 {
		return true, nil
	}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return false, fmt.Errorf("invalid environment pattern '%s': %w", p, err)
		}
		if g.Match(appEnv) {
			return true, nil
		}
	}
	return false, nil
}

// Dispatch delivers one record to every backend whose minimum severity
// the record meets. Each backend gets its own shallow copy.
func (m *Manager) Dispatch(rec map[string]interface{}) {
	lvl := level.FromValue(rec[record.FieldLevel])

	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, tgt := range m.targets {
		if lvl < tgt.minLevel {
			continue
		}
		if err := tgt.backend.Send(record.Clone(rec)); err != nil {
			m.appLogger.Error("Failed to send record to backend '%s': %v", name, err)
		}
	}
}

// BackendNames returns the names of all initialized backends.
func (m *Manager) BackendNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.targets))
	for name := range m.targets {
		names = append(names, name)
	}
	return names
}

// CloseAll closes all managed backends concurrently.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var wg sync.WaitGroup
	for name, tgt := range m.targets {
		wg.Add(1)
		go func(name string, b backend.Backend) {
			defer wg.Done()
			if err := b.Close(); err != nil {
				m.appLogger.Warn("Error closing backend '%s': %v", name, err)
			}
		}(name, tgt.backend)
	}
	wg.Wait()
	m.targets = make(map[string]target)
}
