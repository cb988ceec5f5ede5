package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry caches the device registry in memory on top of a Repository.
//
// The cache is populated by RefreshCache and reloaded by Seed. All public
// methods are safe for concurrent use.
type Registry struct {
	repo    Repository
	cache   map[string]KnownDevice // keyed by MAC
	loaded  bool
	cacheMu sync.RWMutex
	logger  Logger
}

// Stats summarises the registry contents.
type Stats struct {
	Total     int `json:"total"`
	BLE       int `json:"ble"`
	Tracked   int `json:"tracked"`
	Untracked int `json:"untracked"`
}

// NewRegistry creates a registry over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]KnownDevice),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Seed makes devices the complete registry, typically the contents of
// known_devices.yaml, and reloads the cache. Entries stored by an earlier
// run that are no longer listed are deleted, so an empty slice clears the
// registry. On error the repository and cache are unchanged.
//
// Returns the number of devices written.
func (r *Registry) Seed(ctx context.Context, devices []KnownDevice) (int, error) {
	removed, err := r.repo.ReplaceDevices(ctx, devices)
	if err != nil {
		return 0, fmt.Errorf("seeding device registry: %w", err)
	}
	if err := r.RefreshCache(ctx); err != nil {
		return 0, err
	}

	r.logger.Info("device registry seeded", "count", len(devices), "removed", removed)
	return len(devices), nil
}

// RefreshCache reloads all devices from the repository into the cache.
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]KnownDevice, len(devices))
	for _, d := range devices {
		r.cache[d.MAC] = d
	}
	r.loaded = true

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// ListDevices returns every registry entry sorted by MAC. It serves from
// the cache once RefreshCache has run and falls back to the repository
// before that.
func (r *Registry) ListDevices(ctx context.Context) ([]KnownDevice, error) {
	r.cacheMu.RLock()
	if !r.loaded {
		r.cacheMu.RUnlock()
		return r.repo.List(ctx)
	}

	devices := make([]KnownDevice, 0, len(r.cache))
	for _, d := range r.cache {
		devices = append(devices, d)
	}
	r.cacheMu.RUnlock()

	sort.Slice(devices, func(i, j int) bool { return devices[i].MAC < devices[j].MAC })
	return devices, nil
}

// GetDevice returns the cached entry for mac.
func (r *Registry) GetDevice(mac string) (KnownDevice, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	d, ok := r.cache[mac]
	return d, ok
}

// IsBLE reports whether mac is a BLE registry key.
func (r *Registry) IsBLE(mac string) bool {
	return IsBLE(mac)
}

// DeviceCount returns the number of cached devices.
func (r *Registry) DeviceCount() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// GetStats returns counts over the cached devices.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{Total: len(r.cache)}
	for _, d := range r.cache {
		if !IsBLE(d.MAC) {
			continue
		}
		stats.BLE++
		if d.Track {
			stats.Tracked++
		} else {
			stats.Untracked++
		}
	}
	return stats
}
