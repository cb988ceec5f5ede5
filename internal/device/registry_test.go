package device

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
)

// MockRepository is a test implementation of Repository.
type MockRepository struct {
	mu        sync.Mutex
	devices   map[string]KnownDevice
	sightings map[string]Sighting
	listCalls int

	// For testing error paths
	listErr    error
	replaceErr error
}

func NewMockRepository() *MockRepository {
	return &MockRepository{
		devices:   make(map[string]KnownDevice),
		sightings: make(map[string]Sighting),
	}
}

func (m *MockRepository) List(_ context.Context) ([]KnownDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	devices := make([]KnownDevice, 0, len(m.devices))
	for _, d := range m.devices {
		devices = append(devices, d)
	}
	sort.Slice(devices, func(i, j int) bool { return devices[i].MAC < devices[j].MAC })
	return devices, nil
}

func (m *MockRepository) ReplaceDevices(_ context.Context, devices []KnownDevice) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.replaceErr != nil {
		return 0, m.replaceErr
	}
	next := make(map[string]KnownDevice, len(devices))
	for _, d := range devices {
		next[d.MAC] = d
	}
	removed := 0
	for mac := range m.devices {
		if _, ok := next[mac]; !ok {
			removed++
		}
	}
	m.devices = next
	return removed, nil
}

func (m *MockRepository) RecordSighting(_ context.Context, s Sighting) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := m.sightings[s.ID]
	s.SeenCount = prev.SeenCount + 1
	m.sightings[s.ID] = s
	return nil
}

func (m *MockRepository) GetSighting(_ context.Context, id string) (*Sighting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sightings[id]
	if !ok {
		return nil, ErrSightingNotFound
	}
	return &s, nil
}

func (m *MockRepository) ListSightings(_ context.Context) ([]Sighting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Sighting, 0, len(m.sightings))
	for _, s := range m.sightings {
		out = append(out, s)
	}
	return out, nil
}

func (m *MockRepository) addDevice(d KnownDevice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[d.MAC] = d
}

func TestRegistry_RefreshCache(t *testing.T) {
	repo := NewMockRepository()
	repo.addDevice(KnownDevice{MAC: "BLE_AA", Track: true})
	repo.addDevice(KnownDevice{MAC: "BLE_BB"})

	registry := NewRegistry(repo)
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatalf("RefreshCache() error = %v", err)
	}

	if registry.DeviceCount() != 2 {
		t.Errorf("DeviceCount() = %d, want 2", registry.DeviceCount())
	}
	d, ok := registry.GetDevice("BLE_AA")
	if !ok || !d.Track {
		t.Errorf("GetDevice(BLE_AA) = %+v, %v", d, ok)
	}
	if _, ok := registry.GetDevice("BLE_CC"); ok {
		t.Error("GetDevice(BLE_CC) should miss")
	}
}

func TestRegistry_RefreshCacheError(t *testing.T) {
	repo := NewMockRepository()
	repo.listErr = errors.New("disk on fire")

	registry := NewRegistry(repo)
	if err := registry.RefreshCache(context.Background()); err == nil {
		t.Error("RefreshCache() should propagate repository errors")
	}
}

func TestRegistry_Seed(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	n, err := registry.Seed(ctx, []KnownDevice{
		{MAC: "BLE_AA", Track: true},
		{MAC: "BLE_BB"},
	})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Seed() = %d, want 2", n)
	}
	if _, ok := registry.GetDevice("BLE_BB"); !ok {
		t.Error("seeded device should be cached")
	}
	if len(repo.devices) != 2 {
		t.Errorf("repo has %d devices, want 2", len(repo.devices))
	}
}

func TestRegistry_SeedRemovesUnlisted(t *testing.T) {
	repo := NewMockRepository()
	repo.addDevice(KnownDevice{MAC: "BLE_AABBCCDDEEFF", Track: true})
	registry := NewRegistry(repo)
	ctx := context.Background()
	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		devices []KnownDevice
		want    []string
	}{
		{"replaced", []KnownDevice{{MAC: "BLE_11", Track: true}}, []string{"BLE_11"}},
		{"emptied", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := registry.Seed(ctx, tt.devices); err != nil {
				t.Fatalf("Seed() error = %v", err)
			}
			if _, ok := registry.GetDevice("BLE_AABBCCDDEEFF"); ok {
				t.Error("unlisted device should be dropped from the cache")
			}
			if registry.DeviceCount() != len(tt.want) || len(repo.devices) != len(tt.want) {
				t.Fatalf("cache = %d, repo = %d devices, want %d", registry.DeviceCount(), len(repo.devices), len(tt.want))
			}
			for _, mac := range tt.want {
				if _, ok := registry.GetDevice(mac); !ok {
					t.Errorf("GetDevice(%s) should hit", mac)
				}
			}
		})
	}
}

func TestRegistry_SeedError(t *testing.T) {
	repo := NewMockRepository()
	repo.addDevice(KnownDevice{MAC: "BLE_AA", Track: true})
	repo.replaceErr = errors.New("read-only")
	registry := NewRegistry(repo)
	ctx := context.Background()
	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatal(err)
	}

	n, err := registry.Seed(ctx, nil)
	if !errors.Is(err, repo.replaceErr) {
		t.Errorf("Seed() error = %v, want wrapped replace error", err)
	}
	if n != 0 {
		t.Errorf("Seed() = %d, want 0", n)
	}
	if _, ok := registry.GetDevice("BLE_AA"); !ok {
		t.Error("failed seed should leave the cache untouched")
	}
}

func TestRegistry_ListDevices(t *testing.T) {
	repo := NewMockRepository()
	repo.addDevice(KnownDevice{MAC: "BLE_CC"})
	repo.addDevice(KnownDevice{MAC: "BLE_AA"})
	registry := NewRegistry(repo)
	ctx := context.Background()

	// Before the cache is loaded the repository is read directly.
	devices, err := registry.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if len(devices) != 2 || repo.listCalls != 1 {
		t.Fatalf("ListDevices() = %d devices, listCalls = %d", len(devices), repo.listCalls)
	}

	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatal(err)
	}
	repo.addDevice(KnownDevice{MAC: "BLE_BB"})

	devices, err = registry.ListDevices(ctx)
	if err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	if repo.listCalls != 2 {
		t.Errorf("listCalls = %d, cached ListDevices should not hit the repository", repo.listCalls)
	}
	if len(devices) != 2 || devices[0].MAC != "BLE_AA" || devices[1].MAC != "BLE_CC" {
		t.Errorf("ListDevices() = %+v, want sorted cache contents", devices)
	}
}

func TestRegistry_GetStats(t *testing.T) {
	repo := NewMockRepository()
	repo.addDevice(KnownDevice{MAC: "BLE_AA", Track: true})
	repo.addDevice(KnownDevice{MAC: "ble_bb", Track: true})
	repo.addDevice(KnownDevice{MAC: "BLE_CC"})
	repo.addDevice(KnownDevice{MAC: "AA:BB:CC:DD:EE:FF", Track: true})

	registry := NewRegistry(repo)
	if err := registry.RefreshCache(context.Background()); err != nil {
		t.Fatal(err)
	}

	want := Stats{Total: 4, BLE: 3, Tracked: 2, Untracked: 1}
	if got := registry.GetStats(); got != want {
		t.Errorf("GetStats() = %+v, want %+v", got, want)
	}
	if !registry.IsBLE("ble_bb") || registry.IsBLE("AA:BB:CC:DD:EE:FF") {
		t.Error("IsBLE() mismatch")
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	repo := NewMockRepository()
	registry := NewRegistry(repo)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)

		go func() {
			defer wg.Done()
			registry.Seed(ctx, []KnownDevice{{MAC: "BLE_AA", Track: true}}) //nolint:errcheck // mock never fails
		}()

		go func() {
			defer wg.Done()
			registry.ListDevices(ctx) //nolint:errcheck // mock never fails
		}()

		go func() {
			defer wg.Done()
			registry.RefreshCache(ctx) //nolint:errcheck // mock never fails
			registry.GetStats()
		}()
	}
	wg.Wait()

	if err := registry.RefreshCache(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := registry.GetDevice("BLE_AA"); !ok {
		t.Error("GetDevice() after concurrent access should find BLE_AA")
	}
}
