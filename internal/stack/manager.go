package stack

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/lightsheet-go/internal/errors"
	"github.com/tphakala/lightsheet-go/internal/logging"
	"github.com/tphakala/lightsheet-go/internal/recycler"
)

// SystemMemoryGuard refuses allocations that would leave less than
// MinFreePercent of system memory available.
type SystemMemoryGuard struct {
	MinFreePercent float64

	// virtualMemory is replaced in tests.
	virtualMemory func() (*mem.VirtualMemoryStat, error)
}

// NewSystemMemoryGuard returns a guard backed by gopsutil.
func NewSystemMemoryGuard(minFreePercent float64) *SystemMemoryGuard {
	return &SystemMemoryGuard{MinFreePercent: minFreePercent, virtualMemory: mem.VirtualMemory}
}

// AllowAllocation reports whether bytes can be allocated. When memory
// statistics are unavailable the allocation is allowed.
func (g *SystemMemoryGuard) AllowAllocation(bytes int64) bool {
	if g.MinFreePercent <= 0 {
		return true
	}
	vm, err := g.virtualMemory()
	if err != nil || vm.Total == 0 {
		return true
	}
	remaining := float64(vm.Available) - float64(bytes)
	return remaining/float64(vm.Total)*100 >= g.MinFreePercent
}

// ManagerOptions configures a RecyclerManager.
type ManagerOptions struct {
	MinFreeMemoryPercent float64
	Metrics              recycler.Metrics
	Logger               *slog.Logger
}

// RecyclerManager owns named stack recyclers.
type RecyclerManager struct {
	guard   recycler.MemoryGuard
	metrics recycler.Metrics
	logger  *slog.Logger

	mu        sync.Mutex
	recyclers map[string]*Recycler
}

// NewRecyclerManager creates an empty manager.
func NewRecyclerManager(opts ManagerOptions) *RecyclerManager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.ForService("stack")
		if logger == nil {
			logger = slog.Default()
		}
	}
	m := &RecyclerManager{
		metrics:   opts.Metrics,
		logger:    logger.With("component", "recycler_manager"),
		recyclers: make(map[string]*Recycler),
	}
	if opts.MinFreeMemoryPercent > 0 {
		m.guard = NewSystemMemoryGuard(opts.MinFreeMemoryPercent)
	}
	return m
}

// Recycler returns the recycler registered under name, creating it with the
// given caps when missing. Caps of an existing recycler are not changed.
func (m *RecyclerManager) Recycler(name string, maxLive, maxAvailable int) (*Recycler, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.recyclers[name]; ok {
		return r, nil
	}

	var opts []RecyclerOption
	if m.guard != nil {
		opts = append(opts, WithMemoryGuard(m.guard))
	}
	if m.metrics != nil {
		opts = append(opts, WithMetrics(m.metrics))
	}
	r, err := NewRecycler(name, maxLive, maxAvailable, opts...)
	if err != nil {
		return nil, err
	}
	m.recyclers[name] = r
	m.logger.Info("created stack recycler", "recycler", name, "max_live", maxLive, "max_available", maxAvailable)
	return r, nil
}

// Put registers r under its name, replacing any recycler of the same name.
func (m *RecyclerManager) Put(r *Recycler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recyclers[r.Name()] = r
}

// Lookup returns the recycler registered under name.
func (m *RecyclerManager) Lookup(name string) (*Recycler, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recyclers[name]
	return r, ok
}

// Names returns the registered recycler names in sorted order.
func (m *RecyclerManager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.recyclers))
	for name := range m.recyclers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Clear frees the available stacks of one recycler.
func (m *RecyclerManager) Clear(name string) bool {
	r, ok := m.Lookup(name)
	if !ok {
		return false
	}
	r.Clear()
	return true
}

// ClearAll frees the available stacks of every recycler.
func (m *RecyclerManager) ClearAll() {
	for _, name := range m.Names() {
		m.Clear(name)
	}
}

// Free frees every recycler, reporting those that still have live stacks.
func (m *RecyclerManager) Free() error {
	var errs []error
	for _, name := range m.Names() {
		if r, ok := m.Lookup(name); ok {
			if err := r.Free(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
