// Package registry owns the mapping from server ids to live MCP drivers.
// It is the single writer of that mapping: registration, lazy rebuilds,
// health views, and shutdown all funnel through it.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpgate/mcpgate/pkg/mcp"
	"github.com/mcpgate/mcpgate/pkg/retry"
	"github.com/mcpgate/mcpgate/pkg/store"
)

// DriverFactory builds a driver from a config. Swapped out in tests.
type DriverFactory func(mcp.Config) (mcp.Driver, error)

// Health is the on-demand view of one server's condition.
type Health struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Transport      string            `json:"transport"`
	Connected      bool              `json:"connected"`
	State          string            `json:"state"`
	Disabled       bool              `json:"disabled"`
	LastCheckAt    time.Time         `json:"lastCheckAt"`
	LastError      string            `json:"lastError,omitempty"`
	ResponseTimeMs int64             `json:"responseTimeMs"`
	Capabilities   *mcp.Capabilities `json:"capabilities,omitempty"`
	RetryStatus    retry.Status      `json:"retryStatus"`
}

// Options configures a Registry.
type Options struct {
	Store      store.Store
	Logger     *slog.Logger
	Factory    DriverFactory // nil means mcp.NewDriver
	Supervisor *retry.Supervisor

	// HealthProbeTimeout bounds the tools/list probe issued by Health.
	HealthProbeTimeout time.Duration

	// HandshakeTimeout and StartupTimeout are passed to every driver built.
	// Zero keeps the driver defaults.
	HandshakeTimeout time.Duration
	StartupTimeout   time.Duration
}

// Registry maps server ids to at most one live driver each.
type Registry struct {
	store   store.Store
	sup     *retry.Supervisor
	logger  *slog.Logger
	factory DriverFactory

	probeTimeout     time.Duration
	handshakeTimeout time.Duration
	startupTimeout   time.Duration

	mu           sync.Mutex
	drivers      map[string]mcp.Driver
	shuttingDown bool

	// Listener callbacks run on driver goroutines; they record here under
	// their own lock so a synchronous build never self-deadlocks.
	healthMu   sync.Mutex
	lastErrors map[string]string
}

// New creates a registry. Call Start to load persisted specs.
func New(opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sup := opts.Supervisor
	if sup == nil {
		sup = retry.NewSupervisor()
	}
	factory := opts.Factory
	if factory == nil {
		factory = mcp.NewDriver
	}
	probeTimeout := opts.HealthProbeTimeout
	if probeTimeout <= 0 {
		probeTimeout = 5 * time.Second
	}
	return &Registry{
		store:            opts.Store,
		sup:              sup,
		logger:           logger.With("component", "registry"),
		factory:          factory,
		probeTimeout:     probeTimeout,
		handshakeTimeout: opts.HandshakeTimeout,
		startupTimeout:   opts.StartupTimeout,
		drivers:          make(map[string]mcp.Driver),
		lastErrors:       make(map[string]string),
	}
}

// Start loads every persisted spec and connects the enabled ones. Individual
// connection failures are recorded, never fatal.
func (r *Registry) Start(ctx context.Context) error {
	specs, err := r.store.List(ctx)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		if spec.Disabled {
			r.logger.Info("skipping disabled server", "server", spec.ID)
			continue
		}
		if _, err := r.buildLocked(ctx, spec); err != nil {
			r.logger.Warn("initial connection failed", "server", spec.ID, "error", err)
		}
	}
	return nil
}

// Register upserts the spec and, when enabled, synchronously connects a new
// driver. A connection failure is reported through logs and health, not as
// an error: registration succeeds once the spec is saved.
func (r *Registry) Register(ctx context.Context, spec *store.ServerSpec) error {
	r.mu.Lock()
	if r.shuttingDown {
		r.mu.Unlock()
		return ErrShuttingDown
	}
	r.mu.Unlock()

	if err := r.store.Upsert(ctx, spec); err != nil {
		return err
	}

	// Re-registering is the operator's reset lever.
	r.sup.Reset(spec.ID)
	r.closeDriver(spec.ID)

	if spec.Disabled {
		return nil
	}
	if _, err := r.buildLocked(ctx, spec); err != nil {
		r.logger.Warn("connection failed after register", "server", spec.ID, "error", err)
	}
	return nil
}

// Unregister deletes the spec and closes any driver.
func (r *Registry) Unregister(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.closeDriver(id)
	r.sup.Reset(id)
	return nil
}

// GetClient returns a ready driver for id, rebuilding one if the supervisor
// permits. The registry lock is held across the rebuild so concurrent
// callers observe either the old driver's teardown or a fully handshook
// replacement, never an intermediate.
func (r *Registry) GetClient(ctx context.Context, id string) (mcp.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shuttingDown {
		return nil, ErrShuttingDown
	}

	if d, ok := r.drivers[id]; ok && d.State() == mcp.StateReady {
		return d, nil
	}

	spec, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, &ServerNotFoundError{ID: id}
		}
		return nil, err
	}
	if spec.Disabled {
		return nil, &ServerUnavailableError{ID: id, Reason: errors.New("server is disabled")}
	}

	if !r.sup.CanRetry(id) {
		st := r.sup.StatusOf(id)
		return nil, &ServerUnavailableError{ID: id, NextAllowedAt: st.NextAllowedAt, Exhausted: st.Exhausted}
	}

	d, err := r.build(ctx, spec)
	if err != nil {
		st := r.sup.StatusOf(id)
		return nil, &ServerUnavailableError{ID: id, NextAllowedAt: st.NextAllowedAt, Exhausted: st.Exhausted, Reason: err}
	}
	return d, nil
}

// Reconnect forces a fresh connection regardless of backoff state.
func (r *Registry) Reconnect(ctx context.Context, id string) error {
	spec, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &ServerNotFoundError{ID: id}
		}
		return err
	}
	if spec.Disabled {
		return &ServerUnavailableError{ID: id, Reason: errors.New("server is disabled")}
	}

	r.sup.Reset(id)
	if _, err := r.buildLocked(ctx, spec); err != nil {
		return &ServerUnavailableError{ID: id, Reason: err}
	}
	return nil
}

// DisableServer marks the spec disabled and closes its driver.
func (r *Registry) DisableServer(ctx context.Context, id string) error {
	spec, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &ServerNotFoundError{ID: id}
		}
		return err
	}
	spec.Disabled = true
	if err := r.store.Upsert(ctx, spec); err != nil {
		return err
	}
	r.closeDriver(id)
	return nil
}

// GetSpec reads one spec.
func (r *Registry) GetSpec(ctx context.Context, id string) (*store.ServerSpec, error) {
	spec, err := r.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &ServerNotFoundError{ID: id}
	}
	return spec, err
}

// ListSpecs reads every spec.
func (r *Registry) ListSpecs(ctx context.Context) ([]*store.ServerSpec, error) {
	return r.store.List(ctx)
}

// ReadyDrivers snapshots the drivers currently in READY state.
func (r *Registry) ReadyDrivers() map[string]mcp.Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]mcp.Driver, len(r.drivers))
	for id, d := range r.drivers {
		if d.State() == mcp.StateReady {
			out[id] = d
		}
	}
	return out
}

// Health computes the per-server view for id, probing a ready driver with a
// lightweight call to measure responsiveness.
func (r *Registry) Health(ctx context.Context, id string) (*Health, error) {
	spec, err := r.GetSpec(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.healthFor(ctx, spec), nil
}

// ListHealth computes views for every spec.
func (r *Registry) ListHealth(ctx context.Context) ([]*Health, error) {
	specs, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]*Health, 0, len(specs))
	for _, spec := range specs {
		views = append(views, r.healthFor(ctx, spec))
	}
	return views, nil
}

func (r *Registry) healthFor(ctx context.Context, spec *store.ServerSpec) *Health {
	h := &Health{
		ID:          spec.ID,
		Name:        spec.Name,
		Transport:   spec.Type,
		Disabled:    spec.Disabled,
		LastCheckAt: time.Now().UTC(),
		RetryStatus: r.sup.StatusOf(spec.ID),
	}

	r.healthMu.Lock()
	h.LastError = r.lastErrors[spec.ID]
	r.healthMu.Unlock()

	r.mu.Lock()
	d, ok := r.drivers[spec.ID]
	r.mu.Unlock()
	if !ok {
		h.State = "NONE"
		return h
	}

	h.State = d.State().String()
	h.Capabilities = d.Capabilities()
	if d.State() != mcp.StateReady {
		return h
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	start := time.Now()
	var tools mcp.ToolsListResult
	if err := d.Call(probeCtx, "tools/list", nil, &tools); err != nil {
		h.LastError = err.Error()
		r.NoteCallFailure(spec.ID, err)
		return h
	}
	h.Connected = true
	h.ResponseTimeMs = time.Since(start).Milliseconds()
	return h
}

// NoteCallFailure feeds transport-level call failures into retry accounting.
// Tool-level errors and timeouts do not count against the connection. A
// failure that tore the connection down already reached the supervisor
// through the DISCONNECTED listener, so only failures on a driver that is
// still READY are recorded here.
func (r *Registry) NoteCallFailure(id string, err error) {
	var te *mcp.TransportError
	var pe *mcp.ProtocolError
	if !errors.As(err, &te) && !errors.As(err, &pe) {
		return
	}

	r.healthMu.Lock()
	r.lastErrors[id] = err.Error()
	r.healthMu.Unlock()

	r.mu.Lock()
	d, ok := r.drivers[id]
	r.mu.Unlock()
	if !ok || d.State() != mcp.StateReady {
		return
	}
	r.sup.RecordFailure(id)
}

// Shutdown closes every driver and blocks further rebuilds. Idempotent.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.shuttingDown {
		r.mu.Unlock()
		return
	}
	r.shuttingDown = true
	drivers := r.drivers
	r.drivers = make(map[string]mcp.Driver)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for id, d := range drivers {
		wg.Add(1)
		go func(id string, d mcp.Driver) {
			defer wg.Done()
			if err := d.Close(); err != nil {
				r.logger.Warn("driver close failed", "server", id, "error", err)
			}
		}(id, d)
	}
	wg.Wait()
	r.logger.Info("registry shut down", "drivers", len(drivers))
}

// buildLocked acquires the registry lock and builds a driver for spec.
func (r *Registry) buildLocked(ctx context.Context, spec *store.ServerSpec) (mcp.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shuttingDown {
		return nil, ErrShuttingDown
	}
	return r.build(ctx, spec)
}

// build replaces any existing driver for spec.ID with a freshly opened one.
// Caller holds r.mu.
func (r *Registry) build(ctx context.Context, spec *store.ServerSpec) (mcp.Driver, error) {
	if old, ok := r.drivers[spec.ID]; ok {
		delete(r.drivers, spec.ID)
		old.Close()
	}

	d, err := r.factory(r.driverConfig(spec))
	if err != nil {
		r.sup.RecordFailure(spec.ID)
		return nil, err
	}
	if err := d.Open(ctx); err != nil {
		// The driver reports DISCONNECTED on every failed open, so the
		// listener has already done the retry accounting.
		return nil, err
	}

	r.drivers[spec.ID] = d
	r.sup.RecordSuccess(spec.ID)
	r.healthMu.Lock()
	delete(r.lastErrors, spec.ID)
	r.healthMu.Unlock()
	r.logger.Info("server connected", "server", spec.ID, "transport", spec.Type)
	return d, nil
}

func (r *Registry) driverConfig(spec *store.ServerSpec) mcp.Config {
	cfg := mcp.Config{
		ServerID:         spec.ID,
		Transport:        mcp.Transport(spec.Type),
		Command:          spec.Command,
		Args:             spec.Args,
		Env:              spec.Env,
		Endpoint:         spec.URL,
		Headers:          spec.Headers,
		HandshakeTimeout: r.handshakeTimeout,
		StartupTimeout:   r.startupTimeout,
		Logger:           r.logger,
		Listener:         r.onStateChange,
	}
	if spec.TimeoutSeconds > 0 {
		cfg.RequestTimeout = time.Duration(spec.TimeoutSeconds) * time.Second
	}
	return cfg
}

// onStateChange runs on driver goroutines. It only touches the supervisor
// and the health map: taking r.mu here would deadlock the synchronous build
// path, and disconnects after shutdown must stay inert anyway.
func (r *Registry) onStateChange(id string, state mcp.ConnState, err error) {
	if state != mcp.StateDisconnected {
		return
	}
	r.sup.RecordFailure(id)
	r.healthMu.Lock()
	if err != nil {
		r.lastErrors[id] = err.Error()
	}
	r.healthMu.Unlock()
	r.logger.Warn("server disconnected", "server", id, "error", err)
}

func (r *Registry) closeDriver(id string) {
	r.mu.Lock()
	d, ok := r.drivers[id]
	delete(r.drivers, id)
	r.mu.Unlock()
	if ok {
		d.Close()
	}
}
