// Package workspace is the operation surface of the planning substrate. A
// Registry owns one orchestrator per workspace and a Service turns every
// operation into an Envelope, so no error or panic escapes to the caller.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"sync"

	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/eventlog"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/generator"
	"github.com/vaquev01/Bravvo-Binder-sub001/pkg/orchestrator"
)

// ErrInvalidWorkspace is returned for a malformed workspace id.
var ErrInvalidWorkspace = errors.New("workspace: invalid workspace id")

var workspaceIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,63}$`)

// Factory builds the orchestrator of one workspace.
type Factory func(ctx context.Context, workspaceID string) (*orchestrator.Orchestrator, error)

// StoreFunc returns the event store backing a workspace.
type StoreFunc func(ctx context.Context, workspaceID string) (eventlog.Store, error)

// SharedStore serves every workspace from one store. Each workspace gets a
// view that stamps its events and only queries its own, so tenants sharing a
// database never see each other's log. The store must implement
// eventlog.WorkspaceScoper (directly or as the log of a Compose).
func SharedStore(store eventlog.Store) StoreFunc {
	return func(_ context.Context, workspaceID string) (eventlog.Store, error) {
		return eventlog.ForWorkspace(store, workspaceID)
	}
}

// IsolatedMemoryStores gives each workspace its own in-memory log.
func IsolatedMemoryStores() StoreFunc {
	return func(context.Context, string) (eventlog.Store, error) { return eventlog.NewMemoryStore(), nil }
}

// NewFactory returns a Factory that builds orchestrators over stores and
// resumes each from its latest snapshot when one exists.
func NewFactory(stores StoreFunc, gen generator.Generator, opts ...orchestrator.Option) Factory {
	return func(ctx context.Context, workspaceID string) (*orchestrator.Orchestrator, error) {
		store, err := stores(ctx, workspaceID)
		if err != nil {
			return nil, fmt.Errorf("workspace %s: event store: %w", workspaceID, err)
		}
		all := append(append([]orchestrator.Option(nil), opts...), orchestrator.WithWorkspaceID(workspaceID))
		orch, err := orchestrator.New(store, gen, all...)
		if err != nil {
			return nil, err
		}
		if err := orch.Restore(ctx); err != nil && !errors.Is(err, orchestrator.ErrNotFound) {
			orch.Close()
			return nil, fmt.Errorf("workspace %s: restore: %w", workspaceID, err)
		}
		return orch, nil
	}
}

// Registry lazily creates and caches orchestrators by workspace id.
type Registry struct {
	mu            sync.Mutex
	factory       Factory
	orchestrators map[string]*orchestrator.Orchestrator
	logger        *slog.Logger
}

// NewRegistry returns an empty registry.
func NewRegistry(factory Factory, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		factory:       factory,
		orchestrators: make(map[string]*orchestrator.Orchestrator),
		logger:        logger.With("component", "workspace_registry"),
	}
}

// Get returns the orchestrator of workspaceID, building it on first use.
func (r *Registry) Get(ctx context.Context, workspaceID string) (*orchestrator.Orchestrator, error) {
	if !workspaceIDPattern.MatchString(workspaceID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWorkspace, workspaceID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if orch, ok := r.orchestrators[workspaceID]; ok {
		return orch, nil
	}
	orch, err := r.factory(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	r.orchestrators[workspaceID] = orch
	r.logger.InfoContext(ctx, "workspace opened", "workspace_id", workspaceID)
	return orch, nil
}

// IDs lists the open workspaces, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.orchestrators))
	for id := range r.orchestrators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close detaches every orchestrator and empties the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, orch := range r.orchestrators {
		orch.Close()
		delete(r.orchestrators, id)
	}
}
