// Package catalog implements the CatalogCache: a TTL-refreshed, read-hot
// snapshot of workflow specs and task resources backed by a durable
// Source (Postgres via internal/infrastructure/storage), with single-
// flight refresh so concurrent cache misses collapse into one reload.
// Grounded on the teacher's condition_cache.go TTL-cache shape
// (backend/internal/application/engine/condition_cache.go) generalized
// from a single-value cache to a dual workflow/task snapshot. Change
// notifications go to in-process OnChange listeners, called synchronously
// at the end of a reload.
package catalog

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/flowgate/engine/internal/domain"
	"github.com/flowgate/engine/internal/infrastructure/logger"
)

// Source loads the full workflow/task catalog from durable storage.
type Source interface {
	LoadWorkflows(ctx context.Context) ([]domain.WorkflowSpec, error)
	LoadTasks(ctx context.Context) ([]domain.TaskResource, error)
}

// ChangeListener is notified when a refresh detects workflows added or
// removed since the previous snapshot, keyed by workflow name.
type ChangeListener func(added, removed []string)

type snapshot struct {
	workflows map[string]domain.WorkflowSpec
	tasks     map[string]domain.TaskResource
	loadedAt  time.Time
}

// Cache is the read-hot, TTL-bounded catalog. Zero value is not usable;
// construct with New.
type Cache struct {
	source Source
	ttl    time.Duration
	log    *logger.Logger

	current atomic.Pointer[snapshot]
	group   singleflight.Group

	listeners []ChangeListener
}

func New(source Source, ttl time.Duration, log *logger.Logger) *Cache {
	if log == nil {
		log = logger.Noop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	c := &Cache{source: source, ttl: ttl, log: log}
	c.current.Store(&snapshot{workflows: map[string]domain.WorkflowSpec{}, tasks: map[string]domain.TaskResource{}})
	return c
}

// OnChange registers a listener invoked after every refresh that adds or
// removes a workflow. Not safe to call concurrently with Refresh.
func (c *Cache) OnChange(fn ChangeListener) {
	c.listeners = append(c.listeners, fn)
}

// GetWorkflow returns the named workflow, refreshing the snapshot first
// if it has gone stale.
func (c *Cache) GetWorkflow(ctx context.Context, name string) (domain.WorkflowSpec, bool) {
	snap := c.ensureFresh(ctx)
	w, ok := snap.workflows[name]
	return w, ok
}

// GetTask returns the named task resource, refreshing the snapshot first
// if it has gone stale.
func (c *Cache) GetTask(ctx context.Context, taskRef string) (domain.TaskResource, bool) {
	snap := c.ensureFresh(ctx)
	t, ok := snap.tasks[taskRef]
	return t, ok
}

// ListWorkflows returns every cached workflow spec, refreshing first if
// stale. Used by the trigger loop to scan for due schedules and matching
// webhook paths without a per-name lookup.
func (c *Cache) ListWorkflows(ctx context.Context) []domain.WorkflowSpec {
	snap := c.ensureFresh(ctx)
	out := make([]domain.WorkflowSpec, 0, len(snap.workflows))
	for _, w := range snap.workflows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Refresh forces an immediate reload regardless of TTL staleness.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, _ := c.group.Do("refresh", func() (any, error) {
		return nil, c.reload(ctx)
	})
	return err
}

func (c *Cache) ensureFresh(ctx context.Context) *snapshot {
	snap := c.current.Load()
	if time.Since(snap.loadedAt) < c.ttl {
		return snap
	}
	// Single-flight collapses concurrent cache-miss refreshes into one
	// reload; stragglers block briefly rather than stampeding the source.
	c.group.Do("refresh", func() (any, error) {
		return nil, c.reload(ctx)
	})
	return c.current.Load()
}

func (c *Cache) reload(ctx context.Context) error {
	workflows, err := c.source.LoadWorkflows(ctx)
	if err != nil {
		c.log.ErrorContext(ctx, "catalog: failed to load workflows, keeping stale snapshot", "error", err)
		// Re-stamp loadedAt so a failing source does not retry on every
		// single request; callers still get the last-known-good catalog.
		stale := c.current.Load()
		c.current.Store(&snapshot{workflows: stale.workflows, tasks: stale.tasks, loadedAt: time.Now()})
		return err
	}
	tasks, err := c.source.LoadTasks(ctx)
	if err != nil {
		c.log.ErrorContext(ctx, "catalog: failed to load tasks, keeping stale snapshot", "error", err)
		stale := c.current.Load()
		c.current.Store(&snapshot{workflows: stale.workflows, tasks: stale.tasks, loadedAt: time.Now()})
		return err
	}

	next := &snapshot{
		workflows: make(map[string]domain.WorkflowSpec, len(workflows)),
		tasks:     make(map[string]domain.TaskResource, len(tasks)),
		loadedAt:  time.Now(),
	}
	for _, w := range workflows {
		next.workflows[w.Name] = w
	}
	for _, t := range tasks {
		next.tasks[t.Name] = t
	}

	prev := c.current.Load()
	added, removed := diffNames(prev.workflows, next.workflows)
	c.current.Store(next)

	if len(added) > 0 || len(removed) > 0 {
		for _, listener := range c.listeners {
			listener(added, removed)
		}
	}
	return nil
}

func diffNames(prev, next map[string]domain.WorkflowSpec) (added, removed []string) {
	for name := range next {
		if _, ok := prev[name]; !ok {
			added = append(added, name)
		}
	}
	for name := range prev {
		if _, ok := next[name]; !ok {
			removed = append(removed, name)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
