package task

import (
	"fmt"
	"sort"
)

// Registry is the closed set of task handlers, resolved at startup.
// Dispatch is by exact ID; there is no open-ended lookup.
type Registry struct {
	tasks map[string]Task
}

// NewRegistry creates a registry with all default tasks.
func NewRegistry(version string) *Registry {
	r := &Registry{tasks: make(map[string]Task)}

	r.Register(NewReportTask(version))
	r.Register(NewBrewTask())
	r.Register(NewFindOrphansTask())
	r.Register(NewArchiveOrphansTask())
	r.Register(NewCleanupArchivesTask())
	r.Register(NewChromeTask())
	r.Register(NewCopyTask())

	return r
}

// NewRegistryWithTasks creates a registry with custom tasks (for testing).
func NewRegistryWithTasks(tasks ...Task) *Registry {
	r := &Registry{tasks: make(map[string]Task)}
	for _, t := range tasks {
		r.Register(t)
	}
	return r
}

// Register adds a task to the registry.
func (r *Registry) Register(t Task) {
	r.tasks[t.ID()] = t
}

// Get returns a task by ID.
func (r *Registry) Get(id string) (Task, error) {
	t, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("unknown task: %s", id)
	}
	return t, nil
}

// List returns all task IDs, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.tasks))
	for id := range r.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetAll returns all registered tasks in ID order.
func (r *Registry) GetAll() []Task {
	out := make([]Task, 0, len(r.tasks))
	for _, id := range r.List() {
		out = append(out, r.tasks[id])
	}
	return out
}
