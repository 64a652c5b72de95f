package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one scheduled escrow task. Names label metrics and select jobs for
// one-off runs, so they must be unique within a registry.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry keeps jobs in registration order.
type Registry struct {
	jobs  []Job
	names map[string]int
}

// NewRegistry builds a registry from the provided jobs. Nil jobs are skipped.
func NewRegistry(jobs ...Job) (*Registry, error) {
	registry := &Registry{names: map[string]int{}}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if err := registry.Register(job); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Register adds a job, rejecting blank or duplicate names.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return fmt.Errorf("job required")
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("job name required")
	}
	if _, exists := r.names[name]; exists {
		return fmt.Errorf("job %q registered twice", name)
	}
	r.names[name] = len(r.jobs)
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns the registered jobs in the order they were added.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}

// Select returns the named jobs in registration order. No names selects all.
func (r *Registry) Select(names ...string) ([]Job, error) {
	if len(names) == 0 {
		return r.Jobs(), nil
	}
	wanted := make(map[int]bool, len(names))
	for _, name := range names {
		idx, ok := r.names[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown job %q (registered: %s)", name, strings.Join(r.Names(), ", "))
		}
		wanted[idx] = true
	}
	selected := make([]Job, 0, len(wanted))
	for idx, job := range r.jobs {
		if wanted[idx] {
			selected = append(selected, job)
		}
	}
	return selected, nil
}

// Names lists the registered job names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for _, job := range r.jobs {
		names = append(names, job.Name())
	}
	return names
}
