package jobs

import (
	"sort"
)

// Registry maps job types to executor functions.
//
// The mapping is built once at the composition root and read-only afterwards,
// so lookups need no locking. Dynamic registration at runtime is deliberately
// not supported.
type Registry struct {
	funcs map[string]Func
}

func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register binds a job type to its executor function. Later registrations
// for the same type replace earlier ones; composition roots register each
// type exactly once.
func (r *Registry) Register(jobType string, fn Func) {
	r.funcs[jobType] = fn
}

// Lookup returns the executor function for a job type.
func (r *Registry) Lookup(jobType string) (Func, error) {
	fn, ok := r.funcs[jobType]
	if !ok {
		return nil, &JobError{Op: "Lookup", Err: ErrUnknownJobType}
	}
	return fn, nil
}

// Types returns the registered job types, sorted, for diagnostics.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.funcs))
	for t := range r.funcs {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
