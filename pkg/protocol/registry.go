package protocol

import "fmt"

// Registry is the immutable, ordered descriptor list of one exposing side.
type Registry struct {
	procs []Procedure
	index map[string]int
}

// Build keeps each designated name that has a declaration, in designated
// order. Designated names without a declaration are skipped.
func Build(designated []string, declared []Procedure) *Registry {
	byName := make(map[string]Procedure, len(declared))
	for _, p := range declared {
		byName[p.Name] = p
	}
	r := &Registry{
		procs: make([]Procedure, 0, len(designated)),
		index: make(map[string]int, len(designated)),
	}
	for _, name := range designated {
		p, ok := byName[name]
		if !ok {
			continue
		}
		if _, dup := r.index[name]; dup {
			continue
		}
		r.index[name] = len(r.procs)
		r.procs = append(r.procs, p)
	}
	return r
}

// List returns the descriptor list. The same slice is returned on every call;
// callers must not modify it.
func (r *Registry) List() []Procedure {
	return r.procs
}

// Lookup returns the descriptor for name.
func (r *Registry) Lookup(name string) (Procedure, bool) {
	i, ok := r.index[name]
	if !ok {
		return Procedure{}, false
	}
	return r.procs[i], true
}

// Has reports whether name is exposed.
func (r *Registry) Has(name string) bool {
	_, ok := r.index[name]
	return ok
}

// Validate checks each descriptor and that every listed procedure is
// implemented. It is run once at startup.
func (r *Registry) Validate(implemented func(name string) bool) error {
	for _, p := range r.procs {
		if err := p.Validate(); err != nil {
			return err
		}
		if !implemented(p.Name) {
			return fmt.Errorf("%w: %s", ErrUnimplemented, p.Name)
		}
	}
	return nil
}
