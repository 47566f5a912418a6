package daemon

import "github.com/sysgio/sysg/internal/sysgerr"

// topoSort orders units so that every unit appears after all of its
// depends_on entries, per spec.md §4.5's bulk-start ordering. Cycles and
// missing dependencies are reported as *sysgerr.DependencyError, naming
// both the service and the offending dependency.
func topoSort(units []Unit) ([]Unit, error) {
	byName := make(map[string]Unit, len(units))
	for _, u := range units {
		byName[u.Name] = u
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int, len(units))
	var order []Unit

	var visit func(name string) error
	visit = func(name string) error {
		u, ok := byName[name]
		if !ok {
			return nil // dependency resolution validated names already exist; defensive no-op
		}
		switch color[name] {
		case black:
			return nil
		case gray:
			return &sysgerr.DependencyError{Service: name, Cyclic: true}
		}
		color[name] = gray
		for _, dep := range u.Spec.DependsOn {
			if _, ok := byName[dep]; !ok {
				return &sysgerr.DependencyError{Service: name, Dependency: dep}
			}
			if color[dep] == gray {
				return &sysgerr.DependencyError{Service: name, Dependency: dep, Cyclic: true}
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		order = append(order, u)
		return nil
	}

	for _, u := range units {
		if err := visit(u.Name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
