package catalog

// Resolution colors for the strict depth-first resolver.
const (
	colorWhite = iota // not visited
	colorGrey         // on the active path
	colorBlack        // fully resolved
)

// ResolveDependencies returns the full dependency chain for name, in
// installation order, ending with name itself.
//
// This is the strict resolver: it fails with ErrCircularDependency the moment
// an application is revisited while still on the active path, and with
// ErrAppNotFound when a dependency has no catalog entry. Contrast with
// depgraph.Resolve, which silently returns a partial result.
func (c *Catalog) ResolveDependencies(name string) ([]string, error) {
	colors := make(map[string]int, len(c.apps))
	var order []string

	var visit func(n string) error
	visit = func(n string) error {
		switch colors[n] {
		case colorBlack:
			return nil
		case colorGrey:
			return &AppError{Op: "ResolveDependencies", App: n, Err: ErrCircularDependency}
		}

		app, ok := c.apps[n]
		if !ok {
			return &AppError{Op: "ResolveDependencies", App: n, Err: ErrAppNotFound}
		}

		colors[n] = colorGrey
		for _, dep := range app.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		colors[n] = colorBlack
		order = append(order, n)
		return nil
	}

	if err := visit(name); err != nil {
		return nil, err
	}
	return order, nil
}
