package registry

// Discover walks roots via the configured Discoverer, orders the result
// by declared dependency (§4.3), and registers every module in that
// order. Returns the number of modules actually registered.
//
// Per §4.1 step 8 / §7, a single module's onLoad (or registration)
// failure during discovery is logged and dropped — rolled back, not
// propagated — so one bad extension never prevents the rest of the
// batch from loading. This mirrors the explicit silent-drop resilience
// already applied to entry-point resolution (step 4) and structural
// validation (step 5); only an unreadable directory during the scan and
// the dependency ordering step (step 7) can still fail the whole call,
// since a cycle or missing required dependency makes the load order
// itself undefined.
func (r *Registry) Discover(roots []string) (int, error) {
	r.mu.RLock()
	disc := r.discoverer
	r.mu.RUnlock()

	found, err := disc.Discover(roots)
	if err != nil {
		return 0, err
	}

	ordered, err := OrderDiscovered(found)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, d := range ordered {
		if err := r.registerDiscovered(d); err != nil {
			r.logger.Error().Err(err).Str("module_id", d.ModuleID).Str("path", d.Path).
				Msg("dropping module during discovery")
			continue
		}
		count++
	}
	return count, nil
}

func (r *Registry) registerDiscovered(d DiscoveredModule) error {
	if err := r.Register(d.ModuleID, d.Module); err != nil {
		return err
	}
	r.MergeMetadata(d.ModuleID, d.Meta)

	r.mu.Lock()
	r.pathByID[d.ModuleID] = d.Path
	r.idByPath[d.Path] = d.ModuleID
	r.mu.Unlock()
	return nil
}

// moduleIDForPath returns the module id registered from manifest path, if
// any, used by the hot-reload watch to resolve delete/rename events.
func (r *Registry) moduleIDForPath(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.idByPath[path]
	return id, ok
}
