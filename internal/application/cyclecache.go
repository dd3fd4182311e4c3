package application

// cycleCache is a fetch-once map scoped to a single refresh cycle. It makes
// the "fetch if absent, then reuse" lifetime explicit instead of scattering
// ad hoc map checks through the cycle.
type cycleCache[K comparable, V any] struct {
	values map[K]V
}

func newCycleCache[K comparable, V any]() *cycleCache[K, V] {
	return &cycleCache[K, V]{values: make(map[K]V)}
}

// getOrFetch returns the cached value for key, calling fetch on first sight.
// A fetch error is returned without caching, so a later call may retry.
func (c *cycleCache[K, V]) getOrFetch(key K, fetch func() (V, error)) (V, error) {
	if v, ok := c.values[key]; ok {
		return v, nil
	}

	v, err := fetch()
	if err != nil {
		var zero V
		return zero, err
	}

	c.values[key] = v
	return v, nil
}
