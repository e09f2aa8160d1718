package metric

import (
	"fmt"
	"slices"
	"sync"
	"time"
)

// Registry holds the metrics of a process (or of a component) by Name.
// A metric is created once per name and never replaced, so callers can
// keep the returned object and update it without touching the registry
// again.
type Registry struct {
	cfg *MConfig

	mu      sync.RWMutex
	metrics map[Name]Metric
}

// NewRegistry creates an empty registry. The options become the defaults of
// every metric it creates.
func NewRegistry(opts ...MOption) *Registry {
	return &Registry{
		cfg:     newMConfig(nil, opts...),
		metrics: make(map[Name]Metric),
	}
}

// SetDefaults applies opts on top of the defaults given to NewRegistry.
// Metrics already registered keep the configuration they were created with.
func (r *Registry) SetDefaults(opts ...MOption) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = newMConfig(r.cfg, opts...)
}

// GetOrCreate returns the metric registered under name, creating it with
// factory if there is none. factory is called at most once per name and
// only while the name is absent. If the name is registered with a metric
// of another kind, or factory returns a metric of another kind, the error
// is a *KindMismatchError.
func (r *Registry) GetOrCreate(name Name, kind Kind, factory func() Metric) (Metric, error) {
	r.mu.RLock()
	m, ok := r.metrics[name]
	r.mu.RUnlock()
	if ok {
		return checkKind(name, m, kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[name]; ok {
		return checkKind(name, m, kind)
	}
	m = factory()
	if m == nil {
		return nil, fmt.Errorf("metric %q: factory returned nil", name.Path())
	}
	if m.Kind() != kind {
		return nil, &KindMismatchError{Name: name, Existing: m.Kind(), Wanted: kind}
	}
	r.metrics[name] = m
	return m, nil
}

func checkKind(name Name, m Metric, kind Kind) (Metric, error) {
	if m.Kind() != kind {
		return nil, &KindMismatchError{Name: name, Existing: m.Kind(), Wanted: kind}
	}
	return m, nil
}

// Counter returns the counter registered under name, creating it if needed.
func (r *Registry) Counter(name Name) (*Counter, error) {
	m, err := r.GetOrCreate(name, KindCounter, func() Metric { return NewCounter() })
	if err != nil {
		return nil, err
	}
	return m.(*Counter), nil
}

// Gauge registers g under name. If a gauge is already registered there,
// that one is returned and g is discarded.
func (r *Registry) Gauge(name Name, g *Gauge) (*Gauge, error) {
	m, err := r.GetOrCreate(name, KindGauge, func() Metric { return g })
	if err != nil {
		return nil, err
	}
	return m.(*Gauge), nil
}

// Histogram returns the histogram registered under name, creating it if
// needed with the reservoir selected by the options.
func (r *Registry) Histogram(name Name, opts ...MOption) (*Histogram, error) {
	m, err := r.GetOrCreate(name, KindHistogram, func() Metric {
		cfg := newMConfig(r.cfg, opts...)
		return NewHistogram(cfg.reservoir(cfg))
	})
	if err != nil {
		return nil, err
	}
	return m.(*Histogram), nil
}

// Meter returns the meter registered under name, creating it if needed.
func (r *Registry) Meter(name Name, eventType string, opts ...MOption) (*Meter, error) {
	m, err := r.GetOrCreate(name, KindMeter, func() Metric {
		return newMeter(eventType, newMConfig(r.cfg, opts...))
	})
	if err != nil {
		return nil, err
	}
	return m.(*Meter), nil
}

// Timer returns the timer registered under name, creating it if needed.
func (r *Registry) Timer(name Name, opts ...MOption) (*Timer, error) {
	m, err := r.GetOrCreate(name, KindTimer, func() Metric {
		return newTimer(newMConfig(r.cfg, opts...))
	})
	if err != nil {
		return nil, err
	}
	return m.(*Timer), nil
}

// Get looks up a metric without creating it.
func (r *Registry) Get(name Name) (Metric, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metrics[name]
	return m, ok
}

// Remove detaches the metric registered under name. A later create for the
// name starts from fresh state. Holders of the old metric can keep using
// it, but it is no longer reported.
func (r *Registry) Remove(name Name) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.metrics[name]
	delete(r.metrics, name)
	return ok
}

// Len is the number of registered metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.metrics)
}

// Names returns the registered names in order.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	names := make([]Name, 0, len(r.metrics))
	for n := range r.metrics {
		names = append(names, n)
	}
	r.mu.RUnlock()
	slices.SortFunc(names, Name.Compare)
	return names
}

// Now is the registry's clock. Reporters use it for timestamps so tests can
// drive a whole pipeline from one fake clock.
func (r *Registry) Now() time.Time {
	r.mu.RLock()
	now := r.cfg.now
	r.mu.RUnlock()
	return now()
}

// Entry is one metric in the result of AllMetrics.
type Entry struct {
	Name   Name
	Metric Metric
}

// Group is the metrics sharing one group key, sorted by name.
type Group struct {
	Key     string
	Entries []Entry
}

// AllMetrics returns every metric grouped by group key, with groups and
// entries sorted. The map is copied under the read lock and sorted outside
// it, so producers creating metrics are never held up by a reporter.
func (r *Registry) AllMetrics() []Group {
	return r.Select(All)
}

// Select is AllMetrics restricted to the metrics accepted by pred.
func (r *Registry) Select(pred Predicate) []Group {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.metrics))
	for n, m := range r.metrics {
		entries = append(entries, Entry{Name: n, Metric: m})
	}
	r.mu.RUnlock()
	return SortAndFilter(entries, pred)
}

// SortAndFilter groups the entries accepted by pred by group key, sorting
// groups by key and entries by name.
func SortAndFilter(entries []Entry, pred Predicate) []Group {
	if pred == nil {
		pred = All
	}
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if pred(e.Name, e.Metric) {
			kept = append(kept, e)
		}
	}
	slices.SortFunc(kept, func(a, b Entry) int { return a.Name.Compare(b.Name) })

	var groups []Group
	for _, e := range kept {
		key := e.Name.GroupKey()
		if len(groups) == 0 || groups[len(groups)-1].Key != key {
			groups = append(groups, Group{Key: key})
		}
		g := &groups[len(groups)-1]
		g.Entries = append(g.Entries, e)
	}
	return groups
}
