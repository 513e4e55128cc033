package cache

// Metrics receives cache events. A nil Metrics is valid and free: the
// strategies guard every call, so disabling metrics costs nothing.
// The Prometheus implementation lives in pkg/metrics to keep this
// package dependency-light.
type Metrics interface {
	// ObserveHit records a lookup served from the cache.
	ObserveHit()

	// ObserveMiss records a lookup that fell through to storage.
	ObserveMiss()

	// ObserveEviction records an entry pushed out under capacity pressure.
	ObserveEviction()

	// SetEntries reports the current resident entry count.
	SetEntries(n int)
}

func observeHit(m Metrics) {
	if m != nil {
		m.ObserveHit()
	}
}

func observeMiss(m Metrics) {
	if m != nil {
		m.ObserveMiss()
	}
}

func observeEviction(m Metrics) {
	if m != nil {
		m.ObserveEviction()
	}
}

func setEntries(m Metrics, n int) {
	if m != nil {
		m.SetEntries(n)
	}
}
