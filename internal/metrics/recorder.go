package metrics

import "sync"

// Recorder is the run-scoped sample collection. Record may be called from
// any goroutine; observers are notified outside the lock.
type Recorder struct {
	mu        sync.Mutex
	samples   []Sample
	observers []Observer
}

func NewRecorder(observers ...Observer) *Recorder {
	rec := &Recorder{}
	for _, o := range observers {
		if o != nil {
			rec.observers = append(rec.observers, o)
		}
	}
	return rec
}

// Record appends s to the collection.
func (r *Recorder) Record(s Sample) {
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
	for _, o := range r.observers {
		o.Observe(s)
	}
}

// RecordDropped notifies observers that an arrival was never dispatched.
func (r *Recorder) RecordDropped() {
	for _, o := range r.observers {
		if d, ok := o.(DropObserver); ok {
			d.ObserveDropped()
		}
	}
}

// Len returns the number of samples recorded so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Samples returns a copy of the collection.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}
