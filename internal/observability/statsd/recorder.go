package statsd

import (
	"sync"
	"time"
)

// Metric is one recorded emission.
type Metric struct {
	Name     string
	Count    int64
	Duration time.Duration
	Tags     map[string]string
}

// Recorder is an in-memory Sink for tests.
type Recorder struct {
	mu      sync.Mutex
	metrics []Metric
}

var _ Sink = (*Recorder)(nil)

func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.record(Metric{Name: name, Count: value, Tags: cloneTags(tags)})
}

func (r *Recorder) Timing(name string, value time.Duration, tags map[string]string) {
	r.record(Metric{Name: name, Duration: value, Tags: cloneTags(tags)})
}

func (r *Recorder) record(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = append(r.metrics, m)
}

// Named returns the recorded metrics called name, in emission order.
func (r *Recorder) Named(name string) []Metric {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Metric
	for _, m := range r.metrics {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}
