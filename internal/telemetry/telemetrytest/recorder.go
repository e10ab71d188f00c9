// Package telemetrytest provides an in-memory telemetry.Metrics for tests.
package telemetrytest

import "sync"

// Kind distinguishes counter from distribution emissions.
type Kind string

const (
	KindCount        Kind = "count"
	KindDistribution Kind = "distribution"
)

// Emission is one recorded metric call.
type Emission struct {
	Kind  Kind
	Name  string
	Value float64
	Tags  map[string]string
}

// Recorder stores every emission in call order.
type Recorder struct {
	mu        sync.Mutex
	emissions []Emission
}

func (r *Recorder) Count(name string, tags map[string]string) {
	r.record(Emission{Kind: KindCount, Name: name, Value: 1, Tags: copyTags(tags)})
}

func (r *Recorder) Distribution(name string, value float64, tags map[string]string) {
	r.record(Emission{Kind: KindDistribution, Name: name, Value: value, Tags: copyTags(tags)})
}

func (r *Recorder) record(e Emission) {
	r.mu.Lock()
	r.emissions = append(r.emissions, e)
	r.mu.Unlock()
}

// All returns a copy of the recorded emissions.
func (r *Recorder) All() []Emission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Emission(nil), r.emissions...)
}

// Named returns the emissions with the given name.
func (r *Recorder) Named(name string) []Emission {
	var out []Emission
	for _, e := range r.All() {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func copyTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
