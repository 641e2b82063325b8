// Package metrics keeps duration histograms for pool tasks, workflow steps
// and cost tiers.
package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// histogram values are microseconds
	minTrackable = 1
	maxTrackable = int64(time.Hour / time.Microsecond)
	sigFigs      = 3
)

// Summary is a point-in-time view of one series.
type Summary struct {
	Series string        `json:"series"`
	Count  int64         `json:"count"`
	Mean   time.Duration `json:"mean"`
	P50    time.Duration `json:"p50"`
	P95    time.Duration `json:"p95"`
	Max    time.Duration `json:"max"`
}

// Recorder holds one histogram per series. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	series map[string]*hdrhistogram.Histogram
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{series: map[string]*hdrhistogram.Histogram{}}
}

// Observe implements telemetry.Timings. Values outside the trackable range
// are clamped.
func (r *Recorder) Observe(series string, d time.Duration) {
	if r == nil || series == "" {
		return
	}
	v := d.Microseconds()
	if v < minTrackable {
		v = minTrackable
	}
	if v > maxTrackable {
		v = maxTrackable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.series[series]
	if !ok {
		h = hdrhistogram.New(minTrackable, maxTrackable, sigFigs)
		r.series[series] = h
	}
	_ = h.RecordValue(v)
}

// Snapshot returns summaries sorted by series name.
func (r *Recorder) Snapshot() []Summary {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Summary, 0, len(r.series))
	for name, h := range r.series {
		out = append(out, Summary{
			Series: name,
			Count:  h.TotalCount(),
			Mean:   time.Duration(h.Mean()) * time.Microsecond,
			P50:    time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
			P95:    time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
			Max:    time.Duration(h.Max()) * time.Microsecond,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Series < out[j].Series })
	return out
}

// Lookup returns the summary for one series.
func (r *Recorder) Lookup(series string) (Summary, bool) {
	for _, s := range r.Snapshot() {
		if s.Series == series {
			return s, true
		}
	}
	return Summary{}, false
}
