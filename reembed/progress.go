package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker reports how many chunks a reembedding run has rewritten.
// A line is written whenever at least reportInterval chunks have been added
// since the previous line.
type ProgressTracker struct {
	mu       sync.Mutex
	w        io.Writer
	total    int
	interval int

	done      int
	reported  int
	namespace string
	perNS     map[string]int
	start     time.Time
	running   bool
}

// Summary describes a finished run.
type Summary struct {
	Chunks    int
	PerNS     map[string]int
	Elapsed   time.Duration
	PerSecond float64
}

func NewProgressTracker(w io.Writer, total, reportInterval int) *ProgressTracker {
	if reportInterval <= 0 {
		reportInterval = 1
	}
	return &ProgressTracker{
		w:        w,
		total:    total,
		interval: reportInterval,
		perNS:    make(map[string]int),
	}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.start = time.Now()
	p.running = true
	p.done, p.reported = 0, 0
	clear(p.perNS)
}

// Add records n chunks rewritten in namespace. Calls before Start are ignored.
func (p *ProgressTracker) Add(namespace string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running || n <= 0 {
		return
	}
	p.done = min(p.done+n, p.total)
	p.perNS[namespace] += n
	p.namespace = namespace
	if p.done-p.reported >= p.interval {
		p.line()
		p.reported = p.done
	}
}

// Finish writes a final line and returns the run summary.
func (p *ProgressTracker) Finish() Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return Summary{}
	}
	p.running = false
	p.line()
	fmt.Fprintln(p.w)

	elapsed := time.Since(p.start)
	s := Summary{Chunks: p.done, PerNS: make(map[string]int, len(p.perNS)), Elapsed: elapsed}
	for ns, n := range p.perNS {
		s.PerNS[ns] = n
	}
	if secs := elapsed.Seconds(); secs > 0 {
		s.PerSecond = float64(p.done) / secs
	}
	return s
}

// line must be called with mu held.
func (p *ProgressTracker) line() {
	pct := 100.0
	if p.total > 0 {
		pct = float64(p.done) / float64(p.total) * 100
	}
	rate := 0.0
	if secs := time.Since(p.start).Seconds(); secs > 0 {
		rate = float64(p.done) / secs
	}
	fmt.Fprintf(p.w, "\rReembedded %d/%d chunks (%.1f%%)", p.done, p.total, pct)
	if p.namespace != "" {
		fmt.Fprintf(p.w, " [%s]", p.namespace)
	}
	fmt.Fprintf(p.w, " %.1f chunks/s", rate)
	if left := p.total - p.done; left > 0 && rate > 0 {
		eta := time.Duration(float64(left) / rate * float64(time.Second))
		fmt.Fprintf(p.w, " ETA %v", eta.Round(time.Second))
	}
}
