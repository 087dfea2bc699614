package app

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// FrameSteps are the recording steps of one splat frame, in order.
var FrameSteps = []string{"Reset", "Preprocess", "Sort", "Propagate", "Render"}

// smoothing is the weight of the newest sample in Scope.Avg.
const smoothing = 0.1

// Scope is the CPU time spent in one named step.
type Scope struct {
	Last time.Duration
	Avg  time.Duration
	Hits int
}

// Profiler times named steps and keeps counters. Steps are listed in the
// order they were first timed.
type Profiler struct {
	Scopes map[string]*Scope
	Counts map[string]int
	Order  []string

	started map[string]time.Time
	now     func() time.Time
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:  make(map[string]*Scope),
		Counts:  make(map[string]int),
		started: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (p *Profiler) BeginScope(name string) {
	p.started[name] = p.now()
}

func (p *Profiler) EndScope(name string) {
	start, ok := p.started[name]
	if !ok {
		return
	}
	delete(p.started, name)
	p.add(name, p.now().Sub(start))
}

func (p *Profiler) add(name string, d time.Duration) {
	s, ok := p.Scopes[name]
	if !ok {
		s = &Scope{Avg: d}
		p.Scopes[name] = s
		p.Order = append(p.Order, name)
	}
	s.Last = d
	if s.Hits > 0 {
		s.Avg += time.Duration(smoothing * float64(d-s.Avg))
	}
	s.Hits++
}

// Time runs fn as the scope name.
func (p *Profiler) Time(name string, fn func()) {
	p.BeginScope(name)
	defer p.EndScope(name)
	fn()
}

func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

// FrameTotal sums the last sample of every frame step.
func (p *Profiler) FrameTotal() time.Duration {
	var total time.Duration
	for _, name := range FrameSteps {
		if s, ok := p.Scopes[name]; ok {
			total += s.Last
		}
	}
	return total
}

func (p *Profiler) GetStatsString() string {
	var sb strings.Builder

	sb.WriteString("Record (CPU, avg):\n")
	for _, name := range p.Order {
		fmt.Fprintf(&sb, "  %-11s %6.3f ms\n", name, ms(p.Scopes[name].Avg))
	}
	fmt.Fprintf(&sb, "  %-11s %6.3f ms\n", "Frame", ms(p.FrameTotal()))

	if len(p.Counts) > 0 {
		sb.WriteString("\n")
		keys := make([]string, 0, len(p.Counts))
		for k := range p.Counts {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %-11s %d\n", k, p.Counts[k])
		}
	}
	return sb.String()
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
