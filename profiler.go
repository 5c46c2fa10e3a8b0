package rend

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Frame phases timed by the renderer.
const (
	ScopeInstructions = "instructions"
	ScopeResources    = "resources"
	ScopeObjects      = "objects"
	ScopeCulling      = "culling"
	ScopeSubmit       = "submit"
)

// Profiler collects CPU timings of the frame phases and per-frame counters.
// It is owned by the render goroutine.
type Profiler struct {
	Scopes     map[string]time.Duration
	StartTimes map[string]time.Time
	Counts     map[string]int
	Order      []string
}

func NewProfiler() *Profiler {
	return &Profiler{
		Scopes:     make(map[string]time.Duration),
		StartTimes: make(map[string]time.Time),
		Counts:     make(map[string]int),
	}
}

func (p *Profiler) BeginScope(name string) {
	p.StartTimes[name] = time.Now()
	if !slices.Contains(p.Order, name) {
		p.Order = append(p.Order, name)
	}
}

func (p *Profiler) EndScope(name string) {
	if start, ok := p.StartTimes[name]; ok {
		p.Scopes[name] = time.Since(start)
	}
}

func (p *Profiler) SetCount(name string, count int) {
	p.Counts[name] = count
}

// Reset zeroes the timings but keeps scope order.
func (p *Profiler) Reset() {
	for k := range p.Scopes {
		p.Scopes[k] = 0
	}
}

// Timings returns a copy of the last measured duration of each scope.
func (p *Profiler) Timings() map[string]time.Duration {
	return maps.Clone(p.Scopes)
}

func (p *Profiler) StatsString() string {
	var sb strings.Builder

	sb.WriteString("Timings (CPU):\n")
	for _, name := range p.Order {
		ms := float64(p.Scopes[name].Microseconds()) / 1000.0
		fmt.Fprintf(&sb, "  %-15s: %.2f ms\n", name, ms)
	}

	sb.WriteString("\nStats:\n")
	for _, k := range slices.Sorted(maps.Keys(p.Counts)) {
		fmt.Fprintf(&sb, "  %-15s: %d\n", k, p.Counts[k])
	}
	return sb.String()
}
