package rend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProfiler_ScopesAndCounts(t *testing.T) {
	p := NewProfiler()
	p.BeginScope("b")
	time.Sleep(time.Millisecond)
	p.EndScope("b")
	p.BeginScope("a")
	p.EndScope("a")
	p.BeginScope("b")
	p.EndScope("b")
	p.SetCount("objects", 3)

	assert.Equal(t, []string{"b", "a"}, p.Order)
	out := p.StatsString()
	assert.Contains(t, out, "objects")
	assert.Contains(t, out, "Timings (CPU):")

	timings := p.Timings()
	p.Reset()
	assert.Zero(t, p.Scopes["b"])
	assert.Contains(t, timings, "b", "timings are a copy")
}
