package reembed

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_ReportsByInterval(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 100, 25)
	p.Start()

	p.Add("medical", 10)
	assert.Empty(t, buf.String(), "below the interval nothing is written")

	p.Add("medical", 20)
	out := buf.String()
	assert.Contains(t, out, "Reembedded 30/100 chunks (30.0%)")
	assert.Contains(t, out, "[medical]")
	assert.Contains(t, out, "chunks/s")
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 6, 100)
	p.Start()
	p.Add("medical", 4)
	p.Add("cardiology", 2)

	s := p.Finish()
	assert.Equal(t, 6, s.Chunks)
	assert.Equal(t, map[string]int{"medical": 4, "cardiology": 2}, s.PerNS)
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "6/6 chunks (100.0%) [cardiology]")
	assert.NotContains(t, buf.String(), "ETA")
}

func TestProgressTracker_CapsAtTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 5, 1)
	p.Start()
	p.Add("medical", 9)
	assert.Equal(t, 5, p.Finish().Chunks)
	assert.NotContains(t, buf.String(), "9/5")
}

func TestProgressTracker_ZeroTotal(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 0, 10)
	p.Start()
	s := p.Finish()
	assert.Zero(t, s.Chunks)
	assert.Contains(t, buf.String(), "0/0 chunks (100.0%)")
}

func TestProgressTracker_NotStarted(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 10, 1)
	p.Add("medical", 5)
	assert.Equal(t, Summary{}, p.Finish())
	assert.Empty(t, buf.String())
}

func TestProgressTracker_IgnoresNonPositive(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 10, 1)
	p.Start()
	p.Add("medical", 0)
	p.Add("medical", -3)
	assert.Empty(t, buf.String())
}

func TestProgressTracker_StartResets(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgressTracker(&buf, 10, 100)
	p.Start()
	p.Add("medical", 7)
	p.Start()
	p.Add("medical", 2)
	assert.Equal(t, 2, p.Finish().Chunks)
}
