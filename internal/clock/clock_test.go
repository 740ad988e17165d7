package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f := NewFake(start)
	assert.Equal(t, start, f.Now())

	f.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), f.Now())

	pinned := start.Add(time.Hour)
	f.Set(pinned)
	assert.Equal(t, pinned, f.Now())
}

func TestRealTracksWallClock(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	after := time.Now()
	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}
