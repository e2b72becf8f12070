package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateWindowHorizon(t *testing.T) {
	assert := assert.New(t)

	w := NewRateWindow(100)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(1, w.Record("k", t0, 10*time.Second))
	assert.Equal(2, w.Record("k", t0.Add(5*time.Second), 10*time.Second))
	// the entry exactly at the cutoff stays
	assert.Equal(3, w.Record("k", t0.Add(10*time.Second), 10*time.Second))
	assert.Equal(3, w.Record("k", t0.Add(11*time.Second), 10*time.Second))
	assert.Equal(3, w.Count("k"))
}

func TestRateWindowCapacity(t *testing.T) {
	assert := assert.New(t)

	w := NewRateWindow(3)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		w.Record("k", t0.Add(time.Duration(i)*time.Millisecond), time.Minute)
	}
	assert.Equal(3, w.Count("k"))

	latest, ok := w.Latest("k")
	assert.True(ok)
	assert.Equal(t0.Add(4*time.Millisecond), latest)

	assert.Equal(1, NewRateWindow(0).Record("k", t0, time.Minute))
	assert.Equal(1, NewRateWindow(0).Record("k", t0, time.Minute))
}

func TestRateWindowKeysAreIndependent(t *testing.T) {
	assert := assert.New(t)

	w := NewRateWindow(10)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w.Record("a", t0, time.Minute)
	w.Record("a", t0, time.Minute)
	w.Record("b", t0, time.Minute)

	assert.Equal(2, w.Count("a"))
	assert.Equal(1, w.Count("b"))
	assert.ElementsMatch([]string{"a", "b"}, w.Keys())

	w.Clear("a")
	assert.Equal(0, w.Count("a"))
	assert.Equal([]string{"b"}, w.Keys())
}

func TestRateWindowPrune(t *testing.T) {
	assert := assert.New(t)

	w := NewRateWindow(10)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w.Record("k", t0, 10*time.Second)
	w.Record("k", t0.Add(8*time.Second), 10*time.Second)

	assert.Equal(1, w.Prune("k", t0.Add(15*time.Second)))
	assert.Equal(0, w.Prune("k", t0.Add(30*time.Second)))
	assert.Empty(w.Keys())

	_, ok := w.Latest("k")
	assert.False(ok)
	assert.Equal(0, w.Prune("missing", t0))
}
