package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestSweeperStopWithoutStart(t *testing.T) {
	s := NewSweeper(nil, nil, zap.NewNop(), 0, nil)

	done := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without Start")
	}
}

func TestSweeperLoopRestoresGuild(t *testing.T) {
	h := newHarness()
	h.joinBurst("g1", 6, "m")
	h.clock.Advance(10 * time.Minute)

	s := NewSweeper(h.raid, h.spam, zap.NewNop(), 10*time.Millisecond, h.clock.Now)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Start(ctx)

	assert.Eventually(t, func() bool {
		return h.raid.Phase("g1") == PhaseCalm
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()

	assert.Equal(t, 1, h.sink.count(EventRaidEnded))
}

func TestSweeperStopsOnContext(t *testing.T) {
	s := NewSweeper(nil, nil, zap.NewNop(), 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweep loop did not exit")
	}
}

type panickingSettings struct{}

func (panickingSettings) GetSetting(ctx context.Context, guildID, key string) (string, bool, error) {
	panic("settings backend exploded")
}

func TestRunOnceRecoversPanics(t *testing.T) {
	h := newHarness()
	h.joinBurst("g1", 6, "m")
	h.raid.settings = panickingSettings{}

	assert.NotPanics(t, func() {
		h.sweep()
	})
}
