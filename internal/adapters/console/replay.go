package console

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/adapters/discord"
	"github.com/mikey/guild-sentinel/internal/core"
	"github.com/mikey/guild-sentinel/internal/ports"
)

// Record is one line of a replay file
type Record struct {
	Type      string    `json:"type"`
	At        time.Time `json:"at"`
	GuildID   string    `json:"guild_id"`
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Bot       bool      `json:"bot,omitempty"`
}

// Clock is a settable time source shared by the engine during a replay
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock at t
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the clock's current time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock; it never moves backwards
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

// Sweeper is the part of the reconciliation sweep the replay drives
type Sweeper interface {
	RunOnce(ctx context.Context, now time.Time)
}

// ReplaySource feeds recorded events through the engine on a virtual
// clock, running the sweep whenever a sweep interval of virtual time passes
type ReplaySource struct {
	in       io.Reader
	handler  discord.Handler
	sweeper  Sweeper
	clock    *Clock
	interval time.Duration
	logger   *zap.Logger

	processed int
	sweeps    int
	guilds    []string
	seen      map[string]struct{}
}

var _ ports.EventSource = (*ReplaySource)(nil)

// NewReplaySource creates a replay source
func NewReplaySource(in io.Reader, handler discord.Handler, sweeper Sweeper, clock *Clock, interval time.Duration, logger *zap.Logger) *ReplaySource {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ReplaySource{
		in:       in,
		handler:  handler,
		sweeper:  sweeper,
		clock:    clock,
		interval: interval,
		logger:   logger,
		seen:     make(map[string]struct{}),
	}
}

// Start replays the whole input and returns when it is exhausted
func (r *ReplaySource) Start() error {
	return r.Run(context.Background())
}

// Stop closes the input when it is closable
func (r *ReplaySource) Stop() error {
	if closer, ok := r.in.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Run replays the input. Records must be in time order; a record older than
// the previous one is replayed at the previous record's time.
func (r *ReplaySource) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var nextSweep time.Time
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if rec.At.IsZero() {
			return fmt.Errorf("line %d: missing timestamp", line)
		}

		if nextSweep.IsZero() {
			nextSweep = rec.At.Add(r.interval)
		}
		// Sweeps that fall between two records run at their own time
		for !rec.At.Before(nextSweep) {
			r.clock.Set(nextSweep)
			r.sweep(ctx)
			nextSweep = nextSweep.Add(r.interval)
		}

		r.clock.Set(rec.At)
		if err := r.dispatch(ctx, rec); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		r.processed++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read replay input: %w", err)
	}

	r.logger.Info("Replay finished",
		zap.Int("events", r.processed),
		zap.Int("sweeps", r.sweeps))
	return nil
}

// Drain keeps sweeping on the virtual clock until d has passed, so that
// restores and expiries due after the last record happen
func (r *ReplaySource) Drain(ctx context.Context, d time.Duration) {
	end := r.clock.Now().Add(d)
	for t := r.clock.Now().Add(r.interval); !t.After(end); t = t.Add(r.interval) {
		r.clock.Set(t)
		r.sweep(ctx)
	}
}

func (r *ReplaySource) sweep(ctx context.Context) {
	if r.sweeper == nil {
		return
	}
	r.sweeper.RunOnce(ctx, r.clock.Now())
	r.sweeps++
}

func (r *ReplaySource) dispatch(ctx context.Context, rec Record) error {
	if _, ok := r.seen[rec.GuildID]; !ok {
		r.seen[rec.GuildID] = struct{}{}
		r.guilds = append(r.guilds, rec.GuildID)
	}

	switch strings.ToLower(rec.Type) {
	case "join", "member_joined":
		r.handler.HandleMemberJoined(ctx, core.MemberJoined{
			GuildID:     rec.GuildID,
			MemberID:    rec.UserID,
			IsAutomated: rec.Bot,
		})
	case "message", "message_created":
		r.handler.HandleMessageCreated(ctx, core.MessageCreated{
			GuildID:     rec.GuildID,
			ChannelID:   rec.ChannelID,
			AuthorID:    rec.UserID,
			MessageID:   rec.MessageID,
			IsAutomated: rec.Bot,
		})
	default:
		return fmt.Errorf("unknown record type %q", rec.Type)
	}
	return nil
}

// Processed returns the number of records replayed
func (r *ReplaySource) Processed() int {
	return r.processed
}

// Guilds returns the guilds seen so far, in order of first appearance
func (r *ReplaySource) Guilds() []string {
	return append([]string(nil), r.guilds...)
}
