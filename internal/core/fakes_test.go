package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var errDenied = errors.New("missing permissions")

type call struct {
	Op     string
	Target string
	Detail string
}

type fakePlatform struct {
	mu       sync.Mutex
	channels []string
	roles    map[string]string
	fail     map[string]bool
	failOn   map[string]bool
	calls    []call
	overs    map[string]ChannelPermission
	timeouts map[string]*time.Time
}

func newFakePlatform(channels ...string) *fakePlatform {
	return &fakePlatform{
		channels: channels,
		roles:    make(map[string]string),
		fail:     make(map[string]bool),
		failOn:   make(map[string]bool),
		overs:    make(map[string]ChannelPermission),
		timeouts: make(map[string]*time.Time),
	}
}

func (p *fakePlatform) check(op, target string) error {
	if p.fail[op] || p.failOn[op+":"+target] {
		return fmt.Errorf("%w: %s: %v", ErrPlatform, op, errDenied)
	}
	return nil
}

func (p *fakePlatform) record(op, target, detail string) {
	p.calls = append(p.calls, call{Op: op, Target: target, Detail: detail})
}

func (p *fakePlatform) count(op string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

func (p *fakePlatform) override(channelID, roleID string) ChannelPermission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overs[channelID+"/"+roleID]
}

func (p *fakePlatform) TextChannels(ctx context.Context, guildID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("list_channels", guildID); err != nil {
		return nil, err
	}
	return append([]string(nil), p.channels...), nil
}

func (p *fakePlatform) DefaultRoleID(ctx context.Context, guildID string) (string, error) {
	return guildID, nil
}

func (p *fakePlatform) FindRole(ctx context.Context, guildID, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("find_role", guildID); err != nil {
		return "", err
	}
	if id, ok := p.roles[guildID+"/"+name]; ok {
		return id, nil
	}
	return "", ErrNotFound
}

func (p *fakePlatform) CreateRole(ctx context.Context, guildID, name string, perm ChannelPermission) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("create_role", guildID); err != nil {
		return "", err
	}
	id := "role-" + name
	p.roles[guildID+"/"+name] = id
	p.record("create_role", guildID, name)
	return id, nil
}

func (p *fakePlatform) SetChannelRolePermission(ctx context.Context, channelID, roleID string, perm ChannelPermission) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("set_permission", channelID); err != nil {
		return err
	}
	key := channelID + "/" + roleID
	if perm.Inherited() {
		delete(p.overs, key)
	} else {
		p.overs[key] = perm
	}
	p.record("set_permission", key, fmt.Sprintf("%v", perm.Inherited()))
	return nil
}

func (p *fakePlatform) AssignRole(ctx context.Context, guildID, memberID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("assign_role", memberID); err != nil {
		return err
	}
	p.record("assign_role", memberID, roleID)
	return nil
}

func (p *fakePlatform) RemoveRole(ctx context.Context, guildID, memberID, roleID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("remove_role", memberID); err != nil {
		return err
	}
	p.record("remove_role", memberID, roleID)
	return nil
}

func (p *fakePlatform) ApplyTimedRestriction(ctx context.Context, guildID, memberID string, until *time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("timeout", memberID); err != nil {
		return err
	}
	p.timeouts[memberID] = until
	detail := "clear"
	if until != nil {
		detail = until.Format(time.RFC3339)
	}
	p.record("timeout", memberID, detail)
	return nil
}

func (p *fakePlatform) RemoveMember(ctx context.Context, guildID, memberID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("kick", memberID); err != nil {
		return err
	}
	p.record("kick", memberID, "")
	return nil
}

func (p *fakePlatform) PermanentlyRemoveMember(ctx context.Context, guildID, memberID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("ban", memberID); err != nil {
		return err
	}
	p.record("ban", memberID, "")
	return nil
}

func (p *fakePlatform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.check("delete_message", messageID); err != nil {
		return err
	}
	p.record("delete_message", messageID, channelID)
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (n *fakeNotifier) Notify(ctx context.Context, guildID, channelID string, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
	return nil
}

func (n *fakeNotifier) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.notes))
	for _, note := range n.notes {
		out = append(out, note.Title)
	}
	return out
}

type fakeRepo struct {
	mu        sync.Mutex
	states    map[string]SpamState
	failRead  bool
	failWrite bool
	writes    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{states: make(map[string]SpamState)}
}

func (r *fakeRepo) ReadSpamState(ctx context.Context, guildID, userID string) (*SpamState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failRead {
		return nil, ErrPersistenceUnavailable
	}
	if s, ok := r.states[guildID+":"+userID]; ok {
		return &s, nil
	}
	return &SpamState{GuildID: guildID, UserID: userID}, nil
}

func (r *fakeRepo) UpsertSpamState(ctx context.Context, state *SpamState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite {
		return ErrPersistenceUnavailable
	}
	r.writes++
	r.states[state.GuildID+":"+state.UserID] = *state
	return nil
}

func (r *fakeRepo) ExpiredTimeouts(ctx context.Context, now time.Time) ([]*SpamState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*SpamState
	for _, s := range r.states {
		if s.TimeoutExpiry != nil && !s.TimeoutExpiry.After(now) {
			s := s
			out = append(out, &s)
		}
	}
	return out, nil
}

func (r *fakeRepo) get(guildID, userID string) SpamState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[guildID+":"+userID]
}

func (r *fakeRepo) put(s SpamState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[s.GuildID+":"+s.UserID] = s
}

type fakeSink struct {
	mu     sync.Mutex
	events []SecurityEvent
}

func (s *fakeSink) RecordEvent(ctx context.Context, event *SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *fakeSink) RecentEvents(ctx context.Context, guildID string, limit int) ([]*SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*SecurityEvent
	for i := len(s.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.events[i].GuildID == guildID {
			e := s.events[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

func (s *fakeSink) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

type mapSettings struct {
	mu     sync.Mutex
	values map[string]string
	err    error
}

func newMapSettings(kv ...string) *mapSettings {
	m := &mapSettings{values: make(map[string]string)}
	for i := 0; i+1 < len(kv); i += 2 {
		m.values[kv[i]] = kv[i+1]
	}
	return m
}

func (m *mapSettings) GetSetting(ctx context.Context, guildID, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", false, m.err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

type fakeExempt map[string]bool

func (f fakeExempt) IsExempt(ctx context.Context, guildID, userID string) bool {
	return f[userID]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// harness wires both controllers to fakes sharing one clock and lock table
type harness struct {
	platform *fakePlatform
	notifier *fakeNotifier
	repo     *fakeRepo
	sink     *fakeSink
	settings *mapSettings
	exempt   fakeExempt
	clock    *fakeClock
	executor *ActionExecutor
	raid     *RaidController
	spam     *SpamController
	sweeper  *Sweeper
}

func newHarness(kv ...string) *harness {
	h := &harness{
		platform: newFakePlatform("c1", "c2", "c3"),
		notifier: &fakeNotifier{},
		repo:     newFakeRepo(),
		sink:     &fakeSink{},
		settings: newMapSettings(append([]string{
			SettingRaidLogChannel, "raid-log",
			SettingSpamLogChannel, "spam-log",
		}, kv...)...),
		exempt: fakeExempt{},
		clock:  newFakeClock(),
	}
	logger := zap.NewNop()
	opts := Options{Clock: h.clock.Now, Locks: NewKeyedMutex()}
	h.executor = NewActionExecutor(h.platform, h.notifier, h.sink, logger, nil, nil)
	h.raid = NewRaidController(h.executor, h.settings, h.exempt, logger, opts)
	h.spam = NewSpamController(h.executor, h.repo, h.settings, h.exempt, logger, opts)
	h.sweeper = NewSweeper(h.raid, h.spam, logger, time.Minute, h.clock.Now)
	return h
}

func (h *harness) join(guildID, memberID string) {
	h.raid.HandleMemberJoined(context.Background(), MemberJoined{GuildID: guildID, MemberID: memberID})
}

func (h *harness) message(guildID, userID, messageID string) {
	h.spam.HandleMessageCreated(context.Background(), MessageCreated{
		GuildID:   guildID,
		ChannelID: "c1",
		AuthorID:  userID,
		MessageID: messageID,
	})
}

func (h *harness) sweep() {
	h.sweeper.RunOnce(context.Background(), h.clock.Now())
}
