package console

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/core"
)

// Action is one platform call the dry-run platform accepted
type Action struct {
	Op      string
	GuildID string
	Target  string
	Detail  string
}

// DryRunPlatform accepts every moderation call without touching Discord
// and keeps a journal of what it would have done
type DryRunPlatform struct {
	mu       sync.Mutex
	channels []string
	roles    map[string]string
	actions  []Action
	logger   *zap.Logger
}

var _ core.Platform = (*DryRunPlatform)(nil)

// NewDryRunPlatform creates a dry-run platform. Every guild reports the
// given text channels.
func NewDryRunPlatform(channels []string, logger *zap.Logger) *DryRunPlatform {
	if len(channels) == 0 {
		channels = []string{"general"}
	}
	return &DryRunPlatform{
		channels: channels,
		roles:    make(map[string]string),
		logger:   logger,
	}
}

func (p *DryRunPlatform) record(op, guildID, target, detail string) {
	p.mu.Lock()
	p.actions = append(p.actions, Action{Op: op, GuildID: guildID, Target: target, Detail: detail})
	p.mu.Unlock()

	p.logger.Info("Dry run action",
		zap.String("op", op),
		zap.String("guild_id", guildID),
		zap.String("target", target),
		zap.String("detail", detail))
}

// Actions returns a copy of the journal
func (p *DryRunPlatform) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Action(nil), p.actions...)
}

func (p *DryRunPlatform) TextChannels(ctx context.Context, guildID string) ([]string, error) {
	return append([]string(nil), p.channels...), nil
}

func (p *DryRunPlatform) DefaultRoleID(ctx context.Context, guildID string) (string, error) {
	return guildID, nil
}

func (p *DryRunPlatform) FindRole(ctx context.Context, guildID, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.roles[guildID+"/"+strings.ToLower(name)]; ok {
		return id, nil
	}
	return "", core.ErrNotFound
}

func (p *DryRunPlatform) CreateRole(ctx context.Context, guildID, name string, perm core.ChannelPermission) (string, error) {
	id := "role-" + strings.ToLower(name)
	p.mu.Lock()
	p.roles[guildID+"/"+strings.ToLower(name)] = id
	p.mu.Unlock()
	p.record("create_role", guildID, id, name)
	return id, nil
}

func (p *DryRunPlatform) SetChannelRolePermission(ctx context.Context, channelID, roleID string, perm core.ChannelPermission) error {
	detail := "locked"
	if perm.Inherited() {
		detail = "inherited"
	}
	p.record("channel_permission", "", channelID+"/"+roleID, detail)
	return nil
}

func (p *DryRunPlatform) AssignRole(ctx context.Context, guildID, memberID, roleID string) error {
	p.record("assign_role", guildID, memberID, roleID)
	return nil
}

func (p *DryRunPlatform) RemoveRole(ctx context.Context, guildID, memberID, roleID string) error {
	p.record("remove_role", guildID, memberID, roleID)
	return nil
}

func (p *DryRunPlatform) ApplyTimedRestriction(ctx context.Context, guildID, memberID string, until *time.Time) error {
	detail := "cleared"
	if until != nil {
		detail = "until " + until.UTC().Format(time.RFC3339)
	}
	p.record("timeout", guildID, memberID, detail)
	return nil
}

func (p *DryRunPlatform) RemoveMember(ctx context.Context, guildID, memberID string) error {
	p.record("kick", guildID, memberID, "")
	return nil
}

func (p *DryRunPlatform) PermanentlyRemoveMember(ctx context.Context, guildID, memberID string) error {
	p.record("ban", guildID, memberID, "")
	return nil
}

func (p *DryRunPlatform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	p.record("delete_message", "", channelID+"/"+messageID, "")
	return nil
}

// Summary counts the journal by operation, sorted by name
func (p *DryRunPlatform) Summary() []string {
	counts := make(map[string]int)
	for _, a := range p.Actions() {
		counts[a.Op]++
	}
	lines := make([]string, 0, len(counts))
	for op, n := range counts {
		lines = append(lines, fmt.Sprintf("%s: %d", op, n))
	}
	sort.Strings(lines)
	return lines
}

// Notifier prints notifications to a writer
type Notifier struct {
	mu  sync.Mutex
	out io.Writer
}

var _ core.Notifier = (*Notifier)(nil)

// NewNotifier creates a console notifier
func NewNotifier(out io.Writer) *Notifier {
	return &Notifier{out: out}
}

// Notify prints the notification
func (n *Notifier) Notify(ctx context.Context, guildID, channelID string, note core.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	fmt.Fprintf(n.out, "\n=== %s ===\n", note.Title)
	fmt.Fprintf(n.out, "Channel: #%s\n", channelID)
	fmt.Fprintf(n.out, "%s\n", note.Description)
	if note.Footer != "" {
		fmt.Fprintf(n.out, "(%s)\n", note.Footer)
	}
	return nil
}
