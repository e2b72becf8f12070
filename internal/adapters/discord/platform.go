package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/mikey/guild-sentinel/internal/core"
)

// auditReason is attached to every moderation request
const auditReason = "guild-sentinel automatic moderation"

// restrictedBits are the permissions a lock or mute overwrite controls
const restrictedBits = discordgo.PermissionSendMessages | discordgo.PermissionAddReactions

// Platform implements core.Platform on the Discord REST API
type Platform struct {
	session *discordgo.Session
}

var _ core.Platform = (*Platform)(nil)

// NewPlatform creates a new Discord platform adapter
func NewPlatform(session *discordgo.Session) *Platform {
	return &Platform{session: session}
}

func opts(ctx context.Context) []discordgo.RequestOption {
	return []discordgo.RequestOption{
		discordgo.WithContext(ctx),
		discordgo.WithAuditLogReason(auditReason),
	}
}

func platformErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", core.ErrPlatform, op, err)
}

// TextChannels lists the channels members can post in
func (p *Platform) TextChannels(ctx context.Context, guildID string) ([]string, error) {
	channels, err := p.session.GuildChannels(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, platformErr("list channels", err)
	}
	ids := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildNews {
			ids = append(ids, ch.ID)
		}
	}
	return ids, nil
}

// DefaultRoleID returns the @everyone role, which shares the guild's ID
func (p *Platform) DefaultRoleID(ctx context.Context, guildID string) (string, error) {
	return guildID, nil
}

// FindRole looks a role up by name, case-insensitively
func (p *Platform) FindRole(ctx context.Context, guildID, name string) (string, error) {
	roles, err := p.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", platformErr("list roles", err)
	}
	for _, role := range roles {
		if strings.EqualFold(role.Name, name) {
			return role.ID, nil
		}
	}
	return "", core.ErrNotFound
}

// CreateRole creates a role whose guild-wide permissions exclude the
// restricted bits
func (p *Platform) CreateRole(ctx context.Context, guildID, name string, perm core.ChannelPermission) (string, error) {
	var permissions int64
	if perm.Send != core.PermissionDeny {
		permissions |= discordgo.PermissionSendMessages
	}
	if perm.React != core.PermissionDeny {
		permissions |= discordgo.PermissionAddReactions
	}
	role, err := p.session.GuildRoleCreate(guildID, &discordgo.RoleParams{
		Name:        name,
		Permissions: &permissions,
	}, opts(ctx)...)
	if err != nil {
		return "", platformErr("create role", err)
	}
	return role.ID, nil
}

// SetChannelRolePermission edits only the send and react bits of the role's
// overwrite, keeping whatever else the guild configured on it
func (p *Platform) SetChannelRolePermission(ctx context.Context, channelID, roleID string, perm core.ChannelPermission) error {
	channel, err := p.session.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return platformErr("fetch channel", err)
	}

	var allow, deny int64
	for _, ow := range channel.PermissionOverwrites {
		if ow.ID == roleID {
			allow, deny = ow.Allow, ow.Deny
			break
		}
	}
	allow &^= restrictedBits
	deny &^= restrictedBits

	allow, deny = applyState(allow, deny, discordgo.PermissionSendMessages, perm.Send)
	allow, deny = applyState(allow, deny, discordgo.PermissionAddReactions, perm.React)

	if allow == 0 && deny == 0 {
		err = p.session.ChannelPermissionDelete(channelID, roleID, opts(ctx)...)
		return platformErr("delete overwrite", err)
	}
	err = p.session.ChannelPermissionSet(channelID, roleID, discordgo.PermissionOverwriteTypeRole, allow, deny, opts(ctx)...)
	return platformErr("set overwrite", err)
}

func applyState(allow, deny, bit int64, state core.PermissionState) (int64, int64) {
	switch state {
	case core.PermissionAllow:
		allow |= bit
	case core.PermissionDeny:
		deny |= bit
	}
	return allow, deny
}

func (p *Platform) AssignRole(ctx context.Context, guildID, memberID, roleID string) error {
	return platformErr("add role", p.session.GuildMemberRoleAdd(guildID, memberID, roleID, opts(ctx)...))
}

func (p *Platform) RemoveRole(ctx context.Context, guildID, memberID, roleID string) error {
	return platformErr("remove role", p.session.GuildMemberRoleRemove(guildID, memberID, roleID, opts(ctx)...))
}

// ApplyTimedRestriction sets or clears the member's communication timeout
func (p *Platform) ApplyTimedRestriction(ctx context.Context, guildID, memberID string, until *time.Time) error {
	return platformErr("timeout member", p.session.GuildMemberTimeout(guildID, memberID, until, opts(ctx)...))
}

func (p *Platform) RemoveMember(ctx context.Context, guildID, memberID string) error {
	err := p.session.GuildMemberDeleteWithReason(guildID, memberID, auditReason, discordgo.WithContext(ctx))
	return platformErr("kick member", err)
}

func (p *Platform) PermanentlyRemoveMember(ctx context.Context, guildID, memberID string) error {
	err := p.session.GuildBanCreateWithReason(guildID, memberID, auditReason, 0, discordgo.WithContext(ctx))
	return platformErr("ban member", err)
}

func (p *Platform) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return platformErr("delete message", p.session.ChannelMessageDelete(channelID, messageID, opts(ctx)...))
}
