package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestServiceRoutesEvents(t *testing.T) {
	assert := assert.New(t)
	h := newHarness()
	svc := NewSentinelService(h.raid, h.spam, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		svc.HandleMemberJoined(ctx, MemberJoined{GuildID: "g1", MemberID: string(rune('a' + i))})
	}
	for i := 0; i < 4; i++ {
		svc.HandleMessageCreated(ctx, MessageCreated{GuildID: "g1", ChannelID: "c1", AuthorID: "u1", MessageID: "m"})
	}

	assert.Equal(PhaseLockdown, svc.Raid().Phase("g1"))
	assert.Equal(1, h.sink.count(EventSpamDetected))
	assert.Same(h.spam, svc.Spam())
}

func TestServiceSurvivesHandlerPanic(t *testing.T) {
	h := newHarness()
	h.raid.settings = panickingSettings{}
	h.spam.settings = panickingSettings{}
	svc := NewSentinelService(h.raid, h.spam, zap.NewNop())

	assert.NotPanics(t, func() {
		svc.HandleMemberJoined(context.Background(), MemberJoined{GuildID: "g1", MemberID: "u1"})
		svc.HandleMessageCreated(context.Background(), MessageCreated{GuildID: "g1", AuthorID: "u1"})
	})
}
