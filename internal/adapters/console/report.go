package console

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/mikey/guild-sentinel/internal/core"
)

// WriteReport prints what a replay would have done: the dry-run action
// counts followed by the most recent security events of every replayed guild
func WriteReport(ctx context.Context, w io.Writer, source *ReplaySource, platform *DryRunPlatform, events core.EventSink, limit int) error {
	fmt.Fprintf(w, "\n=== Replay Summary ===\n")
	fmt.Fprintf(w, "Events replayed: %d\n", source.Processed())
	for _, line := range platform.Summary() {
		fmt.Fprintf(w, "  %s\n", line)
	}

	if events == nil || limit <= 0 {
		return nil
	}
	for _, guildID := range source.Guilds() {
		recent, err := events.RecentEvents(ctx, guildID, limit)
		if err != nil {
			return fmt.Errorf("failed to read security events for guild %s: %w", guildID, err)
		}

		fmt.Fprintf(w, "\n=== Security Events: %s ===\n", guildID)
		if len(recent) == 0 {
			fmt.Fprintf(w, "  (none)\n")
			continue
		}
		for _, ev := range recent {
			fmt.Fprintf(w, "  %s  %s  %s  %s\n",
				ev.DetectedAt.UTC().Format(time.RFC3339), ev.EventType, ev.SubjectID, ev.Details)
		}
	}
	return nil
}
