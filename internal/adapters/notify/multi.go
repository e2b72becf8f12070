package notify

import (
	"context"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/mikey/guild-sentinel/internal/core"
)

// Multi fans a notification out to several notifiers concurrently. Every
// notifier is attempted; the errors of the ones that failed are combined.
type Multi struct {
	notifiers []core.Notifier
}

var _ core.Notifier = (*Multi)(nil)

// NewMulti creates a fan-out notifier, skipping nil entries
func NewMulti(notifiers ...core.Notifier) *Multi {
	m := &Multi{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len returns the number of notifiers behind the fan-out
func (m *Multi) Len() int {
	return len(m.notifiers)
}

// Notify delivers to every notifier. A failing notifier does not cancel the
// others; the group's first error only signals that some delivery failed and
// the full set is combined in notifier order.
func (m *Multi) Notify(ctx context.Context, guildID, channelID string, note core.Notification) error {
	errs := make([]error, len(m.notifiers))

	var g errgroup.Group
	for i, n := range m.notifiers {
		i, n := i, n
		g.Go(func() error {
			errs[i] = n.Notify(ctx, guildID, channelID, note)
			return errs[i]
		})
	}
	if err := g.Wait(); err == nil {
		return nil
	}
	return multierr.Combine(errs...)
}
