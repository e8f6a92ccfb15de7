// Package notify delivers operator alerts for resolution lifecycle events.
// Notifications fan out to all registered senders (Telegram, Discord) and can
// be filtered by event type so operators receive only the alerts they care
// about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openquorum/resolved/internal/domain"
)

// Event types operators can subscribe to.
const (
	EventRoundConcluded   = "round_concluded"
	EventRoundInvalidated = "round_invalidated"
	EventTopicFinalized   = "topic_finalized"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a set
// of allowed event types; Notify only forwards messages whose event type is in
// the allowed set.
type Notifier struct {
	senders []Sender
	events  map[string]bool // allowed event types
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice will be forwarded. If events
// is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// RoundConcluded alerts operators that an oracle round reached consensus and
// the next challenge round opened.
func (n *Notifier) RoundConcluded(ctx context.Context, topic domain.Topic, round int, outcome string) error {
	title := fmt.Sprintf("Round %d concluded: %s", round, topic.ID)
	message := fmt.Sprintf("%s\nTentative outcome: %s", topic.Question, outcome)
	return n.Notify(ctx, EventRoundConcluded, title, message)
}

// RoundInvalidated alerts operators that an open-vote round expired below its
// threshold and was discarded.
func (n *Notifier) RoundInvalidated(ctx context.Context, topic domain.Topic, round int) error {
	title := fmt.Sprintf("Round %d invalidated: %s", round, topic.ID)
	return n.Notify(ctx, EventRoundInvalidated, title, topic.Question)
}

// TopicFinalized alerts operators that a topic's outcome is now irreversible
// and payouts are open.
func (n *Notifier) TopicFinalized(ctx context.Context, topic domain.Topic, outcome string) error {
	title := fmt.Sprintf("Topic finalized: %s", topic.ID)
	message := fmt.Sprintf("%s\nFinal outcome: %s\nPool: %s", topic.Question, outcome, topic.Pool.String())
	return n.Notify(ctx, EventTopicFinalized, title, message)
}

// Notify sends a notification to all senders only if the event type is in the
// allowed list. If no events were configured, all events pass.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
