package notify

import (
	"context"
	"log/slog"
)

// MultiNotifier fans an event out to every configured sink, best-effort:
// one sink's failure is logged and does not stop delivery to the others or
// propagate back to the supervisor. Mirrors NotificationManager.notify's
// "send to every configured channel" loop, generalized from its
// single-Telegram-field shape to an arbitrary sink list.
type MultiNotifier struct {
	sinks  []Notifier
	logger *slog.Logger
}

func NewMultiNotifier(logger *slog.Logger, sinks ...Notifier) *MultiNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &MultiNotifier{sinks: sinks, logger: logger}
}

func (m *MultiNotifier) Notify(ctx context.Context, event Event) error {
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, event); err != nil {
			m.logger.Warn("notifier sink failed", "event_type", string(event.Type), "error", err)
		}
	}
	return nil
}

// IsConfigured reports whether at least one sink is registered.
func (m *MultiNotifier) IsConfigured() bool {
	return len(m.sinks) > 0
}
