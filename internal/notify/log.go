package notify

import (
	"context"
	"log/slog"
)

// LogNotifier writes events through slog, matching the teacher's ambient
// structured-logging convention. Always configured; useful as the default
// sink and as a fallback when no external channel is set up.
type LogNotifier struct {
	logger *slog.Logger
	filter Filter
}

func NewLogNotifier(logger *slog.Logger, filter Filter) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger, filter: filter}
}

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	if !n.filter.allows(event.Type) {
		return nil
	}
	n.logger.Info("process event",
		"type", string(event.Type),
		"app_id", event.AppID,
		"app_name", event.AppName,
		"message", event.FormatMessage(),
	)
	return nil
}
