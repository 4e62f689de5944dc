package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes notifications to the log. Used when no broker is
// configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (l *LogNotifier) Notify(_ context.Context, n Notification) {
	l.log.Info("notification",
		zap.String("event_type", n.EventType),
		zap.String("channel", string(n.Channel)),
		zap.String("target_id", n.TargetID),
		zap.String("correlation_id", n.CorrelationID))
}

func (l *LogNotifier) SendText(_ context.Context, phoneNumber, message string) {
	l.log.Info("sms", zap.String("to", phoneNumber), zap.String("body", message))
}
