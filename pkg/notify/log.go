package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes notifications to the application log instead of a broker.
// Used in development and as the fallback when notifications are disabled.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs the would-be outbound message.
func (s *LogSender) Send(ctx context.Context, from, to, subject, body string) error {
	s.logger.Info("outbound notification",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("body_len", len(body)),
	)
	return nil
}
