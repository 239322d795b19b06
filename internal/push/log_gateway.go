package push

import (
	"context"

	"go.uber.org/zap"

	"github.com/aiva-app/notify/pkg/logger"
)

// LogGateway records deliveries without sending anything. Used when FCM is
// disabled (local development, staging without credentials).
type LogGateway struct {
	log *zap.Logger
}

// NewLogGateway constructs a logging-only gateway.
func NewLogGateway() *LogGateway {
	return &LogGateway{log: logger.WithModule("push.log")}
}

// Send logs the would-be delivery.
func (g *LogGateway) Send(ctx context.Context, tokens []string, msg Message) error {
	g.log.Info("push delivery skipped (gateway disabled)",
		zap.Int("tokens", len(tokens)),
		zap.String("title", msg.Title),
	)
	return nil
}
