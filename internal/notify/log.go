package notify

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"shuttle/internal/utils"
)

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	utils.GetLogger().Info("event", zap.String("routing_key", routingKey), zap.ByteString("payload", body))
	return nil
}
