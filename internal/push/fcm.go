package push

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/maddevsio/fcm.v1"

	"github.com/aiva-app/notify/pkg/logger"
)

// FCMGateway delivers messages through Firebase Cloud Messaging.
type FCMGateway struct {
	serverKey string
	log       *zap.Logger
}

// NewFCMGateway constructs an FCM-backed gateway.
func NewFCMGateway(serverKey string) (*FCMGateway, error) {
	serverKey = strings.TrimSpace(serverKey)
	if serverKey == "" {
		return nil, errors.New("fcm: server key is required")
	}

	return &FCMGateway{
		serverKey: serverKey,
		log:       logger.WithModule("push.fcm"),
	}, nil
}

// Send pushes the message to every token in one multicast call.
func (g *FCMGateway) Send(ctx context.Context, tokens []string, msg Message) error {
	if len(tokens) == 0 {
		return nil
	}

	client := fcm.NewFCM(g.serverKey)
	response, err := client.Send(fcm.Message{
		RegistrationIDs:  tokens,
		ContentAvailable: true,
		Priority:         fcm.PriorityHigh,
		Data:             msg.Data,
		Notification: fcm.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
	})
	if err != nil {
		return err
	}

	g.log.Info("fcm multicast sent",
		zap.Int("tokens", len(tokens)),
		zap.Int("success", response.Success),
		zap.Int("failure", response.Fail),
		zap.Int("canonical_ids", response.CanonicalIDs),
	)

	return nil
}
