// Package events consumes notification events from Kafka and feeds them into
// the fan-out pipeline. Producing services publish one JSON envelope per
// event; the consumer is the asynchronous twin of the internal dispatch API.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"

	"github.com/aiva-app/notify/internal/services"
	apperrors "github.com/aiva-app/notify/pkg/errors"
	"github.com/aiva-app/notify/pkg/logger"
)

// consumeRetryDelay paces reconnect attempts after a failed session.
const consumeRetryDelay = 5 * time.Second

// NotifyEvent is the wire envelope producers publish to the intake topic.
type NotifyEvent struct {
	UserIDs []string               `json:"user_ids"`
	Type    string                 `json:"type"`
	Title   string                 `json:"title"`
	Body    string                 `json:"body"`
	Data    map[string]interface{} `json:"data"`
}

// Dispatcher is the slice of the fan-out service the consumer needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, input services.DispatchInput) (*services.DispatchResult, error)
}

// Config describes the consumer group connection.
type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer runs a sarama consumer group against the intake topic. Malformed
// or rejected events are logged and the offset is still committed; the topic
// is an intake queue, not a retry ledger. Store outages are the exception:
// the session ends without committing so the event is redelivered.
type Consumer struct {
	group      sarama.ConsumerGroup
	topic      string
	dispatcher Dispatcher
	log        *zap.Logger

	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once
	started bool
}

// NewConsumer connects to the brokers and prepares a consumer group.
func NewConsumer(cfg Config, dispatcher Dispatcher) (*Consumer, error) {
	if dispatcher == nil {
		return nil, errors.New("events: dispatcher is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("events: at least one broker is required")
	}
	if cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("events: topic and group id are required")
	}

	saramaCfg := sarama.NewConfig()
	saramaCfg.Version = sarama.V2_8_0_0
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaCfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("events: connect consumer group: %w", err)
	}

	return &Consumer{
		group:      group,
		topic:      cfg.Topic,
		dispatcher: dispatcher,
		log:        logger.WithModule("events"),
		done:       make(chan struct{}),
	}, nil
}

// Start begins consuming in the background until ctx is cancelled or Close is
// called. Consume returns on every rebalance, so it runs in a loop.
func (c *Consumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.started = true

	go func() {
		for err := range c.group.Errors() {
			c.log.Warn("consumer group error", zap.Error(err))
		}
	}()

	go func() {
		defer close(c.done)

		handler := &groupHandler{dispatcher: c.dispatcher, log: c.log}
		for {
			if err := c.group.Consume(ctx, []string{c.topic}, handler); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.log.Error("consume session failed", zap.Error(err))

				// Failed sessions usually mean the store is down; don't
				// hammer the brokers while it recovers.
				select {
				case <-ctx.Done():
					return
				case <-time.After(consumeRetryDelay):
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.log.Info("kafka intake consumer started", zap.String("topic", c.topic))
}

// Close stops the consumer and waits for the session to drain. It is safe to
// call before Start and more than once.
func (c *Consumer) Close() error {
	var err error
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		err = c.group.Close()
		if c.started {
			<-c.done
		}
	})
	return err
}

type groupHandler struct {
	dispatcher Dispatcher
	log        *zap.Logger
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		if err := h.handle(session.Context(), message); err != nil {
			// The offset is not marked, so the event comes back on the
			// next session once the store is reachable again.
			return err
		}
		session.MarkMessage(message, "")
	}
	return nil
}

// handle processes one event. Malformed and rejected events are dropped with
// a nil return so their offset is committed; a store outage is returned so
// the claim stops before committing past the unprocessed event.
func (h *groupHandler) handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	var event NotifyEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		h.log.Warn("dropping malformed notify event",
			zap.Int64("offset", message.Offset),
			zap.Int32("partition", message.Partition),
			zap.Error(err),
		)
		return nil
	}

	result, err := h.dispatcher.Dispatch(ctx, services.DispatchInput{
		UserIDs:        event.UserIDs,
		PermissionType: event.Type,
		Title:          event.Title,
		Body:           event.Body,
		Data:           event.Data,
		Source:         "kafka",
	})
	if err != nil {
		if apperrors.FromError(err).Code == apperrors.ErrDependencyUnavailable.Code {
			h.log.Error("deferring notify event, backing store unavailable",
				zap.String("type", event.Type),
				zap.Int64("offset", message.Offset),
				zap.Int32("partition", message.Partition),
				zap.Error(err),
			)
			return err
		}

		h.log.Warn("dropping rejected notify event",
			zap.String("type", event.Type),
			zap.Int64("offset", message.Offset),
			zap.Error(err),
		)
		return nil
	}

	h.log.Debug("notify event dispatched",
		zap.String("type", event.Type),
		zap.Int("requested_users", result.RequestedUsers),
		zap.Int("tokens", result.Tokens),
	)
	return nil
}
