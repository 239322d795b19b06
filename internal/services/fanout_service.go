package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aiva-app/notify/internal/models"
	"github.com/aiva-app/notify/internal/push"
	apperrors "github.com/aiva-app/notify/pkg/errors"
	"github.com/aiva-app/notify/pkg/logger"
	"github.com/aiva-app/notify/pkg/metrics"
)

const gatewaySendTimeout = 30 * time.Second

// DispatchInput describes one notification event from a producing service.
type DispatchInput struct {
	UserIDs        []string
	PermissionType string
	Title          string
	Body           string
	Data           map[string]interface{}

	// Source labels the intake path (http|kafka) for metrics.
	Source string
}

// DispatchResult reports what a dispatch resolved to.
type DispatchResult struct {
	RequestedUsers int `json:"requested_users"`
	EligibleUsers  int `json:"eligible_users"`
	Tokens         int `json:"tokens"`
}

// FanoutService resolves notification events into concrete delivery tokens.
// It is a read-side composition over the permission ledger and the token
// store and owns no state of its own.
type FanoutService struct {
	permissions *PermissionService
	tokens      *TokenService
	gateway     push.Gateway
	log         *zap.Logger

	// sendAsync is swapped out in tests to run delivery inline.
	sendAsync func(tokens []string, msg push.Message)
}

// NewFanoutService constructs a FanoutService.
func NewFanoutService(permissions *PermissionService, tokens *TokenService, gateway push.Gateway) (*FanoutService, error) {
	if permissions == nil {
		return nil, errors.New("fanout service: permission service is required")
	}
	if tokens == nil {
		return nil, errors.New("fanout service: token service is required")
	}
	if gateway == nil {
		gateway = push.NewLogGateway()
	}

	svc := &FanoutService{
		permissions: permissions,
		tokens:      tokens,
		gateway:     gateway,
		log:         logger.WithModule("fanout"),
	}
	svc.sendAsync = svc.deliverInBackground
	return svc, nil
}

// ResolveRecipients filters userIDs down to users with permissionType enabled
// and resolves their active delivery tokens. An empty result is not an error.
// When either backing store fails the whole resolution fails; a partial
// recipient list is never returned, so a store outage can never cause a send
// to users whose opt-out was unreadable.
func (s *FanoutService) ResolveRecipients(ctx context.Context, userIDs []string, permissionType models.PermissionType) ([]string, error) {
	ctx = ensureContext(ctx)

	if _, ok := models.ParsePermissionType(string(permissionType)); !ok {
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown permission type %q", permissionType))
	}

	ids := normaliseIDs(userIDs)
	if len(ids) == 0 {
		return []string{}, nil
	}

	eligible, err := s.permissions.FilterEnabled(ctx, ids, permissionType)
	if err != nil {
		return nil, apperrors.ErrDependencyUnavailable.WithInternal(err)
	}
	if len(eligible) == 0 {
		return []string{}, nil
	}

	tokens, err := s.tokens.ResolveActiveForUsers(ctx, eligible)
	if err != nil {
		return nil, apperrors.ErrDependencyUnavailable.WithInternal(err)
	}

	return tokens, nil
}

// Dispatch resolves recipients for the event and hands the token list to the
// push gateway. Delivery is fire-and-forget: the gateway call runs in the
// background and its failures are logged, not surfaced to the producer.
func (s *FanoutService) Dispatch(ctx context.Context, input DispatchInput) (*DispatchResult, error) {
	ctx = ensureContext(ctx)

	source := strings.TrimSpace(input.Source)
	if source == "" {
		source = "http"
	}

	permissionType, ok := models.ParsePermissionType(input.PermissionType)
	if !ok {
		metrics.Dispatches.WithLabelValues(source, "invalid").Inc()
		return nil, apperrors.NewValidation(fmt.Sprintf("unknown permission type %q", input.PermissionType))
	}

	ids := normaliseIDs(input.UserIDs)

	eligible, err := s.permissions.FilterEnabled(ctx, ids, permissionType)
	if err != nil {
		metrics.Dispatches.WithLabelValues(source, "error").Inc()
		return nil, apperrors.ErrDependencyUnavailable.WithInternal(err)
	}

	tokens := []string{}
	if len(eligible) > 0 {
		tokens, err = s.tokens.ResolveActiveForUsers(ctx, eligible)
		if err != nil {
			metrics.Dispatches.WithLabelValues(source, "error").Inc()
			return nil, apperrors.ErrDependencyUnavailable.WithInternal(err)
		}
	}

	metrics.Dispatches.WithLabelValues(source, "ok").Inc()
	metrics.ResolvedRecipients.Observe(float64(len(tokens)))

	if len(tokens) > 0 {
		s.sendAsync(tokens, push.Message{
			Title: input.Title,
			Body:  input.Body,
			Data:  input.Data,
		})
	}

	return &DispatchResult{
		RequestedUsers: len(ids),
		EligibleUsers:  len(eligible),
		Tokens:         len(tokens),
	}, nil
}

func (s *FanoutService) deliverInBackground(tokens []string, msg push.Message) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), gatewaySendTimeout)
		defer cancel()

		if err := s.gateway.Send(ctx, tokens, msg); err != nil {
			metrics.GatewaySends.WithLabelValues("error").Inc()
			s.log.Warn("push gateway send failed",
				zap.Int("tokens", len(tokens)),
				zap.Error(err),
			)
			return
		}
		metrics.GatewaySends.WithLabelValues("ok").Inc()
	}()
}
