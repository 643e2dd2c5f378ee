package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/xid"
)

// Subscribe stores the acting account's push subscription, replacing any
// earlier one.
func (s *Service) Subscribe(ctx context.Context, req domain.PushSubscribeRequest) (domain.PushSubscription, error) {
	actor, err := s.authenticated(ctx)
	if err != nil {
		return domain.PushSubscription{}, err
	}
	if len(req.Subscription) == 0 || string(req.Subscription) == "null" {
		return domain.PushSubscription{}, fmt.Errorf("%w: subscription is required", domain.ErrValidation)
	}

	saved, err := s.repo.UpsertPushSubscription(ctx, domain.PushSubscription{
		AccountID:    actor.AccountID,
		Subscription: req.Subscription,
	})
	if err != nil {
		return domain.PushSubscription{}, err
	}
	return *saved, nil
}

// SendNotification resolves the target accounts, records the broadcast and
// publishes one message per subscribed recipient.
func (s *Service) SendNotification(ctx context.Context, req domain.NotificationSendRequest) (domain.NotificationSendResponse, error) {
	actor, err := s.authorize(ctx, domain.CapBroadcast)
	if err != nil {
		return domain.NotificationSendResponse{}, err
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return domain.NotificationSendResponse{}, fmt.Errorf("%w: message is required", domain.ErrValidation)
	}

	targets, err := s.resolveTargets(ctx, req)
	if err != nil {
		return domain.NotificationSendResponse{}, err
	}
	subs, err := s.repo.ListPushSubscriptions(ctx, targets)
	if err != nil {
		return domain.NotificationSendResponse{}, err
	}

	now := s.now().UTC()
	notification := domain.Notification{
		ID:          xid.New(),
		Message:     message,
		TargetType:  req.TargetType,
		TargetCount: len(targets),
		SentBy:      actor.AccountID,
		CreatedAt:   now,
	}

	delivered := 0
	for _, sub := range subs {
		err := s.publisher.Publish(ctx, domain.PushMessage{
			NotificationID: notification.ID,
			AccountID:      sub.AccountID,
			Message:        message,
			Subscription:   sub.Subscription,
			SentAt:         now,
		})
		if err != nil {
			s.logger.Warn("failed to publish push message",
				zap.String("notification_id", notification.ID),
				zap.String("account_id", sub.AccountID),
				zap.Error(err))
			continue
		}
		delivered++
	}
	notification.Recipients = delivered

	if err := s.repo.CreateNotification(ctx, notification); err != nil {
		return domain.NotificationSendResponse{}, err
	}
	s.logAudit(ctx, "notification_send", "notification", notification.ID,
		fmt.Sprintf("target=%s,targeted=%d,recipients=%d", req.TargetType, len(targets), delivered))

	return domain.NotificationSendResponse{
		Notification: notification,
		Targeted:     len(targets),
		Recipients:   delivered,
	}, nil
}

func (s *Service) ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	if _, err := s.authorize(ctx, domain.CapBroadcast); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListNotifications(ctx, limit)
}

func (s *Service) resolveTargets(ctx context.Context, req domain.NotificationSendRequest) ([]string, error) {
	var filter domain.AccountFilter
	switch req.TargetType {
	case domain.TargetAllUsers:
	case domain.TargetRole:
		role, ok := normalizeTargetRole(req.TargetRole)
		if !ok {
			return nil, fmt.Errorf("%w: unknown target role %q", domain.ErrValidation, req.TargetRole)
		}
		filter.Role = role
	case domain.TargetDebtors:
		filter.DebtorsOnly = true
	case domain.TargetManual:
		ids := lo.Uniq(lo.Compact(lo.Map(req.TargetAccountIDs, func(id string, _ int) string {
			return strings.TrimSpace(id)
		})))
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: manual target requires account ids", domain.ErrValidation)
		}
		return ids, nil
	default:
		return nil, fmt.Errorf("%w: unknown target type %q", domain.ErrValidation, req.TargetType)
	}

	accounts, err := s.repo.ListAccounts(ctx, filter)
	if err != nil {
		return nil, err
	}
	return lo.FilterMap(accounts, func(acct domain.Account, _ int) (string, bool) {
		return acct.ID, acct.NotificationsEnabled
	}), nil
}

// normalizeTargetRole accepts singular and plural role names.
func normalizeTargetRole(role string) (string, bool) {
	role = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(role)), "s")
	switch role {
	case domain.RoleCustomer, domain.RoleSeller, domain.RoleAdmin:
		return role, true
	}
	return "", false
}
