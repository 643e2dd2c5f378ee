package postgres

import (
	"context"
	"time"

	"cantina/backend/internal/domain"
	"cantina/backend/internal/xid"
)

type notificationRow struct {
	ID          string    `db:"id"`
	Message     string    `db:"message"`
	TargetType  string    `db:"target_type"`
	TargetCount int       `db:"target_count"`
	Recipients  int       `db:"recipients"`
	SentBy      string    `db:"sent_by"`
	CreatedAt   time.Time `db:"created_at"`
}

type auditRow struct {
	ID            string    `db:"id"`
	ActorID       string    `db:"actor_id"`
	ActorUsername string    `db:"actor_username"`
	ActorRole     string    `db:"actor_role"`
	Action        string    `db:"action"`
	EntityType    string    `db:"entity_type"`
	EntityID      string    `db:"entity_id"`
	Detail        string    `db:"detail"`
	CreatedAt     time.Time `db:"created_at"`
}

func (s *Store) UpsertPushSubscription(ctx context.Context, sub domain.PushSubscription) (*domain.PushSubscription, error) {
	if sub.ID == "" {
		sub.ID = xid.New()
	}
	now := time.Now().UTC()

	var row subscriptionRow
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO push_subscriptions (id, account_id, subscription, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (account_id) DO UPDATE
		SET subscription = EXCLUDED.subscription, updated_at = EXCLUDED.updated_at
		RETURNING id, account_id, subscription, created_at, updated_at
	`, sub.ID, sub.AccountID, string(sub.Subscription), now)
	if err != nil {
		return nil, err
	}
	saved := row.subscription()
	return &saved, nil
}

func (s *Store) ListPushSubscriptions(ctx context.Context, accountIDs []string) ([]domain.PushSubscription, error) {
	accountIDs = validIDs(accountIDs)
	if len(accountIDs) == 0 {
		return []domain.PushSubscription{}, nil
	}
	var rows []subscriptionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, subscription, created_at, updated_at
		FROM push_subscriptions
		WHERE account_id = ANY($1::uuid[])
		ORDER BY account_id
	`, accountIDs)
	if err != nil {
		return nil, err
	}
	result := make([]domain.PushSubscription, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.subscription())
	}
	return result, nil
}

func (s *Store) CreateNotification(ctx context.Context, n domain.Notification) error {
	if n.ID == "" {
		n.ID = xid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, message, target_type, target_count, recipients, sent_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, n.ID, n.Message, n.TargetType, n.TargetCount, n.Recipients, n.SentBy, n.CreatedAt)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []notificationRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, message, target_type, target_count, recipients, sent_by, created_at
		FROM notifications
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	result := make([]domain.Notification, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.Notification{
			ID:          row.ID,
			Message:     row.Message,
			TargetType:  row.TargetType,
			TargetCount: row.TargetCount,
			Recipients:  row.Recipients,
			SentBy:      row.SentBy,
			CreatedAt:   row.CreatedAt,
		})
	}
	return result, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES (:id, :actor_id, :actor_username, :actor_role, :action, :entity_type, :entity_id, :detail, :created_at)
	`, auditRow(entry))
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	result := make([]domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.AuditLog(row))
	}
	return result, nil
}
