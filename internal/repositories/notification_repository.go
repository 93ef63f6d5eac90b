package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"fielddispatch/internal/models"
)

const notificationColumns = `id, recipient_id, type, priority, title, message, payload,
       delivered, delivered_at, read, read_at, created_at, expires_at`

// priorityRank orders critical > high > normal > low in list queries.
const priorityRank = `CASE priority
		WHEN 'critical' THEN 4
		WHEN 'high' THEN 3
		WHEN 'normal' THEN 2
		ELSE 1
	END`

type NotificationRepository interface {
	Store(ctx context.Context, n *models.Notification) error
	// StoreBatch persists all notifications in one transaction; on error
	// nothing is kept and the caller must retry the whole batch.
	StoreBatch(ctx context.Context, ns []*models.Notification) error
	Find(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	FindUndelivered(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error)

	MarkDelivered(ctx context.Context, id string, recipientID *int64) (bool, error)
	MarkRead(ctx context.Context, id string, recipientID int64) (bool, error)
	MarkManyRead(ctx context.Context, ids []string, recipientID int64) (int64, error)

	Stats(ctx context.Context, recipientID int64) (*models.NotificationStats, error)
	DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Store(ctx context.Context, n *models.Notification) error {
	payload, err := marshalPayload(n.Payload)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO notifications (
			id, recipient_id, type, priority, title, message, payload, created_at, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		n.ID, n.RecipientID, n.Type, n.Priority, n.Title, n.Message, payload, n.CreatedAt, n.ExpiresAt)
	return err
}

func (r *notificationRepository) StoreBatch(ctx context.Context, ns []*models.Notification) error {
	if len(ns) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notifications (
			id, recipient_id, type, priority, title, message, payload, created_at, expires_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, n := range ns {
		payload, err := marshalPayload(n.Payload)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			n.ID, n.RecipientID, n.Type, n.Priority, n.Title, n.Message, payload, n.CreatedAt, n.ExpiresAt,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *notificationRepository) Find(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	conditions := []string{}
	args := []interface{}{}
	argID := 1

	if filter.RecipientID != nil {
		conditions = append(conditions, fmt.Sprintf("recipient_id = $%d", argID))
		args = append(args, *filter.RecipientID)
		argID++
	}
	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argID))
		args = append(args, *filter.Type)
		argID++
	}
	if filter.Priority != nil {
		conditions = append(conditions, fmt.Sprintf("priority = $%d", argID))
		args = append(args, *filter.Priority)
		argID++
	}
	if filter.Read != nil {
		conditions = append(conditions, fmt.Sprintf("read = $%d", argID))
		args = append(args, *filter.Read)
		argID++
	}
	if filter.Delivered != nil {
		conditions = append(conditions, fmt.Sprintf("delivered = $%d", argID))
		args = append(args, *filter.Delivered)
		argID++
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications` + where +
		` ORDER BY ` + priorityRank + fmt.Sprintf(` DESC, created_at DESC LIMIT $%d OFFSET $%d`, argID, argID+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	ns, err := scanNotifications(rows)
	return ns, total, err
}

func (r *notificationRepository) FindUndelivered(ctx context.Context, recipientID int64, limit int) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
		WHERE recipient_id = $1 AND delivered = FALSE
		ORDER BY ` + priorityRank + ` DESC, created_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// MarkDelivered is idempotent: an already-delivered row still matches and the
// COALESCE keeps the original delivered_at.
func (r *notificationRepository) MarkDelivered(ctx context.Context, id string, recipientID *int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET delivered = TRUE, delivered_at = COALESCE(delivered_at, NOW())
		WHERE id = $1 AND ($2::bigint IS NULL OR recipient_id = $2)`,
		id, recipientID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *notificationRepository) MarkRead(ctx context.Context, id string, recipientID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND recipient_id = $2`,
		id, recipientID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *notificationRepository) MarkManyRead(ctx context.Context, ids []string, recipientID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications
		SET read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE id = ANY($1) AND recipient_id = $2`,
		pq.Array(ids), recipientID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *notificationRepository) Stats(ctx context.Context, recipientID int64) (*models.NotificationStats, error) {
	stats := &models.NotificationStats{
		ByType:     map[string]int{},
		ByPriority: map[string]int{},
	}
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE read = FALSE),
		       COUNT(*) FILTER (WHERE delivered = FALSE)
		FROM notifications WHERE recipient_id = $1`, recipientID,
	).Scan(&stats.Total, &stats.Unread, &stats.Undelivered)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM notifications WHERE recipient_id = $1 GROUP BY type`, recipientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var count int
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, err
		}
		stats.ByType[typ] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := r.db.QueryContext(ctx,
		`SELECT priority, COUNT(*) FROM notifications WHERE recipient_id = $1 GROUP BY priority`, recipientID)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var pri string
		var count int
		if err := prows.Scan(&pri, &count); err != nil {
			return nil, err
		}
		stats.ByPriority[pri] = count
	}
	return stats, prows.Err()
}

// DeleteReadBefore only ever touches read rows; unread notifications survive
// the retention window no matter how old they are.
func (r *notificationRepository) DeleteReadBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE read = TRUE AND created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *notificationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE expires_at IS NOT NULL AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	if payload == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(payload)
}

func scanNotifications(rows *sql.Rows) ([]models.Notification, error) {
	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		var payload []byte
		if err := rows.Scan(
			&n.ID, &n.RecipientID, &n.Type, &n.Priority, &n.Title, &n.Message, &payload,
			&n.Delivered, &n.DeliveredAt, &n.Read, &n.ReadAt, &n.CreatedAt, &n.ExpiresAt,
		); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &n.Payload); err != nil {
				return nil, err
			}
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
