package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/media-push/internal/model"
	"github.com/jwalitptl/media-push/internal/repository"
	"github.com/jwalitptl/media-push/pkg/errors"
)

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

// Create stores one notification in a single INSERT ... RETURNING. A type
// outside the CHECK constraint comes back as a persistence error.
func (r *notificationRepository) Create(ctx context.Context, draft *model.NotificationDraft) (out *model.Notification, err error) {
	defer func(start time.Time) { r.observe("create_notification", start, err) }(time.Now())

	query := `
		INSERT INTO notifications (id, type, title, body, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, type, title, body, data, created_at
	`

	data := draft.Data
	if data == nil {
		data = model.StringMap{}
	}

	var n model.Notification
	if err = r.db.GetContext(ctx, &n, query,
		uuid.New(),
		draft.Type,
		draft.Title,
		draft.Body,
		data,
		time.Now().UTC(),
	); err != nil {
		return nil, errors.Persistence("create notification", err)
	}
	return &n, nil
}

func (r *notificationRepository) LinkDevice(ctx context.Context, notificationID, deviceID uuid.UUID) (out *model.DeliveryLink, err error) {
	defer func(start time.Time) { r.observe("link_device", start, err) }(time.Now())

	query := `
		INSERT INTO device_notifications (id, device_id, notification_id, read, created_at)
		VALUES ($1, $2, $3, FALSE, $4)
		RETURNING id, device_id, notification_id, read, created_at
	`

	var link model.DeliveryLink
	if err = r.db.GetContext(ctx, &link, query,
		uuid.New(),
		deviceID,
		notificationID,
		time.Now().UTC(),
	); err != nil {
		return nil, errors.Persistence("link device", err)
	}
	return &link, nil
}

// ListForDevice returns the device's delivery links joined with their
// notifications, most recent first.
func (r *notificationRepository) ListForDevice(ctx context.Context, deviceID uuid.UUID) (out []*model.DeviceNotification, err error) {
	defer func(start time.Time) { r.observe("list_device_notifications", start, err) }(time.Now())

	query := `
		SELECT
			dn.id, dn.device_id, dn.notification_id, dn.read, dn.created_at,
			n.id AS "notification.id",
			n.type AS "notification.type",
			n.title AS "notification.title",
			n.body AS "notification.body",
			n.data AS "notification.data",
			n.created_at AS "notification.created_at"
		FROM device_notifications dn
		JOIN notifications n ON n.id = dn.notification_id
		WHERE dn.device_id = $1
		ORDER BY n.created_at DESC, dn.created_at DESC
	`

	items := []*model.DeviceNotification{}
	if err = r.db.SelectContext(ctx, &items, query, deviceID); err != nil {
		return nil, errors.Persistence("list device notifications", err)
	}
	return items, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, deviceID, notificationID uuid.UUID) (err error) {
	defer func(start time.Time) { r.observe("mark_read", start, err) }(time.Now())

	query := `
		UPDATE device_notifications
		SET read = TRUE
		WHERE device_id = $1 AND notification_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, deviceID, notificationID)
	if err != nil {
		return errors.Persistence("mark notification read", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Persistence("mark notification read", err)
	}
	if rows == 0 {
		return errors.NotFound("delivery link", nil)
	}
	return nil
}
