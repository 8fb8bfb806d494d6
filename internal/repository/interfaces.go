package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/media-push/internal/model"
)

// All repository interfaces in one file
type (
	// NotificationRepository persists notifications and their delivery links.
	NotificationRepository interface {
		Create(ctx context.Context, draft *model.NotificationDraft) (*model.Notification, error)
		LinkDevice(ctx context.Context, notificationID, deviceID uuid.UUID) (*model.DeliveryLink, error)
		ListForDevice(ctx context.Context, deviceID uuid.UUID) ([]*model.DeviceNotification, error)
		MarkRead(ctx context.Context, deviceID, notificationID uuid.UUID) error
	}

	// DeviceRepository is the device directory.
	DeviceRepository interface {
		Upsert(ctx context.Context, device *model.Device) (*model.Device, error)
		List(ctx context.Context) ([]*model.Device, error)
		GetByDeviceID(ctx context.Context, deviceID string) (*model.Device, error)
	}
)
