package model

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType is the store's allowed set of type tags.
type NotificationType string

const (
	NotificationTypeMedia NotificationType = "media"
)

// NotificationDraft is the validated shape produced from a webhook event.
// Nothing downstream of the classifier reads the raw payload.
type NotificationDraft struct {
	Type  NotificationType `json:"type"`
	Title string           `json:"title"`
	Body  string           `json:"body"`
	Data  StringMap        `json:"data"`
}

// Notification is created once per accepted webhook event and never
// mutated afterwards.
type Notification struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Body      string           `json:"body" db:"body"`
	Data      StringMap        `json:"data" db:"data"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

// DeliveryLink records that a notification was targeted at a device.
type DeliveryLink struct {
	ID             uuid.UUID `json:"id" db:"id"`
	DeviceID       uuid.UUID `json:"device_id" db:"device_id"`
	NotificationID uuid.UUID `json:"notification_id" db:"notification_id"`
	Read           bool      `json:"read" db:"read"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// DeviceNotification is a delivery link joined with its notification.
type DeviceNotification struct {
	DeliveryLink
	Notification Notification `json:"notification" db:"notification"`
}
