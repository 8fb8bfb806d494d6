package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	PlatformAndroid = "android"
	PlatformIOS     = "ios"
	PlatformWeb     = "web"
	PlatformUnknown = "unknown"
)

// Device maps a caller-chosen device identity to its current push token.
type Device struct {
	ID        uuid.UUID `json:"id" db:"id"`
	DeviceID  string    `json:"device_id" db:"device_id"`
	FCMToken  string    `json:"-" db:"fcm_token"`
	Platform  string    `json:"platform" db:"platform"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RegisterDeviceRequest is the body of POST /register-device.
type RegisterDeviceRequest struct {
	DeviceID string `json:"deviceId" binding:"required"`
	FCMToken string `json:"fcmToken" binding:"required"`
	Platform string `json:"platform" binding:"omitempty,max=32"`
}

// TestPushRequest is the body of POST /test-fcm.
type TestPushRequest struct {
	FCMToken string `json:"fcmToken" binding:"required"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}
