package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/media-push/internal/model"
	"github.com/jwalitptl/media-push/internal/repository"
	"github.com/jwalitptl/media-push/pkg/errors"
)

type deviceRepository struct {
	BaseRepository
}

func NewDeviceRepository(base BaseRepository) repository.DeviceRepository {
	return &deviceRepository{base}
}

// Upsert inserts a device or, when device_id already exists, replaces its
// token and platform. The internal id of an existing row is preserved.
func (r *deviceRepository) Upsert(ctx context.Context, device *model.Device) (out *model.Device, err error) {
	defer func(start time.Time) { r.observe("upsert_device", start, err) }(time.Now())

	query := `
		INSERT INTO devices (id, device_id, fcm_token, platform, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (device_id) DO UPDATE
		SET fcm_token = EXCLUDED.fcm_token,
			platform = EXCLUDED.platform,
			updated_at = EXCLUDED.updated_at
		RETURNING id, device_id, fcm_token, platform, created_at, updated_at
	`

	platform := device.Platform
	if platform == "" {
		platform = model.PlatformUnknown
	}

	var stored model.Device
	if err = r.db.GetContext(ctx, &stored, query,
		uuid.New(),
		device.DeviceID,
		device.FCMToken,
		platform,
		time.Now().UTC(),
	); err != nil {
		return nil, errors.Persistence("upsert device", err)
	}
	return &stored, nil
}

func (r *deviceRepository) List(ctx context.Context) (out []*model.Device, err error) {
	defer func(start time.Time) { r.observe("list_devices", start, err) }(time.Now())

	query := `
		SELECT id, device_id, fcm_token, platform, created_at, updated_at
		FROM devices
		ORDER BY created_at ASC
	`

	var devices []*model.Device
	if err = r.db.SelectContext(ctx, &devices, query); err != nil {
		return nil, errors.Persistence("list devices", err)
	}
	return devices, nil
}

func (r *deviceRepository) GetByDeviceID(ctx context.Context, deviceID string) (out *model.Device, err error) {
	defer func(start time.Time) { r.observe("get_device", start, err) }(time.Now())

	query := `
		SELECT id, device_id, fcm_token, platform, created_at, updated_at
		FROM devices
		WHERE device_id = $1
	`

	var device model.Device
	if err = r.db.GetContext(ctx, &device, query, deviceID); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("device", err)
		}
		return nil, errors.Persistence("get device", err)
	}
	return &device, nil
}
