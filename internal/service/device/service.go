package device

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/media-push/internal/model"
	"github.com/jwalitptl/media-push/internal/repository"
	"github.com/jwalitptl/media-push/pkg/errors"
	"github.com/jwalitptl/media-push/pkg/logger"
)

type Service interface {
	Register(ctx context.Context, req *model.RegisterDeviceRequest) (*model.Device, error)
	History(ctx context.Context, deviceID string) ([]*model.DeviceNotification, error)
	MarkRead(ctx context.Context, deviceID string, notificationID uuid.UUID) error
}

type CacheConfig struct {
	TTL     time.Duration
	Cleanup time.Duration
}

type service struct {
	devices       repository.DeviceRepository
	notifications repository.NotificationRepository
	cache         *cache.Cache
	logger        *logger.Logger
}

func NewService(devices repository.DeviceRepository, notifications repository.NotificationRepository, cacheConfig CacheConfig, log *logger.Logger) Service {
	if cacheConfig.TTL <= 0 {
		cacheConfig.TTL = 5 * time.Minute
	}
	if cacheConfig.Cleanup <= 0 {
		cacheConfig.Cleanup = 10 * time.Minute
	}
	if log == nil {
		log = logger.Nop()
	}
	return &service{
		devices:       devices,
		notifications: notifications,
		cache:         cache.New(cacheConfig.TTL, cacheConfig.Cleanup),
		logger:        log,
	}
}

// Register upserts the device by its caller-chosen id. Registering the
// same id again replaces the token.
func (s *service) Register(ctx context.Context, req *model.RegisterDeviceRequest) (*model.Device, error) {
	deviceID := strings.TrimSpace(req.DeviceID)
	token := strings.TrimSpace(req.FCMToken)
	if deviceID == "" || token == "" {
		return nil, errors.BadRequest("deviceId and fcmToken are required", nil)
	}

	device, err := s.devices.Upsert(ctx, &model.Device{
		DeviceID: deviceID,
		FCMToken: token,
		Platform: strings.ToLower(strings.TrimSpace(req.Platform)),
	})
	if err != nil {
		return nil, err
	}

	s.cache.Set(device.DeviceID, device, cache.DefaultExpiration)
	s.logger.WithContext(ctx).Info("device registered",
		"device_id", device.DeviceID,
		"platform", device.Platform,
		"token", logger.MaskToken(device.FCMToken),
	)
	return device, nil
}

func (s *service) History(ctx context.Context, deviceID string) ([]*model.DeviceNotification, error) {
	device, err := s.lookup(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	return s.notifications.ListForDevice(ctx, device.ID)
}

func (s *service) MarkRead(ctx context.Context, deviceID string, notificationID uuid.UUID) error {
	device, err := s.lookup(ctx, deviceID)
	if err != nil {
		return err
	}
	return s.notifications.MarkRead(ctx, device.ID, notificationID)
}

func (s *service) lookup(ctx context.Context, deviceID string) (*model.Device, error) {
	if cached, ok := s.cache.Get(deviceID); ok {
		return cached.(*model.Device), nil
	}
	device, err := s.devices.GetByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(deviceID, device, cache.DefaultExpiration)
	return device, nil
}
