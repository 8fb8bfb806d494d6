package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/media-push/internal/model"
	"github.com/jwalitptl/media-push/pkg/errors"
)

// memDevices mimics the ON CONFLICT (device_id) upsert.
type memDevices struct {
	mu      sync.Mutex
	rows    map[string]*model.Device
	lookups int
}

func newMemDevices() *memDevices {
	return &memDevices{rows: map[string]*model.Device{}}
}

func (m *memDevices) Upsert(_ context.Context, d *model.Device) (*model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if existing, ok := m.rows[d.DeviceID]; ok {
		updated := *existing
		updated.FCMToken = d.FCMToken
		updated.Platform = d.Platform
		updated.UpdatedAt = now
		m.rows[d.DeviceID] = &updated
		return &updated, nil
	}
	row := *d
	row.ID = uuid.New()
	row.CreatedAt = now
	row.UpdatedAt = now
	m.rows[d.DeviceID] = &row
	return &row, nil
}

func (m *memDevices) List(context.Context) ([]*model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Device, 0, len(m.rows))
	for _, d := range m.rows {
		out = append(out, d)
	}
	return out, nil
}

func (m *memDevices) GetByDeviceID(_ context.Context, deviceID string) (*model.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookups++
	d, ok := m.rows[deviceID]
	if !ok {
		return nil, errors.NotFound("device", nil)
	}
	return d, nil
}

type mockNotifications struct {
	mock.Mock
}

func (m *mockNotifications) Create(ctx context.Context, draft *model.NotificationDraft) (*model.Notification, error) {
	args := m.Called(ctx, draft)
	n, _ := args.Get(0).(*model.Notification)
	return n, args.Error(1)
}

func (m *mockNotifications) LinkDevice(ctx context.Context, notificationID, deviceID uuid.UUID) (*model.DeliveryLink, error) {
	args := m.Called(ctx, notificationID, deviceID)
	l, _ := args.Get(0).(*model.DeliveryLink)
	return l, args.Error(1)
}

func (m *mockNotifications) ListForDevice(ctx context.Context, deviceID uuid.UUID) ([]*model.DeviceNotification, error) {
	args := m.Called(ctx, deviceID)
	l, _ := args.Get(0).([]*model.DeviceNotification)
	return l, args.Error(1)
}

func (m *mockNotifications) MarkRead(ctx context.Context, deviceID, notificationID uuid.UUID) error {
	return m.Called(ctx, deviceID, notificationID).Error(0)
}

func TestRegisterTwiceKeepsOneRowWithLatestToken(t *testing.T) {
	devices := newMemDevices()
	svc := NewService(devices, &mockNotifications{}, CacheConfig{}, nil)
	ctx := context.Background()

	first, err := svc.Register(ctx, &model.RegisterDeviceRequest{DeviceID: "dev-1", FCMToken: "tok-old", Platform: "Android"})
	require.NoError(t, err)
	second, err := svc.Register(ctx, &model.RegisterDeviceRequest{DeviceID: "dev-1", FCMToken: "tok-new"})
	require.NoError(t, err)

	all, _ := devices.List(ctx)
	require.Len(t, all, 1)
	assert.Equal(t, "tok-new", all[0].FCMToken)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "android", first.Platform)
}

func TestRegisterRequiresFields(t *testing.T) {
	svc := NewService(newMemDevices(), &mockNotifications{}, CacheConfig{}, nil)

	_, err := svc.Register(context.Background(), &model.RegisterDeviceRequest{DeviceID: "  ", FCMToken: "tok"})
	appErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrBadRequest, appErr.Code)
}

func TestHistoryUnknownDevice(t *testing.T) {
	notifications := &mockNotifications{}
	svc := NewService(newMemDevices(), notifications, CacheConfig{}, nil)

	_, err := svc.History(context.Background(), "ghost")
	assert.ErrorIs(t, err, errors.NotFoundKind)
	notifications.AssertNotCalled(t, "ListForDevice", mock.Anything, mock.Anything)
}

func TestHistoryUsesCachedDevice(t *testing.T) {
	devices := newMemDevices()
	ctx := context.Background()
	stored, _ := devices.Upsert(ctx, &model.Device{DeviceID: "dev-1", FCMToken: "tok"})

	items := []*model.DeviceNotification{{
		DeliveryLink: model.DeliveryLink{ID: uuid.New(), DeviceID: stored.ID},
		Notification: model.Notification{Title: "Video Updated"},
	}}
	notifications := &mockNotifications{}
	notifications.On("ListForDevice", mock.Anything, stored.ID).Return(items, nil)

	svc := NewService(devices, notifications, CacheConfig{TTL: time.Minute}, nil)

	for i := 0; i < 3; i++ {
		got, err := svc.History(ctx, "dev-1")
		require.NoError(t, err)
		assert.Equal(t, items, got)
	}
	assert.Equal(t, 1, devices.lookups)
	notifications.AssertNumberOfCalls(t, "ListForDevice", 3)
}

func TestMarkRead(t *testing.T) {
	devices := newMemDevices()
	ctx := context.Background()
	stored, _ := devices.Upsert(ctx, &model.Device{DeviceID: "dev-1", FCMToken: "tok"})
	notificationID := uuid.New()

	notifications := &mockNotifications{}
	notifications.On("MarkRead", mock.Anything, stored.ID, notificationID).Return(nil)

	svc := NewService(devices, notifications, CacheConfig{}, nil)
	require.NoError(t, svc.MarkRead(ctx, "dev-1", notificationID))
	notifications.AssertExpectations(t)
}
