package postgres

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	stderrors "errors"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/media-push/internal/model"
	"github.com/jwalitptl/media-push/pkg/errors"
	"github.com/jwalitptl/media-push/pkg/metrics"
)

func newMockBase(t *testing.T) (BaseRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewBaseRepository(sqlx.NewDb(db, "postgres"), metrics.New("test")), mock
}

// sqlPattern quotes each fragment and allows anything between them.
func sqlPattern(fragments ...string) string {
	quoted := make([]string, len(fragments))
	for i, f := range fragments {
		quoted[i] = regexp.QuoteMeta(f)
	}
	return strings.Join(quoted, ".*")
}

// jsonArg matches a JSONB argument by its decoded content.
type jsonArg map[string]string

func (j jsonArg) Match(v driver.Value) bool {
	raw, ok := v.([]byte)
	if !ok {
		return false
	}
	got := map[string]string{}
	if err := json.Unmarshal(raw, &got); err != nil {
		return false
	}
	return reflect.DeepEqual(map[string]string(j), got)
}

var deviceColumns = []string{"id", "device_id", "fcm_token", "platform", "created_at", "updated_at"}

func TestDeviceUpsertKeepsOneRowPerDeviceID(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewDeviceRepository(base)
	ctx := context.Background()

	id := uuid.New()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	upsert := sqlPattern(
		"INSERT INTO devices (id, device_id, fcm_token, platform, created_at, updated_at)",
		"ON CONFLICT (device_id) DO UPDATE",
		"SET fcm_token = EXCLUDED.fcm_token",
		"RETURNING id, device_id, fcm_token, platform",
	)

	mock.ExpectQuery(upsert).
		WithArgs(sqlmock.AnyArg(), "dev-1", "tok-1", model.PlatformUnknown, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(deviceColumns).
			AddRow(id.String(), "dev-1", "tok-1", model.PlatformUnknown, created, created))
	mock.ExpectQuery(upsert).
		WithArgs(sqlmock.AnyArg(), "dev-1", "tok-2", "android", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(deviceColumns).
			AddRow(id.String(), "dev-1", "tok-2", "android", created, created.Add(time.Minute)))

	first, err := repo.Upsert(ctx, &model.Device{DeviceID: "dev-1", FCMToken: "tok-1"})
	require.NoError(t, err)
	assert.Equal(t, id, first.ID)
	assert.Equal(t, model.PlatformUnknown, first.Platform)

	second, err := repo.Upsert(ctx, &model.Device{DeviceID: "dev-1", FCMToken: "tok-2", Platform: "android"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "tok-2", second.FCMToken)
	assert.Equal(t, created, second.CreatedAt)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestDeviceListOrdersByCreation(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewDeviceRepository(base)
	now := time.Now().UTC()

	mock.ExpectQuery(sqlPattern("FROM devices", "ORDER BY created_at ASC")).
		WillReturnRows(sqlmock.NewRows(deviceColumns).
			AddRow(uuid.NewString(), "dev-1", "tok-1", "ios", now, now).
			AddRow(uuid.NewString(), "dev-2", "tok-2", "android", now, now))

	devices, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "tok-1", devices[0].FCMToken)
	assert.Equal(t, "dev-2", devices[1].DeviceID)
}

func TestDeviceGetByDeviceIDNotFound(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewDeviceRepository(base)

	mock.ExpectQuery(sqlPattern("FROM devices", "WHERE device_id = $1")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(deviceColumns))

	_, err := repo.GetByDeviceID(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.NotFoundKind))
}

func TestDeviceListConnectivityFailure(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewDeviceRepository(base)

	mock.ExpectQuery(sqlPattern("FROM devices")).WillReturnError(stderrors.New("dial tcp 127.0.0.1:5432: connect: connection refused"))

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.PersistenceKind))
}

func TestNotificationCreateStoresJSONData(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewNotificationRepository(base)

	id := uuid.New()
	created := time.Now().UTC()
	mock.ExpectQuery(sqlPattern("INSERT INTO notifications (id, type, title, body, data, created_at)", "RETURNING")).
		WithArgs(sqlmock.AnyArg(), "media", "New Video Uploaded", "Launch", jsonArg{"type": "media", "id": "m1"}, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "type", "title", "body", "data", "created_at"}).
			AddRow(id.String(), "media", "New Video Uploaded", "Launch", []byte(`{"type":"media","id":"m1"}`), created))

	n, err := repo.Create(context.Background(), &model.NotificationDraft{
		Type:  model.NotificationTypeMedia,
		Title: "New Video Uploaded",
		Body:  "Launch",
		Data:  model.StringMap{"type": "media", "id": "m1"},
	})
	require.NoError(t, err)
	assert.Equal(t, id, n.ID)
	assert.Equal(t, model.NotificationTypeMedia, n.Type)
	assert.Equal(t, model.StringMap{"type": "media", "id": "m1"}, n.Data)
}

func TestNotificationCreateConstraintViolation(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewNotificationRepository(base)

	mock.ExpectQuery(sqlPattern("INSERT INTO notifications")).
		WillReturnError(&pq.Error{
			Code:       "23514",
			Message:    `new row for relation "notifications" violates check constraint`,
			Constraint: "notifications_type_check",
		})

	_, err := repo.Create(context.Background(), &model.NotificationDraft{
		Type:  model.NotificationType("email"),
		Title: "x",
		Body:  "y",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.PersistenceKind))

	var pqErr *pq.Error
	require.True(t, stderrors.As(err, &pqErr))
	assert.Equal(t, "notifications_type_check", pqErr.Constraint)
}

func TestNotificationLinkDeviceInsertsUnread(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewNotificationRepository(base)

	deviceID, notificationID := uuid.New(), uuid.New()
	mock.ExpectQuery(sqlPattern("INSERT INTO device_notifications", "VALUES ($1, $2, $3, FALSE, $4)")).
		WithArgs(sqlmock.AnyArg(), deviceID, notificationID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "notification_id", "read", "created_at"}).
			AddRow(uuid.NewString(), deviceID.String(), notificationID.String(), false, time.Now()))

	link, err := repo.LinkDevice(context.Background(), notificationID, deviceID)
	require.NoError(t, err)
	assert.Equal(t, deviceID, link.DeviceID)
	assert.Equal(t, notificationID, link.NotificationID)
	assert.False(t, link.Read)
}

func TestNotificationListForDeviceScansJoinedRows(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewNotificationRepository(base)

	deviceID := uuid.New()
	newer, older := uuid.New(), uuid.New()
	t2 := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	t1 := t2.Add(-time.Hour)

	columns := []string{
		"id", "device_id", "notification_id", "read", "created_at",
		"notification.id", "notification.type", "notification.title",
		"notification.body", "notification.data", "notification.created_at",
	}
	mock.ExpectQuery(sqlPattern("FROM device_notifications dn", "JOIN notifications n", "WHERE dn.device_id = $1", "ORDER BY n.created_at DESC")).
		WithArgs(deviceID).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(uuid.NewString(), deviceID.String(), newer.String(), true, t2,
				newer.String(), "media", "Video Updated", "Second", []byte(`{"type":"media","id":"m2"}`), t2).
			AddRow(uuid.NewString(), deviceID.String(), older.String(), false, t1,
				older.String(), "media", "New Video Uploaded", "First", []byte(`{"type":"media","id":"m1"}`), t1))

	items, err := repo.ListForDevice(context.Background(), deviceID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, newer, items[0].NotificationID)
	assert.True(t, items[0].Read)
	assert.Equal(t, newer, items[0].Notification.ID)
	assert.Equal(t, "Second", items[0].Notification.Body)
	assert.Equal(t, model.StringMap{"type": "media", "id": "m2"}, items[0].Notification.Data)
	assert.Equal(t, "First", items[1].Notification.Body)
	assert.Equal(t, t1, items[1].Notification.CreatedAt)
}

func TestNotificationListForDeviceEmpty(t *testing.T) {
	base, mock := newMockBase(t)
	repo := NewNotificationRepository(base)

	mock.ExpectQuery(sqlPattern("FROM device_notifications dn")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	items, err := repo.ListForDevice(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestNotificationMarkRead(t *testing.T) {
	deviceID, notificationID := uuid.New(), uuid.New()
	update := sqlPattern("UPDATE device_notifications", "SET read = TRUE", "WHERE device_id = $1 AND notification_id = $2")

	t.Run("updates the link", func(t *testing.T) {
		base, mock := newMockBase(t)
		mock.ExpectExec(update).
			WithArgs(deviceID, notificationID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, NewNotificationRepository(base).MarkRead(context.Background(), deviceID, notificationID))
	})

	t.Run("missing link is not found", func(t *testing.T) {
		base, mock := newMockBase(t)
		mock.ExpectExec(update).
			WithArgs(deviceID, notificationID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := NewNotificationRepository(base).MarkRead(context.Background(), deviceID, notificationID)
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.NotFoundKind))
	})
}
