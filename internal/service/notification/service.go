package notification

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/media-push/internal/model"
	"github.com/jwalitptl/media-push/internal/repository"
	"github.com/jwalitptl/media-push/internal/service/classifier"
	"github.com/jwalitptl/media-push/pkg/logger"
	"github.com/jwalitptl/media-push/pkg/messaging"
	"github.com/jwalitptl/media-push/pkg/metrics"
	"github.com/jwalitptl/media-push/pkg/push"
)

const (
	defaultTestTitle = "Test Notification"
	defaultTestBody  = "This is a test push notification"

	publishTimeout = 3 * time.Second
)

// Dispatcher is the fan-out used by the pipeline.
type Dispatcher interface {
	Dispatch(ctx context.Context, tokens []string, payload push.Payload) (*push.Report, error)
}

type Service interface {
	// HandleWebhook runs one webhook event through classify, persist,
	// link and dispatch.
	HandleWebhook(ctx context.Context, raw []byte) (*Result, error)
	// TestPush sends a single message to one token without persisting it.
	TestPush(ctx context.Context, token, title, body string) (*push.Report, error)
}

// Result of one pipeline run.
type Result struct {
	Ignored      bool
	Kind         string
	Notification *model.Notification
	Report       *push.Report
	Linked       int
	LinkFailed   int
}

// DispatchEvent is published on messaging.ReportChannel after a fan-out.
type DispatchEvent struct {
	NotificationID uuid.UUID    `json:"notification_id,omitempty"`
	Kind           string       `json:"kind,omitempty"`
	Linked         int          `json:"linked"`
	LinkFailed     int          `json:"link_failed"`
	Report         *push.Report `json:"report"`
	DispatchedAt   time.Time    `json:"dispatched_at"`
}

type Config struct {
	// LinkConcurrency caps concurrent link inserts; zero is unbounded.
	LinkConcurrency int
}

type service struct {
	notifications repository.NotificationRepository
	devices       repository.DeviceRepository
	dispatcher    Dispatcher
	publisher     messaging.Publisher
	config        Config
	logger        *logger.Logger
	metrics       *metrics.Metrics
}

func NewService(
	notifications repository.NotificationRepository,
	devices repository.DeviceRepository,
	dispatcher Dispatcher,
	publisher messaging.Publisher,
	config Config,
	log *logger.Logger,
	m *metrics.Metrics,
) Service {
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &service{
		notifications: notifications,
		devices:       devices,
		dispatcher:    dispatcher,
		publisher:     publisher,
		config:        config,
		logger:        log,
		metrics:       m,
	}
}

func (s *service) HandleWebhook(ctx context.Context, raw []byte) (*Result, error) {
	log := s.logger.WithContext(ctx)

	c, err := classifier.Classify(raw)
	if err != nil {
		s.countEvent("malformed")
		return nil, err
	}
	if c.Outcome == classifier.Ignored {
		s.countEvent("ignored")
		log.Debug("ignoring webhook event", "event", c.Kind)
		return &Result{Ignored: true, Kind: c.Kind}, nil
	}

	n, err := s.notifications.Create(ctx, c.Draft)
	if err != nil {
		s.countEvent("failed")
		log.Error(err, "failed to persist notification", "event", c.Kind)
		return nil, err
	}

	devices, err := s.devices.List(ctx)
	if err != nil {
		s.countEvent("failed")
		log.Error(err, "failed to list devices", "notification_id", n.ID.String())
		return nil, err
	}

	linked, linkFailed := s.linkAll(ctx, n.ID, devices)

	tokens := make([]string, 0, len(devices))
	for _, d := range devices {
		tokens = append(tokens, d.FCMToken)
	}

	report, err := s.dispatcher.Dispatch(ctx, tokens, push.Payload{
		Title: n.Title,
		Body:  n.Body,
		Data:  n.Data,
	})
	if err != nil {
		s.countEvent("failed")
		log.Error(err, "dispatch aborted", "notification_id", n.ID.String())
		return nil, err
	}

	s.countEvent("dispatched")
	log.Info("notification dispatched",
		"event", c.Kind,
		"notification_id", n.ID.String(),
		"devices", len(devices),
		"sent", report.Sent,
		"failed", report.Failed,
		"link_failed", linkFailed,
	)

	s.publish(ctx, messaging.TypeDispatchReport, DispatchEvent{
		NotificationID: n.ID,
		Kind:           c.Kind,
		Linked:         linked,
		LinkFailed:     linkFailed,
		Report:         report,
		DispatchedAt:   time.Now().UTC(),
	})

	return &Result{
		Kind:         c.Kind,
		Notification: n,
		Report:       report,
		Linked:       linked,
		LinkFailed:   linkFailed,
	}, nil
}

// linkAll creates one delivery link per device. A failed link is counted
// and logged; it never stops the others or the dispatch.
func (s *service) linkAll(ctx context.Context, notificationID uuid.UUID, devices []*model.Device) (int, int) {
	var linked, failed atomic.Int64

	var g errgroup.Group
	if s.config.LinkConcurrency > 0 {
		g.SetLimit(s.config.LinkConcurrency)
	}
	for _, d := range devices {
		d := d
		g.Go(func() error {
			if _, err := s.notifications.LinkDevice(ctx, notificationID, d.ID); err != nil {
				failed.Add(1)
				s.countLink(err)
				s.logger.Error(err, "failed to link device",
					"notification_id", notificationID.String(),
					"device_id", d.DeviceID,
				)
				return nil
			}
			linked.Add(1)
			s.countLink(nil)
			return nil
		})
	}
	_ = g.Wait()

	return int(linked.Load()), int(failed.Load())
}

func (s *service) TestPush(ctx context.Context, token, title, body string) (*push.Report, error) {
	if title == "" {
		title = defaultTestTitle
	}
	if body == "" {
		body = defaultTestBody
	}

	report, err := s.dispatcher.Dispatch(ctx, []string{token}, push.Payload{
		Title: title,
		Body:  body,
		Data:  map[string]string{"type": "test"},
	})
	if err != nil {
		s.logger.WithContext(ctx).Error(err, "test push failed", "token", logger.MaskToken(token))
		return nil, err
	}

	s.publish(ctx, messaging.TypeTestPush, DispatchEvent{
		Report:       report,
		DispatchedAt: time.Now().UTC(),
	})
	return report, nil
}

// publish is best effort: the HTTP caller never sees a broker failure.
func (s *service) publish(ctx context.Context, msgType string, event DispatchEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	msg := messaging.Message{Type: msgType, Payload: event}
	if err := s.publisher.Publish(ctx, messaging.ReportChannel, msg); err != nil {
		s.logger.Warn("failed to publish dispatch report", "error", err.Error(), "type", msgType)
	}
}

func (s *service) countEvent(outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.WebhookEvents.WithLabelValues(outcome).Inc()
}

func (s *service) countLink(err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.DeviceLinks.WithLabelValues(status).Inc()
}
