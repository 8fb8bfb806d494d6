package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/media-push/internal/service/notification"
	"github.com/jwalitptl/media-push/pkg/logger"
	"github.com/jwalitptl/media-push/pkg/messaging"
	"github.com/jwalitptl/media-push/pkg/metrics"
	"github.com/jwalitptl/media-push/pkg/push"
)

// StaleToken is a push token the provider will never accept again.
type StaleToken struct {
	Token          string
	ProviderCode   string
	NotificationID string
}

// ReportConsumer reads dispatch reports from the broker, counts them and
// surfaces tokens the provider rejected as unregistered or invalid.
type ReportConsumer struct {
	broker  messaging.Broker
	logger  *logger.Logger
	metrics *metrics.Metrics
	onStale func(StaleToken)
}

type ConsumerOption func(*ReportConsumer)

// WithStaleHandler is called once per stale token found in a report.
func WithStaleHandler(fn func(StaleToken)) ConsumerOption {
	return func(c *ReportConsumer) { c.onStale = fn }
}

func NewReportConsumer(broker messaging.Broker, log *logger.Logger, m *metrics.Metrics, opts ...ConsumerOption) *ReportConsumer {
	if log == nil {
		log = logger.Nop()
	}
	c := &ReportConsumer{
		broker:  broker,
		logger:  log,
		metrics: m,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Type    string                     `json:"type"`
	Payload notification.DispatchEvent `json:"payload"`
}

// Start blocks until ctx is done or the subscription closes.
func (c *ReportConsumer) Start(ctx context.Context) error {
	messages, err := c.broker.Subscribe(ctx, messaging.ReportChannel)
	if err != nil {
		return err
	}

	c.logger.Info("Starting report consumer", "channel", messaging.ReportChannel)
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Shutting down report consumer")
			return nil
		case raw, ok := <-messages:
			if !ok {
				return nil
			}
			if err := c.handle(raw); err != nil {
				c.logger.Error(err, "Failed to process dispatch report")
			}
		}
	}
}

func (c *ReportConsumer) handle(raw []byte) error {
	var msg envelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("failed to decode report: %w", err)
	}
	if c.metrics != nil {
		c.metrics.ReportsConsumed.WithLabelValues(msg.Type).Inc()
	}

	report := msg.Payload.Report
	if report == nil {
		return nil
	}

	notificationID := ""
	if msg.Payload.Kind != "" {
		notificationID = msg.Payload.NotificationID.String()
	}

	c.logger.Debug("dispatch report",
		"type", msg.Type,
		"notification_id", notificationID,
		"sent", report.Sent,
		"failed", report.Failed,
	)

	for _, res := range report.Results {
		if res.Success || !push.IsInvalidToken(res) {
			continue
		}
		if c.metrics != nil {
			c.metrics.StaleTokens.WithLabelValues(res.ProviderCode).Inc()
		}
		c.logger.Warn("provider rejected push token",
			"token", logger.MaskToken(res.Token),
			"provider_code", res.ProviderCode,
			"notification_id", notificationID,
		)
		if c.onStale != nil {
			c.onStale(StaleToken{
				Token:          res.Token,
				ProviderCode:   res.ProviderCode,
				NotificationID: notificationID,
			})
		}
	}
	return nil
}
