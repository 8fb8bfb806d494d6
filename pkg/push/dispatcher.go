package push

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/jwalitptl/media-push/pkg/auth"
	"github.com/jwalitptl/media-push/pkg/logger"
	"github.com/jwalitptl/media-push/pkg/metrics"
)

type DispatcherConfig struct {
	// MaxConcurrency caps in-flight sends; zero means one goroutine per token.
	MaxConcurrency int
	SendTimeout    time.Duration
}

// Dispatcher sends one payload to many tokens concurrently. A failing
// token never affects its siblings or the overall call.
type Dispatcher struct {
	tokens    auth.TokenProvider
	transport Transport
	config    DispatcherConfig
	logger    *logger.Logger
	metrics   *metrics.Metrics
}

func NewDispatcher(tokens auth.TokenProvider, transport Transport, config DispatcherConfig, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	if config.SendTimeout <= 0 {
		config.SendTimeout = 15 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Dispatcher{
		tokens:    tokens,
		transport: transport,
		config:    config,
		logger:    log,
		metrics:   m,
	}
}

// Dispatch sends payload to every token. It returns an error only when
// the access token cannot be obtained.
func (d *Dispatcher) Dispatch(ctx context.Context, tokens []string, payload Payload) (*Report, error) {
	if len(tokens) == 0 {
		d.logger.Info("no devices registered, nothing to dispatch")
		return &Report{Status: StatusNoDevicesRegistered}, nil
	}

	if d.metrics != nil {
		timer := prometheus.NewTimer(d.metrics.DispatchDuration)
		defer timer.ObserveDuration()
	}

	cred, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(tokens))
	var g errgroup.Group
	if d.config.MaxConcurrency > 0 {
		g.SetLimit(d.config.MaxConcurrency)
	}

	for i, token := range tokens {
		i, token := i, token
		g.Go(func() error {
			results[i] = d.sendOne(ctx, cred, token, payload)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Status: StatusDispatched, Results: results}
	for _, r := range results {
		if r.Success {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	d.logger.Info("dispatch finished", "sent", report.Sent, "failed", report.Failed)
	return report, nil
}

func (d *Dispatcher) sendOne(ctx context.Context, cred *oauth2.Token, token string, payload Payload) Result {
	ctx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	defer cancel()

	start := time.Now()
	res, err := d.transport.Send(ctx, cred, token, payload)
	if d.metrics != nil {
		d.metrics.PushSendLatency.Observe(time.Since(start).Seconds())
	}

	out := Result{
		Token:        token,
		MessageID:    res.MessageID,
		StatusCode:   res.StatusCode,
		ProviderCode: res.ProviderCode,
	}
	if err != nil {
		out.Err = err
		out.Error = err.Error()
		d.countSend("failed")
		d.logger.Warn("push send failed",
			"token", logger.MaskToken(token),
			"status_code", res.StatusCode,
			"provider_code", res.ProviderCode,
			"error", err.Error())
		return out
	}

	out.Success = true
	d.countSend("sent")
	return out
}

func (d *Dispatcher) countSend(status string) {
	if d.metrics == nil {
		return
	}
	d.metrics.PushSends.WithLabelValues(status).Inc()
}
