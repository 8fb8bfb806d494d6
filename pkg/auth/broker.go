package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jwalitptl/media-push/pkg/errors"
	"github.com/jwalitptl/media-push/pkg/logger"
	"github.com/jwalitptl/media-push/pkg/metrics"
)

// DefaultExpiryMargin is how long before expiry a cached token is retired.
const DefaultExpiryMargin = 60 * time.Second

// TokenProvider hands out bearer tokens for the push provider.
type TokenProvider interface {
	Token(ctx context.Context) (*oauth2.Token, error)
}

type BrokerConfig struct {
	ExpiryMargin time.Duration
	HTTPTimeout  time.Duration
}

// Broker exchanges signed assertions for access tokens and memoises the
// result until it gets within ExpiryMargin of expiry.
type Broker struct {
	cred    ServiceCredential
	config  BrokerConfig
	client  *http.Client
	logger  *logger.Logger
	metrics *metrics.Metrics

	cached atomic.Pointer[oauth2.Token]
	flight singleflight.Group
	now    func() time.Time
}

type BrokerOption func(*Broker)

// WithHTTPClient overrides the client used for the token exchange.
func WithHTTPClient(c *http.Client) BrokerOption {
	return func(b *Broker) { b.client = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) { b.now = now }
}

func NewBroker(cred ServiceCredential, config BrokerConfig, log *logger.Logger, m *metrics.Metrics, opts ...BrokerOption) *Broker {
	if config.ExpiryMargin <= 0 {
		config.ExpiryMargin = DefaultExpiryMargin
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = 15 * time.Second
	}
	if log == nil {
		log = logger.Nop()
	}

	b := &Broker{
		cred:    cred.Normalize(),
		config:  config,
		client:  &http.Client{Timeout: config.HTTPTimeout},
		logger:  log,
		metrics: m,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Token returns a cached token when it is outside the expiry margin and
// mints a new one otherwise. Concurrent misses share one exchange; the
// exchange is detached from any single caller's cancellation and each
// caller stops waiting when its own ctx is done.
func (b *Broker) Token(ctx context.Context) (*oauth2.Token, error) {
	if tok := b.fresh(); tok != nil {
		return tok, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := b.flight.DoChan("token", func() (interface{}, error) {
		if tok := b.fresh(); tok != nil {
			return tok, nil
		}
		tok, err := b.exchange(shared)
		b.metrics.ObserveToken(err)
		if err != nil {
			return nil, err
		}
		b.cached.Store(tok)
		return tok, nil
	})

	select {
	case <-ctx.Done():
		return nil, &errors.AppError{Code: errors.ErrAuth, Message: "token request abandoned", Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*oauth2.Token), nil
	}
}

// TokenSource adapts the broker to oauth2.TokenSource.
func (b *Broker) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, b: b}
}

type tokenSource struct {
	ctx context.Context
	b   *Broker
}

func (s tokenSource) Token() (*oauth2.Token, error) {
	return s.b.Token(s.ctx)
}

func (b *Broker) fresh() *oauth2.Token {
	tok := b.cached.Load()
	if tok == nil || tok.AccessToken == "" {
		return nil
	}
	if !b.now().Before(tok.Expiry.Add(-b.config.ExpiryMargin)) {
		return nil
	}
	return tok
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (b *Broker) exchange(ctx context.Context) (*oauth2.Token, error) {
	now := b.now()
	assertion, err := Sign(NewAssertionClaims(b.cred, now), b.cred)
	if err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("grant_type", JWTBearerGrantType)
	form.Set("assertion", assertion)

	ctx, cancel := context.WithTimeout(ctx, b.config.HTTPTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cred.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Auth("failed to build token request", err.Error())
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, errors.Auth("token endpoint unreachable", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Auth("failed to read token response", err.Error())
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.AccessToken == "" {
		b.logger.Warn("token endpoint returned no access token", "status", resp.StatusCode)
		return nil, errors.Auth(fmt.Sprintf("no access token in response (status %d)", resp.StatusCode), string(body))
	}

	expiresIn := time.Duration(parsed.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = AssertionLifetime
	}
	// A token that is already inside the margin could never be handed out.
	if expiresIn <= b.config.ExpiryMargin {
		b.logger.Warn("token lifetime does not exceed expiry margin",
			"expires_in", parsed.ExpiresIn, "margin", b.config.ExpiryMargin.String())
		return nil, errors.Auth(fmt.Sprintf("token lifetime %s does not exceed expiry margin %s", expiresIn, b.config.ExpiryMargin), string(body))
	}
	tokenType := parsed.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	b.logger.Debug("minted access token", "expires_in", parsed.ExpiresIn)
	return &oauth2.Token{
		AccessToken: parsed.AccessToken,
		TokenType:   tokenType,
		Expiry:      now.Add(expiresIn),
	}, nil
}
