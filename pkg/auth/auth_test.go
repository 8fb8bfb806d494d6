package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/media-push/pkg/errors"
)

func testKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return key, string(block)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSign(t *testing.T) {
	key, pemKey := testKey(t)
	cred := ServiceCredential{
		ClientEmail:   "push@example.iam.gserviceaccount.com",
		PrivateKeyPEM: pemKey,
		TokenURI:      DefaultTokenURI,
		Scope:         MessagingScope,
	}
	now := time.Unix(1_700_000_000, 0)

	signed, err := Sign(NewAssertionClaims(cred, now), cred)
	require.NoError(t, err)

	parsed := &AssertionClaims{}
	_, err = jwt.ParseWithClaims(signed, parsed, func(tok *jwt.Token) (interface{}, error) {
		assert.Equal(t, "RS256", tok.Method.Alg())
		return &key.PublicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	require.NoError(t, err)

	assert.Equal(t, cred.ClientEmail, parsed.Issuer)
	assert.Equal(t, jwt.ClaimStrings{DefaultTokenURI}, parsed.Audience)
	assert.Equal(t, MessagingScope, parsed.Scope)
	assert.Equal(t, now.Unix(), parsed.IssuedAt.Unix())
	assert.Equal(t, now.Add(time.Hour).Unix(), parsed.ExpiresAt.Unix())
}

func TestSignMalformedKey(t *testing.T) {
	cred := ServiceCredential{ClientEmail: "x", PrivateKeyPEM: "not a pem"}
	_, err := Sign(NewAssertionClaims(cred, time.Now()), cred)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CredentialKind))
}

func TestNormalizeUnescapesNewlines(t *testing.T) {
	_, pemKey := testKey(t)
	escaped := strings.ReplaceAll(pemKey, "\n", `\n`)
	cred := ServiceCredential{PrivateKeyPEM: escaped}.Normalize()
	assert.Equal(t, pemKey, cred.PrivateKeyPEM)
	assert.Equal(t, DefaultTokenURI, cred.TokenURI)
	assert.Equal(t, MessagingScope, cred.Scope)
}

type tokenServer struct {
	*httptest.Server
	calls atomic.Int32
}

func newTokenServer(t *testing.T, key *rsa.PrivateKey, respond func(n int32, w http.ResponseWriter)) *tokenServer {
	t.Helper()
	ts := &tokenServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.calls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, JWTBearerGrantType, r.PostForm.Get("grant_type"))
		_, err := jwt.Parse(r.PostForm.Get("assertion"), func(*jwt.Token) (interface{}, error) {
			return &key.PublicKey, nil
		}, jwt.WithoutClaimsValidation())
		assert.NoError(t, err)
		respond(n, w)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestBroker(t *testing.T, pemKey, tokenURI string, clock *fakeClock) *Broker {
	cred := ServiceCredential{
		ProjectID:     "demo",
		ClientEmail:   "push@example.iam.gserviceaccount.com",
		PrivateKeyPEM: pemKey,
		TokenURI:      tokenURI,
	}
	return NewBroker(cred, BrokerConfig{ExpiryMargin: time.Minute, HTTPTimeout: 5 * time.Second}, nil, nil, WithClock(clock.Now))
}

func TestBrokerCachesUntilMargin(t *testing.T) {
	key, pemKey := testKey(t)
	ts := newTokenServer(t, key, func(n int32, w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":3600,"token_type":"Bearer"}`, n)
	})
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := newTestBroker(t, pemKey, ts.URL, clock)
	ctx := context.Background()

	first, err := b.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", first.AccessToken)

	clock.Advance(58 * time.Minute)
	again, err := b.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", again.AccessToken)
	assert.EqualValues(t, 1, ts.calls.Load())

	// 59m01s is inside the 60s margin.
	clock.Advance(61 * time.Second)
	renewed, err := b.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok-2", renewed.AccessToken)
	assert.EqualValues(t, 2, ts.calls.Load())
}

func TestBrokerConcurrentMissesShareExchange(t *testing.T) {
	key, pemKey := testKey(t)
	release := make(chan struct{})
	ts := newTokenServer(t, key, func(n int32, w http.ResponseWriter) {
		<-release
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":3600}`, n)
	})
	clock := &fakeClock{now: time.Now()}
	b := newTestBroker(t, pemKey, ts.URL, clock)

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := b.Token(context.Background())
			if assert.NoError(t, err) {
				results[i] = tok.AccessToken
			}
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for _, r := range results {
		assert.NotEmpty(t, r)
	}
	assert.EqualValues(t, 1, ts.calls.Load())
}

func TestBrokerMissingAccessToken(t *testing.T) {
	key, pemKey := testKey(t)
	ts := newTokenServer(t, key, func(_ int32, w http.ResponseWriter) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Invalid JWT Signature."}`)
	})
	b := newTestBroker(t, pemKey, ts.URL, &fakeClock{now: time.Now()})

	_, err := b.Token(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.AuthKind))
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestBrokerBadKeyNeverCallsEndpoint(t *testing.T) {
	key, _ := testKey(t)
	ts := newTokenServer(t, key, func(_ int32, w http.ResponseWriter) {
		fmt.Fprint(w, `{"access_token":"x"}`)
	})
	b := newTestBroker(t, "garbage", ts.URL, &fakeClock{now: time.Now()})

	_, err := b.Token(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CredentialKind))
	assert.EqualValues(t, 0, ts.calls.Load())
}

func TestBrokerTokenSource(t *testing.T) {
	key, pemKey := testKey(t)
	ts := newTokenServer(t, key, func(_ int32, w http.ResponseWriter) {
		fmt.Fprint(w, `{"access_token":"abc","expires_in":120}`)
	})
	clock := &fakeClock{now: time.Now()}
	b := newTestBroker(t, pemKey, ts.URL, clock)

	tok, err := b.TokenSource(context.Background()).Token()
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.WithinDuration(t, clock.Now().Add(2*time.Minute), tok.Expiry, time.Second)
}

func TestBrokerCancelledCallerDoesNotFailSharedExchange(t *testing.T) {
	key, pemKey := testKey(t)
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	ts := newTokenServer(t, key, func(n int32, w http.ResponseWriter) {
		entered <- struct{}{}
		<-release
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":3600}`, n)
	})
	b := newTestBroker(t, pemKey, ts.URL, &fakeClock{now: time.Now()})

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := b.Token(firstCtx)
		firstErr <- err
	}()
	<-entered

	type outcome struct {
		token string
		err   error
	}
	second := make(chan outcome, 1)
	go func() {
		tok, err := b.Token(context.Background())
		if err != nil {
			second <- outcome{err: err}
			return
		}
		second <- outcome{token: tok.AccessToken}
	}()
	// Let the second caller join the exchange already in flight.
	time.Sleep(50 * time.Millisecond)

	cancel()
	err := <-firstErr
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, errors.Is(err, errors.AuthKind))

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "tok-1", got.token)
	assert.EqualValues(t, 1, ts.calls.Load())

	cached, err := b.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cached.AccessToken)
}

func TestBrokerRejectsLifetimeInsideMargin(t *testing.T) {
	key, pemKey := testKey(t)
	ts := newTokenServer(t, key, func(_ int32, w http.ResponseWriter) {
		fmt.Fprint(w, `{"access_token":"short","expires_in":30}`)
	})
	b := newTestBroker(t, pemKey, ts.URL, &fakeClock{now: time.Now()})

	tok, err := b.Token(context.Background())
	require.Error(t, err)
	assert.Nil(t, tok)
	assert.True(t, errors.Is(err, errors.AuthKind))
	assert.Contains(t, err.Error(), "expiry margin")
	assert.Nil(t, b.cached.Load())
}
