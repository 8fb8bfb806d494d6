package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/jwalitptl/media-push/pkg/errors"
)

// DefaultSendURL is the FCM HTTP v1 endpoint; %s is the project id.
const DefaultSendURL = "https://fcm.googleapis.com/v1/projects/%s/messages:send"

// FCM error codes that mean the token will never work again.
const (
	CodeUnregistered    = "UNREGISTERED"
	CodeInvalidArgument = "INVALID_ARGUMENT"
)

type fcmMessage struct {
	Message fcmMessageBody `json:"message"`
}

type fcmMessageBody struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	Name  string    `json:"name"`
	Error *fcmError `json:"error"`
}

type fcmError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
	Details []struct {
		Type      string `json:"@type"`
		ErrorCode string `json:"errorCode"`
	} `json:"details"`
}

func (e *fcmError) providerCode() string {
	for _, d := range e.Details {
		if d.ErrorCode != "" {
			return d.ErrorCode
		}
	}
	return e.Status
}

// FCMClient is the HTTP v1 transport.
type FCMClient struct {
	sendURL string
	client  *http.Client
}

// NewFCMClient targets projectID. sendURL may be empty for the default
// endpoint; when it contains %s the project id is substituted.
func NewFCMClient(projectID, sendURL string, timeout time.Duration) *FCMClient {
	if sendURL == "" {
		sendURL = DefaultSendURL
	}
	if strings.Contains(sendURL, "%s") {
		sendURL = fmt.Sprintf(sendURL, projectID)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FCMClient{
		sendURL: sendURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *FCMClient) Send(ctx context.Context, cred *oauth2.Token, token string, payload Payload) (SendResult, error) {
	body, err := json.Marshal(fcmMessage{Message: fcmMessageBody{
		Token:        token,
		Notification: fcmNotification{Title: payload.Title, Body: payload.Body},
		Data:         payload.Data,
	}})
	if err != nil {
		return SendResult{}, errors.Delivery("failed to encode message", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.sendURL, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, errors.Delivery("failed to build send request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	cred.SetAuthHeader(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return SendResult{}, errors.Delivery("send request failed", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	res := SendResult{StatusCode: resp.StatusCode}

	var parsed fcmResponse
	_ = json.Unmarshal(raw, &parsed)
	if parsed.Error != nil {
		res.ProviderCode = parsed.Error.providerCode()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(raw))
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return res, errors.Delivery(fmt.Sprintf("provider returned %d", resp.StatusCode), fmt.Errorf("%s", msg))
	}

	res.MessageID = parsed.Name
	return res, nil
}

// IsInvalidToken reports whether a result means the token is dead.
func IsInvalidToken(r Result) bool {
	return r.ProviderCode == CodeUnregistered || r.ProviderCode == CodeInvalidArgument
}
