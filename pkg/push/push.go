// Package push fans a notification out to FCM device tokens.
package push

import (
	"context"

	"golang.org/x/oauth2"
)

// Payload is the provider-neutral message sent to every token.
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// SendResult is what the provider answered for one token.
type SendResult struct {
	MessageID    string
	StatusCode   int
	ProviderCode string
}

// Transport delivers a payload to a single token using a bearer credential.
type Transport interface {
	Send(ctx context.Context, cred *oauth2.Token, token string, payload Payload) (SendResult, error)
}

// Status is the informational outcome of a dispatch.
type Status string

const (
	StatusDispatched          Status = "dispatched"
	StatusNoDevicesRegistered Status = "no_devices_registered"
)

// Result is the audit record of one per-token attempt.
type Result struct {
	Token        string `json:"token"`
	Success      bool   `json:"success"`
	MessageID    string `json:"message_id,omitempty"`
	StatusCode   int    `json:"status_code,omitempty"`
	ProviderCode string `json:"provider_code,omitempty"`
	Error        string `json:"error,omitempty"`
	Err          error  `json:"-"`
}

// Report aggregates every attempt of a dispatch.
type Report struct {
	Status  Status   `json:"status"`
	Sent    int      `json:"sent"`
	Failed  int      `json:"failed"`
	Results []Result `json:"results,omitempty"`
}

// FailedTokens lists the tokens whose send did not succeed.
func (r *Report) FailedTokens() []string {
	var out []string
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res.Token)
		}
	}
	return out
}
