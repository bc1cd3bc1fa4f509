// Package push delivers web push notifications to browser subscriptions.
package push

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"keepsake-go/internal/metrics"
	"keepsake-go/internal/models"
)

const (
	// DefaultTTL is how long the push service keeps an undelivered message.
	DefaultTTL = 60 * 60

	maxErrorBody = 512
)

// Outcome classifies a single delivery attempt.
type Outcome int

const (
	Delivered Outcome = iota
	Expired
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Expired:
		return "expired"
	default:
		return "failed"
	}
}

// Payload is the JSON document the service worker receives.
type Payload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Badge string         `json:"badge,omitempty"`
	Tag   string         `json:"tag,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
}

// Dispatcher performs one delivery attempt to one subscription.
type Dispatcher interface {
	Dispatch(ctx context.Context, sub models.PushSubscription, payload Payload) (Outcome, error)
}

// WebPushDispatcher sends VAPID-signed, encrypted messages with webpush-go.
type WebPushDispatcher struct {
	creds      Credentials
	ttl        int
	urgency    webpush.Urgency
	httpClient webpush.HTTPClient
}

func newWebPushDispatcher(creds Credentials) *WebPushDispatcher {
	return &WebPushDispatcher{
		creds:   creds,
		ttl:     DefaultTTL,
		urgency: webpush.UrgencyHigh,
	}
}

// WithHTTPClient replaces the client used for outbound requests.
func (d *WebPushDispatcher) WithHTTPClient(c webpush.HTTPClient) *WebPushDispatcher {
	d.httpClient = c
	return d
}

// PublicKey returns the VAPID public key clients subscribe with.
func (d *WebPushDispatcher) PublicKey() string {
	return d.creds.PublicKey
}

// Dispatch makes exactly one attempt. 404 and 410 mean the endpoint is gone
// for good; everything else that is not 2xx is reported as Failed.
func (d *WebPushDispatcher) Dispatch(ctx context.Context, sub models.PushSubscription, payload Payload) (Outcome, error) {
	outcome, err := d.send(ctx, sub, payload)
	metrics.PushDeliveries.WithLabelValues(outcome.String()).Inc()
	return outcome, err
}

func (d *WebPushDispatcher) send(ctx context.Context, sub models.PushSubscription, payload Payload) (Outcome, error) {
	message, err := json.Marshal(payload)
	if err != nil {
		return Failed, fmt.Errorf("failed to encode payload: %w", err)
	}

	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, message, s, &webpush.Options{
		HTTPClient:      d.httpClient,
		Subscriber:      d.creds.Subscriber,
		VAPIDPublicKey:  d.creds.PublicKey,
		VAPIDPrivateKey: d.creds.PrivateKey,
		TTL:             d.ttl,
		Urgency:         d.urgency,
	})
	if err != nil {
		return Failed, fmt.Errorf("failed to send push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Delivered, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		_, _ = io.Copy(io.Discard, resp.Body)
		return Expired, fmt.Errorf("subscription gone: status %d", resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return Failed, fmt.Errorf("push service returned status %d: %s", resp.StatusCode, body)
	}
}
