package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SignatureHeader carries the HMAC-SHA256 of the request body.
const SignatureHeader = "X-Registry-Signature"

// MetricsRecorder is an optional callback for recording delivery outcomes.
type MetricsRecorder func(success bool)

// DeliveryRecorder persists delivery attempts. *Repository satisfies it.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, d *Delivery) error
}

// Config configures a Dispatcher.
type Config struct {
	URLs    []string
	Events  []string
	Secret  string
	Timeout time.Duration
	// Backoff is the wait before each retry; its length bounds the attempts.
	Backoff []time.Duration
}

// Dispatcher delivers registry events to the configured subscriptions.
type Dispatcher struct {
	subs      []*Subscription
	http      *resty.Client
	backoff   []time.Duration
	recorder  DeliveryRecorder
	onMetrics MetricsRecorder
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// NewDispatcher creates a Dispatcher with one subscription per URL.
func NewDispatcher(cfg Config, logger *zap.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff == nil {
		cfg.Backoff = []time.Duration{time.Second, 5 * time.Second}
	}
	d := &Dispatcher{
		http:    resty.New().SetTimeout(cfg.Timeout).SetHeader("Content-Type", "application/json"),
		backoff: cfg.Backoff,
		logger:  logger,
	}
	for _, u := range cfg.URLs {
		d.subs = append(d.subs, &Subscription{
			ID:     uuid.NewSHA1(uuid.NameSpaceURL, []byte(u)),
			URL:    u,
			Events: cfg.Events,
			Secret: cfg.Secret,
		})
	}
	return d
}

// SetMetricsRecorder configures the metrics callback.
func (d *Dispatcher) SetMetricsRecorder(fn MetricsRecorder) { d.onMetrics = fn }

// SetDeliveryRecorder configures where delivery attempts are stored.
func (d *Dispatcher) SetDeliveryRecorder(r DeliveryRecorder) { d.recorder = r }

// Subscriptions lists the configured subscriptions.
func (d *Dispatcher) Subscriptions() []SubscriptionView {
	out := make([]SubscriptionView, 0, len(d.subs))
	for _, s := range d.subs {
		out = append(out, SubscriptionView{ID: s.ID, URL: s.URL, Events: s.Events, Signed: s.Secret != ""})
	}
	return out
}

// Dispatch fans eventType out to matching subscriptions in the background.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload map[string]string) {
	event := Event{
		ID:        uuid.New(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	ctx = context.WithoutCancel(ctx)
	for _, sub := range d.subs {
		if !sub.wants(eventType) {
			continue
		}
		d.wg.Add(1)
		go func(sub *Subscription) {
			defer d.wg.Done()
			d.deliver(ctx, sub, event)
		}(sub)
	}
}

// Close waits for in-flight deliveries, up to ctx.
func (d *Dispatcher) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, sub *Subscription, event Event) bool {
	body, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("webhook: marshal event", zap.Error(err))
		return false
	}
	signature := ""
	if sub.Secret != "" {
		signature = Sign(body, sub.Secret)
	}

	attempts := len(d.backoff) + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(d.backoff[attempt-2])
		}

		status, errMsg := d.post(ctx, sub.URL, event, body, signature)
		success := errMsg == ""

		if d.recorder != nil {
			rec := &Delivery{
				ID:             uuid.New(),
				SubscriptionID: sub.ID,
				EventID:        event.ID,
				EventType:      event.Type,
				StatusCode:     status,
				Attempt:        attempt,
				Success:        success,
				ErrorMessage:   errMsg,
				DeliveredAt:    time.Now().UTC(),
			}
			if err := d.recorder.RecordDelivery(ctx, rec); err != nil {
				d.logger.Warn("webhook: record delivery", zap.Error(err))
			}
		}
		if d.onMetrics != nil {
			d.onMetrics(success)
		}
		if success {
			return true
		}

		d.logger.Warn("webhook: delivery failed",
			zap.String("url", sub.URL),
			zap.String("event", event.Type),
			zap.Int("attempt", attempt),
			zap.String("error", errMsg),
		)
	}
	return false
}

func (d *Dispatcher) post(ctx context.Context, url string, event Event, body []byte, signature string) (int, string) {
	req := d.http.R().
		SetContext(ctx).
		SetHeader("X-Registry-Event", event.Type).
		SetHeader("X-Registry-Delivery", event.ID.String()).
		SetBody(body)
	if signature != "" {
		req.SetHeader(SignatureHeader, signature)
	}
	resp, err := req.Post(url)
	if err != nil {
		return 0, err.Error()
	}
	if resp.IsError() {
		return resp.StatusCode(), fmt.Sprintf("HTTP %d", resp.StatusCode())
	}
	return resp.StatusCode(), ""
}

// Ping delivers a ping event to every subscription synchronously and
// reports which succeeded, keyed by URL.
func (d *Dispatcher) Ping(ctx context.Context) map[string]bool {
	event := Event{ID: uuid.New(), Type: EventPing, Timestamp: time.Now().UTC(), Payload: map[string]string{}}
	out := make(map[string]bool, len(d.subs))
	for _, sub := range d.subs {
		out[sub.URL] = d.deliver(ctx, sub, event)
	}
	return out
}

// Sign computes the HMAC-SHA256 signature of body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
