package email

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultSendTimeout bounds one notification, dial to QUIT.
const DefaultSendTimeout = 30 * time.Second

// subjects maps the registry events that operators are emailed about to
// their subject lines.
var subjects = map[string]string{
	"certificate.submitted":       "Death certificate awaiting approval",
	"certificate.approval_failed": "Death certificate approval failed",
	"dependency.degraded":         "Registry dependency degraded",
}

// Notifier emails operators about registry events. Sends run in the
// background so a slow mail server never holds up the caller.
type Notifier struct {
	sender     EmailSender
	recipients []string
	timeout    time.Duration
	logger     *zap.Logger
	wg         sync.WaitGroup
}

// NewNotifier creates a Notifier that mails recipients through sender.
func NewNotifier(sender EmailSender, recipients []string, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender:     sender,
		recipients: recipients,
		timeout:    DefaultSendTimeout,
		logger:     logger,
	}
}

// SetTimeout overrides DefaultSendTimeout. Non-positive values are ignored.
func (n *Notifier) SetTimeout(d time.Duration) {
	if d > 0 {
		n.timeout = d
	}
}

// Dispatch queues a notification for eventType when it is one operators
// follow and returns immediately. Failures are logged.
func (n *Notifier) Dispatch(ctx context.Context, eventType string, payload map[string]string) {
	subject, ok := subjects[eventType]
	if !ok || len(n.recipients) == 0 {
		return
	}
	body := renderBody(eventType, payload)
	ctx = context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()

		start := time.Now()
		if err := n.sender.Send(ctx, n.recipients, subject, body); err != nil {
			n.logger.Warn("email: send notification",
				zap.Strings("to", n.recipients),
				zap.String("event", eventType),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
		}
	}()
}

// Close waits for queued notifications, up to ctx.
func (n *Notifier) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func renderBody(eventType string, payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "Event: %s\n\n", eventType)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, payload[k])
	}
	return b.String()
}
