package email_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deathcert/registry/internal/email"
	"go.uber.org/zap"
)

// ── Stub ──────────────────────────────────────────────────────────────────────

type sent struct {
	to            []string
	subject, body string
}

type stubSender struct {
	mu    sync.Mutex
	mails []sent
	err   error
	delay time.Duration
}

func (s *stubSender) Send(ctx context.Context, to []string, subject, body string) error {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mails = append(s.mails, sent{to, subject, body})
	return s.err
}

func (s *stubSender) sent() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.mails...)
}

func drain(t *testing.T, n *email.Notifier) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := n.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestNotifier_SendsFollowedEventsInOneMessage(t *testing.T) {
	s := &stubSender{}
	n := email.NewNotifier(s, []string{"a@registry.test", "b@registry.test"}, zap.NewNop())

	n.Dispatch(context.Background(), "certificate.submitted", map[string]string{"ic": "900101145678", "cid": "QmX"})
	drain(t, n)

	mails := s.sent()
	if len(mails) != 1 {
		t.Fatalf("mails = %d, want 1", len(mails))
	}
	m := mails[0]
	if strings.Join(m.to, ",") != "a@registry.test,b@registry.test" || m.subject != "Death certificate awaiting approval" {
		t.Errorf("mail = %+v", m)
	}
	if !strings.Contains(m.body, "cid: QmX\nic: 900101145678\n") {
		t.Errorf("body = %q", m.body)
	}
}

func TestNotifier_IgnoresOtherEvents(t *testing.T) {
	s := &stubSender{}
	n := email.NewNotifier(s, []string{"a@registry.test"}, zap.NewNop())
	n.Dispatch(context.Background(), "certificate.approved", nil)
	drain(t, n)
	if len(s.sent()) != 0 {
		t.Errorf("mails = %d, want 0", len(s.sent()))
	}
}

func TestNotifier_SendFailureIsLogged(t *testing.T) {
	s := &stubSender{err: errors.New("smtp down")}
	n := email.NewNotifier(s, []string{"a@registry.test"}, zap.NewNop())
	n.Dispatch(context.Background(), "certificate.approval_failed", map[string]string{"cid": "QmX"})
	drain(t, n)
	if len(s.sent()) != 1 {
		t.Errorf("send should be attempted, got %d", len(s.sent()))
	}
}

func TestNotifier_DispatchDoesNotWaitForSlowServer(t *testing.T) {
	s := &stubSender{delay: 2 * time.Second}
	n := email.NewNotifier(s, []string{"a@registry.test"}, zap.NewNop())
	n.SetTimeout(50 * time.Millisecond)

	start := time.Now()
	n.Dispatch(context.Background(), "certificate.approval_failed", map[string]string{"cid": "QmX"})
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Dispatch blocked for %s", elapsed)
	}

	// The send timeout, not the slow server, ends the attempt.
	drain(t, n)
	if time.Since(start) > time.Second {
		t.Errorf("send not bounded by timeout: %s", time.Since(start))
	}
	if len(s.sent()) != 0 {
		t.Error("timed-out send should not be recorded")
	}
}

func TestNotifier_CloseHonoursContext(t *testing.T) {
	s := &stubSender{delay: time.Second}
	n := email.NewNotifier(s, []string{"a@registry.test"}, zap.NewNop())
	n.Dispatch(context.Background(), "dependency.degraded", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := n.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close = %v, want deadline exceeded", err)
	}
	drain(t, n)
}
