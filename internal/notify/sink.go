package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/relaygate/internal/domain"
)

const defaultSendTimeout = 10 * time.Second

// Alerter is implemented by Notifier.
type Alerter interface {
	Notify(ctx context.Context, a Alert) error
}

// AlertSink is an audit sink decorator: every record goes to the wrapped
// sink, and failed security events are also sent to an Alerter in the
// background. Alert delivery never affects the audit result.
type AlertSink struct {
	next    domain.AuditSink
	alerter Alerter
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewAlertSink(next domain.AuditSink, alerter Alerter) *AlertSink {
	return &AlertSink{next: next, alerter: alerter, timeout: defaultSendTimeout}
}

func (s *AlertSink) RecordEvent(ctx context.Context, rec *domain.AuditRecord) (uuid.UUID, error) {
	id, err := s.next.RecordEvent(ctx, rec)

	a, ok := AlertFor(rec)
	if !ok {
		return id, err
	}

	// The request context may end before the chat API answers.
	detached := context.WithoutCancel(ctx)
	s.wg.Go(func() {
		sendCtx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()
		if nerr := s.alerter.Notify(sendCtx, a); nerr != nil && !errors.Is(nerr, ErrThrottled) {
			log.Error().Err(nerr).Str("title", a.Title).Msg("notify: alert delivery failed")
		}
	})
	return id, err
}

// Wait blocks until in-flight alerts are delivered or have failed.
func (s *AlertSink) Wait() {
	s.wg.Wait()
}
