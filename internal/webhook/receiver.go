package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gosuda/relaygate/internal/audit"
	"github.com/gosuda/relaygate/internal/domain"
	"github.com/gosuda/relaygate/internal/idempotency"
	"github.com/gosuda/relaygate/internal/metrics"
	"github.com/gosuda/relaygate/internal/validate"
)

// DefaultMaxBody is the largest webhook body accepted.
const DefaultMaxBody = 1 << 20

// The provider comes from the request path and is audited before it is
// known to be valid.
const maxAuditedProviderLength = 64

//nolint:gochecknoglobals // sentinel error
var ErrUnknownProvider = errors.New("webhook: unknown provider")

//nolint:gochecknoglobals // sentinel error
var ErrPayloadRejected = errors.New("webhook: payload rejected")

// Event is a verified webhook handed to a Handler.
type Event struct {
	Provider string
	ID       string
	Body     []byte
	// Payload is the decoded JSON body, or nil if the body is not JSON.
	Payload any
	// Flagged is set when the payload contains injection-like text. Senders
	// relay end-user content, so such payloads are delivered and the
	// handler must treat their text as untrusted.
	Flagged bool
}

// Handler performs the side effects of a webhook. Its result is cached by
// the ledger and returned to later duplicates.
type Handler func(ctx context.Context, ev Event) (json.RawMessage, error)

// Outcome is what Receive did with a delivery.
type Outcome struct {
	WebhookID string
	Duplicate bool
	Flagged   bool
	Result    json.RawMessage
}

// Receiver runs the inbound pipeline: resolve secret, verify signature,
// screen the payload, admit through the ledger, audit.
type Receiver struct {
	verifiers map[string]Verifier
	secrets   SecretSource
	ledger    *idempotency.Ledger
	emitter   *audit.Emitter
	validator *validate.Validator
	maxBody   int
}

// NewReceiver creates a Receiver. A nil validator uses validate.Default().
func NewReceiver(verifiers map[string]Verifier, src SecretSource, ledger *idempotency.Ledger, emitter *audit.Emitter, validator *validate.Validator) *Receiver {
	if validator == nil {
		validator = validate.Default()
	}
	return &Receiver{
		verifiers: verifiers,
		secrets:   src,
		ledger:    ledger,
		emitter:   emitter,
		validator: validator,
		maxBody:   DefaultMaxBody,
	}
}

// SetMaxBody changes the body size limit. Non-positive values are ignored.
func (r *Receiver) SetMaxBody(n int) {
	if n > 0 {
		r.maxBody = n
	}
}

// MaxBody returns the body size limit.
func (r *Receiver) MaxBody() int {
	return r.maxBody
}

// Receive authenticates one delivery and runs h at most once per distinct
// payload. Every failure is audited synchronously; the returned error carries
// the detail for logs and must not be echoed to the sender.
func (r *Receiver) Receive(ctx context.Context, provider string, body []byte, header http.Header, h Handler) (Outcome, error) {
	ctx, span := otel.Tracer("github.com/gosuda/relaygate/internal/webhook").Start(ctx, "webhook.Receive", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	span.SetAttributes(attribute.String("webhook.provider", provider))

	start := time.Now()
	out, err := r.receive(ctx, provider, body, header, h)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook rejected")
	}
	span.SetAttributes(
		attribute.Bool("webhook.duplicate", out.Duplicate),
		attribute.Bool("webhook.flagged", out.Flagged),
	)

	r.audit(ctx, provider, out, err, time.Since(start))
	return out, err
}

func (r *Receiver) receive(ctx context.Context, provider string, body []byte, header http.Header, h Handler) (Outcome, error) {
	v, ok := r.verifiers[provider]
	if !ok {
		return Outcome{}, fmt.Errorf("webhook.Receive: %q: %w", provider, ErrUnknownProvider)
	}
	if len(body) > r.maxBody {
		return Outcome{}, fmt.Errorf("webhook.Receive: body exceeds %d bytes: %w", r.maxBody, ErrPayloadRejected)
	}

	secret, err := r.secrets.WebhookSecret(provider)
	if err != nil {
		log.Error().Err(err).Str("provider", provider).Msg("webhook: signing secret unavailable")
		return Outcome{}, fmt.Errorf("webhook.Receive: %w", err)
	}

	if err := v.Verify(body, header, secret); err != nil {
		reason := ReasonOf(err)
		metrics.WebhookVerificationsTotal.WithLabelValues(provider, string(reason)).Inc()
		log.Warn().Str("provider", provider).Str("reason", string(reason)).Msg("webhook: signature rejected")
		return Outcome{}, fmt.Errorf("webhook.Receive: %w", err)
	}
	metrics.WebhookVerificationsTotal.WithLabelValues(provider, "valid").Inc()

	payload, flagged, err := r.screen(body)
	if err != nil {
		return Outcome{}, fmt.Errorf("webhook.Receive: %w", err)
	}

	ev := Event{Provider: provider, ID: idempotency.WebhookID(provider, body), Body: body, Payload: payload, Flagged: flagged}
	if flagged {
		log.Warn().Str("provider", provider).Str("webhook_id", ev.ID).Msg("webhook: payload flagged for injection-like content")
	}
	res, err := r.ledger.AdmitAndProcess(ctx, ev.ID, func(ctx context.Context) (json.RawMessage, error) {
		return h(ctx, ev)
	})
	if err != nil {
		metrics.LedgerDecisionsTotal.WithLabelValues(provider, "failed").Inc()
		return Outcome{WebhookID: ev.ID, Flagged: flagged}, fmt.Errorf("webhook.Receive: %w", err)
	}

	if res.Cached {
		metrics.LedgerDecisionsTotal.WithLabelValues(provider, "duplicate").Inc()
	} else {
		metrics.LedgerDecisionsTotal.WithLabelValues(provider, "processed").Inc()
	}
	return Outcome{WebhookID: ev.ID, Duplicate: res.Cached, Flagged: flagged, Result: res.Value}, nil
}

// screen decodes JSON bodies and rejects malformed or too deeply nested
// ones. Injection-like text does not reject a signed delivery; it only flags
// it. Other bodies (form posts) pass through undecoded.
func (r *Receiver) screen(body []byte) (any, bool, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
		return nil, false, nil
	}
	outcome := r.validator.JSON(string(trimmed), validate.Options{MaxLength: r.maxBody})
	switch {
	case outcome.Valid:
		return outcome.Value, false, nil
	case outcome.Code == validate.CodeInjection:
		payload, err := validate.DecodeJSON(trimmed)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", validate.CodeInvalidJSON, ErrPayloadRejected)
		}
		return payload, true, nil
	default:
		return nil, false, fmt.Errorf("%s: %w", outcome.Code, ErrPayloadRejected)
	}
}

func (r *Receiver) audit(ctx context.Context, provider string, out Outcome, err error, elapsed time.Duration) {
	if r.emitter == nil {
		return
	}

	provider = audit.Truncate(provider, maxAuditedProviderLength)
	rec := &domain.AuditRecord{
		EventType:    "webhook.received",
		Category:     domain.AuditCategoryWebhook,
		ActorID:      provider,
		ResourceType: "webhook",
		ResourceID:   out.WebhookID,
		Result:       domain.AuditResultSuccess,
		Metadata: map[string]any{
			"provider":    provider,
			"duplicate":   out.Duplicate,
			"duration_ms": elapsed.Milliseconds(),
		},
	}
	if out.Flagged {
		rec.Metadata["flagged"] = true
		rec.Metadata["flag_code"] = string(validate.CodeInjection)
	}
	if err != nil {
		rec.EventType = "webhook.rejected"
		rec.Result = domain.AuditResultFailure
		if reason := ReasonOf(err); reason != "" {
			rec.Metadata["reason"] = string(reason)
		}
		rec.Metadata["error"] = audit.Truncate(err.Error(), audit.DefaultMaxFieldLength)
	}

	// Audit failures are logged by the emitter and never fail the delivery.
	_, _ = r.emitter.Emit(ctx, rec, err != nil || out.Flagged)
}
