// Package rpc is the trust boundary for state-changing remote calls: only
// whitelisted functions run, and only with validated, sanitized parameters.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gosuda/relaygate/internal/audit"
	"github.com/gosuda/relaygate/internal/domain"
	"github.com/gosuda/relaygate/internal/metrics"
	"github.com/gosuda/relaygate/internal/ratelimit"
	"github.com/gosuda/relaygate/internal/secrets"
	"github.com/gosuda/relaygate/internal/validate"
)

// unknownFunctionLabel keeps metric cardinality bounded for rejected names.
const unknownFunctionLabel = "_unknown"

const maxAuditedNameLength = 128

// Gateway runs calls through Lookup, AuthCheck, RateLimitCheck, Validate,
// Execute and Audit, in that order.
type Gateway struct {
	registry  *Registry
	limiter   ratelimit.Limiter
	validator *validate.Validator
	executor  Executor
	emitter   *audit.Emitter
	cipher    *secrets.Cipher
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithValidator replaces the default validator.
func WithValidator(v *validate.Validator) Option {
	return func(g *Gateway) { g.validator = v }
}

// WithCipher enables credential parameters.
func WithCipher(c *secrets.Cipher) Option {
	return func(g *Gateway) { g.cipher = c }
}

// NewGateway creates a Gateway.
func NewGateway(reg *Registry, limiter ratelimit.Limiter, exec Executor, emitter *audit.Emitter, opts ...Option) *Gateway {
	g := &Gateway{
		registry:  reg,
		limiter:   limiter,
		validator: validate.Default(),
		executor:  exec,
		emitter:   emitter,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Registry returns the gateway's whitelist.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// Call runs function with params on behalf of caller. Every failure is an
// *Error. An audit record is emitted for every call; failures and critical
// functions are audited before Call returns.
func (g *Gateway) Call(ctx context.Context, function string, params map[string]any, caller domain.Caller) (json.RawMessage, error) {
	ctx, span := otel.Tracer("github.com/gosuda/relaygate/internal/rpc").Start(ctx, "rpc.Call", trace.WithSpanKind(trace.SpanKindServer))
	defer span.End()
	span.SetAttributes(attribute.String("rpc.function", function))

	start := time.Now()
	desc, found := g.registry.Lookup(function)

	data, auditParams, err := g.call(ctx, desc, found, function, params, caller)
	elapsed := time.Since(start)

	label := function
	if !found {
		label = unknownFunctionLabel
	}
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	metrics.RPCCallsTotal.WithLabelValues(label, outcome).Inc()
	metrics.RPCDurationSeconds.WithLabelValues(label).Observe(elapsed.Seconds())

	g.audit(ctx, function, desc, found, auditParams, caller, err, elapsed)
	return data, err
}

func (g *Gateway) call(ctx context.Context, desc Descriptor, found bool, function string, params map[string]any, caller domain.Caller) (json.RawMessage, map[string]any, error) {
	// Lookup
	if !found {
		return nil, nil, newError(KindNotWhitelisted, fmt.Sprintf("function %q is not callable", function), nil)
	}

	// AuthCheck, before parameters are looked at.
	if desc.RequiresAuth && !caller.Authenticated() {
		return nil, nil, newError(KindAuthRequired, "authentication required", nil)
	}

	// RateLimitCheck
	if desc.RateLimitPerMinute > 0 {
		decision, err := g.limiter.Allow(ctx, ratelimit.Key(desc.Name, caller.RateKey()), desc.RateLimitPerMinute)
		if err != nil {
			// Fail closed: an unavailable counter store must not lift the ceiling.
			log.Error().Err(err).Str("function", desc.Name).Msg("rpc: rate limiter unavailable")
			return nil, params, newError(KindRateLimited, "rate limit could not be checked", err)
		}
		if !decision.Allowed {
			log.Warn().Str("function", desc.Name).Str("caller", caller.RateKey()).
				Int("limit", decision.Limit).Time("reset_at", decision.ResetAt).Msg("rpc: rate limited")
			return nil, params, newError(KindRateLimited, fmt.Sprintf("rate limit of %d calls per minute exceeded", decision.Limit), nil)
		}
	}

	// Validate
	result := g.validator.ValidateSchema(params, desc.Params)
	if !result.Valid {
		e := newError(KindValidationFailed, "one or more parameters are invalid", nil)
		e.Fields = result.Errors
		return nil, params, e
	}
	sanitized := result.Data

	if err := g.sealCredentials(desc, sanitized, caller); err != nil {
		return nil, sanitized, err
	}

	// Execute with the sanitized set only.
	data, err := g.executor.Execute(ctx, desc.Name, sanitized)
	if err != nil {
		log.Error().Err(err).Str("function", desc.Name).Msg("rpc: executor failed")
		return nil, sanitized, classify(err)
	}
	return data, sanitized, nil
}

// sealCredentials replaces each credential parameter with its encrypted
// form, sealed under the caller's tenant and the current key version.
func (g *Gateway) sealCredentials(desc Descriptor, params map[string]any, caller domain.Caller) error {
	if len(desc.CredentialParams) == 0 {
		return nil
	}
	if g.cipher == nil {
		return newError(KindConfigurationMissing, "credential encryption is not configured", nil)
	}
	if !caller.Authenticated() {
		return newError(KindAuthRequired, "a tenant identity is required", nil)
	}

	for _, name := range desc.CredentialParams {
		v, ok := params[name]
		if !ok || v == nil {
			continue
		}
		plaintext, err := credentialBytes(v)
		if err != nil {
			return newError(KindValidationFailed, "credential parameter has an unsupported type", err)
		}
		sealed, err := g.cipher.Encrypt(plaintext, caller.TenantID.String())
		clear(plaintext)
		if err != nil {
			return classify(err)
		}
		raw, err := sealed.Marshal()
		if err != nil {
			return classify(err)
		}
		params[name] = json.RawMessage(raw)
	}
	return nil
}

func credentialBytes(v any) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return append([]byte(nil), t...), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("rpc.credentialBytes: %w", err)
		}
		return b, nil
	}
}

func (g *Gateway) audit(ctx context.Context, function string, desc Descriptor, found bool, params map[string]any, caller domain.Caller, err error, elapsed time.Duration) {
	if g.emitter == nil {
		return
	}

	// The name may come from an untrusted caller when it was not found.
	function = audit.Truncate(function, maxAuditedNameLength)

	meta := map[string]any{
		"function":    function,
		"duration_ms": elapsed.Milliseconds(),
	}
	if found {
		meta["risk"] = string(desc.Risk)
	}
	if params != nil {
		// Credential params are always hidden, whatever their name.
		redacted := audit.Redact(params, audit.DefaultMaxFieldLength)
		for _, name := range desc.CredentialParams {
			if _, ok := redacted[name]; ok {
				redacted[name] = audit.RedactedValue
			}
		}
		meta["params"] = redacted
	}

	rec := &domain.AuditRecord{
		EventType:    "rpc.call",
		Category:     domain.AuditCategoryRPC,
		ActorID:      caller.ActorID,
		ResourceType: "rpc_function",
		ResourceID:   function,
		Result:       domain.AuditResultSuccess,
		Metadata:     meta,
	}
	if caller.Authenticated() {
		rec.OrganizationID = caller.TenantID.String()
	}
	if err != nil {
		rec.Result = domain.AuditResultFailure
		meta["error_kind"] = string(KindOf(err))
		var e *Error
		if errors.As(err, &e) && len(e.Fields) > 0 {
			meta["field_errors"] = e.Fields
		}
	}

	durable := err != nil || desc.Risk == RiskCritical
	// Audit failures are logged by the emitter and never change the result.
	_, _ = g.emitter.Emit(ctx, rec, durable)
}
