// Package notify turns failed security events from the audit stream into
// chat alerts for the operators on call.
package notify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gosuda/relaygate/internal/domain"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is one security event rendered for a human.
type Alert struct {
	Title    string
	Severity Severity
	Fields   map[string]string
	At       time.Time
}

// FieldNames returns the alert's field names in sorted order.
func (a Alert) FieldNames() []string {
	names := make([]string, 0, len(a.Fields))
	for k := range a.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Text is the plain-text form of the alert, used as the notification fallback.
func (a Alert) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", a.Severity, a.Title)
	for _, k := range a.FieldNames() {
		fmt.Fprintf(&b, " %s=%s", k, a.Fields[k])
	}
	return b.String()
}

// Messenger delivers alerts to one chat platform.
type Messenger interface {
	Platform() string
	Send(ctx context.Context, channel string, a Alert) error
}

// rpc error kinds that point at key material or deployment problems rather
// than at a misbehaving caller.
var criticalRPCKinds = map[string]bool{
	"DECRYPTION_FAILED":     true,
	"CONFIGURATION_MISSING": true,
}

// AlertFor reports whether rec warrants an alert and builds it. Only failed
// records qualify: rejected webhook deliveries, failed rotations, and RPC
// calls that failed on key material or configuration.
func AlertFor(rec *domain.AuditRecord) (Alert, bool) {
	if rec == nil || rec.Result != domain.AuditResultFailure {
		return Alert{}, false
	}

	at := rec.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}
	fields := map[string]string{}
	if rec.OrganizationID != "" {
		fields["tenant"] = rec.OrganizationID
	}

	switch rec.EventType {
	case "webhook.rejected":
		reason := metaString(rec.Metadata, "reason")
		if reason == "" {
			// Payload and processing failures are the sender's problem, not an attack signal.
			return Alert{}, false
		}
		fields["provider"] = metaString(rec.Metadata, "provider")
		fields["reason"] = reason
		return Alert{Title: "Webhook signature rejected", Severity: SeverityWarning, Fields: fields, At: at}, true

	case "credential.rotated":
		fields["credential"] = rec.ResourceID
		if e := metaString(rec.Metadata, "error"); e != "" {
			fields["error"] = e
		}
		return Alert{Title: "Credential rotation failed", Severity: SeverityCritical, Fields: fields, At: at}, true

	case "rpc.call":
		kind := metaString(rec.Metadata, "error_kind")
		if !criticalRPCKinds[kind] {
			return Alert{}, false
		}
		fields["function"] = rec.ResourceID
		fields["kind"] = kind
		if rec.ActorID != "" {
			fields["actor"] = rec.ActorID
		}
		return Alert{Title: "RPC call failed on credential handling", Severity: SeverityCritical, Fields: fields, At: at}, true
	}
	return Alert{}, false
}

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
