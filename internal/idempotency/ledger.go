// Package idempotency deduplicates webhook processing so that concurrent or
// repeated deliveries of the same payload run their side effects at most once.
package idempotency

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultRetention is how long a successful outcome is remembered.
	DefaultRetention = 24 * time.Hour

	// DefaultLease bounds how long an in-flight reservation blocks others
	// if its holder dies without completing or releasing it.
	DefaultLease = 5 * time.Minute

	defaultPollInterval = 50 * time.Millisecond
)

//nolint:gochecknoglobals // sentinel errors
var (
	ErrEmptyID = errors.New("idempotency: empty webhook id")
	// ErrLeaseLost is returned by Store.Complete when the reservation expired
	// and another caller took it, or the id was already completed.
	ErrLeaseLost = errors.New("idempotency: reservation no longer held")
)

// Outcome is the recorded result of a processed webhook. Only successes are
// recorded.
type Outcome string

const OutcomeSuccess Outcome = "success"

// Record is the ledger entry for a completed webhook.
type Record struct {
	FirstSeenAt time.Time       `json:"firstSeenAt"`
	Outcome     Outcome         `json:"outcome"`
	Result      json.RawMessage `json:"result,omitempty"`
}

// Reservation is the answer to an atomic check-and-reserve. Exactly one of
// the following holds: Acquired is true (the caller owns processing), Record
// is set (already completed), or neither (another caller is processing; Wait,
// if non-nil, is closed when that changes).
type Reservation struct {
	Acquired bool
	// Token identifies the owner of an acquired reservation. Complete and
	// Release only act on the reservation holding it.
	Token  string
	Record *Record
	Wait   <-chan struct{}
}

// Store is the atomic backing store of the ledger.
type Store interface {
	// Reserve atomically inserts an in-flight marker for id if no entry
	// exists. The marker expires after lease.
	Reserve(ctx context.Context, id string, lease time.Duration) (Reservation, error)
	// Complete replaces the marker owned by token with rec, retained for ttl.
	// It also records when no entry is left. If another caller now holds id,
	// or it is already completed, it returns ErrLeaseLost and writes nothing.
	Complete(ctx context.Context, id, token string, rec Record, ttl time.Duration) error
	// Release drops the marker owned by token so a later delivery may retry.
	// Markers held by other callers and completed records are left alone.
	Release(ctx context.Context, id, token string) error
}

// Processor performs the side effects of a webhook. The returned value is
// cached alongside the success outcome and may be nil.
type Processor func(ctx context.Context) (json.RawMessage, error)

// Result describes what AdmitAndProcess did.
type Result struct {
	// Processed is true when this call invoked the processor and it succeeded.
	Processed bool
	// Cached is true when an earlier success was returned instead.
	Cached bool
	Value  json.RawMessage
}

// Ledger admits each webhook id once.
type Ledger struct {
	store     Store
	retention time.Duration
	lease     time.Duration
	poll      time.Duration
	now       func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithRetention sets how long successes are remembered.
func WithRetention(d time.Duration) Option {
	return func(l *Ledger) { l.retention = d }
}

// WithLease sets the in-flight reservation lifetime.
func WithLease(d time.Duration) Option {
	return func(l *Ledger) { l.lease = d }
}

// WithPollInterval sets how often a waiter re-checks a store that cannot
// signal completion.
func WithPollInterval(d time.Duration) Option {
	return func(l *Ledger) { l.poll = d }
}

// NewLedger creates a Ledger over store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:     store,
		retention: DefaultRetention,
		lease:     DefaultLease,
		poll:      defaultPollInterval,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AdmitAndProcess runs processor at most once per id among concurrent and
// repeated callers. A recorded success is returned with Cached set and the
// processor is not invoked. While another caller holds the reservation this
// call waits for it to finish or for ctx to end. A processor failure is not
// recorded, so a later delivery may try again.
func (l *Ledger) AdmitAndProcess(ctx context.Context, id string, processor Processor) (Result, error) {
	if id == "" {
		return Result{}, ErrEmptyID
	}

	for {
		res, err := l.store.Reserve(ctx, id, l.lease)
		if err != nil {
			return Result{}, fmt.Errorf("idempotency.AdmitAndProcess: reserve: %w", err)
		}

		switch {
		case res.Record != nil:
			return Result{Cached: true, Value: res.Record.Result}, nil
		case res.Acquired:
			return l.process(ctx, id, res.Token, processor)
		}

		if err := l.wait(ctx, res.Wait); err != nil {
			return Result{}, fmt.Errorf("idempotency.AdmitAndProcess: %w", err)
		}
	}
}

func (l *Ledger) process(ctx context.Context, id, token string, processor Processor) (Result, error) {
	firstSeen := l.now().UTC()

	value, err := processor(ctx)
	if err != nil {
		// Release with a fresh context so a canceled request still frees the id.
		if relErr := l.store.Release(context.WithoutCancel(ctx), id, token); relErr != nil {
			log.Error().Err(relErr).Str("webhook_id", id).Msg("idempotency: release reservation")
		}
		return Result{}, fmt.Errorf("idempotency.AdmitAndProcess: processor: %w", err)
	}

	rec := Record{FirstSeenAt: firstSeen, Outcome: OutcomeSuccess, Result: value}
	err = l.store.Complete(context.WithoutCancel(ctx), id, token, rec, l.retention)
	switch {
	case errors.Is(err, ErrLeaseLost):
		// The lease ran out mid-processing and another caller owns the id now.
		log.Warn().Str("webhook_id", id).Dur("lease", l.lease).Msg("idempotency: lease expired before completion")
	case err != nil:
		// Side effects already happened; report them as processed. A later
		// duplicate may re-run once the lease expires.
		log.Error().Err(err).Str("webhook_id", id).Msg("idempotency: record outcome")
	}
	return Result{Processed: true, Value: value}, nil
}

func (l *Ledger) wait(ctx context.Context, ch <-chan struct{}) error {
	if ch != nil {
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	t := time.NewTimer(l.poll)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WebhookID derives the ledger key for a payload from a provider:
// hex(sha256(provider || 0x00 || canonical(payload))). JSON payloads are
// canonicalized by decoding and re-encoding, which sorts object keys and
// drops insignificant whitespace; other payloads are hashed as is.
func WebhookID(provider string, payload []byte) string {
	h := sha256.New()
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write(Canonicalize(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// Canonicalize returns a stable encoding of a JSON payload, or payload
// unchanged if it is not a single JSON value.
func Canonicalize(payload []byte) []byte {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return payload
	}
	if dec.More() {
		return payload
	}

	out, err := json.Marshal(v)
	if err != nil {
		return payload
	}
	return out
}
