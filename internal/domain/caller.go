package domain

import "github.com/google/uuid"

// Caller identifies who is making a request. A Caller without ActorID is
// anonymous.
type Caller struct {
	ActorID  string
	TenantID uuid.UUID
	Role     string
	// Source is the transport origin, e.g. the client IP.
	Source string
}

// Authenticated reports whether the caller carries an identity.
func (c Caller) Authenticated() bool {
	return c.ActorID != ""
}

// RateKey is the identity used for per-caller counters. Anonymous callers
// are counted per source.
func (c Caller) RateKey() string {
	if c.ActorID != "" {
		return c.TenantID.String() + "/" + c.ActorID
	}
	return "anon/" + c.Source
}
