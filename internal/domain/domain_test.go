package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/gosuda/relaygate/internal/domain"
)

func TestCaller(t *testing.T) {
	t.Parallel()

	tenant := uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")

	tests := []struct {
		name     string
		caller   domain.Caller
		wantAuth bool
		wantKey  string
	}{
		{
			name:     "authenticated",
			caller:   domain.Caller{ActorID: "user-1", TenantID: tenant, Source: "10.0.0.1"},
			wantAuth: true,
			wantKey:  "7c9e6679-7425-40de-944b-e07fc1f90ae7/user-1",
		},
		{
			name:    "anonymous counted per source",
			caller:  domain.Caller{Source: "10.0.0.1"},
			wantKey: "anon/10.0.0.1",
		},
		{
			name:    "tenant without actor is anonymous",
			caller:  domain.Caller{TenantID: tenant, Source: "10.0.0.2"},
			wantKey: "anon/10.0.0.2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantAuth, tt.caller.Authenticated())
			assert.Equal(t, tt.wantKey, tt.caller.RateKey())
		})
	}
}
