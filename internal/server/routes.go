package server

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	v1 "github.com/gosuda/relaygate/internal/api/v1"
	"github.com/gosuda/relaygate/internal/webhook"
)

func registerAPIRoutes(api huma.API, deps Deps) {
	v1.RegisterRPCRoutes(api, deps.Gateway)
}

// registerAdminRoutes mounts routes that must sit behind RequireTenant and
// RequireAdmin.
func registerAdminRoutes(api huma.API, deps Deps) {
	if deps.Credentials != nil {
		v1.RegisterCredentialRoutes(api, deps.Credentials, deps.Emitter)
	}
	if deps.Audit != nil {
		v1.RegisterAuditRoutes(api, deps.Audit)
	}
}

func registerWebhookRoutes(r chi.Router, receiver *webhook.Receiver, h webhook.Handler) {
	r.Post("/{provider}", receiver.HTTPHandler(h))
}
