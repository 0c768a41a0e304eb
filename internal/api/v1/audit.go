package v1

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/relaygate/internal/domain"
	"github.com/gosuda/relaygate/internal/server/middleware"
)

type ListAuditInput struct {
	Limit  int `query:"limit" minimum:"1" maximum:"200" default:"50" doc:"Max results"`
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ResourceAuditInput struct {
	ResourceType string `path:"resourceType" maxLength:"64" doc:"Resource type, e.g. rpc_function"`
	ResourceID   string `path:"resourceID" maxLength:"256" doc:"Resource identifier"`
}

type ListAuditOutput struct {
	Body []*domain.AuditRecord
}

// RegisterAuditRoutes exposes the caller tenant's audit trail. Like the
// credential routes it must sit behind RequireTenant and RequireAdmin.
func RegisterAuditRoutes(api huma.API, trail AuditLog) {
	huma.Register(api, huma.Operation{
		OperationID: "list-audit",
		Method:      http.MethodGet,
		Path:        "/audit",
		Summary:     "List audit records of the caller's tenant",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *ListAuditInput) (*ListAuditOutput, error) {
		caller := middleware.CallerFromContext(ctx)

		records, err := trail.ListByOrganization(ctx, caller.TenantID.String(), input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list audit records")
		}
		return &ListAuditOutput{Body: records}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-resource-audit",
		Method:      http.MethodGet,
		Path:        "/audit/{resourceType}/{resourceID}",
		Summary:     "List audit records of one resource",
		Tags:        []string{"Audit"},
	}, func(ctx context.Context, input *ResourceAuditInput) (*ListAuditOutput, error) {
		caller := middleware.CallerFromContext(ctx)

		records, err := trail.ListByResource(ctx, caller.TenantID.String(), input.ResourceType, input.ResourceID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list audit records")
		}
		return &ListAuditOutput{Body: records}, nil
	})
}
