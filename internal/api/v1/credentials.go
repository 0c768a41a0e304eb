package v1

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/relaygate/internal/audit"
	"github.com/gosuda/relaygate/internal/domain"
	"github.com/gosuda/relaygate/internal/secrets"
	"github.com/gosuda/relaygate/internal/server/middleware"
)

// CredentialView describes a stored credential. The sealed value never
// leaves the server.
type CredentialView struct {
	Name       string    `json:"name"`
	KeyVersion int       `json:"key_version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func credentialView(c *secrets.Credential) CredentialView {
	return CredentialView{
		Name:       c.Name,
		KeyVersion: c.Sealed.KeyVersion,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

type PutCredentialInput struct {
	Name string `path:"name" minLength:"1" maxLength:"128" pattern:"^[A-Za-z0-9_.-]+$" doc:"Credential name"`
	Body struct {
		Value string `json:"value" minLength:"1" maxLength:"8192" doc:"Plaintext secret"`
	}
}

type PutCredentialOutput struct {
	Body CredentialView
}

type ListCredentialsOutput struct {
	Body []CredentialView
}

type DeleteCredentialInput struct {
	Name string `path:"name" minLength:"1" maxLength:"128" doc:"Credential name"`
}

// RegisterCredentialRoutes exposes the tenant credential store. emitter may
// be nil. The routes must be mounted behind middleware.RequireTenant and
// middleware.RequireAdmin; every operation is scoped to the caller's tenant.
func RegisterCredentialRoutes(api huma.API, store CredentialStore, emitter *audit.Emitter) {
	record := func(ctx context.Context, caller domain.Caller, event, name string, err error) {
		if emitter == nil {
			return
		}
		rec := &domain.AuditRecord{
			EventType:      event,
			Category:       domain.AuditCategoryCredential,
			ActorID:        caller.ActorID,
			OrganizationID: caller.TenantID.String(),
			ResourceType:   "credential",
			ResourceID:     name,
			Result:         domain.AuditResultSuccess,
		}
		if err != nil {
			rec.Result = domain.AuditResultFailure
		}
		_, _ = emitter.Emit(ctx, rec, true)
	}

	huma.Register(api, huma.Operation{
		OperationID: "put-credential",
		Method:      http.MethodPut,
		Path:        "/credentials/{name}",
		Summary:     "Store or replace a tenant credential",
		Tags:        []string{"Credentials"},
	}, func(ctx context.Context, input *PutCredentialInput) (*PutCredentialOutput, error) {
		caller := middleware.CallerFromContext(ctx)

		c, err := store.Store(ctx, caller.TenantID, input.Name, []byte(input.Body.Value))
		record(ctx, caller, "credential.stored", input.Name, err)
		if err != nil {
			if secrets.IsConfigMissing(err) {
				return nil, huma.Error500InternalServerError("credential encryption is not configured")
			}
			return nil, huma.Error500InternalServerError("failed to store credential")
		}

		return &PutCredentialOutput{Body: credentialView(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-credentials",
		Method:      http.MethodGet,
		Path:        "/credentials",
		Summary:     "List tenant credentials",
		Tags:        []string{"Credentials"},
	}, func(ctx context.Context, _ *struct{}) (*ListCredentialsOutput, error) {
		caller := middleware.CallerFromContext(ctx)

		list, err := store.List(ctx, caller.TenantID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list credentials")
		}

		views := make([]CredentialView, 0, len(list))
		for _, c := range list {
			views = append(views, credentialView(c))
		}
		return &ListCredentialsOutput{Body: views}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-credential",
		Method:      http.MethodDelete,
		Path:        "/credentials/{name}",
		Summary:     "Delete a tenant credential",
		Tags:        []string{"Credentials"},
	}, func(ctx context.Context, input *DeleteCredentialInput) (*struct{}, error) {
		caller := middleware.CallerFromContext(ctx)

		err := store.Delete(ctx, caller.TenantID, input.Name)
		record(ctx, caller, "credential.deleted", input.Name, err)
		if errors.Is(err, secrets.ErrCredentialNotFound) {
			return nil, huma.Error404NotFound("credential not found")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to delete credential")
		}
		return nil, nil
	})
}
