package v1

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/relaygate/internal/server/middleware"
)

type CallInput struct {
	Function string         `path:"function" doc:"Whitelisted function name"`
	Body     map[string]any `doc:"Function parameters"`
}

type CallOutput struct {
	Body struct {
		Result json.RawMessage `json:"result" doc:"Executor result"`
	}
}

// RegisterRPCRoutes exposes the gateway as POST /rpc/{function}. The caller
// identity comes from the request context set by middleware.Identify.
func RegisterRPCRoutes(api huma.API, gw Gateway) {
	huma.Register(api, huma.Operation{
		OperationID: "call-function",
		Method:      http.MethodPost,
		Path:        "/rpc/{function}",
		Summary:     "Call a whitelisted function",
		Tags:        []string{"RPC"},
	}, func(ctx context.Context, input *CallInput) (*CallOutput, error) {
		params := input.Body
		if params == nil {
			params = map[string]any{}
		}

		data, err := gw.Call(ctx, input.Function, params, middleware.CallerFromContext(ctx))
		if err != nil {
			return nil, gatewayError(input.Function, err)
		}

		out := &CallOutput{}
		out.Body.Result = data
		if len(data) == 0 {
			out.Body.Result = json.RawMessage("null")
		}
		return out, nil
	})
}
