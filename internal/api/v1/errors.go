package v1

import (
	"errors"
	"net/http"
	"sort"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/relaygate/internal/rpc"
)

const errorTypePrefix = "urn:relaygate:rpc:"

// gatewayStatus maps gateway error kinds to HTTP status codes.
var gatewayStatus = map[rpc.Kind]int{
	rpc.KindValidationFailed:     http.StatusBadRequest,
	rpc.KindAuthRequired:         http.StatusUnauthorized,
	rpc.KindNotWhitelisted:       http.StatusForbidden,
	rpc.KindRateLimited:          http.StatusTooManyRequests,
	rpc.KindDecryptionFailed:     http.StatusInternalServerError,
	rpc.KindConfigurationMissing: http.StatusInternalServerError,
	rpc.KindExecutorError:        http.StatusInternalServerError,
}

// gatewayError converts a gateway failure into a problem document. Only the
// kind, the safe message and per-field details reach the client.
func gatewayError(function string, err error) error {
	var e *rpc.Error
	if !errors.As(err, &e) {
		log.Error().Err(err).Str("function", function).Msg("api: unclassified gateway error")
		return huma.Error500InternalServerError("the operation failed")
	}

	status, ok := gatewayStatus[e.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	model := &huma.ErrorModel{
		Type:   errorTypePrefix + string(e.Kind),
		Title:  http.StatusText(status),
		Status: status,
		Detail: e.Message,
	}

	fields := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	for _, name := range fields {
		fe := e.Fields[name]
		model.Errors = append(model.Errors, &huma.ErrorDetail{
			Message:  fe.Message,
			Location: "body." + name,
			Value:    string(fe.Code),
		})
	}

	return model
}
