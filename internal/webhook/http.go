package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type deliveryResponse struct {
	Status    string `json:"status"`
	WebhookID string `json:"webhookId"`
}

// HTTPHandler serves POST /webhooks/{provider}. Signature failures of any
// kind get the same 401 body so callers cannot tell which check failed.
func (r *Receiver) HTTPHandler(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		provider := chi.URLParam(req, "provider")

		body, err := io.ReadAll(io.LimitReader(req.Body, int64(r.maxBody)+1))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		out, err := r.Receive(req.Context(), provider, body, req.Header, h)
		if err != nil {
			writeDeliveryError(w, err)
			return
		}

		status := "processed"
		if out.Duplicate {
			status = "duplicate"
		}
		w.Header().Set("Content-Type", "application/json")
		if encodeErr := json.NewEncoder(w).Encode(deliveryResponse{Status: status, WebhookID: out.WebhookID}); encodeErr != nil {
			log.Error().Err(encodeErr).Msg("webhook: encode response")
		}
	}
}

func writeDeliveryError(w http.ResponseWriter, err error) {
	switch {
	case ReasonOf(err) != "":
		http.Error(w, "invalid signature", http.StatusUnauthorized)
	case errors.Is(err, ErrUnknownProvider):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrPayloadRejected):
		http.Error(w, "invalid payload", http.StatusBadRequest)
	default:
		// Missing configuration and processor failures look alike to the
		// sender; a 5xx asks the provider to retry later.
		http.Error(w, "webhook processing failed", http.StatusInternalServerError)
	}
}
