package registration_api

import (
	"errors"
	"fmt"
	"net/http"

	registrations "ms-perfiles/internal/registrations/service"
	"ms-perfiles/internal/utils"
)

var statusByKind = map[string]int{
	registrations.KindValidation:         http.StatusBadRequest,
	registrations.KindMissingSecret:      http.StatusUnauthorized,
	registrations.KindUnauthorized:       http.StatusUnauthorized,
	registrations.KindCredentialNotFound: http.StatusNotFound,
	registrations.KindEventNotFound:      http.StatusNotFound,
	registrations.KindLimitReached:       http.StatusConflict,
	registrations.KindStoreUnavailable:   http.StatusServiceUnavailable,
}

// writeError renders err with its kind and the payload a client needs to
// react without parsing the message.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	kind := registrations.ErrorKind(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	var payload interface{}

	var (
		validation *registrations.ValidationError
		missing    *registrations.MissingSecretError
		notFound   *registrations.CredentialNotFoundError
		unauth     *registrations.UnauthorizedError
		limit      *registrations.LimitReachedError
	)
	switch {
	case errors.As(err, &validation):
		payload = map[string]string{"field": validation.Field}
	case errors.As(err, &missing):
		payload = map[string]string{"normalized": missing.NormalizedKey}
	case errors.As(err, &notFound):
		payload = map[string]string{"normalized": notFound.NormalizedKey}
	case errors.As(err, &unauth):
		payload = map[string]interface{}{"normalized": unauth.NormalizedKey, "clear_secret": true}
	case errors.As(err, &limit):
		payload = map[string]interface{}{
			"serial":        limit.Key.Serial,
			"model":         limit.Key.Model,
			"side":          limit.Key.Side,
			"current_count": limit.CurrentCount,
			"ceiling":       limit.Ceiling,
		}
	case kind == registrations.KindStoreUnavailable:
		// storage details stay in the log
		h.Logger.Error("API", fmt.Sprintf("store unavailable: %v", err))
		message = "storage temporarily unavailable, retry later"
	}

	utils.WriteJSON(w, status, utils.KindErrorResponse(kind, message, payload))
}
