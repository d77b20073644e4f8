package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edvin/certgen/internal/api/response"
	"github.com/edvin/certgen/internal/core"
)

// writeServiceError maps an error from the core services to its HTTP
// response.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *core.ValidationError
		notFound *core.NotFoundError
		genErr   *core.GenerationError
		storeErr *core.StorageError
		cacheErr *core.CacheError
	)
	switch {
	case errors.As(err, &verr):
		response.WriteValidationError(w, verr)
	case errors.As(err, &notFound):
		response.WriteError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &genErr):
		status := http.StatusInternalServerError
		if genErr.Kind == core.KindStorage {
			status = http.StatusBadGateway
		}
		response.WriteJSON(w, status, response.ErrorBody{
			Error:         genErr.Error(),
			Kind:          genErr.Kind,
			CertificateID: genErr.CertificateID,
		})
	case errors.As(err, &storeErr):
		response.WriteJSON(w, http.StatusBadGateway, response.ErrorBody{Error: storeErr.Error(), Kind: core.KindStorage})
	case errors.As(err, &cacheErr):
		response.WriteError(w, http.StatusServiceUnavailable, "status store unavailable")
	case errors.Is(err, core.ErrQueueFull), errors.Is(err, core.ErrDispatcherClosed):
		w.Header().Set("Retry-After", "5")
		response.WriteError(w, http.StatusServiceUnavailable, err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("unhandled service error")
		response.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
