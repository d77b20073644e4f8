package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/certgen/internal/api/request"
	"github.com/edvin/certgen/internal/api/response"
	"github.com/edvin/certgen/internal/core"
)

type Batch struct {
	svc *core.BatchService
}

func NewBatch(svc *core.BatchService) *Batch {
	return &Batch{svc: svc}
}

// Create submits a batch. Synchronous batches answer 200 with every record;
// asynchronous batches answer 202 with the batch id to poll.
func (h *Batch) Create(w http.ResponseWriter, r *http.Request) {
	var req request.Batch
	if err := request.Decode(w, r, &req); err != nil {
		var verr *core.ValidationError
		if errors.As(err, &verr) {
			response.WriteValidationError(w, verr)
			return
		}
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	async := req.Async()
	res, err := h.svc.Submit(r.Context(), req.Certificates, async)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if async {
		status = http.StatusAccepted
	}
	response.WriteJSON(w, status, res)
}

func (h *Batch) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	progress, err := h.svc.Status(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, progress)
}
