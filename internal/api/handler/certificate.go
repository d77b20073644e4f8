package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/edvin/certgen/internal/api/request"
	"github.com/edvin/certgen/internal/api/response"
	"github.com/edvin/certgen/internal/core"
	"github.com/edvin/certgen/internal/model"
)

type Certificate struct {
	svc *core.CertificateService
}

func NewCertificate(svc *core.CertificateService) *Certificate {
	return &Certificate{svc: svc}
}

// certificateStatus is a record plus a fresh download URL once it is
// COMPLETED.
type certificateStatus struct {
	*model.CertificateRecord
	DownloadURL string `json:"download_url,omitempty"`
}

// Generate renders and stores one certificate. ?regenerate=true replaces an
// existing artifact.
func (h *Certificate) Generate(w http.ResponseWriter, r *http.Request) {
	var req model.CertificateRequest
	if err := request.DecodeJSON(w, r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	generate := h.svc.Generate
	if force, _ := strconv.ParseBool(r.URL.Query().Get("regenerate")); force {
		generate = h.svc.Regenerate
	}
	rec, err := generate(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, rec)
}

func (h *Certificate) Get(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.svc.GetStatus(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := certificateStatus{CertificateRecord: rec}
	if rec.Status == model.StatusCompleted {
		link, err := h.svc.DownloadURL(r.Context(), id)
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("certificate_id", id).Msg("download url unavailable")
		} else {
			out.DownloadURL = link.DownloadURL
		}
	}
	response.WriteJSON(w, http.StatusOK, out)
}

func (h *Certificate) Verify(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	v, err := h.svc.Verify(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, v)
}

func (h *Certificate) DownloadURL(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	link, err := h.svc.DownloadURL(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, link)
}

// Download streams the stored PDF.
func (h *Certificate) Download(w http.ResponseWriter, r *http.Request) {
	id, err := request.RequireID(chi.URLParam(r, "id"))
	if err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.svc.Download(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+id+`.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
