package rest

import (
	"net/http"

	"school-fees/internal/domain"
	"school-fees/internal/service"
	"school-fees/internal/transport/auth"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listExports(w http.ResponseWriter, r *http.Request) {
	operatorID, err := auth.GetOperatorID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	exports, err := h.exports.GetExports(r.Context(), operatorID)
	if err != nil {
		h.writeError(w, r, "listExports", err)
		return
	}
	if exports == nil {
		exports = []service.ExportStatus{}
	}

	Success(w, "", exports)
}

func (h *Handler) getExport(w http.ResponseWriter, r *http.Request) {
	operatorID, err := auth.GetOperatorID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	exportID := chi.URLParam(r, "export_id")
	if exportID == "" {
		ErrorBadRequest(w, "export_id is required")
		return
	}

	export, err := h.exports.GetExport(r.Context(), exportID, operatorID)
	if err != nil {
		h.writeError(w, r, "getExport", err)
		return
	}

	Success(w, "", export)
}

func (h *Handler) exportDefaulters(w http.ResponseWriter, r *http.Request) {
	operatorID, err := auth.GetOperatorID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	var req ExportDefaultersRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "exportDefaulters", err)
		return
	}

	exportID, err := h.exports.StartDefaultersExport(r.Context(), operatorID, req.ClassID)
	if err != nil {
		h.writeError(w, r, "exportDefaulters", err)
		return
	}

	SuccessAccepted(w, "export queued", map[string]interface{}{
		"export_id": exportID,
	})
}

func (h *Handler) exportInvoices(w http.ResponseWriter, r *http.Request) {
	operatorID, err := auth.GetOperatorID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	var req ExportInvoicesRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "exportInvoices", err)
		return
	}

	q := service.InvoiceQuery{ClassID: req.ClassID, Month: req.Month, Year: req.Year}
	for _, s := range req.Status {
		q.Statuses = append(q.Statuses, domain.InvoiceStatus(s))
	}

	exportID, err := h.exports.StartInvoicesExport(r.Context(), operatorID, q)
	if err != nil {
		h.writeError(w, r, "exportInvoices", err)
		return
	}

	SuccessAccepted(w, "export queued", map[string]interface{}{
		"export_id": exportID,
	})
}
