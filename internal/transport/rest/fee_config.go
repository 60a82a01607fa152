package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listFeeHeads(w http.ResponseWriter, r *http.Request) {
	heads, err := h.config.ListHeads(r.Context())
	if err != nil {
		h.writeError(w, r, "listFeeHeads", err)
		return
	}

	out := make([]FeeHeadView, 0, len(heads))
	for _, fh := range heads {
		out = append(out, toFeeHeadView(fh))
	}
	Success(w, "", out)
}

func (h *Handler) createFeeHead(w http.ResponseWriter, r *http.Request) {
	var req CreateFeeHeadRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "createFeeHead", err)
		return
	}

	head, err := h.config.CreateHead(r.Context(), req.Name, req.Description)
	if err != nil {
		h.writeError(w, r, "createFeeHead", err)
		return
	}

	SuccessCreated(w, "fee head created", toFeeHeadView(head))
}

func (h *Handler) updateFeeHead(w http.ResponseWriter, r *http.Request) {
	var req UpdateFeeHeadRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "updateFeeHead", err)
		return
	}

	head, err := h.config.UpdateHead(r.Context(), chi.URLParam(r, "head_id"), req.Name, req.Description)
	if err != nil {
		h.writeError(w, r, "updateFeeHead", err)
		return
	}

	Success(w, "fee head updated", toFeeHeadView(head))
}

func (h *Handler) getFeeStructure(w http.ResponseWriter, r *http.Request) {
	year, err := toInt("year", chi.URLParam(r, "year"))
	if err != nil {
		h.writeError(w, r, "getFeeStructure", err)
		return
	}

	fs, err := h.config.GetStructure(r.Context(), chi.URLParam(r, "class_id"), year)
	if err != nil {
		h.writeError(w, r, "getFeeStructure", err)
		return
	}

	Success(w, "", toFeeStructureView(fs))
}

func (h *Handler) putFeeStructure(w http.ResponseWriter, r *http.Request) {
	year, err := toInt("year", chi.URLParam(r, "year"))
	if err != nil {
		h.writeError(w, r, "putFeeStructure", err)
		return
	}

	var req PutFeeStructureRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "putFeeStructure", err)
		return
	}

	fs, err := h.config.PutStructure(r.Context(), req.ToDomain(chi.URLParam(r, "class_id"), year))
	if err != nil {
		h.writeError(w, r, "putFeeStructure", err)
		return
	}

	Success(w, "fee structure saved", toFeeStructureView(fs))
}
