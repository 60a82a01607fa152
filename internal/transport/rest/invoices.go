package rest

import (
	"net/http"

	"school-fees/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) generateInvoices(w http.ResponseWriter, r *http.Request) {
	var req GenerateInvoicesRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "generateInvoices", err)
		return
	}

	res, err := h.generator.Generate(r.Context(), service.GenerateRequest{
		SchoolID: req.SchoolID,
		ClassID:  req.ClassID,
		Month:    req.Month,
		Year:     req.Year,
	})
	if err != nil {
		h.writeError(w, r, "generateInvoices", err)
		return
	}

	Success(w, res.Message, toGenerateResultView(res))
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "invoice_id")

	var req RecordPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, "recordPayment", err)
		return
	}

	inv, err := h.ledger.RecordPayment(r.Context(), invoiceID, req.Amount, req.PaymentDate())
	if err != nil {
		h.writeError(w, r, "recordPayment", err)
		return
	}

	Success(w, "payment recorded", toInvoiceView(inv))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	inv, err := h.ledger.GetInvoice(r.Context(), chi.URLParam(r, "invoice_id"))
	if err != nil {
		h.writeError(w, r, "getInvoice", err)
		return
	}

	Success(w, "", toInvoiceView(inv))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	q, err := invoiceQueryFromRequest(r)
	if err != nil {
		h.writeError(w, r, "listInvoices", err)
		return
	}

	rows, err := h.queries.ListInvoices(r.Context(), q)
	if err != nil {
		h.writeError(w, r, "listInvoices", err)
		return
	}

	out := make([]InvoiceView, 0, len(rows))
	for _, row := range rows {
		v := toInvoiceView(row.Invoice)
		v.StudentName = row.StudentName
		v.RollNum = row.RollNum
		out = append(out, v)
	}
	Success(w, "", out)
}

func invoiceQueryFromRequest(r *http.Request) (service.InvoiceQuery, error) {
	classID, err := queryString(r, "class_id")
	if err != nil {
		return service.InvoiceQuery{}, err
	}
	month, err := queryInt(r, "month")
	if err != nil {
		return service.InvoiceQuery{}, err
	}
	year, err := queryInt(r, "year")
	if err != nil {
		return service.InvoiceQuery{}, err
	}
	statuses, err := parseStatuses(r.URL.Query()["status"])
	if err != nil {
		return service.InvoiceQuery{}, err
	}

	return service.InvoiceQuery{ClassID: classID, Month: month, Year: year, Statuses: statuses}, nil
}
