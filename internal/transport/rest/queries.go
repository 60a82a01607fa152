package rest

import (
	"net/http"

	"school-fees/internal/service"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) listDefaulters(w http.ResponseWriter, r *http.Request) {
	classID, err := queryString(r, "class_id")
	if err != nil {
		h.writeError(w, r, "listDefaulters", err)
		return
	}

	rows, err := h.queries.ListDefaulters(r.Context(), classID)
	if err != nil {
		h.writeError(w, r, "listDefaulters", err)
		return
	}

	out := make([]DefaulterView, 0, len(rows))
	for _, row := range rows {
		out = append(out, DefaulterView{
			StudentID:   row.StudentID,
			StudentName: row.StudentName,
			RollNum:     row.RollNum,
			TotalDue:    row.TotalDue,
		})
	}
	Success(w, "", out)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	schoolID, err := queryString(r, "school_id")
	if err != nil {
		h.writeError(w, r, "search", err)
		return
	}

	rows, err := h.queries.Search(r.Context(), service.SearchQuery{
		SchoolID: schoolID,
		RollNum:  toStringPtr(r, "roll_num"),
		ClassID:  toStringPtr(r, "class_id"),
	})
	if err != nil {
		h.writeError(w, r, "search", err)
		return
	}

	out := make([]SearchResultView, 0, len(rows))
	for _, row := range rows {
		out = append(out, SearchResultView{
			StudentID:   row.StudentID,
			RollNum:     row.RollNum,
			StudentName: row.StudentName,
			ClassName:   row.ClassName,
			TotalPaid:   row.TotalPaid,
			TotalDue:    row.TotalDue,
		})
	}
	Success(w, "", out)
}

func (h *Handler) feeHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := h.queries.GetStudentFeeHistory(r.Context(), chi.URLParam(r, "student_id"))
	if err != nil {
		h.writeError(w, r, "feeHistory", err)
		return
	}

	Success(w, "", FeeHistoryView{
		StudentID:   hist.StudentID,
		StudentName: hist.StudentName,
		ClassName:   hist.ClassName,
		TotalDue:    hist.TotalDue,
		TotalPaid:   hist.TotalPaid,
		Invoices:    toInvoiceViews(hist.Invoices),
	})
}
