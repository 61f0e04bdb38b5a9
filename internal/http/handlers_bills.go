package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"billtracker/internal/bills"
	"billtracker/internal/core"
)

// billRequest is the bill form. Amount may be a JSON number or a decimal
// string; unparseable amounts and dates surface as field errors.
type billRequest struct {
	Name        string          `json:"name"`
	Amount      json.RawMessage `json:"amount"`
	Category    string          `json:"category"`
	DueDate     string          `json:"dueDate"`
	IsPaid      bool            `json:"isPaid"`
	IsRecurring bool            `json:"isRecurring"`
	Frequency   string          `json:"frequency"`
	Description string          `json:"description"`
}

func (req billRequest) draft() core.BillDraft {
	amount, err := core.ParseAmount(strings.Trim(string(req.Amount), `"`))
	if err != nil {
		amount = decimal.Zero
	}
	due, err := core.ParseDate(req.DueDate)
	if err != nil {
		due = core.Date{}
	}
	return core.BillDraft{
		Name:        req.Name,
		Amount:      amount,
		Category:    req.Category,
		DueDate:     due,
		IsPaid:      req.IsPaid,
		IsRecurring: req.IsRecurring,
		Frequency:   core.Frequency(req.Frequency),
		Description: req.Description,
	}
}

type billListResponse struct {
	Bills      []core.Bill `json:"bills"`
	Total      int         `json:"total"`
	Categories []string    `json:"categories"`
	// Error is the last failed refetch; the list is what was loaded before it.
	Error string `json:"error,omitempty"`
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	store := sessionFrom(r.Context()).Bills
	q := r.URL.Query()

	filter := bills.Filter{
		Search:   q.Get("search"),
		Category: q.Get("category"),
		Status:   q.Get("status"),
		SortBy:   q.Get("sort"),
	}
	switch filter.Status {
	case "", bills.All, bills.StatusPaid, bills.StatusUnpaid:
	default:
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "status must be all, paid or unpaid", nil)
		return
	}
	switch filter.SortBy {
	case "", bills.SortDueDate, bills.SortName, bills.SortAmount:
	default:
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "sort must be dueDate, name or amount", nil)
		return
	}

	all := store.List()
	resp := billListResponse{
		Bills:      bills.Apply(all, filter),
		Total:      len(all),
		Categories: bills.CategoriesInUse(all),
	}
	if err := store.Err(); err != nil {
		resp.Error = err.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	sess := sessionFrom(r.Context())
	bill, err := sess.Bills.Create(r.Context(), req.draft())
	if err != nil {
		writeError(w, r, "create bill", err)
		return
	}
	respondJSON(w, http.StatusCreated, bill)
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	var req billRequest
	if err := parseJSONBody(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, err.Error(), nil)
		return
	}

	sess := sessionFrom(r.Context())
	bill, err := sess.Bills.Update(r.Context(), mux.Vars(r)["id"], req.draft())
	if err != nil {
		writeError(w, r, "update bill", err)
		return
	}
	respondJSON(w, http.StatusOK, bill)
}

func (s *Server) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	if err := sessionFrom(r.Context()).Bills.Remove(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, r, "delete bill", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTogglePaid(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	bill, err := sess.Bills.TogglePaid(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, "toggle paid", err)
		return
	}
	respondJSON(w, http.StatusOK, bill)
}
