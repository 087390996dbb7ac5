package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/models"
	"github.com/punchamoorthee/chapterbudget/internal/service"
	"github.com/punchamoorthee/chapterbudget/internal/store"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	lifecycle *service.Lifecycle
	pettyCash *service.PettyCash
	expenses  *service.Expenses
	reports   *service.Reports
	reference *service.Reference
	log       logrus.FieldLogger
}

func NewHandler(st store.Store, logger logrus.FieldLogger) *Handler {
	return &Handler{
		lifecycle: service.NewLifecycle(st, logger),
		pettyCash: service.NewPettyCash(st, logger),
		expenses:  service.NewExpenses(st, logger),
		reports:   service.NewReports(st),
		reference: service.NewReference(st),
		log:       logger,
	}
}

// Routes builds the router: the JSON API under /api/v1 plus /health and /metrics.
func (h *Handler) Routes() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(requestID, instrument(h.log))

	v1.HandleFunc("/requests", h.CreateRequestHandler).Methods("POST")
	v1.HandleFunc("/requests", h.ListRequestsHandler).Methods("GET")
	v1.HandleFunc("/requests/pending", h.PendingRequestsHandler).Methods("GET")
	v1.HandleFunc("/requests/{id:[0-9]+}", h.GetRequestHandler).Methods("GET")
	v1.HandleFunc("/requests/{id:[0-9]+}", h.ResubmitRequestHandler).Methods("PUT")
	v1.HandleFunc("/requests/{id:[0-9]+}", h.DeleteRequestHandler).Methods("DELETE")
	v1.HandleFunc("/requests/{id:[0-9]+}/approve", h.ApproveRequestHandler).Methods("POST")
	v1.HandleFunc("/requests/{id:[0-9]+}/reject", h.RejectRequestHandler).Methods("POST")

	v1.HandleFunc("/events", h.CreateEventHandler).Methods("POST")
	v1.HandleFunc("/events/{id:[0-9]+}", h.GetEventHandler).Methods("GET")
	v1.HandleFunc("/expenses", h.CreateExpenseHandler).Methods("POST")
	v1.HandleFunc("/expenses/{id:[0-9]+}", h.GetExpenseHandler).Methods("GET")

	v1.HandleFunc("/petty-cash/statements", h.OpenStatementHandler).Methods("POST")
	v1.HandleFunc("/petty-cash/statements/{id:[0-9]+}", h.GetStatementHandler).Methods("GET")
	v1.HandleFunc("/petty-cash/statements/{id:[0-9]+}/expenses", h.PostPettyCashExpenseHandler).Methods("POST")
	v1.HandleFunc("/petty-cash/statements/{id:[0-9]+}/audit", h.AuditStatementHandler).Methods("GET")

	v1.HandleFunc("/reports/monthly", h.MonthlyReportHandler).Methods("GET")
	v1.HandleFunc("/reports/event-expenses", h.EventExpensesReportHandler).Methods("GET")
	v1.HandleFunc("/cities", h.CitiesHandler).Methods("GET")
	v1.HandleFunc("/categories", h.CategoriesHandler).Methods("GET")
	return r
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- budget requests ---

func (h *Handler) CreateRequestHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in models.RequestInput
	if !decode(w, r, &in) {
		return
	}
	detail, err := h.lifecycle.Create(r.Context(), actor, in)
	if err != nil {
		respondWithServiceError(w, r, h.log, "CreateRequest", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/requests/%d", detail.Request.ID))
	respondWithJSON(w, http.StatusCreated, detail)
}

func (h *Handler) ListRequestsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	list, err := h.lifecycle.List(r.Context(), actor)
	if err != nil {
		respondWithServiceError(w, r, h.log, "ListRequests", err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (h *Handler) PendingRequestsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	list, err := h.lifecycle.Pending(r.Context(), actor)
	if err != nil {
		respondWithServiceError(w, r, h.log, "PendingRequests", err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (h *Handler) GetRequestHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.lifecycle.Get(r.Context(), actor, id)
	if err != nil {
		respondWithServiceError(w, r, h.log, "GetRequest", err)
		return
	}
	respondWithJSON(w, http.StatusOK, detail)
}

func (h *Handler) ResubmitRequestHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in models.RequestInput
	if !decode(w, r, &in) {
		return
	}
	detail, err := h.lifecycle.EditAndResubmit(r.Context(), actor, id, in)
	if err != nil {
		respondWithServiceError(w, r, h.log, "ResubmitRequest", err)
		return
	}
	respondWithJSON(w, http.StatusOK, detail)
}

func (h *Handler) DeleteRequestHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.lifecycle.Delete(r.Context(), actor, id); err != nil {
		respondWithServiceError(w, r, h.log, "DeleteRequest", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ApproveRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "ApproveRequest", h.lifecycle.Approve)
}

func (h *Handler) RejectRequestHandler(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "RejectRequest", h.lifecycle.Reject)
}

type decideFunc func(ctx context.Context, actor domain.Actor, requestID int64, note string) (*domain.RequestDetail, error)

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, name string, fn decideFunc) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in models.DecisionInput
	if r.ContentLength != 0 && !decode(w, r, &in) {
		return
	}
	detail, err := fn(r.Context(), actor, id, in.Note)
	if err != nil {
		respondWithServiceError(w, r, h.log, name, err)
		return
	}
	respondWithJSON(w, http.StatusOK, detail)
}

// --- events and expenses ---

func (h *Handler) CreateEventHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in models.EventCreateInput
	if !decode(w, r, &in) {
		return
	}
	ev, err := h.expenses.CreateEvent(r.Context(), actor, in)
	if err != nil {
		respondWithServiceError(w, r, h.log, "CreateEvent", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/events/%d", ev.ID))
	respondWithJSON(w, http.StatusCreated, ev)
}

func (h *Handler) GetEventHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	ev, err := h.expenses.GetEvent(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, h.log, "GetEvent", err)
		return
	}
	respondWithJSON(w, http.StatusOK, ev)
}

func (h *Handler) CreateExpenseHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in models.ExpenseInput
	if !decode(w, r, &in) {
		return
	}
	detail, err := h.expenses.RecordExpense(r.Context(), actor, in)
	if err != nil {
		respondWithServiceError(w, r, h.log, "CreateExpense", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/expenses/%d", detail.ID))
	respondWithJSON(w, http.StatusCreated, detail)
}

func (h *Handler) GetExpenseHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.expenses.GetExpense(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, h.log, "GetExpense", err)
		return
	}
	respondWithJSON(w, http.StatusOK, detail)
}

// --- petty cash ---

func (h *Handler) OpenStatementHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var in models.StatementInput
	if !decode(w, r, &in) {
		return
	}
	stmt, err := h.pettyCash.OpenStatement(r.Context(), actor, in)
	if err != nil {
		respondWithServiceError(w, r, h.log, "OpenStatement", err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/petty-cash/statements/%d", stmt.ID))
	respondWithJSON(w, http.StatusCreated, stmt)
}

func (h *Handler) GetStatementHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	detail, err := h.pettyCash.GetStatement(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, h.log, "GetStatement", err)
		return
	}
	respondWithJSON(w, http.StatusOK, detail)
}

// PostPettyCashExpenseHandler posts an outflow. An Idempotency-Key header makes
// retries safe: the first response is replayed for the same key and body.
func (h *Handler) PostPettyCashExpenseHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	// 1. Read and hash body
	bodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Stream read error")
		return
	}
	r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	idempotencyKey := r.Header.Get("Idempotency-Key")
	var reqHash string
	if idempotencyKey != "" {
		reqHash = requestHash(id, bodyBytes)
	}

	var in models.PettyCashExpenseInput
	if err := json.Unmarshal(bodyBytes, &in); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return
	}

	// 2. Call service
	posting, existing, err := h.pettyCash.PostExpense(r.Context(), actor, id, in, idempotencyKey, reqHash)
	if err != nil {
		respondWithServiceError(w, r, h.log, "PostPettyCashExpense", err)
		return
	}

	// 3. Idempotent replay
	if existing != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(existing.ResponseStatus)
		w.Write(existing.ResponseBody)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/petty-cash/statements/%d", id))
	respondWithJSON(w, http.StatusCreated, posting)
}

func (h *Handler) AuditStatementHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	audit, err := h.pettyCash.Audit(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, h.log, "AuditStatement", err)
		return
	}
	respondWithJSON(w, http.StatusOK, audit)
}

// --- reports and reference data ---

func (h *Handler) MonthlyReportHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		respondWithError(w, http.StatusForbidden, "only admins can view the monthly report")
		return
	}
	totals, err := h.reports.MonthlyTotals(r.Context())
	if err != nil {
		respondWithServiceError(w, r, h.log, "MonthlyReport", err)
		return
	}
	respondWithJSON(w, http.StatusOK, totals)
}

func (h *Handler) EventExpensesReportHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actor(w, r); !ok {
		return
	}
	summary, err := h.reports.EventExpenses(r.Context())
	if err != nil {
		respondWithServiceError(w, r, h.log, "EventExpensesReport", err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) CitiesHandler(w http.ResponseWriter, r *http.Request) {
	cities, err := h.reference.Cities(r.Context())
	if err != nil {
		respondWithServiceError(w, r, h.log, "Cities", err)
		return
	}
	respondWithJSON(w, http.StatusOK, cities)
}

func (h *Handler) CategoriesHandler(w http.ResponseWriter, r *http.Request) {
	categories, err := h.reference.Categories(r.Context())
	if err != nil {
		respondWithServiceError(w, r, h.log, "Categories", err)
		return
	}
	respondWithJSON(w, http.StatusOK, categories)
}

// --- helpers ---

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, err := actorFromRequest(r)
	if err != nil {
		respondWithError(w, http.StatusUnauthorized, err.Error())
		return domain.Actor{}, false
	}
	return actor, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "Not Found")
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body")
		return false
	}
	return true
}

// requestHash binds an idempotency key to the target statement and the exact body.
func requestHash(statementID int64, body []byte) string {
	sum := sha256.New()
	fmt.Fprintf(sum, "%d:", statementID)
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}
