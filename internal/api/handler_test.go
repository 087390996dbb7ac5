package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/logging"
	"github.com/punchamoorthee/chapterbudget/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	srv                  *httptest.Server
	cityID, categoryID   int64
	eventID              int64
	adminID, treasurerID int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	ts := &testServer{}
	err := st.InTx(ctx, func(tx store.Tx) error {
		var err error
		if ts.cityID, err = tx.InsertCity(ctx, &domain.City{Name: "Toronto", Province: "ON"}); err != nil {
			return err
		}
		if ts.categoryID, err = tx.InsertCategory(ctx, &domain.Category{Name: "Food"}); err != nil {
			return err
		}
		if ts.adminID, err = tx.InsertUser(ctx, &domain.User{Name: "Admin", Email: "admin@example.org", Role: domain.RoleAdmin}); err != nil {
			return err
		}
		if ts.treasurerID, err = tx.InsertUser(ctx, &domain.User{Name: "Treasurer", Email: "t@example.org", Role: domain.RoleTreasurer, CityID: ts.cityID}); err != nil {
			return err
		}
		ts.eventID, err = tx.InsertEvent(ctx, &domain.Event{CityID: ts.cityID, Name: "Gala", PreparedBy: ts.treasurerID})
		return err
	})
	require.NoError(t, err)

	ts.srv = httptest.NewServer(NewHandler(st, logging.Discard()).Routes())
	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *testServer) asAdmin() http.Header {
	h := http.Header{}
	h.Set(headerUserID, fmt.Sprint(ts.adminID))
	h.Set(headerRole, "ADMIN")
	return h
}

func (ts *testServer) asTreasurer() http.Header {
	h := http.Header{}
	h.Set(headerUserID, fmt.Sprint(ts.treasurerID))
	h.Set(headerRole, "TREASURER")
	h.Set(headerCityID, fmt.Sprint(ts.cityID))
	return h
}

func (ts *testServer) do(t *testing.T, method, path string, headers http.Header, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	ts.do(t, http.MethodGet, "/api/v1/cities", nil, "")
	resp, body = ts.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "chapterbudget_http_requests_total")
}

func TestRequestLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	payload := fmt.Sprintf(`{
		"month": "2025-03",
		"description": "Spring fundraiser",
		"event": {"name": "Fundraiser", "date": "2025-03-15"},
		"lines": [
			{"category_id": %d, "description": "food", "amount": "50.00"},
			{"category_id": %d, "description": "decor", "amount": 25.50}
		]
	}`, ts.categoryID, ts.categoryID)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/requests", ts.asTreasurer(), payload)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	assert.NotEmpty(t, resp.Header.Get(headerRequestID))

	var created domain.RequestDetail
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, domain.StatusPending, created.Request.Status)
	require.Len(t, created.Events, 1)
	assert.Equal(t, "75.50", created.Events[0].Total().StringFixed(2))
	path := fmt.Sprintf("/api/v1/requests/%d", created.Request.ID)

	resp, _ = ts.do(t, http.MethodPost, path+"/approve", ts.asTreasurer(), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, path+"/approve", ts.asAdmin(), `{"note":"ok"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, _ = ts.do(t, http.MethodDelete, path, ts.asTreasurer(), "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, "/api/v1/reports/monthly", ts.asAdmin(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var totals []domain.MonthlyTotal
	require.NoError(t, json.Unmarshal(body, &totals))
	require.Len(t, totals, 1)
	assert.Equal(t, "2025-03", totals[0].Month)
	assert.Equal(t, "75.50", totals[0].Total.StringFixed(2))

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/reports/monthly", ts.asTreasurer(), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, path+"/reject", ts.asAdmin(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	resp, _ = ts.do(t, http.MethodDelete, path, ts.asTreasurer(), "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = ts.do(t, http.MethodGet, path, ts.asTreasurer(), "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name    string
		method  string
		path    string
		headers http.Header
		body    string
		want    int
	}{
		{name: "no identity", method: http.MethodGet, path: "/api/v1/requests", want: http.StatusUnauthorized},
		{name: "malformed json", method: http.MethodPost, path: "/api/v1/requests", headers: ts.asTreasurer(), body: "{", want: http.StatusBadRequest},
		{name: "validation", method: http.MethodPost, path: "/api/v1/requests", headers: ts.asTreasurer(), body: `{"month":"x"}`, want: http.StatusUnprocessableEntity},
		{name: "admin cannot create", method: http.MethodPost, path: "/api/v1/requests", headers: ts.asAdmin(), body: `{}`, want: http.StatusForbidden},
		{name: "missing request", method: http.MethodGet, path: "/api/v1/requests/42", headers: ts.asAdmin(), want: http.StatusNotFound},
		{name: "non-numeric id", method: http.MethodGet, path: "/api/v1/requests/abc", headers: ts.asAdmin(), want: http.StatusNotFound},
		{name: "missing statement", method: http.MethodGet, path: "/api/v1/petty-cash/statements/9/audit", headers: ts.asAdmin(), want: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.do(t, tt.method, tt.path, tt.headers, tt.body)
			assert.Equal(t, tt.want, resp.StatusCode, string(body))
		})
	}
}

func TestPettyCashIdempotentReplay(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/petty-cash/statements", ts.asTreasurer(),
		`{"month":"2025-03","opening_balance":"100.00"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var stmt domain.PettyCashStatement
	require.NoError(t, json.Unmarshal(body, &stmt))
	path := fmt.Sprintf("/api/v1/petty-cash/statements/%d", stmt.ID)

	headers := ts.asTreasurer()
	headers.Set("Idempotency-Key", "retry-me")
	expense := fmt.Sprintf(`{"event_id":%d,"nature_of_expense":"Snacks","total_amount":"25.00","receipt_number":"R-1"}`, ts.eventID)

	resp, first := ts.do(t, http.MethodPost, path+"/expenses", headers, expense)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(first))

	resp, second := ts.do(t, http.MethodPost, path+"/expenses", headers, expense)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("Idempotent-Replayed"))
	assert.JSONEq(t, string(first), string(second))

	resp, _ = ts.do(t, http.MethodPost, path+"/expenses", headers, strings.Replace(expense, "25.00", "26.00", 1))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, body = ts.do(t, http.MethodGet, path+"/audit", ts.asTreasurer(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var audit domain.StatementAudit
	require.NoError(t, json.Unmarshal(body, &audit))
	assert.True(t, audit.Balanced)
	assert.Equal(t, "75.00", audit.StoredClosing.StringFixed(2))
}

func TestExpenseWithReceiptOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	body := fmt.Sprintf(`{"event_id":%d,"category_id":%d,"vendor":"Bakery","amount_before_tax":"10","hst":"1.30","receipt_number":"R-9"}`,
		ts.eventID, ts.categoryID)
	resp, out := ts.do(t, http.MethodPost, "/api/v1/expenses", ts.asTreasurer(), body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(out))

	var detail domain.ExpenseDetail
	require.NoError(t, json.Unmarshal(out, &detail))
	assert.Equal(t, "11.30", detail.TotalAmount.StringFixed(2))
	require.NotNil(t, detail.Receipt)

	resp, out = ts.do(t, http.MethodGet, "/api/v1/reports/event-expenses", ts.asTreasurer(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(out), `"vendor":"Bakery"`)
}

func TestActorFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    domain.Actor
		wantErr bool
	}{
		{name: "admin without city", headers: map[string]string{headerUserID: "1", headerRole: "admin"}, want: domain.Actor{UserID: 1, Role: domain.RoleAdmin}},
		{name: "treasurer", headers: map[string]string{headerUserID: "2", headerRole: "TREASURER", headerCityID: "3"}, want: domain.Actor{UserID: 2, Role: domain.RoleTreasurer, CityID: 3}},
		{name: "treasurer without city", headers: map[string]string{headerUserID: "2", headerRole: "TREASURER"}, wantErr: true},
		{name: "unknown role", headers: map[string]string{headerUserID: "2", headerRole: "GUEST"}, wantErr: true},
		{name: "bad user id", headers: map[string]string{headerUserID: "x", headerRole: "ADMIN"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			got, err := actorFromRequest(r)
			if tt.wantErr {
				assert.ErrorIs(t, err, errUnauthenticated)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
