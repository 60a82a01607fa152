package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"school-fees/internal/clients"
	"school-fees/internal/domain"
	"school-fees/internal/lock"
	"school-fees/internal/repository/memory"
	"school-fees/internal/service"
	"school-fees/internal/transport/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testToken = "test-token"

type envelope struct {
	ErrorCode int             `json:"error_code"`
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

type testAPI struct {
	router  http.Handler
	store   *memory.Store
	exports *service.ExportService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	store := memory.NewStore()
	store.AddStudent(domain.Student{ID: "st-1", SchoolID: "sch-1", ClassID: "7a", ClassName: "Grade 7A", Name: "Amina", RollNum: "1"})
	store.AddStudent(domain.Student{ID: "st-2", SchoolID: "sch-1", ClassID: "7a", ClassName: "Grade 7A", Name: "Brian", RollNum: "2"})

	logger := zap.NewNop()
	files, err := clients.NewLocalStorage(t.TempDir(), "/files", "")
	require.NoError(t, err)

	query := service.NewQueryService(store, store)
	exports := service.NewExportService(query, clients.NewMemoryCache(), files, nil, logger, "fee_exports", time.Hour)
	t.Cleanup(exports.Wait)

	h := NewHandler(
		service.NewInvoiceGenerator(store, store, store, store, lock.NewKeyedMutex(), nil, logger),
		service.NewPaymentLedger(store, nil, logger, 3),
		query,
		service.NewFeeConfigService(store, store),
		exports,
		logger,
	)

	return &testAPI{
		router:  h.InitRouterWithAuth(auth.TokenMiddleware(map[string]int64{testToken: 7}, logger)),
		store:   store,
		exports: exports,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()

	a.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

// seedStructure configures 7A for 2026: Tuition 5000 + Sports 500, late fee 200, due on the 10th.
func (a *testAPI) seedStructure(t *testing.T) {
	t.Helper()

	var tuition, sports FeeHeadView
	code, env := a.do(t, http.MethodPost, "/fee-heads", map[string]string{"name": "Tuition"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	decodeData(t, env, &tuition)
	code, env = a.do(t, http.MethodPost, "/fee-heads", map[string]string{"name": "Sports"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	decodeData(t, env, &sports)

	code, env = a.do(t, http.MethodPut, "/fee-structures/7a/2026", map[string]interface{}{
		"heads": []map[string]string{
			{"head_id": tuition.ID, "amount": "5000"},
			{"head_id": sports.ID, "amount": "500"},
		},
		"late_fee": "200",
		"due_day":  10,
	})
	require.Equal(t, http.StatusOK, code, env.Message)

	var fs FeeStructureView
	decodeData(t, env, &fs)
	assert.Equal(t, "5500", fs.Total.String())
}

func (a *testAPI) generate(t *testing.T, month int) GenerateResultView {
	t.Helper()

	code, env := a.do(t, http.MethodPost, "/invoices/generate", map[string]interface{}{
		"school_id": "sch-1", "class_id": "7a", "month": month, "year": 2026,
	})
	require.Equal(t, http.StatusOK, code, env.Message)

	var res GenerateResultView
	decodeData(t, env, &res)
	return res
}

func TestHealthIsPublic(t *testing.T) {
	a := newTestAPI(t)

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices?class_id=7a&month=3&year=2026", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerateAndPay(t *testing.T) {
	a := newTestAPI(t)
	a.seedStructure(t)

	res := a.generate(t, 3)
	require.Len(t, res.Created, 2)
	assert.Equal(t, "2 invoice(s) generated, 0 skipped, 0 failed", res.Message)
	assert.Equal(t, "2026-03-10", res.Created[0].DueDate)
	assert.Equal(t, domain.StatusPending, res.Created[0].Status)

	id := res.Created[0].ID
	pay := func(amount, date string) (int, envelope) {
		return a.do(t, http.MethodPost, "/invoices/"+id+"/payments", map[string]string{"amount": amount, "date": date})
	}

	code, env := pay("3000", "2026-03-05")
	require.Equal(t, http.StatusOK, code, env.Message)
	var inv InvoiceView
	decodeData(t, env, &inv)
	assert.Equal(t, domain.StatusPartial, inv.Status)
	assert.True(t, inv.LateFine.IsZero())

	code, env = pay("2500", "2026-03-20")
	require.Equal(t, http.StatusOK, code, env.Message)
	decodeData(t, env, &inv)
	assert.Equal(t, "200", inv.LateFine.String())
	assert.Equal(t, "200", inv.Outstanding.String())

	code, env = pay("200", "2026-03-25")
	require.Equal(t, http.StatusOK, code, env.Message)
	decodeData(t, env, &inv)
	assert.Equal(t, domain.StatusPaid, inv.Status)
	assert.Len(t, inv.Payments, 3)

	code, env = pay("1", "2026-03-26")
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, 409, env.ErrorCode)
	assert.Equal(t, "error", env.Status)

	code, env = a.do(t, http.MethodGet, "/invoices/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	decodeData(t, env, &inv)
	assert.Equal(t, "5700", inv.PaidAmount.String())

	again := a.generate(t, 3)
	assert.Empty(t, again.Created)
	assert.Len(t, again.Skipped, 2)
	assert.NotNil(t, again.Failed)
}

func TestRecordPayment_Errors(t *testing.T) {
	a := newTestAPI(t)
	a.seedStructure(t)
	id := a.generate(t, 3).Created[0].ID

	code, env := a.do(t, http.MethodPost, "/invoices/"+id+"/payments", map[string]string{"amount": "9000", "date": "2026-03-01"})
	require.Equal(t, http.StatusConflict, code)
	var over map[string]string
	decodeData(t, env, &over)
	assert.Equal(t, map[string]string{"outstanding": "5500.00", "attempted": "9000.00"}, over)

	code, _ = a.do(t, http.MethodPost, "/invoices/"+id+"/payments", map[string]string{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(t, http.MethodPost, "/invoices/"+id+"/payments", map[string]string{"amount": "0.006"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = a.do(t, http.MethodPost, "/invoices/"+id+"/payments", map[string]string{"amount": "10", "date": "01/03/2026"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "date must be YYYY-MM-DD", env.Message)

	code, _ = a.do(t, http.MethodPost, "/invoices/missing/payments", map[string]string{"amount": "10"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(t, http.MethodGet, "/invoices/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestGenerate_Errors(t *testing.T) {
	a := newTestAPI(t)
	a.seedStructure(t)

	tests := []struct {
		name  string
		body  map[string]interface{}
		code  int
		field string
	}{
		{name: "missing class", body: map[string]interface{}{"school_id": "sch-1", "month": 3, "year": 2026}, code: http.StatusBadRequest, field: "class_id"},
		{name: "month out of range", body: map[string]interface{}{"school_id": "sch-1", "class_id": "7a", "month": 13, "year": 2026}, code: http.StatusBadRequest, field: "month"},
		{name: "no fee structure", body: map[string]interface{}{"school_id": "sch-1", "class_id": "7a", "month": 3, "year": 2027}, code: http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := a.do(t, http.MethodPost, "/invoices/generate", tt.body)
			assert.Equal(t, tt.code, code, env.Message)
			if tt.field != "" {
				var data map[string]string
				decodeData(t, env, &data)
				assert.Equal(t, tt.field, data["field"])
			}
		})
	}
}

func TestPutFeeStructure_RejectsUnknownHead(t *testing.T) {
	a := newTestAPI(t)

	code, env := a.do(t, http.MethodPut, "/fee-structures/7a/2026", map[string]interface{}{
		"heads":   []map[string]string{{"head_id": "ghost", "amount": "10"}},
		"due_day": 10,
	})
	require.Equal(t, http.StatusBadRequest, code)
	var data map[string]string
	decodeData(t, env, &data)
	assert.Equal(t, "heads[0].head_id", data["field"])

	code, env = a.do(t, http.MethodPut, "/fee-structures/7a/2026", map[string]interface{}{
		"heads":   []map[string]string{{"amount": "10"}},
		"due_day": 10,
	})
	require.Equal(t, http.StatusBadRequest, code)
	decodeData(t, env, &data)
	assert.Equal(t, "heads[0].head_id", data["field"])

	code, _ = a.do(t, http.MethodGet, "/fee-structures/7a/2026", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = a.do(t, http.MethodGet, "/fee-structures/7a/twenty", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFeeHeads(t *testing.T) {
	a := newTestAPI(t)

	code, env := a.do(t, http.MethodPost, "/fee-heads", map[string]string{"name": ""})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "name is required", env.Message)

	var head FeeHeadView
	_, env = a.do(t, http.MethodPost, "/fee-heads", map[string]string{"name": "Transport"})
	decodeData(t, env, &head)

	code, env = a.do(t, http.MethodPatch, "/fee-heads/"+head.ID, map[string]string{"description": "bus"})
	require.Equal(t, http.StatusOK, code, env.Message)
	decodeData(t, env, &head)
	assert.Equal(t, "Transport", head.Name)
	require.NotNil(t, head.Description)
	assert.Equal(t, "bus", *head.Description)

	code, env = a.do(t, http.MethodGet, "/fee-heads", nil)
	require.Equal(t, http.StatusOK, code)
	var heads []FeeHeadView
	decodeData(t, env, &heads)
	assert.Len(t, heads, 1)

	code, _ = a.do(t, http.MethodPatch, "/fee-heads/missing", map[string]string{"name": "x"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestQueries(t *testing.T) {
	a := newTestAPI(t)
	a.seedStructure(t)
	res := a.generate(t, 3)

	code, env := a.do(t, http.MethodPost, "/invoices/"+res.Created[0].ID+"/payments", map[string]string{"amount": "5500", "date": "2026-03-01"})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = a.do(t, http.MethodGet, "/invoices?class_id=7a&month=3&year=2026&status=Pending,Partial", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	var invoices []InvoiceView
	decodeData(t, env, &invoices)
	require.Len(t, invoices, 1)
	assert.Equal(t, "Brian", invoices[0].StudentName)
	assert.Equal(t, "2", invoices[0].RollNum)

	code, env = a.do(t, http.MethodGet, "/invoices?class_id=7a&month=3&year=2026&status=Lost", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "Lost")

	code, _ = a.do(t, http.MethodGet, "/invoices?class_id=7a&year=2026", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = a.do(t, http.MethodGet, "/defaulters?class_id=7a", nil)
	require.Equal(t, http.StatusOK, code)
	var defaulters []DefaulterView
	decodeData(t, env, &defaulters)
	require.Len(t, defaulters, 1)
	assert.Equal(t, "st-2", defaulters[0].StudentID)
	assert.Equal(t, "5500", defaulters[0].TotalDue.String())

	code, env = a.do(t, http.MethodGet, "/search?school_id=sch-1&roll_num=1", nil)
	require.Equal(t, http.StatusOK, code)
	var rows []SearchResultView
	decodeData(t, env, &rows)
	require.Len(t, rows, 1)
	assert.Equal(t, "Grade 7A", rows[0].ClassName)
	assert.Equal(t, "5500", rows[0].TotalPaid.String())
	assert.True(t, rows[0].TotalDue.IsZero())

	code, _ = a.do(t, http.MethodGet, "/search", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = a.do(t, http.MethodGet, "/students/st-2/fee-history", nil)
	require.Equal(t, http.StatusOK, code)
	var hist FeeHistoryView
	decodeData(t, env, &hist)
	assert.Equal(t, "Brian", hist.StudentName)
	assert.Len(t, hist.Invoices, 1)

	code, _ = a.do(t, http.MethodGet, "/students/nobody/fee-history", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestExports(t *testing.T) {
	a := newTestAPI(t)
	a.seedStructure(t)
	a.generate(t, 3)

	code, env := a.do(t, http.MethodPost, "/export/defaulters", map[string]string{})
	require.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "class_id is required", env.Message)

	code, env = a.do(t, http.MethodPost, "/export/defaulters", map[string]string{"class_id": "7a"})
	require.Equal(t, http.StatusAccepted, code, env.Message)
	var started map[string]string
	decodeData(t, env, &started)
	exportID := started["export_id"]
	require.NotEmpty(t, exportID)

	code, env = a.do(t, http.MethodPost, "/export/invoices", map[string]interface{}{
		"class_id": "7a", "month": 3, "year": 2026, "status": []string{"Pending"},
	})
	require.Equal(t, http.StatusAccepted, code, env.Message)

	code, _ = a.do(t, http.MethodPost, "/export/invoices", map[string]interface{}{
		"class_id": "7a", "month": 3, "year": 2026, "status": []string{"Lost"},
	})
	assert.Equal(t, http.StatusBadRequest, code)

	a.exports.Wait()

	code, env = a.do(t, http.MethodGet, "/export/"+exportID, nil)
	require.Equal(t, http.StatusOK, code)
	var st service.ExportStatus
	decodeData(t, env, &st)
	assert.Equal(t, float64(100), st.Progress)
	require.NotNil(t, st.FileURL)
	assert.Contains(t, *st.FileURL, "/files/")

	code, env = a.do(t, http.MethodGet, "/export", nil)
	require.Equal(t, http.StatusOK, code)
	var list []service.ExportStatus
	decodeData(t, env, &list)
	assert.Len(t, list, 2)

	code, _ = a.do(t, http.MethodGet, "/export/unknown", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestExports_RequireOperator(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, nil, nil)
	rec := httptest.NewRecorder()

	h.InitRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/export", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, service.GenerateRequest) (service.GenerateResult, error) {
	return service.GenerateResult{}, errors.New("connection reset by peer")
}

func TestUnknownErrorsAreHidden(t *testing.T) {
	h := NewHandler(failingGenerator{}, nil, nil, nil, nil, zap.NewNop())
	body := bytes.NewBufferString(`{"school_id":"sch-1","class_id":"7a","month":3,"year":2026}`)
	rec := httptest.NewRecorder()

	h.InitRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices/generate", body))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestInvalidJSON(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/invoices/generate", bytes.NewBufferString("{"))
	req.Header.Set("Authorization", "Bearer "+testToken)
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON")
}
