package fraud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func testCtx() context.Context { return context.Background() }

func setupTestRouter() (*gin.Engine, *Service) {
	gin.SetMode(gin.TestMode)

	svc := NewService(NewMemoryStore(), NewMemoryCounter(), nil)
	handler := NewHandler(svc)

	r := gin.New()
	group := r.Group("/api/fraud-preventions")
	handler.RegisterRoutes(group)
	return r, svc
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_CreateAttempt(t *testing.T) {
	router, _ := setupTestRouter()

	w := doJSON(t, router, "POST", "/api/fraud-preventions", CreateRequest{
		TransactionID: "txn-1",
		UserIP:        "203.0.113.7",
		DeviceID:      "device-9",
		UserID:        "user-1",
		AdditionalData: map[string]any{
			"channel": "web",
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var rec AttemptRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if rec.ID == "" {
		t.Error("response has no id")
	}
	if rec.RiskLevel != RiskLow {
		t.Errorf("first attempt risk = %s, want low", rec.RiskLevel)
	}
	if rec.IsBlocked || rec.AttemptCount != 0 {
		t.Errorf("unexpected initial state: %+v", rec)
	}
}

func TestHandler_CreateAttempt_Validation(t *testing.T) {
	router, _ := setupTestRouter()

	// Missing required fields.
	w := doJSON(t, router, "POST", "/api/fraud-preventions", map[string]any{
		"transactionId": "txn-1",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing fields: expected 400, got %d", w.Code)
	}

	// Oversized field.
	w = doJSON(t, router, "POST", "/api/fraud-preventions", CreateRequest{
		TransactionID: strings.Repeat("x", 256),
		UserIP:        "203.0.113.7",
		UserID:        "user-1",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("oversized transactionId: expected 400, got %d: %s", w.Code, w.Body.String())
	}

	// Malformed JSON body.
	req := httptest.NewRequest("POST", "/api/fraud-preventions", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}
}

func TestHandler_GetAttempt(t *testing.T) {
	router, svc := setupTestRouter()

	created, err := svc.Create(testCtx(), CreateInput{
		TransactionID: "txn-1",
		UserIP:        "203.0.113.7",
		UserID:        "user-1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := doJSON(t, router, "GET", "/api/fraud-preventions/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doJSON(t, router, "GET", "/api/fraud-preventions/does-not-exist", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "not_found" {
		t.Errorf("error code = %q, want not_found", body["error"])
	}
}

func TestHandler_GetByTransaction(t *testing.T) {
	router, svc := setupTestRouter()

	first, _ := svc.Create(testCtx(), CreateInput{TransactionID: "txn-shared", UserIP: "203.0.113.7", UserID: "user-1"})
	svc.Create(testCtx(), CreateInput{TransactionID: "txn-shared", UserIP: "203.0.113.7", UserID: "user-1"})

	w := doJSON(t, router, "GET", "/api/fraud-preventions/transaction/txn-shared", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var rec AttemptRecord
	json.Unmarshal(w.Body.Bytes(), &rec)
	if rec.ID != first.ID {
		t.Errorf("expected oldest record %s, got %s", first.ID, rec.ID)
	}

	w = doJSON(t, router, "GET", "/api/fraud-preventions/transaction/txn-missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestHandler_ListByUser(t *testing.T) {
	router, svc := setupTestRouter()

	svc.Create(testCtx(), CreateInput{TransactionID: "txn-1", UserIP: "203.0.113.7", UserID: "user-1"})
	svc.Create(testCtx(), CreateInput{TransactionID: "txn-2", UserIP: "203.0.113.7", UserID: "user-1"})

	w := doJSON(t, router, "GET", "/api/fraud-preventions/user/user-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var records []AttemptRecord
	if err := json.Unmarshal(w.Body.Bytes(), &records); err != nil {
		t.Fatalf("expected a bare array: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("got %d records, want 2", len(records))
	}

	// Unknown user yields an empty array, not 404.
	w = doJSON(t, router, "GET", "/api/fraud-preventions/user/nobody", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("expected empty array, got %s", body)
	}
}

func TestHandler_ListAttempts_Envelope(t *testing.T) {
	router, svc := setupTestRouter()

	for i := 0; i < 25; i++ {
		svc.Create(testCtx(), CreateInput{
			TransactionID: fmt.Sprintf("txn-%d", i),
			UserIP:        "203.0.113.7",
			UserID:        "user-1",
		})
	}

	w := doJSON(t, router, "GET", "/api/fraud-preventions?page=2&limit=10", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Data  []AttemptRecord `json:"data"`
		Total int             `json:"total"`
		Page  int             `json:"page"`
		Pages int             `json:"pages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if resp.Total != 25 || resp.Page != 2 || resp.Pages != 3 {
		t.Errorf("envelope total/page/pages = %d/%d/%d, want 25/2/3", resp.Total, resp.Page, resp.Pages)
	}
	if len(resp.Data) != 10 {
		t.Errorf("page holds %d records, want 10", len(resp.Data))
	}

	// Invalid pagination input.
	w = doJSON(t, router, "GET", "/api/fraud-preventions?page=0", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("page=0: expected 400, got %d", w.Code)
	}
	w = doJSON(t, router, "GET", "/api/fraud-preventions?limit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("limit=abc: expected 400, got %d", w.Code)
	}

	// An astronomical page whose offset would wrap negative must be
	// rejected, not served as page-1 content.
	w = doJSON(t, router, "GET", "/api/fraud-preventions?page=9223372036854775807&limit=2", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("overflowing page: expected 400, got %d: %s", w.Code, w.Body.String())
	}

	// Empty store still returns the envelope with an empty data array.
	emptyRouter, _ := setupTestRouter()
	w = doJSON(t, emptyRouter, "GET", "/api/fraud-preventions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var raw map[string]json.RawMessage
	json.Unmarshal(w.Body.Bytes(), &raw)
	if string(raw["data"]) != "[]" {
		t.Errorf("empty list data = %s, want []", raw["data"])
	}
}

func TestHandler_UpdateAttempt(t *testing.T) {
	router, svc := setupTestRouter()

	created, _ := svc.Create(testCtx(), CreateInput{TransactionID: "txn-1", UserIP: "203.0.113.7", UserID: "user-1"})

	w := doJSON(t, router, "PATCH", "/api/fraud-preventions/"+created.ID, map[string]any{
		"riskLevel": "high",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var rec AttemptRecord
	json.Unmarshal(w.Body.Bytes(), &rec)
	if rec.RiskLevel != RiskHigh {
		t.Errorf("risk = %s, want high", rec.RiskLevel)
	}

	w = doJSON(t, router, "PATCH", "/api/fraud-preventions/"+created.ID, map[string]any{
		"riskLevel": "severe",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid risk level: expected 400, got %d", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "invalid_risk_level" {
		t.Errorf("error code = %v, want invalid_risk_level", body["error"])
	}

	w = doJSON(t, router, "PATCH", "/api/fraud-preventions/missing", map[string]any{
		"riskLevel": "high",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing record: expected 404, got %d", w.Code)
	}

	// A PATCH supplying no updatable fields is rejected before it
	// touches storage.
	w = doJSON(t, router, "PATCH", "/api/fraud-preventions/"+created.ID, map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty update: expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_BlockTransaction(t *testing.T) {
	router, svc := setupTestRouter()

	created, _ := svc.Create(testCtx(), CreateInput{TransactionID: "txn-1", UserIP: "203.0.113.7", UserID: "user-1"})

	w := doJSON(t, router, "POST", "/api/fraud-preventions/"+created.ID+"/block", BlockRequest{
		Reason: "card testing pattern",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var rec AttemptRecord
	json.Unmarshal(w.Body.Bytes(), &rec)
	if !rec.IsBlocked || rec.RiskLevel != RiskCritical || rec.AttemptCount != 1 {
		t.Errorf("after block: %+v", rec)
	}

	// Blocking again still succeeds and re-applies.
	w = doJSON(t, router, "POST", "/api/fraud-preventions/"+created.ID+"/block", BlockRequest{
		Reason: "confirmed fraud",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("second block: expected 200, got %d", w.Code)
	}
	json.Unmarshal(w.Body.Bytes(), &rec)
	if rec.AttemptCount != 2 || *rec.BlockReason != "confirmed fraud" {
		t.Errorf("second block did not re-apply: %+v", rec)
	}

	// Missing reason fails binding.
	w = doJSON(t, router, "POST", "/api/fraud-preventions/"+created.ID+"/block", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing reason: expected 400, got %d", w.Code)
	}

	// Whitespace-only reason is rejected by the engine.
	w = doJSON(t, router, "POST", "/api/fraud-preventions/"+created.ID+"/block", BlockRequest{Reason: "   "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank reason: expected 400, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/fraud-preventions/missing/block", BlockRequest{Reason: "reason"})
	if w.Code != http.StatusNotFound {
		t.Errorf("missing record: expected 404, got %d", w.Code)
	}
}
