package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"workshop_booking/application/aggregates"
	"workshop_booking/application/notification"
	"workshop_booking/application/saga"
	"workshop_booking/application/usecases"
	"workshop_booking/domain/settlement"
	"workshop_booking/infrastructure/eventstore"
	"workshop_booking/infrastructure/idempotency"
	"workshop_booking/infrastructure/kv"
	"workshop_booking/infrastructure/payment"
	"workshop_booking/infrastructure/repository"
	"workshop_booking/pkg/retry"
)

var secret = []byte("test-secret")

type testServer struct {
	router  *gin.Engine
	gateway *payment.FakeGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := repository.NewMemoryDirectory()
	dir.AddWorkshop(repository.Workshop{ID: "w1", Name: "Oficina Centro", Status: repository.WorkshopApproved})
	dir.AddWorkshop(repository.Workshop{ID: "w2", Name: "Oficina Nova", Status: "pending_review"})
	dir.AddVehicle(repository.Vehicle{ID: "v1", OwnerID: "c1", Brand: "Honda", Model: "Civic", Year: 2019, Plate: "BRA2E19"})

	store := aggregates.NewAggregateStore(eventstore.NewMemoryEventStore())
	settlements := repository.NewMemorySettlementRepository()
	gateway := payment.NewFakeGateway([]byte("whsec"))
	kvStore := kv.NewMemoryStore()

	s := saga.NewBookingSaga(
		store,
		usecases.NewCreateBookingUseCase(store, dir, dir),
		usecases.NewSettleBookingUseCase(store, settlements, settlement.DefaultRate),
		usecases.NewBookingHistoryUseCase(store),
		settlements,
		gateway,
		payment.NewMemorySessionStore(),
		idempotency.NewKVLedger(kvStore, 0),
		kvStore,
		repository.NewMemoryBookingView(),
		saga.Options{Currency: "BRL", Retry: retry.Policy{MaxRetries: 1, InitialInterval: time.Millisecond}},
	)
	h := NewBookingHandler(s, notification.NewDeviceRegistry(kvStore, time.Hour), repository.NewMemoryAlertStore())
	return &testServer{router: NewRouter(h, secret), gateway: gateway}
}

func token(t *testing.T, role, sub string) string {
	t.Helper()
	tok, err := CreateAccessToken(secret, sub, role, "", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func createBody(workshopID string) map[string]interface{} {
	return map[string]interface{}{
		"workshop_id":      workshopID,
		"vehicle_id":       "v1",
		"service_id":       "revisao",
		"appointment_date": time.Now().Add(72 * time.Hour).UTC().Format(time.RFC3339),
		"estimated_price":  14000,
	}
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		tok  string
		want int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage token", "abc", http.StatusUnauthorized},
		{"unknown role", token(t, "admin", "x"), http.StatusUnauthorized},
		{"workshop cannot create", token(t, "workshop", "w1"), http.StatusForbidden},
		{"customer creates", token(t, "customer", "c1"), http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := s.do(t, http.MethodPost, "/v1/bookings", tt.tok, createBody("w1"))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestCreateValidation(t *testing.T) {
	s := newTestServer(t)
	w, body := s.do(t, http.MethodPost, "/v1/bookings", token(t, "customer", "c1"), createBody("w2"))
	if w.Code != http.StatusUnprocessableEntity || body["field"] != "workshop_id" {
		t.Errorf("status %d body %v", w.Code, body)
	}
}

func TestRejectThenConfirmConflicts(t *testing.T) {
	s := newTestServer(t)
	customer := token(t, "customer", "c1")
	workshop := token(t, "workshop", "w1")

	_, created := s.do(t, http.MethodPost, "/v1/bookings", customer, createBody("w1"))
	id := created["id"].(string)

	w, body := s.do(t, http.MethodPost, "/v1/bookings/"+id+"/reject", workshop, map[string]string{"reason": "oficina fechada"})
	if w.Code != http.StatusOK || body["status"] != "rejected" {
		t.Fatalf("reject: %d %v", w.Code, body)
	}
	if hist := body["status_history"].([]interface{}); len(hist) != 2 {
		t.Errorf("%d history entries", len(hist))
	}

	w, body = s.do(t, http.MethodPost, "/v1/bookings/"+id+"/confirm", workshop, nil)
	if w.Code != http.StatusConflict || body["current_status"] != "rejected" {
		t.Errorf("confirm after reject: %d %v", w.Code, body)
	}

	w, _ = s.do(t, http.MethodGet, "/v1/bookings/"+id, token(t, "customer", "c9"), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign customer read: %d", w.Code)
	}
	w, _ = s.do(t, http.MethodGet, "/v1/bookings/missing", customer, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing booking: %d", w.Code)
	}
}

func TestPaymentFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	customer := token(t, "customer", "c1")
	workshop := token(t, "workshop", "w1")

	_, created := s.do(t, http.MethodPost, "/v1/bookings", customer, createBody("w1"))
	id := created["id"].(string)

	s.do(t, http.MethodPost, "/v1/bookings/"+id+"/confirm", workshop, nil)
	w, body := s.do(t, http.MethodPost, "/v1/bookings/"+id+"/finalize", workshop, map[string]int64{"final_price": 15000})
	if w.Code != http.StatusOK || body["final_price"].(float64) != 15000 {
		t.Fatalf("finalize: %d %v", w.Code, body)
	}

	s.gateway.FailNext("create_session", &payment.GatewayError{Op: "create_session", Err: errors.New("merchant suspended")})
	w, body = s.do(t, http.MethodPost, "/v1/bookings/"+id+"/pay", customer, nil)
	if w.Code != http.StatusBadGateway || body["code"] != "gateway_rejected" {
		t.Fatalf("pay with rejecting gateway: %d %v", w.Code, body)
	}

	w, body = s.do(t, http.MethodPost, "/v1/bookings/"+id+"/pay", customer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pay: %d %v", w.Code, body)
	}
	sessionID := body["session"].(map[string]interface{})["id"].(string)

	payload, sig, err := s.gateway.Complete(sessionID, payment.OutcomeApproved)
	if err != nil {
		t.Fatal(err)
	}
	hook := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/payments", bytes.NewReader(payload))
		req.Header.Set("X-Webhook-Signature", signature)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	if w := hook("0000"); w.Code != http.StatusUnauthorized {
		t.Errorf("tampered webhook: %d", w.Code)
	}
	if w := hook(sig); w.Code != http.StatusOK {
		t.Fatalf("webhook: %d %s", w.Code, w.Body.String())
	}

	w, body = s.do(t, http.MethodGet, "/v1/bookings/"+id, customer, nil)
	if body["status"] != "finalized_by_customer" || body["commission"].(float64) != 1500 {
		t.Errorf("after settlement: %v", body)
	}

	w, body = s.do(t, http.MethodGet, "/v1/bookings/"+id+"/history", workshop, nil)
	if w.Code != http.StatusOK || len(body["events"].([]interface{})) != 5 {
		t.Errorf("history: %d %v", w.Code, body)
	}
}

func TestDevicesAndAlerts(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(t, http.MethodPost, "/v1/devices", token(t, "customer", "c1"), map[string]string{"token": "fcm-1", "platform": "android"})
	if w.Code != http.StatusNoContent {
		t.Errorf("register device: %d", w.Code)
	}
	w, _ = s.do(t, http.MethodPost, "/v1/devices", token(t, "customer", "c1"), map[string]string{"token": "fcm-1", "platform": "palm"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad platform: %d", w.Code)
	}

	w, _ = s.do(t, http.MethodGet, "/v1/alerts", token(t, "customer", "c1"), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("customer reading alerts: %d", w.Code)
	}
	w, body := s.do(t, http.MethodGet, "/v1/alerts?category=LowRating", token(t, "platform", ""), nil)
	if w.Code != http.StatusOK {
		t.Errorf("platform reading alerts: %d %v", w.Code, body)
	}
}
