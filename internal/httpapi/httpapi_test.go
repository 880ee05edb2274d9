package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bozweather/trader/internal/approval"
	"github.com/bozweather/trader/internal/model"
	"github.com/bozweather/trader/internal/store"
)

type fakeExchange struct {
	result approval.PlaceOrderResult
	err    error
}

func (f *fakeExchange) PlaceOrder(_ context.Context, _ approval.PlaceOrderRequest) (approval.PlaceOrderResult, error) {
	return f.result, f.err
}

func newTestService(t *testing.T, exchange approval.OrderPlacer) (*Service, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	queue := approval.NewQueue(st, exchange)
	return NewService(st, queue, nil), st
}

func newRouter(s *Service) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", s.Routes)
	return r
}

func TestGetPrediction_NotFound(t *testing.T) {
	s, _ := newTestService(t, &fakeExchange{})
	r := newRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/predictions/NYC/2026-02-18", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetPrediction_Found(t *testing.T) {
	s, st := newTestService(t, &fakeExchange{})
	ctx := context.Background()
	pred := model.EnsemblePrediction{City: "NYC", TargetDate: "2026-02-18", GeneratedAt: time.Now()}
	if err := st.SavePrediction(ctx, pred); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	r := newRouter(s)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/predictions/NYC/2026-02-18", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestApprovePending_SuccessPlacesOrderAndReturns204(t *testing.T) {
	exchange := &fakeExchange{result: approval.PlaceOrderResult{Accepted: true, OrderID: "ord-1"}}
	s, st := newTestService(t, exchange)
	ctx := context.Background()

	signal := model.TradeSignal{City: "NYC", TargetDate: "2026-02-18", BracketTicker: "NYC-70-72", Side: model.SideYes, SizedQuantity: 10, LimitPriceCents: 40}
	id, err := s.Approval.Enqueue(ctx, "u1", signal, nil, model.EnsemblePrediction{})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	r := newRouter(s)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pending/"+id+"/approve", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	pending, err := st.GetPendingTrade(ctx, id)
	if err != nil {
		t.Fatalf("get pending failed: %v", err)
	}
	if pending.Status != model.PendingStatusExecuted {
		t.Errorf("expected EXECUTED, got %s", pending.Status)
	}
}

func TestApprovePending_DoubleApproveReturnsConflict(t *testing.T) {
	exchange := &fakeExchange{result: approval.PlaceOrderResult{Accepted: true, OrderID: "ord-1"}}
	s, _ := newTestService(t, exchange)
	ctx := context.Background()

	signal := model.TradeSignal{City: "NYC", TargetDate: "2026-02-18", BracketTicker: "NYC-70-72", Side: model.SideYes, SizedQuantity: 10, LimitPriceCents: 40}
	id, err := s.Approval.Enqueue(ctx, "u1", signal, nil, model.EnsemblePrediction{})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	r := newRouter(s)

	req1 := httptest.NewRequest(http.MethodPost, "/api/v1/pending/"+id+"/approve", nil)
	rec1 := httptest.NewRecorder()
	r.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusNoContent {
		t.Fatalf("first approve expected 204, got %d", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/pending/"+id+"/approve", nil)
	rec2 := httptest.NewRecorder()
	r.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusConflict {
		t.Fatalf("second approve expected 409, got %d", rec2.Code)
	}
}

func TestRejectPending_Success(t *testing.T) {
	s, st := newTestService(t, &fakeExchange{})
	ctx := context.Background()

	signal := model.TradeSignal{City: "NYC", TargetDate: "2026-02-18", BracketTicker: "NYC-70-72", Side: model.SideYes, SizedQuantity: 10, LimitPriceCents: 40}
	id, err := s.Approval.Enqueue(ctx, "u1", signal, nil, model.EnsemblePrediction{})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	r := newRouter(s)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/pending/"+id+"/reject", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	pending, err := st.GetPendingTrade(ctx, id)
	if err != nil {
		t.Fatalf("get pending failed: %v", err)
	}
	if pending.Status != model.PendingStatusRejected {
		t.Errorf("expected REJECTED, got %s", pending.Status)
	}
}

func TestListTrades_EmptyReturnsEmptyArrayNotNull(t *testing.T) {
	s, _ := newTestService(t, &fakeExchange{})
	r := newRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trades/u-nonexistent", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "[]\n" {
		t.Errorf("expected empty JSON array, got %q", rec.Body.String())
	}
}
