package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/bid-service/dto"
	"github.com/bidwin/auction-core/internal/bid-service/service"
	"github.com/bidwin/auction-core/internal/lot"
)

type stubPlacer struct {
	acc *service.Accepted
	err error
}

func (s stubPlacer) PlaceBid(context.Context, string, string, int64) (*service.Accepted, error) {
	return s.acc, s.err
}

type stubLots struct {
	lot        *lot.Lot
	bids       []lot.Bid
	publishErr error
	items      []string
	resolves   int
}

func (s *stubLots) Resolve(_ context.Context, id string) (*lot.Lot, error) {
	s.resolves++
	if s.lot == nil || s.lot.ID != id {
		return nil, lot.ErrNotFound
	}
	return s.lot, nil
}

func (s *stubLots) ListBids(context.Context, lot.Ref, int) ([]lot.Bid, error) { return s.bids, nil }

func (s *stubLots) Publish(context.Context, string, time.Time) ([]string, error) {
	return s.items, s.publishErr
}

func (s *stubLots) ListNotifications(_ context.Context, userID string, _ int) ([]lot.Notification, error) {
	return []lot.Notification{{ID: "n1", UserID: userID, Type: lot.NotificationAuctionWon, LotRef: lot.Ref{Kind: lot.KindItem, ID: "it-1"}}}, nil
}

type mapCache map[string][]byte

func (m mapCache) Get(_ context.Context, id string, dst any) (bool, error) {
	b, ok := m[id]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dst)
}

func (m mapCache) Set(_ context.Context, id string, v any) error {
	b, err := json.Marshal(v)
	m[id] = b
	return err
}

func (m mapCache) Invalidate(_ context.Context, id string) error {
	delete(m, id)
	return nil
}

func newAPI(p BidPlacer, l LotStore) *API {
	return &API{Log: zap.NewNop(), Placer: p, Lots: l, Increment: 100}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) dto.ErrorResponse {
	t.Helper()
	var out dto.ErrorResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPlaceBid_Created(t *testing.T) {
	acc := &service.Accepted{
		Bid:         lot.Bid{ID: "b1", LotRef: lot.Ref{Kind: lot.KindStandalone, ID: "l1"}, Amount: 1100},
		ChargeRef:   "pi_1",
		MinimumNext: 1200,
	}
	rec := do(t, newAPI(stubPlacer{acc: acc}, &stubLots{}).Router(), http.MethodPost, "/v1/lots/l1/bids", `{"bidderId":"u1","amount_cents":1100}`)
	check.Equal(t, http.StatusCreated, rec.Code)

	var out dto.PlaceBidResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	check.Equal(t, "b1", out.BidID)
	check.Equal(t, int64(1200), out.MinimumNext)
}

func TestPlaceBid_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", lot.ErrNotFound, http.StatusNotFound, "not_found"},
		{"not active", lot.ErrNotActive, http.StatusConflict, "not_active"},
		{"too low", &lot.BidTooLowError{Amount: 1150, Minimum: 1200, Currency: "usd"}, http.StatusConflict, "bid_too_low"},
		{"no payment method", lot.ErrNoPaymentMethod, http.StatusPaymentRequired, "no_payment_method"},
		{"declined", &lot.ChargeError{Reason: lot.ReasonDeclined}, http.StatusPaymentRequired, "charge_failed"},
		{"invalid amount", lot.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
		{"unexpected", errors.New("db down"), http.StatusInternalServerError, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, newAPI(stubPlacer{err: tc.err}, &stubLots{}).Router(), http.MethodPost, "/v1/lots/l1/bids", `{"bidderId":"u1","amount_cents":1150}`)
			check.Equal(t, tc.status, rec.Code)
			check.Equal(t, tc.code, decodeErr(t, rec).Code)
		})
	}
}

func TestPlaceBid_TooLowCarriesMinimum(t *testing.T) {
	err := &lot.BidTooLowError{Amount: 1150, Minimum: 1200, Currency: "usd"}
	rec := do(t, newAPI(stubPlacer{err: err}, &stubLots{}).Router(), http.MethodPost, "/v1/lots/l1/bids", `{"bidderId":"u1","amount_cents":1150}`)
	out := decodeErr(t, rec)
	assert.NotNil(t, out.Minimum)
	check.Equal(t, int64(1200), *out.Minimum)
	check.Equal(t, "bid too low: $11.50 offered, minimum is $12.00", out.Error)
}

func TestPlaceBid_DeclineCarriesReason(t *testing.T) {
	rec := do(t, newAPI(stubPlacer{err: &lot.ChargeError{Reason: lot.ReasonInsufficientFunds}}, &stubLots{}).Router(),
		http.MethodPost, "/v1/lots/l1/bids", `{"bidderId":"u1","amount_cents":1150}`)
	out := decodeErr(t, rec)
	check.Equal(t, lot.ReasonInsufficientFunds, out.Reason)
	check.Equal(t, "Your card has insufficient funds.", out.Error)
}

func TestPlaceBid_BadRequest(t *testing.T) {
	h := newAPI(stubPlacer{}, &stubLots{}).Router()
	check.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/lots/l1/bids", `{`).Code)
	check.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/v1/lots/l1/bids", `{"amount_cents":100}`).Code)
}

func TestGetLot_ServesFromCacheAfterFirstRead(t *testing.T) {
	cur := int64(1100)
	lots := &stubLots{lot: &lot.Lot{
		ID: "l1", Kind: lot.KindStandalone, StartingPrice: 1000, CurrentBid: &cur,
		Status: lot.StatusActive, Settlement: lot.PendingSettlement(),
	}}
	api := newAPI(stubPlacer{}, lots)
	api.Cache = mapCache{}
	h := api.Router()

	rec := do(t, h, http.MethodGet, "/v1/lots/l1", "")
	check.Equal(t, http.StatusOK, rec.Code)
	var view dto.LotResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	check.Equal(t, int64(1200), view.MinimumNext)
	check.Equal(t, "pending", view.PaymentState)

	rec = do(t, h, http.MethodGet, "/v1/lots/l1", "")
	check.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, 1, lots.resolves)
}

func TestGetLot_OpenFollowsEndTimeEvenFromCache(t *testing.T) {
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lots := &stubLots{lot: &lot.Lot{
		ID: "l1", Kind: lot.KindStandalone, StartingPrice: 1000,
		Status: lot.StatusActive, EndTime: clock.Add(time.Minute), Settlement: lot.PendingSettlement(),
	}}
	api := newAPI(stubPlacer{}, lots)
	api.Cache = mapCache{}
	api.Now = func() time.Time { return clock }
	h := api.Router()

	var view dto.LotResponse
	assert.NoError(t, json.Unmarshal(do(t, h, http.MethodGet, "/v1/lots/l1", "").Body.Bytes(), &view))
	check.True(t, view.Open)

	// end_time passou, a varredura ainda não rodou: status segue active mas o lote está fechado
	clock = clock.Add(2 * time.Minute)
	assert.NoError(t, json.Unmarshal(do(t, h, http.MethodGet, "/v1/lots/l1", "").Body.Bytes(), &view))
	check.Equal(t, "active", view.Status)
	check.False(t, view.Open)
	check.Equal(t, 1, lots.resolves)
}

func TestPublish_InvalidatesContainerItems(t *testing.T) {
	cache := mapCache{"c1": []byte(`{}`), "it-1": []byte(`{}`), "it-2": []byte(`{}`), "other": []byte(`{}`)}
	api := newAPI(stubPlacer{}, &stubLots{items: []string{"it-1", "it-2"}})
	api.Cache = cache

	rec := do(t, api.Router(), http.MethodPost, "/v1/lots/c1/publish", "")
	check.Equal(t, http.StatusOK, rec.Code)
	check.Equal(t, 1, len(cache))
	_, kept := cache["other"]
	check.True(t, kept)
}

func TestGetLot_NotFound(t *testing.T) {
	rec := do(t, newAPI(stubPlacer{}, &stubLots{}).Router(), http.MethodGet, "/v1/lots/missing", "")
	check.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublish_InvalidTransition(t *testing.T) {
	lots := &stubLots{publishErr: lot.ErrInvalidTransition}
	rec := do(t, newAPI(stubPlacer{}, lots).Router(), http.MethodPost, "/v1/lots/a1/publish", "")
	check.Equal(t, http.StatusConflict, rec.Code)

	lots.publishErr = nil
	rec = do(t, newAPI(stubPlacer{}, lots).Router(), http.MethodPost, "/v1/lots/a1/publish", "")
	check.Equal(t, http.StatusOK, rec.Code)
}

func TestListNotifications(t *testing.T) {
	rec := do(t, newAPI(stubPlacer{}, &stubLots{}).Router(), http.MethodGet, "/v1/users/u1/notifications?limit=5", "")
	check.Equal(t, http.StatusOK, rec.Code)
	var out []dto.NotificationResponse
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 1, len(out))
	check.Equal(t, "it-1", out[0].LotID)
	check.Equal(t, "item", out[0].Kind)
}
