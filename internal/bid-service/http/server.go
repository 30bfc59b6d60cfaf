package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bidwin/auction-core/internal/bid-service/dto"
	"github.com/bidwin/auction-core/internal/bid-service/service"
	"github.com/bidwin/auction-core/internal/lot"
)

// BidPlacer é implementado por service.Placer
type BidPlacer interface {
	PlaceBid(ctx context.Context, lotID, bidderID string, amount int64) (*service.Accepted, error)
}

// LotStore reúne as leituras e a publicação usadas pela API
type LotStore interface {
	Resolve(ctx context.Context, id string) (*lot.Lot, error)
	ListBids(ctx context.Context, ref lot.Ref, limit int) ([]lot.Bid, error)
	Publish(ctx context.Context, auctionID string, now time.Time) (itemIDs []string, err error)
	ListNotifications(ctx context.Context, userID string, limit int) ([]lot.Notification, error)
}

// ViewCache é o cache da visão pública do lote (Redis)
type ViewCache interface {
	Get(ctx context.Context, lotID string, dst any) (bool, error)
	Set(ctx context.Context, lotID string, v any) error
	Invalidate(ctx context.Context, lotID string) error
}

// API expõe os endpoints REST de lances e consulta de lotes
type API struct {
	Log       *zap.Logger
	Placer    BidPlacer
	Lots      LotStore
	Cache     ViewCache // opcional
	Increment int64
	Now       func() time.Time
}

// Router retorna o roteador HTTP com os endpoints REST
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/v1/lots/{id}/bids", a.placeBid)                   // Coloca um lance
	r.Get("/v1/lots/{id}", a.getLot)                           // Visão do lote com lances recentes
	r.Post("/v1/lots/{id}/publish", a.publish)                 // draft -> active
	r.Get("/v1/users/{id}/notifications", a.listNotifications) // Notificações do usuário
	return r
}

func (a *API) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError traduz erros de domínio em status HTTP
func (a *API) writeError(w http.ResponseWriter, err error) {
	var (
		low    *lot.BidTooLowError
		charge *lot.ChargeError
	)
	switch {
	case errors.Is(err, lot.ErrInvalidAmount):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error(), Code: "invalid_amount"})
	case errors.Is(err, lot.ErrNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "lot not found", Code: "not_found"})
	case errors.Is(err, lot.ErrNotActive):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: "auction is not active", Code: "not_active"})
	case errors.As(err, &low):
		minimum := low.Minimum
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: low.Error(), Code: "bid_too_low", Minimum: &minimum})
	case errors.Is(err, lot.ErrNoPaymentMethod):
		writeJSON(w, http.StatusPaymentRequired, dto.ErrorResponse{Error: "no saved payment method", Code: "no_payment_method"})
	case errors.As(err, &charge):
		writeJSON(w, http.StatusPaymentRequired, dto.ErrorResponse{Error: charge.UserMessage(), Code: "charge_failed", Reason: charge.Reason})
	case errors.Is(err, lot.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: err.Error(), Code: "invalid_transition"})
	default:
		a.Log.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "internal error", Code: "internal"})
	}
}

func (a *API) placeBid(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req dto.PlaceBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json", Code: "bad_request"})
		return
	}
	if req.BidderID == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bidderId required", Code: "bad_request"})
		return
	}

	acc, err := a.Placer.PlaceBid(r.Context(), id, req.BidderID, req.AmountCents)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.PlaceBidResponse{
		BidID:       acc.Bid.ID,
		LotID:       acc.Bid.LotRef.ID,
		Kind:        string(acc.Bid.LotRef.Kind),
		AmountCents: acc.Bid.Amount,
		MinimumNext: acc.MinimumNext,
		ChargeRef:   acc.ChargeRef,
	})
}

// getLot retorna a visão do lote, preferencialmente do cache
func (a *API) getLot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if a.Cache != nil {
		var cached dto.LotResponse
		if ok, _ := a.Cache.Get(r.Context(), id, &cached); ok {
			cached.RefreshOpen(a.now())
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	l, err := a.Lots.Resolve(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	bids, err := a.Lots.ListBids(r.Context(), l.Ref(), 20)
	if err != nil {
		a.writeError(w, err)
		return
	}
	view := dto.NewLotResponse(l, bids, a.Increment, a.now())

	if a.Cache != nil {
		if err := a.Cache.Set(r.Context(), id, view); err != nil {
			a.Log.Warn("lot cache set failed", zap.String("lot", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) publish(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	items, err := a.Lots.Publish(r.Context(), id, a.now())
	if err != nil {
		a.writeError(w, err)
		return
	}
	// itens de um contêiner têm visão própria no cache
	if a.Cache != nil {
		for _, lotID := range append([]string{id}, items...) {
			if err := a.Cache.Invalidate(r.Context(), lotID); err != nil {
				a.Log.Warn("lot cache invalidate failed", zap.String("lot", lotID), zap.Error(err))
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(lot.StatusActive)})
}

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	ns, err := a.Lots.ListNotifications(r.Context(), userID, limit)
	if err != nil {
		a.writeError(w, err)
		return
	}
	out := make([]dto.NotificationResponse, 0, len(ns))
	for _, n := range ns {
		out = append(out, dto.NotificationResponse{
			ID: n.ID, Type: n.Type, Title: n.Title, Message: n.Message,
			LotID: n.LotRef.ID, Kind: string(n.LotRef.Kind), CreatedAt: n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
