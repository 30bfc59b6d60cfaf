package dto

import (
	"time"

	"github.com/bidwin/auction-core/internal/lot"
)

type PlaceBidResponse struct {
	BidID       string `json:"bidId"`
	LotID       string `json:"lotId"`
	Kind        string `json:"kind"`
	AmountCents int64  `json:"amount_cents"`
	MinimumNext int64  `json:"minimum_next"`
	ChargeRef   string `json:"charge_ref,omitempty"`
}

type BidView struct {
	BidID       string    `json:"bidId"`
	BidderID    string    `json:"bidderId"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

// LotResponse é a visão pública de um lote; também é o formato guardado no cache
type LotResponse struct {
	ID            string    `json:"id"`
	Kind          string    `json:"kind"`
	ParentID      string    `json:"parentId,omitempty"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	Status        string    `json:"status"`
	Open          bool      `json:"open"`
	StartingPrice int64     `json:"starting_price"`
	CurrentBid    *int64    `json:"current_bid,omitempty"`
	MinimumNext   int64     `json:"minimum_next"`
	EndTime       time.Time `json:"end_time"`
	WinnerID      *string   `json:"winnerId,omitempty"`
	PaymentState  string    `json:"payment_state"`
	Bids          []BidView `json:"bids"`
}

// NewLotResponse monta a visão a partir do lote e dos lances mais recentes
func NewLotResponse(l *lot.Lot, bids []lot.Bid, increment int64, now time.Time) LotResponse {
	out := LotResponse{
		ID:            l.ID,
		Kind:          string(l.Kind),
		ParentID:      l.ParentID,
		Title:         l.Title,
		Description:   l.Description,
		Status:        string(l.Status),
		StartingPrice: l.StartingPrice,
		CurrentBid:    l.CurrentBid,
		MinimumNext:   lot.MinimumNextBid(l, increment),
		EndTime:       l.EndTime,
		WinnerID:      l.WinnerID,
		PaymentState:  string(l.Settlement.State),
		Bids:          make([]BidView, 0, len(bids)),
	}
	out.RefreshOpen(now)
	for _, b := range bids {
		out.Bids = append(out.Bids, BidView{BidID: b.ID, BidderID: b.BidderID, AmountCents: b.Amount, CreatedAt: b.CreatedAt})
	}
	return out
}

// RefreshOpen recalcula Open com status e end_time; a visão em cache pode ter sido montada antes do end_time.
// Um lote active com end_time no passado ainda não foi varrido e já não aceita lances.
func (v *LotResponse) RefreshOpen(now time.Time) {
	v.Open = v.Status == string(lot.StatusActive) && now.Before(v.EndTime)
}

type NotificationResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	LotID     string    `json:"lotId"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrorResponse carrega o código estável e, quando houver, o mínimo ou o motivo da recusa
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Minimum *int64 `json:"minimum,omitempty"`
	Reason  string `json:"reason,omitempty"`
}
