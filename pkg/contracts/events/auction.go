package events

import (
	"encoding/json"
	"time"
)

// Tipos publicados no tópico "auction_events"
const (
	TypeBidPlaced          = "bid_placed"
	TypeLotClosed          = "lot_closed"
	TypeSettlementRecorded = "settlement_recorded"
	TypeNotification       = "notification"
)

// Envelope é a mensagem no tópico; a chave Kafka é o id do lote
type Envelope struct {
	Type    string    `json:"type"`
	LotKind string    `json:"lot_kind"`
	LotID   string    `json:"lot_id"`
	Ts      time.Time `json:"ts"`

	BidPlaced    *BidPlaced          `json:"bid_placed,omitempty"`
	LotClosed    *LotClosed          `json:"lot_closed,omitempty"`
	Settlement   *SettlementRecorded `json:"settlement,omitempty"`
	Notification *Notification       `json:"notification,omitempty"`
}

// Evento emitido pelo bid-service após um lance aceito
type BidPlaced struct {
	BidID       string `json:"bid_id"`
	BidderID    string `json:"bidder_id"`
	AmountCents int64  `json:"amount_cents"`
	MinimumNext int64  `json:"minimum_next_cents"`
}

// Evento emitido pela varredura ao fechar um lote
type LotClosed struct {
	WinnerID   *string `json:"winner_id,omitempty"`
	WinningBid *int64  `json:"winning_bid_cents,omitempty"`
}

// Evento emitido pelo processador de liquidação
type SettlementRecorded struct {
	State     string `json:"state"`
	WinnerID  string `json:"winner_id,omitempty"`
	ChargeRef string `json:"charge_ref,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// Notificação gravada para um usuário
type Notification struct {
	ID      string `json:"id"`
	UserID  string `json:"user_id"`
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// LotUpdate é o que o notification-worker publica no Redis Pub/Sub e o lot-feed repassa ao cliente.
// Payload é o Envelope original.
type LotUpdate struct {
	LotID   string          `json:"lotId"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
