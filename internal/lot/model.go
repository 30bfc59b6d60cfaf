package lot

import "time"

// Kind distingue os dois formatos de lote que coexistem no banco:
// leilão avulso (tabela auctions) e item aninhado em um leilão contêiner (tabela auction_items)
type Kind string

const (
	KindStandalone Kind = "standalone"
	KindItem       Kind = "item"
)

// Status do ciclo de vida de um lote
type Status string

const (
	StatusDraft  Status = "draft"
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

// Ref identifica um lote independente do formato
type Ref struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (r Ref) String() string { return string(r.Kind) + ":" + r.ID }

// Lot é a visão normalizada de um lote.
// Para itens aninhados, Status e EndTime vêm do leilão pai.
type Lot struct {
	ID            string
	Kind          Kind
	ParentID      string // vazio para leilões avulsos
	SellerID      string
	Title         string
	Description   string
	StartingPrice int64 // centavos
	ReservePrice  *int64
	CurrentBid    *int64
	EndTime       time.Time
	Status        Status
	WinnerID      *string
	Settlement    Settlement
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (l *Lot) Ref() Ref { return Ref{Kind: l.Kind, ID: l.ID} }

// IsOpen exige os dois sinais: status active e end_time ainda no futuro.
// Um lote pode continuar active depois do end_time até a próxima varredura.
func (l *Lot) IsOpen(now time.Time) bool {
	return l.Status == StatusActive && now.Before(l.EndTime)
}

// Bid é imutável depois de inserido
type Bid struct {
	ID        string
	LotRef    Ref
	BidderID  string
	Amount    int64 // centavos
	CreatedAt time.Time
}

// Instrument é o meio de pagamento salvo de um usuário (cliente externo + método padrão)
type Instrument struct {
	UserID      string
	CustomerRef string
	MethodRef   string
	Brand       string
	Last4       string
}

// Chargeable indica se há um método cobrável associado
func (i *Instrument) Chargeable() bool {
	return i != nil && i.CustomerRef != "" && i.MethodRef != ""
}

// Tipos de notificação consumidos pela UI
const (
	NotificationPaymentSucceeded = "payment_succeeded"
	NotificationPaymentFailed    = "payment_failed"
	NotificationAuctionWon       = "auction_won"
)

// Notification é gravada uma única vez e lida pela UI
type Notification struct {
	ID        string
	UserID    string
	Type      string
	Title     string
	Message   string
	LotRef    Ref
	CreatedAt time.Time
}

// Payment é o registro no ledger de pagamentos
type Payment struct {
	ID        string
	LotRef    Ref
	UserID    string
	Amount    int64
	Currency  string
	Status    string
	ChargeRef string
	Purpose   string // "bid" | "settlement"
	CreatedAt time.Time
}
