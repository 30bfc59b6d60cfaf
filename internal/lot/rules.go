package lot

import (
	"sort"
	"time"
)

// DefaultMinIncrement é o incremento mínimo entre lances (100 centavos = $1.00)
const DefaultMinIncrement int64 = 100

// MinimumNextBid = (lance atual ou preço inicial) + incremento
func MinimumNextBid(l *Lot, increment int64) int64 {
	base := l.StartingPrice
	if l.CurrentBid != nil {
		base = *l.CurrentBid
	}
	return base + increment
}

// CheckBid valida um lance contra o estado do lote sem tocar em nada
func CheckBid(l *Lot, amount, increment int64, now time.Time, currency string) error {
	if !l.IsOpen(now) {
		return ErrNotActive
	}
	if min := MinimumNextBid(l, increment); amount < min {
		return &BidTooLowError{Amount: amount, Minimum: min, Currency: currency}
	}
	return nil
}

// SortBids ordena por valor decrescente; empate vai para o lance mais antigo
func SortBids(bids []Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		if bids[i].Amount != bids[j].Amount {
			return bids[i].Amount > bids[j].Amount
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})
}

// HighestBid retorna o lance vencedor ou nil quando não há lances
func HighestBid(bids []Bid) *Bid {
	if len(bids) == 0 {
		return nil
	}
	sorted := make([]Bid, len(bids))
	copy(sorted, bids)
	SortBids(sorted)
	return &sorted[0]
}

var transitions = map[Status]Status{
	StatusDraft:  StatusActive,
	StatusActive: StatusEnded,
}

// CanTransition: draft→active (publicação) e active→ended (varredura). ended é terminal.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	return ok && next == to
}
