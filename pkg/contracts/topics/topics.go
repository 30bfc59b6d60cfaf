package topics

const (
	// Eventos de leilão (lances, fechamento, liquidação, notificações)
	AuctionEvents = "auction_events"

	// DLQs
	AuctionEventsDLQ = "auction_events_dlq"
)
