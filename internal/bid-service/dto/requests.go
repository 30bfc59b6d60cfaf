package dto

type PlaceBidRequest struct {
	BidderID    string `json:"bidderId"`
	AmountCents int64  `json:"amount_cents"`
}
