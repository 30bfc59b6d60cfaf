package lot

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("lot not found")
	ErrInvalidAmount     = errors.New("bid amount must be positive")
	ErrNotActive         = errors.New("lot not active")
	ErrBidTooLow         = errors.New("bid too low")
	ErrNoPaymentMethod   = errors.New("no payment method")
	ErrChargeFailed      = errors.New("charge failed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// BidTooLowError carrega o lance mínimo calculado no momento da rejeição
type BidTooLowError struct {
	Amount   int64
	Minimum  int64
	Currency string
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid too low: %s offered, minimum is %s",
		FormatMinor(e.Amount, e.Currency), FormatMinor(e.Minimum, e.Currency))
}

func (e *BidTooLowError) Unwrap() error { return ErrBidTooLow }

// Motivos de falha de cobrança expostos ao usuário
const (
	ReasonDeclined               = "card_declined"
	ReasonInsufficientFunds      = "insufficient_funds"
	ReasonAuthenticationRequired = "authentication_required"
	ReasonExpiredCard            = "expired_card"
	ReasonProcessingError        = "processing_error"
)

// ChargeError é uma falha de cobrança já classificada
type ChargeError struct {
	Reason    string
	ChargeRef string
	Err       error
}

func (e *ChargeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("charge failed (%s): %v", e.Reason, e.Err)
	}
	return "charge failed (" + e.Reason + ")"
}

func (e *ChargeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrChargeFailed, e.Err}
	}
	return []error{ErrChargeFailed}
}

// UserMessage traduz o motivo para o texto mostrado ao licitante
func (e *ChargeError) UserMessage() string {
	switch e.Reason {
	case ReasonDeclined:
		return "Your card was declined."
	case ReasonInsufficientFunds:
		return "Your card has insufficient funds."
	case ReasonAuthenticationRequired:
		return "Your card requires authentication. Please update your payment method."
	case ReasonExpiredCard:
		return "Your card has expired."
	default:
		return "We could not process your payment."
	}
}
