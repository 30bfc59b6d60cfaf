package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/bidwin/auction-core/internal/lot"
)

// Stripe cobra o método padrão salvo do cliente via PaymentIntent confirmado off-session
type Stripe struct {
	api *client.API
}

func NewStripe(secretKey string) *Stripe {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Stripe{api: sc}
}

func (s *Stripe) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.Amount),
		Currency:      stripe.String(req.Currency),
		Customer:      stripe.String(req.CustomerRef),
		PaymentMethod: stripe.String(req.MethodRef),
		OffSession:    stripe.Bool(true),
		Confirm:       stripe.Bool(true),
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return classifyStripeError(err)
	}
	return resultFromIntent(pi), nil
}

func (s *Stripe) Refund(ctx context.Context, chargeRef string) error {
	params := &stripe.RefundParams{PaymentIntent: stripe.String(chargeRef)}
	params.Context = ctx
	params.SetIdempotencyKey("refund:" + chargeRef)
	if _, err := s.api.Refunds.New(params); err != nil {
		return fmt.Errorf("stripe refund %s: %w", chargeRef, err)
	}
	return nil
}

func resultFromIntent(pi *stripe.PaymentIntent) ChargeResult {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return ChargeResult{Status: StatusSucceeded, ChargeRef: pi.ID}
	case stripe.PaymentIntentStatusRequiresAction, stripe.PaymentIntentStatusRequiresConfirmation:
		return ChargeResult{Status: StatusRequiresAction, ChargeRef: pi.ID, FailureReason: lot.ReasonAuthenticationRequired}
	case stripe.PaymentIntentStatusProcessing:
		// ambíguo: pode concluir depois; tratado como falha registrada, nunca re-tentado automaticamente
		return ChargeResult{Status: StatusFailed, ChargeRef: pi.ID, FailureReason: lot.ReasonProcessingError}
	default:
		reason := lot.ReasonDeclined
		if pi.LastPaymentError != nil {
			reason = reasonFor(pi.LastPaymentError)
		}
		return ChargeResult{Status: StatusFailed, ChargeRef: pi.ID, FailureReason: reason}
	}
}

// classifyStripeError separa erros de cartão (resultado failed) de erros inesperados (error)
func classifyStripeError(err error) (ChargeResult, error) {
	var serr *stripe.Error
	if !errors.As(err, &serr) || serr.Type != stripe.ErrorTypeCard {
		return ChargeResult{}, fmt.Errorf("stripe charge: %w", err)
	}
	res := ChargeResult{Status: StatusFailed, FailureReason: reasonFor(serr)}
	if serr.PaymentIntent != nil {
		res.ChargeRef = serr.PaymentIntent.ID
	}
	if serr.Code == stripe.ErrorCodeAuthenticationRequired {
		res.Status = StatusRequiresAction
	}
	return res, nil
}

func reasonFor(serr *stripe.Error) string {
	if serr.DeclineCode == stripe.DeclineCodeInsufficientFunds {
		return lot.ReasonInsufficientFunds
	}
	switch serr.Code {
	case stripe.ErrorCodeAuthenticationRequired:
		return lot.ReasonAuthenticationRequired
	case stripe.ErrorCodeExpiredCard:
		return lot.ReasonExpiredCard
	case stripe.ErrorCodeProcessingError:
		return lot.ReasonProcessingError
	case stripe.ErrorCodeCardDeclined:
		return lot.ReasonDeclined
	default:
		return lot.ReasonDeclined
	}
}
