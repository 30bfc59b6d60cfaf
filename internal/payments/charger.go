package payments

import (
	"context"
	"time"

	"github.com/bidwin/auction-core/internal/lot"
)

// ChargeStatus é o resultado normalizado de uma cobrança off-session
type ChargeStatus string

const (
	StatusSucceeded      ChargeStatus = "succeeded"
	StatusRequiresAction ChargeStatus = "requires_action"
	StatusFailed         ChargeStatus = "failed"
)

// ChargeRequest descreve uma cobrança sem o titular presente
type ChargeRequest struct {
	CustomerRef    string
	MethodRef      string
	Amount         int64 // centavos
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// ChargeResult: recusas de cartão voltam aqui com Status failed, não como error.
// error fica reservado para falhas inesperadas ou ambíguas (timeout, rede, 5xx).
type ChargeResult struct {
	Status        ChargeStatus
	ChargeRef     string
	FailureReason string
}

// Charger é o serviço externo de cobrança. Não é considerado idempotente:
// a proteção contra cobrança dupla é o gate de seleção no banco.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, chargeRef string) error
}

// AsError converte um resultado não bem-sucedido em *lot.ChargeError
func (r ChargeResult) AsError() error {
	switch r.Status {
	case StatusSucceeded:
		return nil
	case StatusRequiresAction:
		return &lot.ChargeError{Reason: lot.ReasonAuthenticationRequired, ChargeRef: r.ChargeRef}
	default:
		reason := r.FailureReason
		if reason == "" {
			reason = lot.ReasonProcessingError
		}
		return &lot.ChargeError{Reason: reason, ChargeRef: r.ChargeRef}
	}
}

// FromKey escolhe o provedor: Stripe quando há chave secreta, simulador caso contrário
func FromKey(secretKey string, simulatorSuccessPct int) Charger {
	if secretKey != "" {
		return NewStripe(secretKey)
	}
	return NewSimulator(simulatorSuccessPct, time.Now().UnixNano())
}
