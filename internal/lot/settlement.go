package lot

import (
	"fmt"
	"time"
)

// SettlementState é gravado na coluna payment_state.
// Apenas Pending é selecionável pelo processador de liquidação; qualquer outro valor tira o lote da fila.
type SettlementState string

const (
	SettlementPending         SettlementState = "pending"
	SettlementProcessing      SettlementState = "processing"
	SettlementNoPaymentMethod SettlementState = "no_payment_method"
	SettlementChargeFailed    SettlementState = "charge_failed"
	SettlementSucceeded       SettlementState = "succeeded"
)

// Settlement descreve o estado de cobrança do vencedor de um lote
type Settlement struct {
	State       SettlementState
	ChargeRef   string // id da cobrança no provedor, quando houve tentativa
	Reason      string // motivo da falha (ChargeFailed)
	CompletedAt *time.Time
}

func PendingSettlement() Settlement { return Settlement{State: SettlementPending} }

func NoPaymentMethod() Settlement { return Settlement{State: SettlementNoPaymentMethod} }

func ChargeFailed(reason, chargeRef string) Settlement {
	return Settlement{State: SettlementChargeFailed, Reason: reason, ChargeRef: chargeRef}
}

func Succeeded(chargeRef string, at time.Time) Settlement {
	t := at.UTC()
	return Settlement{State: SettlementSucceeded, ChargeRef: chargeRef, CompletedAt: &t}
}

// Completed equivale ao antigo payment_completed
func (s Settlement) Completed() bool { return s.State == SettlementSucceeded }

// Terminal indica que o lote nunca mais será reprocessado automaticamente
func (s Settlement) Terminal() bool {
	return s.State != SettlementPending
}

func (s Settlement) Validate() error {
	switch s.State {
	case SettlementPending, SettlementProcessing, SettlementNoPaymentMethod:
		return nil
	case SettlementChargeFailed:
		if s.Reason == "" {
			return fmt.Errorf("settlement %s requires a reason", s.State)
		}
		return nil
	case SettlementSucceeded:
		if s.ChargeRef == "" || s.CompletedAt == nil {
			return fmt.Errorf("settlement %s requires charge ref and completion time", s.State)
		}
		return nil
	default:
		return fmt.Errorf("unknown settlement state %q", s.State)
	}
}
