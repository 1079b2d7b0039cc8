package entity

import "time"

// Estados de un cobro.
const (
	ChargeStatusPending      = "PENDING"
	ChargeStatusOverdue      = "OVERDUE"
	ChargeStatusCompleted    = "COMPLETED"
	ChargeStatusNulled       = "NULLED"
	ChargeStatusRenegotiated = "RENEGOTIATED"
)

// Charge cobro suministrado por el módulo de cuentas: origen de una boleta o factura.
type Charge struct {
	ID          string
	Amount      int64  // monto con IVA incluido
	Service     string // nombre del servicio cobrado (NmbItem)
	Description string
	Exempt      bool
	ExpiresAt   time.Time
	Status      string
}

// Billable indica si el cobro puede documentarse.
func (c Charge) Billable() bool {
	return c.Amount > 0 && c.Status != ChargeStatusNulled && c.Status != ChargeStatusRenegotiated
}
