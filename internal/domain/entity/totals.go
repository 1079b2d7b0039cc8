package entity

import (
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RoundHalfUp redondea al entero más cercano; los .5 se alejan de cero.
func RoundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

// Totals montos totales del documento (Totales). Los montos están en pesos enteros.
// El monto neto es derivado: solo se asigna mediante SetNetAmount.
type Totals struct {
	netAmount          int64
	ExemptAmount       int64
	TaxRate            decimal.Decimal // porcentaje, ej. 19
	OutstandingBalance int64           // SaldoAnterior
	WithheldTax        bool            // IVA retenido total (ImptoReten 15)
}

// NewTotals crea totales en cero con la tasa general de IVA.
func NewTotals() Totals {
	return Totals{TaxRate: decimal.NewFromInt(sii.DefaultVATRate)}
}

// NetAmount monto neto afecto.
func (t Totals) NetAmount() int64 { return t.netAmount }

// SetNetAmount asigna el neto. Con taxInclusive el monto incluye IVA y se divide
// por (1 + tasa/100) con redondeo half-up.
func (t *Totals) SetNetAmount(amount int64, taxInclusive bool) {
	if !taxInclusive {
		t.netAmount = amount
		return
	}
	factor := decimal.NewFromInt(1).Add(t.TaxRate.Div(hundred))
	t.netAmount = RoundHalfUp(decimal.NewFromInt(amount).Div(factor))
}

// TaxAmount IVA = round_half_up(neto * tasa / 100).
func (t Totals) TaxAmount() int64 {
	return RoundHalfUp(decimal.NewFromInt(t.netAmount).Mul(t.TaxRate).Div(hundred))
}

// TotalAmount exento + neto + IVA; con IVA retenido el impuesto no se suma.
func (t Totals) TotalAmount() int64 {
	if t.WithheldTax {
		return t.ExemptAmount + t.netAmount
	}
	return t.ExemptAmount + t.netAmount + t.TaxAmount()
}

// AmountToBePaid total más saldo anterior (VlrPagar).
func (t Totals) AmountToBePaid() int64 {
	return t.TotalAmount() + t.OutstandingBalance
}
