package entity

import (
	"fmt"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
)

// Decimales que admite el esquema del DTE.
const (
	PctDecimals  = 2 // DescuentoPct, RecargoPct, ValorDR
	ItemDecimals = 6 // QtyItem, PrcItem
)

// FitsDecimals indica si d se representa sin pérdida con places decimales.
func FitsDecimals(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Round(places))
}

// DetailLine línea de detalle (Detalle) del documento.
type DetailLine struct {
	LineNo       int
	ItemName     string // NmbItem
	Description  string // DscItem
	Quantity     decimal.Decimal
	Unit         string // UnmdItem
	UnitPrice    decimal.Decimal
	Exemption    sii.ExemptionIndex // cero = afecto
	DiscountPct  decimal.Decimal
	Discount     int64 // DescuentoMonto
	SurchargePct decimal.Decimal
	Surcharge    int64 // RecargoMonto
	FixedAmount  int64 // MontoItem explícito; cero = derivado
}

// NewDetailLine crea una línea con cantidad y precio.
func NewDetailLine(lineNo int, name string, quantity, unitPrice decimal.Decimal) DetailLine {
	return DetailLine{LineNo: lineNo, ItemName: name, Quantity: quantity, UnitPrice: unitPrice}
}

// IsExempt indica si la línea va al acumulado exento.
func (l DetailLine) IsExempt() bool { return l.Exemption != sii.ExemptionNone }

// ItemAmount MontoItem: valor explícito o round(precio*cantidad) - descuento + recargo.
func (l DetailLine) ItemAmount() int64 {
	if l.FixedAmount != 0 {
		return l.FixedAmount
	}
	return l.grossAmount() - l.Discount + l.Surcharge
}

func (l DetailLine) grossAmount() int64 {
	return RoundHalfUp(l.UnitPrice.Mul(l.Quantity))
}

func pctOf(amount int64, pct decimal.Decimal) int64 {
	return RoundHalfUp(decimal.NewFromInt(amount).Mul(pct).Div(hundred))
}

func checkPct(pct decimal.Decimal) error {
	if !pct.IsPositive() || pct.GreaterThan(hundred) {
		return fmt.Errorf("%w: %s", domain.ErrInvalidPercentage, pct)
	}
	if !FitsDecimals(pct, PctDecimals) {
		return fmt.Errorf("%w: porcentaje %s", domain.ErrInvalidPrecision, pct)
	}
	return nil
}

func checkAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: %d", domain.ErrInvalidAmount, amount)
	}
	return nil
}

// ApplyDiscountPct reemplaza el descuento por un porcentaje del monto actual de la línea.
func (l *DetailLine) ApplyDiscountPct(pct decimal.Decimal) error {
	if err := checkPct(pct); err != nil {
		return err
	}
	l.UndoDiscount()
	l.DiscountPct = pct
	l.Discount = pctOf(l.ItemAmount(), pct)
	return nil
}

// ApplyDiscountAmount reemplaza el descuento por un monto fijo.
func (l *DetailLine) ApplyDiscountAmount(amount int64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.UndoDiscount()
	l.Discount = amount
	return nil
}

// UndoDiscount elimina el descuento de la línea.
func (l *DetailLine) UndoDiscount() {
	l.Discount = 0
	l.DiscountPct = decimal.Zero
}

// ApplySurchargePct reemplaza el recargo por un porcentaje del monto actual de la línea.
func (l *DetailLine) ApplySurchargePct(pct decimal.Decimal) error {
	if err := checkPct(pct); err != nil {
		return err
	}
	l.UndoSurcharge()
	l.SurchargePct = pct
	l.Surcharge = pctOf(l.ItemAmount(), pct)
	return nil
}

// ApplySurchargeAmount reemplaza el recargo por un monto fijo.
func (l *DetailLine) ApplySurchargeAmount(amount int64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	l.UndoSurcharge()
	l.Surcharge = amount
	return nil
}

// UndoSurcharge elimina el recargo de la línea.
func (l *DetailLine) UndoSurcharge() {
	l.Surcharge = 0
	l.SurchargePct = decimal.Zero
}
