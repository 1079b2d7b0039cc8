package entity

import (
	"fmt"
	"time"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
)

// GlobalDiscountSurcharge descuento o recargo global (DscRcgGlobal).
type GlobalDiscountSurcharge struct {
	LineNo      int
	Movement    sii.MovementType
	Description string
	ValueType   sii.ValueType
	Value       decimal.Decimal
	Exempt      bool // IndExeDR: también afecta el monto exento
}

// Validate verifica tipo de movimiento, tipo de valor y rango del valor.
func (g GlobalDiscountSurcharge) Validate() error {
	if g.Movement != sii.MovementDiscount && g.Movement != sii.MovementSurcharge {
		return fmt.Errorf("%w: TpoMov %q (línea %d)", domain.ErrInvalidMovement, g.Movement, g.LineNo)
	}
	switch g.ValueType {
	case sii.ValuePercentage:
		if err := checkPct(g.Value); err != nil {
			return fmt.Errorf("DscRcg línea %d: %w", g.LineNo, err)
		}
	case sii.ValueAmount:
		if !g.Value.IsPositive() || !g.Value.IsInteger() {
			return fmt.Errorf("%w: ValorDR %s (línea %d)", domain.ErrInvalidAmount, g.Value, g.LineNo)
		}
	default:
		return fmt.Errorf("%w: TpoValor %q (línea %d)", domain.ErrInvalidMovement, g.ValueType, g.LineNo)
	}
	return nil
}

// Apply devuelve el monto ajustado. Los porcentajes se redondean half-up antes de aplicarse.
func (g GlobalDiscountSurcharge) Apply(amount int64) int64 {
	var delta int64
	if g.ValueType == sii.ValuePercentage {
		delta = pctOf(amount, g.Value)
	} else {
		delta = g.Value.IntPart()
	}
	if g.Movement == sii.MovementDiscount {
		return amount - delta
	}
	return amount + delta
}

// Reference referencia a otro documento (Referencia).
type Reference struct {
	LineNo  int
	DocType sii.DocumentType
	Folio   int64
	Date    time.Time
	Code    sii.ReferenceCode
	Reason  string
}

// Commission comisiones y otros cargos (ComisionesCargos).
type Commission struct {
	LineNo      int
	Kind        string // "C" comisión, "O" otros cargos
	Description string
	NetValue    int64
	ExemptValue int64
	TaxValue    int64
}
