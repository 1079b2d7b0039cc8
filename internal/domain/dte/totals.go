package dte

import (
	"fmt"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
)

// CalculateTotals recalcula los montos neto y exento del documento.
//
// Las líneas se acumulan en neto o exento según su indicador de exención. Luego
// los descuentos/recargos globales se aplican en el orden declarado: cada uno
// ajusta siempre el neto y, si está marcado como exento, también el exento.
// El orden importa y no se reordena.
// Con taxInclusive el neto resultante incluye IVA y se desglosa antes de guardarse.
func CalculateTotals(doc *entity.Document, taxInclusive bool) error {
	if doc.Sealed() {
		return fmt.Errorf("%s: %w", doc.ReferenceID(), domain.ErrDocumentSealed)
	}
	var net, exempt int64
	for _, l := range doc.Details {
		if l.IsExempt() {
			exempt += l.ItemAmount()
		} else {
			net += l.ItemAmount()
		}
	}
	for _, g := range doc.GlobalDiscountSurcharges {
		if err := g.Validate(); err != nil {
			return err
		}
		if g.Exempt {
			exempt = g.Apply(exempt)
		}
		net = g.Apply(net)
	}
	if net < 0 || exempt < 0 {
		return fmt.Errorf("%w: neto %d, exento %d", domain.ErrInvalidAmount, net, exempt)
	}
	doc.Header.Totals.ExemptAmount = exempt
	doc.Header.Totals.SetNetAmount(net, taxInclusive)
	return nil
}
