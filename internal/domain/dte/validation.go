package dte

import (
	"errors"
	"fmt"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// ValidateParties verifica los RUT de emisor y receptor.
func ValidateParties(issuer entity.Issuer, receptor entity.Receptor) error {
	var errs []error
	if err := sii.ValidateRUT(issuer.RUT); err != nil {
		errs = append(errs, fmt.Errorf("emisor: %w", err))
	}
	if issuer.LegalName == "" {
		errs = append(errs, errors.New("emisor: razón social vacía"))
	}
	if err := sii.ValidateRUT(receptor.RUT); err != nil {
		errs = append(errs, fmt.Errorf("receptor: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{domain.ErrValidation}, errs...)...)
	}
	return nil
}

// ValidateDetails verifica numeración, montos y códigos de las líneas.
func ValidateDetails(details []entity.DetailLine) error {
	var errs []error
	seen := make(map[int]bool, len(details))
	for _, l := range details {
		if l.LineNo <= 0 || seen[l.LineNo] {
			errs = append(errs, fmt.Errorf("línea %d: número de línea inválido o repetido", l.LineNo))
		}
		seen[l.LineNo] = true
		if l.ItemName == "" {
			errs = append(errs, fmt.Errorf("línea %d: NmbItem vacío", l.LineNo))
		}
		if l.Quantity.IsNegative() || l.UnitPrice.IsNegative() {
			errs = append(errs, fmt.Errorf("línea %d: cantidad o precio negativo", l.LineNo))
		}
		if !entity.FitsDecimals(l.Quantity, entity.ItemDecimals) || !entity.FitsDecimals(l.UnitPrice, entity.ItemDecimals) {
			errs = append(errs, fmt.Errorf("línea %d: %w: QtyItem %s, PrcItem %s", l.LineNo, domain.ErrInvalidPrecision, l.Quantity, l.UnitPrice))
		}
		if !entity.FitsDecimals(l.DiscountPct, entity.PctDecimals) || !entity.FitsDecimals(l.SurchargePct, entity.PctDecimals) {
			errs = append(errs, fmt.Errorf("línea %d: %w: DescuentoPct %s, RecargoPct %s", l.LineNo, domain.ErrInvalidPrecision, l.DiscountPct, l.SurchargePct))
		}
		if l.Discount < 0 || l.Surcharge < 0 || l.ItemAmount() < 0 {
			errs = append(errs, fmt.Errorf("línea %d: %w", l.LineNo, domain.ErrInvalidAmount))
		}
		if l.Exemption != sii.ExemptionNone && !l.Exemption.Valid() {
			errs = append(errs, fmt.Errorf("línea %d: IndExe %d desconocido", l.LineNo, int(l.Exemption)))
		}
		if l.Unit != "" && !sii.ValidMeasurementUnits[l.Unit] {
			errs = append(errs, fmt.Errorf("línea %d: unidad %q desconocida", l.LineNo, l.Unit))
		}
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{domain.ErrValidation}, errs...)...)
	}
	return nil
}

// ValidateDocument valida partes, líneas, ajustes y referencias de un documento armado.
func ValidateDocument(doc *entity.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: documento nulo", domain.ErrValidation)
	}
	var errs []error
	if err := ValidateParties(doc.Header.Issuer, doc.Header.Receptor); err != nil {
		errs = append(errs, err)
	}
	if len(doc.Details) == 0 {
		errs = append(errs, domain.ErrMissingDetailLine)
	} else if err := ValidateDetails(doc.Details); err != nil {
		errs = append(errs, err)
	}
	for _, g := range doc.GlobalDiscountSurcharges {
		if err := g.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, r := range doc.References {
		if r.Code != sii.RefCodeNone && !r.Code.Valid() {
			errs = append(errs, fmt.Errorf("%w: CodRef %d", domain.ErrInvalidReference, int(r.Code)))
		}
		if r.Folio <= 0 || !r.DocType.Valid() {
			errs = append(errs, fmt.Errorf("%w: %d/%d", domain.ErrInvalidReference, int(r.DocType), r.Folio))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
