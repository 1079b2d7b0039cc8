package dte

import (
	"fmt"
	"time"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
)

// DocumentParams datos para emitir un documento nuevo.
type DocumentParams struct {
	Issuer       entity.Issuer
	Receptor     entity.Receptor
	Details      []entity.DetailLine
	DateEmitted  time.Time        // cero = ahora
	ServiceIndex sii.ServiceIndex // cero = 3
	PeriodFrom   *time.Time
	PeriodTo     *time.Time
	DueDate      *time.Time
	TaxRate      decimal.Decimal // cero = tasa general
}

// CorrectionParams datos para una nota de crédito o débito.
type CorrectionParams struct {
	Issuer      entity.Issuer
	Referenced  *entity.Document
	Code        sii.ReferenceCode
	Reason      string
	Details     []entity.DetailLine // solo para CORRIGE MONTO
	DateEmitted time.Time
}

// NewBill factura electrónica (33).
func NewBill(a *FolioAuthority, p DocumentParams) (*entity.Document, error) {
	return newDocument(a, sii.DocTypeBill, p)
}

// NewExemptBill factura exenta electrónica (34). Todas las líneas quedan exentas.
func NewExemptBill(a *FolioAuthority, p DocumentParams) (*entity.Document, error) {
	return newDocument(a, sii.DocTypeExemptBill, p)
}

// NewVoucher boleta electrónica (39).
func NewVoucher(a *FolioAuthority, p DocumentParams) (*entity.Document, error) {
	return newDocument(a, sii.DocTypeVoucher, p)
}

// NewExemptVoucher boleta exenta electrónica (41).
func NewExemptVoucher(a *FolioAuthority, p DocumentParams) (*entity.Document, error) {
	return newDocument(a, sii.DocTypeExemptVoucher, p)
}

// NewCreditNote nota de crédito electrónica (61) que corrige o anula el documento referenciado.
func NewCreditNote(a *FolioAuthority, p CorrectionParams) (*entity.Document, error) {
	return newCorrection(a, sii.DocTypeCreditNote, p)
}

// NewDebitNote nota de débito electrónica (56).
func NewDebitNote(a *FolioAuthority, p CorrectionParams) (*entity.Document, error) {
	return newCorrection(a, sii.DocTypeDebitNote, p)
}

func isExemptType(t sii.DocumentType) bool {
	return t == sii.DocTypeExemptBill || t == sii.DocTypeExemptVoucher
}

func newDocument(a *FolioAuthority, docType sii.DocumentType, p DocumentParams) (*entity.Document, error) {
	if err := checkAuthority(a, docType); err != nil {
		return nil, err
	}
	if err := ValidateParties(p.Issuer, p.Receptor); err != nil {
		return nil, err
	}
	details := copyDetails(p.Details)
	if isExemptType(docType) {
		for i := range details {
			if details[i].Exemption == sii.ExemptionNone {
				details[i].Exemption = sii.ExemptionExempt
			}
		}
	}
	if err := ValidateDetails(details); err != nil {
		return nil, err
	}

	folio, err := a.NextFolio()
	if err != nil {
		return nil, err
	}
	doc := entity.NewDocument(newHeader(docType, folio, p.Issuer, p.Receptor, p.DateEmitted, p.TaxRate))
	idDoc := &doc.Header.IDDoc
	if p.ServiceIndex != sii.ServiceNone {
		idDoc.ServiceIndex = p.ServiceIndex
	}
	idDoc.PeriodFrom = copyTime(p.PeriodFrom)
	idDoc.PeriodTo = copyTime(p.PeriodTo)
	idDoc.DueDate = copyTime(p.DueDate)
	doc.Details = details
	return doc, nil
}

func newCorrection(a *FolioAuthority, docType sii.DocumentType, p CorrectionParams) (*entity.Document, error) {
	if err := checkAuthority(a, docType); err != nil {
		return nil, err
	}
	ref := p.Referenced
	if ref == nil {
		return nil, fmt.Errorf("%w: falta el documento referenciado", domain.ErrInvalidReference)
	}
	if !p.Code.Valid() {
		return nil, fmt.Errorf("%w: CodRef %d", domain.ErrInvalidReference, int(p.Code))
	}
	receptor := ref.Header.Receptor
	if err := ValidateParties(p.Issuer, receptor); err != nil {
		return nil, err
	}

	var details []entity.DetailLine
	var adjustments []entity.GlobalDiscountSurcharge
	switch p.Code {
	case sii.RefCodeNullify:
		details = copyDetails(ref.Details)
		adjustments = append(adjustments, ref.GlobalDiscountSurcharges...)
	case sii.RefCodeCorrectText:
		details = []entity.DetailLine{{
			LineNo:      1,
			ItemName:    sii.RefCodeCorrectText.Label(),
			Description: p.Reason,
			Quantity:    decimal.Zero,
			UnitPrice:   decimal.Zero,
		}}
	case sii.RefCodeCorrectAmounts:
		if len(p.Details) == 0 {
			return nil, fmt.Errorf("%w: CORRIGE MONTO requiere líneas", domain.ErrMissingDetailLine)
		}
		details = copyDetails(p.Details)
	}
	if err := ValidateDetails(details); err != nil {
		return nil, err
	}

	folio, err := a.NextFolio()
	if err != nil {
		return nil, err
	}
	doc := entity.NewDocument(newHeader(docType, folio, p.Issuer, receptor, p.DateEmitted, ref.Header.Totals.TaxRate))
	doc.Details = details
	doc.GlobalDiscountSurcharges = append(doc.GlobalDiscountSurcharges, adjustments...)
	doc.References = append(doc.References, entity.Reference{
		LineNo:  1,
		DocType: ref.DocType(),
		Folio:   ref.Folio(),
		Date:    ref.Header.IDDoc.DateEmitted,
		Code:    p.Code,
		Reason:  p.Reason,
	})
	return doc, nil
}

func checkAuthority(a *FolioAuthority, docType sii.DocumentType) error {
	if a == nil {
		return fmt.Errorf("%w: sin autoridad de folios", domain.ErrFolio)
	}
	if a.DocType() != docType {
		return fmt.Errorf("%w: autoridad tipo %d, documento tipo %d", domain.ErrDocumentTypeMismatch, int(a.DocType()), int(docType))
	}
	return nil
}

func newHeader(docType sii.DocumentType, folio int64, issuer entity.Issuer, receptor entity.Receptor, date time.Time, rate decimal.Decimal) entity.Header {
	if date.IsZero() {
		date = time.Now()
	}
	totals := entity.NewTotals()
	if !rate.IsZero() {
		totals.TaxRate = rate
	}
	return entity.Header{
		IDDoc:    entity.NewIDDoc(docType, folio, date),
		Issuer:   issuer.Copy(),
		Receptor: receptor,
		Totals:   totals,
	}
}

func copyDetails(in []entity.DetailLine) []entity.DetailLine {
	out := make([]entity.DetailLine, len(in))
	copy(out, in)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
