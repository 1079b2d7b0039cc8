package dte_test

import (
	"testing"
	"time"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/dte"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBill_AsignaFolioYEncabezado(t *testing.T) {
	a := newAuthority(t, sii.DocTypeBill, 41, 50)
	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	doc, err := dte.NewBill(a, dte.DocumentParams{
		Issuer:      testIssuer(),
		Receptor:    testReceptor(),
		Details:     []entity.DetailLine{line(1, "Consumo", 1, 100)},
		DateEmitted: date,
	})
	require.NoError(t, err)
	assert.Equal(t, sii.DocTypeBill, doc.DocType())
	assert.Equal(t, int64(41), doc.Folio())
	assert.Equal(t, "T33F41", doc.ReferenceID())
	assert.Equal(t, sii.ServiceBills, doc.Header.IDDoc.ServiceIndex)
	assert.True(t, doc.Header.IDDoc.DateEmitted.Equal(date))
}

func TestNewBill_TipoDeAutoridadDistinto(t *testing.T) {
	a := newAuthority(t, sii.DocTypeVoucher, 1, 10)
	_, err := dte.NewBill(a, dte.DocumentParams{Issuer: testIssuer(), Receptor: testReceptor()})
	assert.ErrorIs(t, err, domain.ErrDocumentTypeMismatch)
	assert.Equal(t, int64(10), a.FoliosLeft(), "no debe consumir folio")
}

func TestNewBill_DecimalesDeLinea(t *testing.T) {
	a := newAuthority(t, sii.DocTypeBill, 1, 10)
	l := entity.NewDetailLine(1, "Consumo m3", decimal.RequireFromString("1.5"), decimal.RequireFromString("333.3333333"))
	_, err := dte.NewBill(a, dte.DocumentParams{Issuer: testIssuer(), Receptor: testReceptor(), Details: []entity.DetailLine{l}})
	assert.ErrorIs(t, err, domain.ErrInvalidPrecision)
	assert.Equal(t, int64(10), a.FoliosLeft())

	l.UnitPrice = decimal.RequireFromString("333.333333")
	_, err = dte.NewBill(a, dte.DocumentParams{Issuer: testIssuer(), Receptor: testReceptor(), Details: []entity.DetailLine{l}})
	assert.NoError(t, err, "seis decimales caben en PrcItem")
}

func TestNewBill_ValidacionNoConsumeFolio(t *testing.T) {
	a := newAuthority(t, sii.DocTypeBill, 1, 10)
	bad := testReceptor()
	bad.RUT = "12345678-9"
	_, err := dte.NewBill(a, dte.DocumentParams{Issuer: testIssuer(), Receptor: bad})
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Equal(t, int64(10), a.FoliosLeft())
}

func TestNewExemptVoucher_LineasExentas(t *testing.T) {
	a := newAuthority(t, sii.DocTypeExemptVoucher, 1, 10)
	doc, err := dte.NewExemptVoucher(a, dte.DocumentParams{
		Issuer:   testIssuer(),
		Receptor: testReceptor(),
		Details:  []entity.DetailLine{line(1, "Cuota social", 1, 2500)},
	})
	require.NoError(t, err)
	require.NoError(t, dte.CalculateTotals(doc, false))
	assert.Equal(t, int64(2500), doc.Header.Totals.ExemptAmount)
	assert.Equal(t, int64(0), doc.Header.Totals.NetAmount())
}

func TestNewCreditNote_Anula(t *testing.T) {
	bills := newAuthority(t, sii.DocTypeBill, 1, 10)
	original, err := dte.NewBill(bills, dte.DocumentParams{
		Issuer:   testIssuer(),
		Receptor: testReceptor(),
		Details:  []entity.DetailLine{line(1, "Consumo", 2, 500), line(2, "Cargo", 1, 300)},
	})
	require.NoError(t, err)

	notes := newAuthority(t, sii.DocTypeCreditNote, 1, 10)
	note, err := dte.NewCreditNote(notes, dte.CorrectionParams{
		Issuer:     testIssuer(),
		Referenced: original,
		Code:       sii.RefCodeNullify,
		Reason:     "Anula factura",
	})
	require.NoError(t, err)

	assert.Equal(t, original.Header.Receptor, note.Header.Receptor)
	require.Len(t, note.Details, 2)
	assert.Equal(t, original.Details, note.Details)
	require.Len(t, note.References, 1)
	ref := note.References[0]
	assert.Equal(t, sii.DocTypeBill, ref.DocType)
	assert.Equal(t, original.Folio(), ref.Folio)
	assert.Equal(t, sii.RefCodeNullify, ref.Code)

	// Las líneas son copias: modificar la nota no altera la factura.
	note.Details[0].ItemName = "otro"
	assert.Equal(t, "Consumo", original.Details[0].ItemName)
}

func TestNewDebitNote_CorrigeTexto(t *testing.T) {
	bills := newAuthority(t, sii.DocTypeBill, 1, 10)
	original, err := dte.NewBill(bills, dte.DocumentParams{
		Issuer: testIssuer(), Receptor: testReceptor(),
		Details: []entity.DetailLine{line(1, "Consumo", 1, 100)},
	})
	require.NoError(t, err)

	notes := newAuthority(t, sii.DocTypeDebitNote, 1, 10)
	note, err := dte.NewDebitNote(notes, dte.CorrectionParams{
		Issuer: testIssuer(), Referenced: original, Code: sii.RefCodeCorrectText, Reason: "Giro del receptor",
	})
	require.NoError(t, err)
	require.Len(t, note.Details, 1)
	assert.Equal(t, "CORRIGE TEXTO", note.Details[0].ItemName)
	assert.Equal(t, "Giro del receptor", note.Details[0].Description)
	assert.Equal(t, int64(0), note.Details[0].ItemAmount())
}

func TestNewCreditNote_Errores(t *testing.T) {
	notes := newAuthority(t, sii.DocTypeCreditNote, 1, 10)
	_, err := dte.NewCreditNote(notes, dte.CorrectionParams{Issuer: testIssuer(), Code: sii.RefCodeNullify})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)

	bills := newAuthority(t, sii.DocTypeBill, 1, 10)
	original, err := dte.NewBill(bills, dte.DocumentParams{Issuer: testIssuer(), Receptor: testReceptor()})
	require.NoError(t, err)
	_, err = dte.NewCreditNote(notes, dte.CorrectionParams{Issuer: testIssuer(), Referenced: original, Code: sii.RefCodeCorrectAmounts})
	assert.ErrorIs(t, err, domain.ErrMissingDetailLine)
	assert.Equal(t, int64(10), notes.FoliosLeft())
}

func TestValidateDocument(t *testing.T) {
	doc := newBillWith(t)
	err := dte.ValidateDocument(doc)
	assert.ErrorIs(t, err, domain.ErrMissingDetailLine)

	doc = newBillWith(t, line(1, "Item", 1, 100))
	require.NoError(t, doc.AddReference(entity.Reference{LineNo: 1, DocType: sii.DocTypeBill, Folio: 3, Code: 9}))
	assert.ErrorIs(t, dte.ValidateDocument(doc), domain.ErrInvalidReference)
}
