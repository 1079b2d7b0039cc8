package sii_test

import (
	"testing"
	"time"

	"github.com/jhoicas/dte-sii/internal/domain/dte"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	siiinfra "github.com/jhoicas/dte-sii/internal/infrastructure/sii"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/signer"
	"github.com/jhoicas/dte-sii/internal/testutil"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const issuerRUT = "76086428-5"

var (
	emitted   = time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	stampTime = time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
)

func loadCAF(t *testing.T, docType sii.DocumentType, from, to int64) *entity.FolioCertificate {
	t.Helper()
	cert, err := siiinfra.LoadCAF(testutil.CAF(t, int(docType), from, to, issuerRUT))
	require.NoError(t, err)
	return cert
}

func envelope(t *testing.T) *signer.EnvelopeService {
	t.Helper()
	svc, err := signer.NewEnvelopeService(testutil.Certificate(t))
	require.NoError(t, err)
	return svc
}

func documentSigner(t *testing.T) *siiinfra.DocumentSigner {
	t.Helper()
	return siiinfra.NewDocumentSigner(envelope(t)).WithClock(func() time.Time { return stampTime })
}

// authority autoridad con un CAF real (llaves RSA) para el tipo y rango dados.
func authority(t *testing.T, docType sii.DocumentType, from, to int64) *dte.FolioAuthority {
	t.Helper()
	a := dte.NewFolioAuthority(docType)
	require.NoError(t, a.InsertCertificate(loadCAF(t, docType, from, to)))
	return a
}

func issuer() entity.Issuer {
	return entity.Issuer{
		RUT:            issuerRUT,
		LegalName:      "Servicios Sanitarios Ltda",
		Activity:       "captación y distribución de agua",
		ActivityCodes:  []int{360000},
		Address:        entity.Address{Street: "Av. Principal 123", Comuna: "Santiago", City: "Santiago"},
		ResolutionNum:  80,
		ResolutionDate: "2014-08-22",
	}
}

func receptor() entity.Receptor {
	return entity.Receptor{
		RUT:          "12345678-5",
		InternalCode: "CLI-001",
		LegalName:    "Juan Pérez",
		Activity:     "particular",
		Address:      entity.Address{Street: "Calle Uno 1", Comuna: "Ñuñoa", City: "Santiago"},
	}
}

func line(no int, name string, qty, price int64) entity.DetailLine {
	return entity.NewDetailLine(no, name, decimal.NewFromInt(qty), decimal.NewFromInt(price))
}

// newBill factura 33 con una línea afecta, una exenta y un descuento global.
func newBill(t *testing.T, a *dte.FolioAuthority) *entity.Document {
	t.Helper()
	due := emitted.AddDate(0, 0, 20)
	exempt := line(2, "Cargo fijo", 1, 1500)
	exempt.Exemption = sii.ExemptionExempt
	doc, err := dte.NewBill(a, dte.DocumentParams{
		Issuer:      issuer(),
		Receptor:    receptor(),
		Details:     []entity.DetailLine{line(1, "Consumo agua potable m3", 12, 850), exempt},
		DateEmitted: emitted,
		DueDate:     &due,
	})
	require.NoError(t, err)
	require.NoError(t, doc.AddGlobalDiscountSurcharge(entity.GlobalDiscountSurcharge{
		LineNo: 1, Movement: sii.MovementDiscount, Description: "Descuento convenio",
		ValueType: sii.ValuePercentage, Value: decimal.NewFromInt(10),
	}))
	require.NoError(t, dte.CalculateTotals(doc, false))
	return doc
}

func newVoucher(t *testing.T, a *dte.FolioAuthority, amount int64) *entity.Document {
	t.Helper()
	doc, err := dte.NewVoucher(a, dte.DocumentParams{
		Issuer:      issuer(),
		Receptor:    receptor(),
		Details:     []entity.DetailLine{line(1, "Consumo agua potable", 1, amount)},
		DateEmitted: emitted,
	})
	require.NoError(t, err)
	require.NoError(t, dte.CalculateTotals(doc, true))
	return doc
}

// signed emite y firma con el CAF que cubre el folio.
func signed(t *testing.T, a *dte.FolioAuthority, doc *entity.Document) *entity.Document {
	t.Helper()
	cert, err := a.CertificateFor(doc.Folio())
	require.NoError(t, err)
	require.NoError(t, documentSigner(t).Sign(doc, cert))
	return doc
}
