package billing_test

import (
	"context"
	"testing"

	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/infrastructure/metrics"
	siiinfra "github.com/jhoicas/dte-sii/internal/infrastructure/sii"
	"github.com/jhoicas/dte-sii/internal/testutil"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueFromCharge_Boleta(t *testing.T) {
	f := newFixture(t, documentSigner(t), sii.DocTypeVoucher)

	doc, err := f.issue.IssueFromCharge(context.Background(), request("CHG-1", 1190, sii.DocTypeVoucher))
	require.NoError(t, err)
	assert.Equal(t, sii.DocTypeVoucher, doc.DocType())
	assert.Equal(t, int64(1), doc.Folio())
	assert.Equal(t, int64(1190), doc.TotalAmount())
	assert.True(t, doc.Sealed())

	recs := f.store.docs()
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "CHG-1", rec.ChargeID)
	assert.Equal(t, entity.DocumentStatusSigned, rec.Status)
	assert.Equal(t, doc.XMLData(), rec.XMLData, "se guardan los bytes firmados")
	assert.Equal(t, int64(1), f.store.state(sii.DocTypeVoucher).LastUsed)
	assert.True(t, rec.TaxRate.Equal(decimal.NewFromInt(sii.DefaultVATRate)), "tasa general")

	parsed, err := siiinfra.ParseDTE(rec.XMLData)
	require.NoError(t, err)
	assert.Equal(t, int64(1190), parsed.TotalAmount())
	require.NotNil(t, parsed.Header.IDDoc.DueDate)
	assert.Equal(t, "2026-04-04", parsed.Header.IDDoc.DueDate.Format("2006-01-02"))
	require.Len(t, parsed.Details, 1)
	assert.Equal(t, "Consumo agua potable", parsed.Details[0].ItemName)

	ok, err := siiinfra.VerifyStampBytes(rec.XMLStamp)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.FoliosIssued.WithLabelValues("39")))
}

func TestIssueFromCharge_CobroExento(t *testing.T) {
	f := newFixture(t, documentSigner(t), sii.DocTypeExemptBill)

	r := request("CHG-2", 5000, sii.DocTypeExemptBill)
	r.Charge.Exempt = true
	doc, err := f.issue.IssueFromCharge(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), doc.Header.Totals.ExemptAmount)
	assert.Equal(t, int64(0), doc.Header.Totals.NetAmount())
	assert.Equal(t, int64(5000), doc.TotalAmount())
}

func TestIssueBatch_FoliosConsecutivos(t *testing.T) {
	f := newFixture(t, documentSigner(t), sii.DocTypeBill, sii.DocTypeVoucher)

	reqs := []billing.IssueRequest{
		request("A", 11900, sii.DocTypeBill),
		request("B", 1190, sii.DocTypeVoucher),
		request("C", 23800, sii.DocTypeBill),
		request("D", 2380, sii.DocTypeVoucher),
		request("E", 35700, sii.DocTypeBill),
	}
	docs, err := f.issue.IssueBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, docs, 5)

	got := make([]string, len(docs))
	for i, d := range docs {
		got[i] = d.ReferenceID()
		assert.True(t, d.Sealed(), d.ReferenceID())
	}
	assert.Equal(t, []string{"T33F1", "T39F1", "T33F2", "T39F2", "T33F3"}, got)
	assert.Len(t, f.store.docs(), 5)
	assert.Equal(t, int64(3), f.store.state(sii.DocTypeBill).LastUsed)
	assert.Equal(t, int64(2), f.store.state(sii.DocTypeVoucher).LastUsed)
	assert.Equal(t, 3.0, promtest.ToFloat64(f.metrics.FoliosIssued.WithLabelValues("33")))
	assert.Equal(t, 5.0, promtest.ToFloat64(f.metrics.Signatures.WithLabelValues("document", "ok")))
}

func TestIssueBatch_FirmaFallidaNoEmiteNada(t *testing.T) {
	f := newFixture(t, failingSigner{inner: documentSigner(t), folio: 2}, sii.DocTypeBill)
	ctx := context.Background()

	_, err := f.issue.IssueBatch(ctx, []billing.IssueRequest{
		request("A", 11900, sii.DocTypeBill),
		request("B", 11900, sii.DocTypeBill),
		request("C", 11900, sii.DocTypeBill),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSignature)
	assert.ErrorIs(t, err, domain.ErrCrypto)
	assert.Empty(t, f.store.docs())
	assert.Equal(t, int64(0), f.store.state(sii.DocTypeBill).LastUsed, "el estado de folios no avanza")
	assert.Equal(t, 3.0, promtest.ToFloat64(f.metrics.FoliosReturned.WithLabelValues("33")))

	// El folio 1 vuelve a entregarse.
	doc, err := f.issue.IssueFromCharge(ctx, request("A", 11900, sii.DocTypeBill))
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Folio())
}

func TestIssueBatch_Rechazos(t *testing.T) {
	ctx := context.Background()

	t.Run("cobro no documentable", func(t *testing.T) {
		f := newFixture(t, documentSigner(t), sii.DocTypeVoucher)
		r := request("X", 1190, sii.DocTypeVoucher)
		r.Charge.Status = entity.ChargeStatusNulled
		_, err := f.issue.IssueFromCharge(ctx, r)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = f.issue.IssueFromCharge(ctx, request("Y", 0, sii.DocTypeVoucher))
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Empty(t, f.store.docs())
	})

	t.Run("tipo no emitible desde cobro", func(t *testing.T) {
		f := newFixture(t, documentSigner(t), sii.DocTypeCreditNote)
		_, err := f.issue.IssueFromCharge(ctx, request("X", 1190, sii.DocTypeCreditNote))
		assert.ErrorIs(t, err, domain.ErrValidation)
		assert.Equal(t, int64(0), f.store.state(sii.DocTypeCreditNote).LastUsed)
	})

	t.Run("sin CAF", func(t *testing.T) {
		f := newFixture(t, documentSigner(t))
		_, err := f.issue.IssueFromCharge(ctx, request("X", 1190, sii.DocTypeVoucher))
		assert.ErrorIs(t, err, domain.ErrCertificateNotFound)
		assert.ErrorIs(t, err, domain.ErrFolio)
	})

	t.Run("folios agotados", func(t *testing.T) {
		f := newFixture(t, documentSigner(t), sii.DocTypeVoucher)
		reqs := make([]billing.IssueRequest, 11)
		for i := range reqs {
			reqs[i] = request("X", 1190, sii.DocTypeVoucher)
		}
		_, err := f.issue.IssueBatch(ctx, reqs)
		assert.ErrorIs(t, err, domain.ErrFolioExhaustion)
		assert.Empty(t, f.store.docs())
	})
}

func TestIssueService_CertificadoDelEmisor(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		cert *entity.IssuerCertificate
	}{
		{"sin certificado", nil},
		{"inactivo", func() *entity.IssuerCertificate { c := activeCert(); c.Status = entity.IssuerCertInactive; return c }()},
		{"deshabilitado", func() *entity.IssuerCertificate { c := activeCert(); c.Status = entity.IssuerCertDisabled; return c }()},
		{"vencido", func() *entity.IssuerCertificate { c := activeCert(); c.ValidTo = now.AddDate(0, 0, -1); return c }()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := billing.NewIssueService(
				&memTx{store: newMemStore()}, documentSigner(t), siiinfra.LoadCAF, siiinfra.ParseDTE,
				issuer(), tc.cert, 2, testLogger(), metrics.NewWithRegistry(prometheus.NewRegistry()),
			).WithClock(clock)
			_, err := svc.IssueFromCharge(ctx, request("X", 1190, sii.DocTypeVoucher))
			assert.ErrorIs(t, err, domain.ErrCertificateExpired)
			assert.ErrorIs(t, err, domain.ErrCrypto)
		})
	}
}

func TestRegisterCAF(t *testing.T) {
	f := newFixture(t, documentSigner(t))
	ctx := context.Background()

	raw := testutil.CAF(t, int(sii.DocTypeBill), 101, 200, issuerRUT)
	cert, err := f.issue.RegisterCAF(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, int64(101), cert.RangeFrom())
	assert.Equal(t, int64(100), f.store.state(sii.DocTypeBill).LastUsed)

	_, err = f.issue.RegisterCAF(ctx, raw)
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	_, err = f.issue.RegisterCAF(ctx, testutil.CAF(t, int(sii.DocTypeBill), 1, 10, "11111111-1"))
	assert.ErrorIs(t, err, domain.ErrInvalidCAF)

	_, err = f.issue.RegisterCAF(ctx, testutil.CAF(t, int(sii.DocTypeBill), 150, 300, issuerRUT))
	assert.ErrorIs(t, err, domain.ErrOverlappingCAF)
	_, err = f.issue.RegisterCAF(ctx, testutil.CAF(t, int(sii.DocTypeBill), 201, 300, issuerRUT))
	require.NoError(t, err, "rango siguiente")

	doc, err := f.issue.IssueFromCharge(ctx, request("A", 11900, sii.DocTypeBill))
	require.NoError(t, err)
	assert.Equal(t, int64(101), doc.Folio())
}

func TestNullifyDocument(t *testing.T) {
	f := newFixture(t, documentSigner(t), sii.DocTypeBill, sii.DocTypeCreditNote)
	ctx := context.Background()

	bill, err := f.issue.IssueFromCharge(ctx, request("A", 11900, sii.DocTypeBill))
	require.NoError(t, err)

	nc, err := f.issue.NullifyDocument(ctx, sii.DocTypeBill, bill.Folio(), "Cobro duplicado")
	require.NoError(t, err)
	assert.Equal(t, sii.DocTypeCreditNote, nc.DocType())
	assert.Equal(t, int64(1), nc.Folio())
	assert.Equal(t, bill.TotalAmount(), nc.TotalAmount())
	require.Len(t, nc.References, 1)
	ref := nc.References[0]
	assert.Equal(t, sii.DocTypeBill, ref.DocType)
	assert.Equal(t, bill.Folio(), ref.Folio)
	assert.Equal(t, sii.RefCodeNullify, ref.Code)
	assert.Len(t, f.store.docs(), 2)

	_, err = f.issue.NullifyDocument(ctx, sii.DocTypeBill, 9, "no existe")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, int64(1), f.store.state(sii.DocTypeCreditNote).LastUsed)
}

func TestIssueCorrection_CorrigeTexto(t *testing.T) {
	f := newFixture(t, documentSigner(t), sii.DocTypeBill, sii.DocTypeCreditNote)
	ctx := context.Background()

	bill, err := f.issue.IssueFromCharge(ctx, request("A", 11900, sii.DocTypeBill))
	require.NoError(t, err)

	nc, err := f.issue.IssueCorrection(ctx, sii.DocTypeBill, bill.Folio(),
		sii.DocTypeCreditNote, sii.RefCodeCorrectText, "Corrige dirección", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), nc.TotalAmount())
	require.Len(t, nc.Details, 1)
	assert.Equal(t, "CORRIGE TEXTO", nc.Details[0].ItemName)

	_, err = f.issue.IssueCorrection(ctx, sii.DocTypeBill, bill.Folio(),
		sii.DocTypeBill, sii.RefCodeNullify, "tipo inválido", nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
