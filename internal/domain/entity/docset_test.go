package entity_test

import (
	"strings"
	"testing"
	"time"

	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sealedDoc(t *testing.T, docType sii.DocumentType, folio int64) *entity.Document {
	t.Helper()
	doc := entity.NewDocument(entity.Header{IDDoc: entity.NewIDDoc(docType, folio, time.Now()), Totals: entity.NewTotals()})
	require.NoError(t, doc.Seal([]byte("<DTE/>"), []byte("<TED/>")))
	return doc
}

func TestDocSet_SubTotalsEnOrdenDeAparicion(t *testing.T) {
	set := entity.NewDocSet(sii.DocSetETD, entity.Cover{}, time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC))
	for _, d := range []*entity.Document{
		sealedDoc(t, sii.DocTypeCreditNote, 1),
		sealedDoc(t, sii.DocTypeBill, 1),
		sealedDoc(t, sii.DocTypeCreditNote, 2),
		sealedDoc(t, sii.DocTypeBill, 2),
		sealedDoc(t, sii.DocTypeBill, 3),
	} {
		require.NoError(t, set.Add(d))
	}
	assert.Equal(t, []entity.SubTotal{
		{DocType: sii.DocTypeCreditNote, Count: 2},
		{DocType: sii.DocTypeBill, Count: 3},
	}, set.SubTotals())

	assert.True(t, strings.HasPrefix(set.ReferenceURI(), "SetDTE-"+set.ID()))
	assert.True(t, strings.HasSuffix(set.ReferenceURI(), "-04-05-2026"))
}

func TestDocSet_RechazaDocumentosInvalidos(t *testing.T) {
	set := entity.NewDocSet(sii.DocSetETD, entity.Cover{}, time.Now())
	assert.Error(t, set.Add(sealedDoc(t, sii.DocTypeVoucher, 1)), "boleta en EnvioDTE")

	unsigned := entity.NewDocument(entity.Header{IDDoc: entity.NewIDDoc(sii.DocTypeBill, 9, time.Now())})
	assert.Error(t, set.Add(unsigned))
}

func TestDocSet_MutacionTrasFinalizarEntraEnPanic(t *testing.T) {
	set := entity.NewDocSet(sii.DocSetVoucher, entity.Cover{}, time.Now())
	require.NoError(t, set.Add(sealedDoc(t, sii.DocTypeVoucher, 1)))
	set.Finalize([]byte("<EnvioBOLETA/>"))

	assert.True(t, set.Finalized())
	assert.Panics(t, func() { _ = set.Add(sealedDoc(t, sii.DocTypeVoucher, 2)) })
	assert.Panics(t, func() { set.Finalize([]byte("x")) })
	assert.Equal(t, sii.DocSetVoucher, set.Type())
	assert.Equal(t, entity.Cover{}, set.Cover())
}

func TestDocument_SealUnaSolaVez(t *testing.T) {
	doc := sealedDoc(t, sii.DocTypeBill, 5)
	assert.Error(t, doc.Seal([]byte("<DTE/>"), nil))
	assert.Error(t, doc.AddDetail(entity.DetailLine{LineNo: 1, ItemName: "x"}))
	assert.Equal(t, "<DTE/>", string(doc.XMLData()))
}

func TestNewDocument_ColeccionesIndependientes(t *testing.T) {
	a := entity.NewDocument(entity.Header{})
	b := entity.NewDocument(entity.Header{})
	require.NoError(t, a.AddDetail(entity.DetailLine{LineNo: 1, ItemName: "x"}))
	assert.Len(t, a.Details, 1)
	assert.Empty(t, b.Details)
}
