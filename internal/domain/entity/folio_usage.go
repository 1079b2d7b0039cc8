package entity

import (
	"fmt"
	"sort"
	"time"

	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
)

// FolioRange rango contiguo de folios [Initial, Final].
type FolioRange struct {
	Initial int64
	Final   int64
}

// MergeFolioRanges ordena los folios y los agrupa en rangos contiguos. Un rango
// nuevo comienza cuando el siguiente folio no es exactamente el final + 1; los repetidos se ignoran.
func MergeFolioRanges(folios []int64) []FolioRange {
	if len(folios) == 0 {
		return nil
	}
	sorted := append([]int64(nil), folios...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	ranges := []FolioRange{{Initial: sorted[0], Final: sorted[0]}}
	for _, f := range sorted[1:] {
		last := &ranges[len(ranges)-1]
		switch {
		case f <= last.Final:
		case f == last.Final+1:
			last.Final = f
		default:
			ranges = append(ranges, FolioRange{Initial: f, Final: f})
		}
	}
	return ranges
}

// FolioUsageSummary resumen por tipo de documento (Resumen).
type FolioUsageSummary struct {
	DocType      sii.DocumentType
	NetAmount    int64
	TaxAmount    int64
	TaxRate      decimal.Decimal
	ExemptAmount int64
	TotalAmount  int64
	Issued       int
	Nulled       int
	UsedRanges   []FolioRange
	NulledRanges []FolioRange
}

// Used FoliosUtilizados = emitidos + anulados.
func (s FolioUsageSummary) Used() int { return s.Issued + s.Nulled }

// FolioUsageReport reporte de consumo de folios (ConsumoFolios) de un período.
type FolioUsageReport struct {
	cover       Cover
	dateInitial time.Time
	dateFinal   time.Time
	correlative int // Correlativo
	sequence    int // SecEnvio
	docType     sii.DocumentType
	documents   []*Document
	nulled      []int64
	xmlData     []byte
	finalized   bool
}

// NewFolioUsageReport crea el reporte para un tipo de documento y período.
func NewFolioUsageReport(docType sii.DocumentType, cover Cover, from, to time.Time) *FolioUsageReport {
	return &FolioUsageReport{
		cover:       cover,
		dateInitial: from,
		dateFinal:   to,
		sequence:    1,
		docType:     docType,
		documents:   make([]*Document, 0),
		nulled:      make([]int64, 0),
	}
}

func (r *FolioUsageReport) Cover() Cover              { return r.cover }
func (r *FolioUsageReport) DateInitial() time.Time    { return r.dateInitial }
func (r *FolioUsageReport) DateFinal() time.Time      { return r.dateFinal }
func (r *FolioUsageReport) Correlative() int          { return r.correlative }
func (r *FolioUsageReport) Sequence() int             { return r.sequence }
func (r *FolioUsageReport) DocType() sii.DocumentType { return r.docType }
func (r *FolioUsageReport) NulledFolios() []int64     { return append([]int64(nil), r.nulled...) }

func (r *FolioUsageReport) mustBeOpen() {
	if r.finalized {
		panic("entity: FolioUsageReport finalizado no admite cambios")
	}
}

// SetCorrelative fija el Correlativo de la carátula.
func (r *FolioUsageReport) SetCorrelative(n int) {
	r.mustBeOpen()
	r.correlative = n
}

// SetSequence fija SecEnvio (reenvíos del mismo período).
func (r *FolioUsageReport) SetSequence(n int) {
	r.mustBeOpen()
	r.sequence = n
}

// AddNulled registra folios anulados del período.
func (r *FolioUsageReport) AddNulled(folios ...int64) {
	r.mustBeOpen()
	r.nulled = append(r.nulled, folios...)
}

// ReferenceURI valor del atributo ID de DocumentoConsumoFolios.
func (r *FolioUsageReport) ReferenceURI() string {
	return "FOLIOS-" + r.dateInitial.Format("02-01-2006")
}

// Add agrega un documento emitido en el período.
func (r *FolioUsageReport) Add(doc *Document) error {
	r.mustBeOpen()
	if doc.DocType() != r.docType {
		return fmt.Errorf("documento %s no corresponde al tipo %d", doc.ReferenceID(), int(r.docType))
	}
	r.documents = append(r.documents, doc)
	return nil
}

// Summary agrega montos y rangos de folios.
func (r *FolioUsageReport) Summary() FolioUsageSummary {
	s := FolioUsageSummary{DocType: r.docType, TaxRate: decimal.NewFromInt(sii.DefaultVATRate)}
	folios := make([]int64, 0, len(r.documents))
	for _, d := range r.documents {
		t := d.Header.Totals
		s.NetAmount += t.NetAmount()
		s.TaxAmount += t.TaxAmount()
		s.ExemptAmount += t.ExemptAmount
		s.TotalAmount += t.TotalAmount()
		s.TaxRate = t.TaxRate
		folios = append(folios, d.Folio())
	}
	s.UsedRanges = MergeFolioRanges(folios)
	s.NulledRanges = MergeFolioRanges(r.nulled)
	for _, rg := range s.UsedRanges {
		s.Issued += int(rg.Final - rg.Initial + 1)
	}
	for _, rg := range s.NulledRanges {
		s.Nulled += int(rg.Final - rg.Initial + 1)
	}
	return s
}

// Finalize fija el XML firmado del reporte.
func (r *FolioUsageReport) Finalize(xmlData []byte) {
	if r.finalized {
		panic("entity: FolioUsageReport ya finalizado")
	}
	r.xmlData = append([]byte(nil), xmlData...)
	r.finalized = true
}

func (r *FolioUsageReport) Finalized() bool { return r.finalized }
func (r *FolioUsageReport) XMLData() []byte { return r.xmlData }
