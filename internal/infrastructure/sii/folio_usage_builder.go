package sii

import (
	"fmt"
	"strconv"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/charset"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

const consumoFoliosSchema = "ConsumoFolio_v10.xsd"

// FolioUsageBuilder arma y firma el reporte ConsumoFolios (RCOF) de boletas.
type FolioUsageBuilder struct {
	envelope sii.EnvelopeSigner
	now      func() time.Time
}

func NewFolioUsageBuilder(envelope sii.EnvelopeSigner) *FolioUsageBuilder {
	return &FolioUsageBuilder{envelope: envelope, now: time.Now}
}

// Build genera, firma y finaliza el reporte.
func (b *FolioUsageBuilder) Build(r *entity.FolioUsageReport) error {
	if r.Finalized() {
		return fmt.Errorf("%w: reporte %s", domain.ErrDocumentSealed, r.ReferenceURI())
	}

	out := etree.NewDocument()
	root := envelopeRoot(out, "ConsumoFolios", consumoFoliosSchema)
	dcf := root.CreateElement("DocumentoConsumoFolios")
	dcf.CreateAttr("ID", r.ReferenceURI())

	c := r.Cover()
	ts := c.Timestamp
	if ts.IsZero() {
		ts = b.now()
	}
	car := dcf.CreateElement("Caratula")
	car.CreateAttr("version", "1.0")
	addText(car, "RutEmisor", c.IssuerRUT)
	addText(car, "RutEnvia", c.SenderRUT)
	addText(car, "FchResol", c.ResolutionDate)
	addText(car, "NroResol", strconv.Itoa(c.ResolutionNum))
	addText(car, "FchInicio", r.DateInitial().Format(sii.DateFormat))
	addText(car, "FchFinal", r.DateFinal().Format(sii.DateFormat))
	if r.Correlative() > 0 {
		addText(car, "Correlativo", strconv.Itoa(r.Correlative()))
	}
	addText(car, "SecEnvio", strconv.Itoa(r.Sequence()))
	addText(car, "TmstFirmaEnv", ts.Format(sii.TimestampFormat))

	writeSummary(dcf.CreateElement("Resumen"), r.Summary())

	unsigned, err := charset.WriteDocument(out)
	if err != nil {
		return err
	}
	signed, err := b.envelope.Sign(unsigned, r.ReferenceURI())
	if err != nil {
		return fmt.Errorf("firmar %s: %w", r.ReferenceURI(), err)
	}
	r.Finalize(signed)
	return nil
}

func writeSummary(el *etree.Element, s entity.FolioUsageSummary) {
	addText(el, "TipoDocumento", strconv.Itoa(int(s.DocType)))
	addAmount(el, "MntNeto", s.NetAmount)
	addAmount(el, "MntIva", s.TaxAmount)
	if s.NetAmount != 0 {
		addText(el, "TasaIVA", s.TaxRate.Round(2).String())
	}
	addAmount(el, "MntExento", s.ExemptAmount)
	addText(el, "MntTotal", strconv.FormatInt(s.TotalAmount, 10))
	addText(el, "FoliosEmitidos", strconv.Itoa(s.Issued))
	addText(el, "FoliosAnulados", strconv.Itoa(s.Nulled))
	addText(el, "FoliosUtilizados", strconv.Itoa(s.Used()))
	writeRanges(el, "RangoUtilizados", s.UsedRanges)
	writeRanges(el, "RangoAnulados", s.NulledRanges)
}

func writeRanges(parent *etree.Element, tag string, ranges []entity.FolioRange) {
	for _, rg := range ranges {
		el := parent.CreateElement(tag)
		addText(el, "Inicial", strconv.FormatInt(rg.Initial, 10))
		addText(el, "Final", strconv.FormatInt(rg.Final, 10))
	}
}
