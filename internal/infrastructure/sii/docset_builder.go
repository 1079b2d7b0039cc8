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

// DocSetBuilder arma y firma el sobre EnvioDTE/EnvioBOLETA con los DTE ya firmados.
type DocSetBuilder struct {
	envelope sii.EnvelopeSigner
	now      func() time.Time
}

func NewDocSetBuilder(envelope sii.EnvelopeSigner) *DocSetBuilder {
	return &DocSetBuilder{envelope: envelope, now: time.Now}
}

// Build genera el XML del sobre, lo firma referenciando SetDTE y finaliza el DocSet.
func (b *DocSetBuilder) Build(set *entity.DocSet) error {
	if set.Finalized() {
		return fmt.Errorf("%w: sobre %s", domain.ErrDocumentSealed, set.ReferenceURI())
	}
	docs := set.Documents()
	if len(docs) == 0 {
		return fmt.Errorf("%w: sobre sin documentos", domain.ErrValidation)
	}

	out := etree.NewDocument()
	root := envelopeRoot(out, set.Type().RootTag(), set.Type().SchemaFile())
	setDTE := root.CreateElement("SetDTE")
	setDTE.CreateAttr("ID", set.ReferenceURI())

	// ---- Caratula
	c := set.Cover()
	car := setDTE.CreateElement("Caratula")
	car.CreateAttr("version", "1.0")
	addText(car, "RutEmisor", c.IssuerRUT)
	addText(car, "RutEnvia", c.SenderRUT)
	addText(car, "RutReceptor", c.ReceptorRUT)
	addText(car, "FchResol", c.ResolutionDate)
	addText(car, "NroResol", strconv.Itoa(c.ResolutionNum))
	addText(car, "TmstFirmaEnv", b.timestamp(c.Timestamp))
	for _, st := range set.SubTotals() {
		sub := car.CreateElement("SubTotDTE")
		addText(sub, "TpoDTE", strconv.Itoa(int(st.DocType)))
		addText(sub, "NroDTE", strconv.Itoa(st.Count))
	}

	// ---- DTE firmados, sin modificar
	for _, d := range docs {
		parsed, err := charset.ReadDocument(d.XMLData())
		if err != nil {
			return fmt.Errorf("DTE %s: %w", d.ReferenceID(), err)
		}
		setDTE.AddChild(parsed.Root().Copy())
	}

	unsigned, err := charset.WriteDocument(out)
	if err != nil {
		return err
	}
	signed, err := b.envelope.Sign(unsigned, set.ReferenceURI())
	if err != nil {
		return fmt.Errorf("firmar sobre %s: %w", set.ReferenceURI(), err)
	}
	set.Finalize(signed)
	return nil
}

func (b *DocSetBuilder) timestamp(t time.Time) string {
	if t.IsZero() {
		t = b.now()
	}
	return t.Format(sii.TimestampFormat)
}

// envelopeRoot raíz con namespace SiiDte, xsi:schemaLocation y versión.
func envelopeRoot(doc *etree.Document, tag, schemaFile string) *etree.Element {
	root := doc.CreateElement(tag)
	root.CreateAttr("xmlns", sii.NamespaceSiiDte)
	root.CreateAttr("xmlns:xsi", sii.NamespaceXSI)
	root.CreateAttr("xsi:schemaLocation", sii.NamespaceSiiDte+" "+schemaFile)
	root.CreateAttr("version", "1.0")
	return root
}
