package sii

import (
	"fmt"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/charset"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// DocumentSigner genera el DTE firmado: Documento + TED + TmstFirma, envuelto en <DTE>
// y firmado con el certificado del emisor. Al terminar sella el documento.
type DocumentSigner struct {
	builder  *XMLBuilderService
	stamps   *StampBuilder
	envelope sii.EnvelopeSigner
	now      func() time.Time
}

// NewDocumentSigner crea el servicio con el firmador de sobres del emisor.
func NewDocumentSigner(envelope sii.EnvelopeSigner) *DocumentSigner {
	return &DocumentSigner{
		builder:  NewXMLBuilderService(),
		stamps:   NewStampBuilder(),
		envelope: envelope,
		now:      time.Now,
	}
}

// WithClock fija el reloj de TSTED/TmstFirma (tests).
func (s *DocumentSigner) WithClock(now func() time.Time) *DocumentSigner {
	s.now = now
	return s
}

// Sign construye, timbra y firma el documento. Si algo falla el documento queda sin sellar.
func (s *DocumentSigner) Sign(doc *entity.Document, cert *entity.FolioCertificate) error {
	if doc.Sealed() {
		return domain.ErrDocumentSealed
	}
	documento, err := s.builder.BuildDocumento(doc)
	if err != nil {
		return err
	}
	ts := s.now()
	ted, err := s.stamps.Build(doc, cert, ts)
	if err != nil {
		return err
	}
	documento.AddChild(ted)
	addText(documento, "TmstFirma", ts.Format(sii.TimestampFormat))

	out := etree.NewDocument()
	dte := out.CreateElement("DTE")
	dte.CreateAttr("xmlns", sii.NamespaceSiiDte)
	dte.CreateAttr("version", "1.0")
	dte.AddChild(documento)

	unsigned, err := charset.WriteDocument(out)
	if err != nil {
		return err
	}
	signed, err := s.envelope.Sign(unsigned, doc.ReferenceID())
	if err != nil {
		return fmt.Errorf("firmar %s: %w", doc.ReferenceID(), err)
	}

	stampDoc := etree.NewDocument()
	stampDoc.SetRoot(ted.Copy())
	stamp, err := charset.WriteDocument(stampDoc)
	if err != nil {
		return err
	}
	return doc.Seal(signed, stamp)
}
