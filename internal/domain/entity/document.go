package entity

import (
	"fmt"
	"time"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// IDDoc identificación del documento (IdDoc). Tipo y folio se fijan solo al construirlo.
type IDDoc struct {
	docType      sii.DocumentType
	folio        int64
	DateEmitted  time.Time
	ServiceIndex sii.ServiceIndex
	PeriodFrom   *time.Time
	PeriodTo     *time.Time
	DueDate      *time.Time
}

// NewIDDoc crea el IdDoc con el folio asignado por la autoridad de folios.
func NewIDDoc(docType sii.DocumentType, folio int64, dateEmitted time.Time) IDDoc {
	return IDDoc{docType: docType, folio: folio, DateEmitted: dateEmitted, ServiceIndex: sii.DefaultServiceIndex}
}

func (i IDDoc) DocType() sii.DocumentType { return i.docType }
func (i IDDoc) Folio() int64              { return i.folio }

// Header encabezado (Encabezado).
type Header struct {
	IDDoc    IDDoc
	Issuer   Issuer
	Receptor Receptor
	Totals   Totals
}

// Document documento tributario electrónico. Tras Seal es inmutable.
type Document struct {
	Header                   Header
	Details                  []DetailLine
	GlobalDiscountSurcharges []GlobalDiscountSurcharge
	References               []Reference
	Commissions              []Commission

	xmlData  []byte // DTE firmado (ISO-8859-1)
	xmlStamp []byte // TED
}

// NewDocument crea un documento con colecciones propias (nunca compartidas).
func NewDocument(header Header) *Document {
	return &Document{
		Header:                   header,
		Details:                  make([]DetailLine, 0),
		GlobalDiscountSurcharges: make([]GlobalDiscountSurcharge, 0),
		References:               make([]Reference, 0),
		Commissions:              make([]Commission, 0),
	}
}

func (d *Document) DocType() sii.DocumentType { return d.Header.IDDoc.DocType() }
func (d *Document) Folio() int64              { return d.Header.IDDoc.Folio() }
func (d *Document) TotalAmount() int64        { return d.Header.Totals.TotalAmount() }

// ReferenceID valor del atributo ID de <Documento> (T{tipo}F{folio}).
func (d *Document) ReferenceID() string {
	return fmt.Sprintf("T%dF%d", int(d.DocType()), d.Folio())
}

// XMLData bytes del DTE firmado; nil si aún no se firma.
func (d *Document) XMLData() []byte { return d.xmlData }

// XMLStamp bytes del timbre electrónico.
func (d *Document) XMLStamp() []byte { return d.xmlStamp }

// Sealed indica si el documento ya tiene XML firmado.
func (d *Document) Sealed() bool { return d.xmlData != nil }

// Seal guarda el XML firmado y el timbre. Solo puede ocurrir una vez.
func (d *Document) Seal(xmlData, xmlStamp []byte) error {
	if d.Sealed() {
		return fmt.Errorf("%s: %w", d.ReferenceID(), domain.ErrDocumentSealed)
	}
	if len(xmlData) == 0 {
		return fmt.Errorf("%w: XML firmado vacío", domain.ErrValidation)
	}
	d.xmlData = append([]byte(nil), xmlData...)
	d.xmlStamp = append([]byte(nil), xmlStamp...)
	return nil
}

// AddDetail agrega una línea; falla si el documento ya fue firmado.
func (d *Document) AddDetail(line DetailLine) error {
	if d.Sealed() {
		return domain.ErrDocumentSealed
	}
	d.Details = append(d.Details, line)
	return nil
}

// AddGlobalDiscountSurcharge agrega un descuento/recargo global validado.
func (d *Document) AddGlobalDiscountSurcharge(g GlobalDiscountSurcharge) error {
	if d.Sealed() {
		return domain.ErrDocumentSealed
	}
	if err := g.Validate(); err != nil {
		return err
	}
	d.GlobalDiscountSurcharges = append(d.GlobalDiscountSurcharges, g)
	return nil
}

// AddReference agrega una referencia.
func (d *Document) AddReference(r Reference) error {
	if d.Sealed() {
		return domain.ErrDocumentSealed
	}
	d.References = append(d.References, r)
	return nil
}

// AddCommission agrega una comisión u otro cargo.
func (d *Document) AddCommission(c Commission) error {
	if d.Sealed() {
		return domain.ErrDocumentSealed
	}
	d.Commissions = append(d.Commissions, c)
	return nil
}
