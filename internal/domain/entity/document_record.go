package entity

import (
	"time"

	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
)

// Estados de un documento persistido.
const (
	DocumentStatusSigned = "SIGNED" // firmado, pendiente de envío
	DocumentStatusSent   = "SENT"   // incluido en un envío con TrackID
)

// DocumentRecord documento firmado tal como se persiste: bytes exactos del XML y del timbre.
type DocumentRecord struct {
	ID          string
	IssuerRUT   string
	DocType     sii.DocumentType
	Folio       int64
	DateEmitted time.Time
	TotalAmount int64
	TaxRate     decimal.Decimal
	ChargeID    string
	XMLData     []byte
	XMLStamp    []byte
	Status      string
	ShipmentID  string
	CreatedAt   time.Time
}

// NewDocumentRecord arma el registro de un documento ya firmado.
func NewDocumentRecord(id string, doc *Document, chargeID string, now time.Time) *DocumentRecord {
	return &DocumentRecord{
		ID:          id,
		IssuerRUT:   doc.Header.Issuer.RUT,
		DocType:     doc.DocType(),
		Folio:       doc.Folio(),
		DateEmitted: doc.Header.IDDoc.DateEmitted,
		TotalAmount: doc.TotalAmount(),
		TaxRate:     doc.Header.Totals.TaxRate,
		ChargeID:    chargeID,
		XMLData:     doc.XMLData(),
		XMLStamp:    doc.XMLStamp(),
		Status:      DocumentStatusSigned,
		CreatedAt:   now,
	}
}
