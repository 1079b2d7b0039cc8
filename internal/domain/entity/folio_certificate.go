package entity

import (
	"bytes"
	"fmt"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// cafProbe texto firmado y verificado al cargar un CAF para comprobar que el par de llaves corresponde.
var cafProbe = []byte("validating")

// FolioCertificate Código de Autorización de Folios (CAF) emitido por el SII.
// Es inmutable: un rango de folios para un tipo de documento y el par de llaves con el que se timbra.
type FolioCertificate struct {
	docType   sii.DocumentType
	rangeFrom int64
	rangeTo   int64
	issuerRUT string
	caf       []byte // elemento <CAF> (parte pública que se incrusta en el TED)
	raw       []byte // archivo AUTORIZACION completo
	keys      sii.StampSigner
}

// FolioCertificateParams datos leídos del archivo CAF.
type FolioCertificateParams struct {
	DocType    sii.DocumentType
	RangeFrom  int64
	RangeTo    int64
	IssuerRUT  string
	CAFElement []byte
	Raw        []byte
	Keys       sii.StampSigner
}

// NewFolioCertificate valida el rango y el par de llaves (firma y verifica un texto fijo).
func NewFolioCertificate(p FolioCertificateParams) (*FolioCertificate, error) {
	if p.RangeFrom <= 0 || p.RangeTo < p.RangeFrom {
		return nil, fmt.Errorf("%w: rango [%d, %d]", domain.ErrInvalidCAF, p.RangeFrom, p.RangeTo)
	}
	if len(p.CAFElement) == 0 || p.Keys == nil {
		return nil, fmt.Errorf("%w: faltan elemento CAF o llaves", domain.ErrInvalidCAF)
	}
	sig, err := p.Keys.SignStamp(cafProbe)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCAF, err)
	}
	if !p.Keys.VerifyStamp(sig, cafProbe) {
		return nil, fmt.Errorf("%w: la llave pública no corresponde a la privada", domain.ErrInvalidCAF)
	}
	return &FolioCertificate{
		docType:   p.DocType,
		rangeFrom: p.RangeFrom,
		rangeTo:   p.RangeTo,
		issuerRUT: p.IssuerRUT,
		caf:       append([]byte(nil), p.CAFElement...),
		raw:       append([]byte(nil), p.Raw...),
		keys:      p.Keys,
	}, nil
}

func (c *FolioCertificate) DocType() sii.DocumentType { return c.docType }
func (c *FolioCertificate) RangeFrom() int64          { return c.rangeFrom }
func (c *FolioCertificate) RangeTo() int64            { return c.rangeTo }
func (c *FolioCertificate) IssuerRUT() string         { return c.issuerRUT }

// CAFElement elemento <CAF> tal como vino en el archivo.
func (c *FolioCertificate) CAFElement() []byte { return c.caf }

// Raw archivo AUTORIZACION completo (incluye la llave privada).
func (c *FolioCertificate) Raw() []byte { return c.raw }

// Contains indica si el folio está dentro del rango autorizado.
func (c *FolioCertificate) Contains(folio int64) bool {
	return folio >= c.rangeFrom && folio <= c.rangeTo
}

// Equal compara tipo, rango y contenido del elemento CAF.
func (c *FolioCertificate) Equal(o *FolioCertificate) bool {
	if o == nil {
		return false
	}
	return c.docType == o.docType && c.rangeFrom == o.rangeFrom && c.rangeTo == o.rangeTo &&
		bytes.Equal(c.caf, o.caf)
}

// SignStamp firma los datos del timbre con la llave privada del CAF.
func (c *FolioCertificate) SignStamp(data []byte) (string, error) { return c.keys.SignStamp(data) }

// VerifyStamp verifica una firma de timbre con la llave pública del CAF.
func (c *FolioCertificate) VerifyStamp(sig string, data []byte) bool {
	return c.keys.VerifyStamp(sig, data)
}
