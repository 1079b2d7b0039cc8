package sii

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/charset"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
)

// ParseDTE reconstruye un documento desde el XML de un <DTE>. Conserva los bytes recibidos
// y el TED tal cual (no se vuelven a derivar).
func ParseDTE(data []byte) (*entity.Document, error) {
	doc, err := charset.ReadDocument(data)
	if err != nil {
		return nil, err
	}
	return parseDTEElement(doc.Root(), data)
}

// ParseEnvelope extrae los DTE de un EnvioDTE/EnvioBOLETA.
func ParseEnvelope(data []byte) ([]*entity.Document, error) {
	doc, err := charset.ReadDocument(data)
	if err != nil {
		return nil, err
	}
	set := doc.Root().SelectElement("SetDTE")
	if set == nil {
		return nil, fmt.Errorf("%w: sobre sin SetDTE", domain.ErrMalformedDocument)
	}
	var docs []*entity.Document
	for _, el := range set.SelectElements("DTE") {
		d := etree.NewDocument()
		d.SetRoot(el.Copy())
		raw, err := charset.WriteDocument(d)
		if err != nil {
			return nil, err
		}
		parsed, err := parseDTEElement(el, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, parsed)
	}
	return docs, nil
}

func parseDTEElement(dte *etree.Element, raw []byte) (*entity.Document, error) {
	documento := dte
	if dte.Tag != "Documento" {
		documento = dte.SelectElement("Documento")
	}
	if documento == nil {
		return nil, fmt.Errorf("%w: falta Documento", domain.ErrMalformedDocument)
	}
	p := &parser{}
	doc := p.document(documento)
	if p.err != nil {
		return nil, p.err
	}

	var stamp []byte
	if ted := documento.SelectElement("TED"); ted != nil {
		sd := etree.NewDocument()
		sd.SetRoot(ted.Copy())
		b, err := charset.WriteDocument(sd)
		if err != nil {
			return nil, err
		}
		stamp = b
	}
	if err := doc.Seal(append([]byte(nil), raw...), stamp); err != nil {
		return nil, err
	}
	return doc, nil
}

// parser acumula el primer error para no cortar cada lectura de campo.
type parser struct {
	err error
}

func (p *parser) fail(format string, args ...any) {
	if p.err == nil {
		p.err = fmt.Errorf("%w: "+format, append([]any{domain.ErrMalformedDocument}, args...)...)
	}
}

func (p *parser) document(el *etree.Element) *entity.Document {
	enc := el.SelectElement("Encabezado")
	if enc == nil {
		p.fail("falta Encabezado")
		return nil
	}
	header := entity.Header{
		IDDoc:    p.idDoc(enc.SelectElement("IdDoc")),
		Issuer:   p.issuer(enc.SelectElement("Emisor")),
		Receptor: p.receptor(enc.SelectElement("Receptor")),
		Totals:   p.totals(enc.SelectElement("Totales")),
	}
	doc := entity.NewDocument(header)
	for _, d := range el.SelectElements("Detalle") {
		doc.Details = append(doc.Details, p.detail(d))
	}
	for _, g := range el.SelectElements("DscRcgGlobal") {
		doc.GlobalDiscountSurcharges = append(doc.GlobalDiscountSurcharges, p.globalDiscountSurcharge(g))
	}
	for _, r := range el.SelectElements("Referencia") {
		doc.References = append(doc.References, p.reference(r))
	}
	for _, c := range el.SelectElements("Comisiones") {
		doc.Commissions = append(doc.Commissions, p.commission(c))
	}
	return doc
}

func (p *parser) idDoc(el *etree.Element) entity.IDDoc {
	if el == nil {
		p.fail("falta IdDoc")
		return entity.IDDoc{}
	}
	id := entity.NewIDDoc(sii.DocumentType(p.reqInt(el, "TipoDTE")), p.reqInt64(el, "Folio"), p.date(el, "FchEmis"))
	id.ServiceIndex = sii.ServiceIndex(p.optInt(el, "IndServicio"))
	id.PeriodFrom = p.optDate(el, "PeriodoDesde")
	id.PeriodTo = p.optDate(el, "PeriodoHasta")
	id.DueDate = p.optDate(el, "FchVenc")
	return id
}

func (p *parser) issuer(el *etree.Element) entity.Issuer {
	if el == nil {
		p.fail("falta Emisor")
		return entity.Issuer{}
	}
	iss := entity.Issuer{
		RUT:        text(el, "RUTEmisor"),
		LegalName:  firstText(el, "RznSoc", "RznSocEmisor"),
		Activity:   firstText(el, "GiroEmis", "GiroEmisor"),
		BranchCode: text(el, "CdgSIISucur"),
		Address: entity.Address{
			Street: text(el, "DirOrigen"),
			Comuna: text(el, "CmnaOrigen"),
			City:   text(el, "CiudadOrigen"),
		},
	}
	for _, a := range el.SelectElements("Acteco") {
		code, err := strconv.Atoi(strings.TrimSpace(a.Text()))
		if err != nil {
			p.fail("Acteco %q", a.Text())
			continue
		}
		iss.ActivityCodes = append(iss.ActivityCodes, code)
	}
	return iss
}

func (p *parser) receptor(el *etree.Element) entity.Receptor {
	if el == nil {
		p.fail("falta Receptor")
		return entity.Receptor{}
	}
	return entity.Receptor{
		RUT:          text(el, "RUTRecep"),
		InternalCode: text(el, "CdgIntRecep"),
		LegalName:    text(el, "RznSocRecep"),
		Activity:     text(el, "GiroRecep"),
		Address: entity.Address{
			Street: text(el, "DirRecep"),
			Comuna: text(el, "CmnaRecep"),
			City:   text(el, "CiudadRecep"),
		},
	}
}

func (p *parser) totals(el *etree.Element) entity.Totals {
	t := entity.NewTotals()
	if el == nil {
		p.fail("falta Totales")
		return t
	}
	if rate := p.optDecimal(el, "TasaIVA"); !rate.IsZero() {
		t.TaxRate = rate
	}
	t.SetNetAmount(p.optInt64(el, "MntNeto"), false)
	t.ExemptAmount = p.optInt64(el, "MntExe")
	t.OutstandingBalance = p.optInt64(el, "SaldoAnterior")
	for _, ret := range el.SelectElements("ImptoReten") {
		if p.optInt(ret, "TipoImp") == sii.TaxCodeWithheldVAT {
			t.WithheldTax = true
		}
	}
	return t
}

func (p *parser) detail(el *etree.Element) entity.DetailLine {
	d := entity.DetailLine{
		LineNo:       p.reqInt(el, "NroLinDet"),
		ItemName:     text(el, "NmbItem"),
		Description:  text(el, "DscItem"),
		Quantity:     p.optDecimal(el, "QtyItem"),
		Unit:         text(el, "UnmdItem"),
		UnitPrice:    p.optDecimal(el, "PrcItem"),
		Exemption:    sii.ExemptionIndex(p.optInt(el, "IndExe")),
		DiscountPct:  p.optDecimal(el, "DescuentoPct"),
		Discount:     p.optInt64(el, "DescuentoMonto"),
		SurchargePct: p.optDecimal(el, "RecargoPct"),
		Surcharge:    p.optInt64(el, "RecargoMonto"),
	}
	// MontoItem explícito solo si no coincide con el derivado.
	if amount := p.reqInt64(el, "MontoItem"); amount != d.ItemAmount() {
		d.FixedAmount = amount
	}
	return d
}

func (p *parser) globalDiscountSurcharge(el *etree.Element) entity.GlobalDiscountSurcharge {
	return entity.GlobalDiscountSurcharge{
		LineNo:      p.reqInt(el, "NroLinDR"),
		Movement:    sii.MovementType(text(el, "TpoMov")),
		Description: text(el, "GlosaDR"),
		ValueType:   sii.ValueType(text(el, "TpoValor")),
		Value:       p.optDecimal(el, "ValorDR"),
		Exempt:      p.optInt(el, "IndExeDR") != 0,
	}
}

func (p *parser) reference(el *etree.Element) entity.Reference {
	r := entity.Reference{
		LineNo:  p.reqInt(el, "NroLinRef"),
		DocType: sii.DocumentType(p.optInt(el, "TpoDocRef")),
		Folio:   p.optInt64(el, "FolioRef"),
		Code:    sii.ReferenceCode(p.optInt(el, "CodRef")),
		Reason:  text(el, "RazonRef"),
	}
	if d := p.optDate(el, "FchRef"); d != nil {
		r.Date = *d
	}
	return r
}

func (p *parser) commission(el *etree.Element) entity.Commission {
	return entity.Commission{
		LineNo:      p.reqInt(el, "NroLinCom"),
		Kind:        text(el, "TipoMovim"),
		Description: text(el, "Glosa"),
		NetValue:    p.optInt64(el, "ValComNeto"),
		ExemptValue: p.optInt64(el, "ValComExe"),
		TaxValue:    p.optInt64(el, "ValComIVA"),
	}
}

// ── lectura de campos ──

func text(el *etree.Element, tag string) string {
	if c := el.SelectElement(tag); c != nil {
		return strings.TrimSpace(c.Text())
	}
	return ""
}

func firstText(el *etree.Element, tags ...string) string {
	for _, t := range tags {
		if v := text(el, t); v != "" {
			return v
		}
	}
	return ""
}

func (p *parser) reqInt64(el *etree.Element, tag string) int64 {
	s := text(el, tag)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		p.fail("%s=%q", tag, s)
	}
	return n
}

func (p *parser) reqInt(el *etree.Element, tag string) int {
	return int(p.reqInt64(el, tag))
}

func (p *parser) optInt64(el *etree.Element, tag string) int64 {
	if text(el, tag) == "" {
		return 0
	}
	return p.reqInt64(el, tag)
}

func (p *parser) optInt(el *etree.Element, tag string) int {
	return int(p.optInt64(el, tag))
}

func (p *parser) optDecimal(el *etree.Element, tag string) decimal.Decimal {
	s := text(el, tag)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		p.fail("%s=%q", tag, s)
	}
	return d
}

func (p *parser) date(el *etree.Element, tag string) time.Time {
	s := text(el, tag)
	t, err := time.Parse(sii.DateFormat, s)
	if err != nil {
		p.fail("%s=%q", tag, s)
	}
	return t
}

func (p *parser) optDate(el *etree.Element, tag string) *time.Time {
	if text(el, tag) == "" {
		return nil
	}
	t := p.date(el, tag)
	return &t
}
