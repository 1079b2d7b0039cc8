package sii

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
)

// XMLBuilderService construye el nodo <Documento> de un DTE (sin TED ni firma).
// El orden de los elementos sigue el esquema DTE_v10.
type XMLBuilderService struct{}

// NewXMLBuilderService crea el servicio.
func NewXMLBuilderService() *XMLBuilderService {
	return &XMLBuilderService{}
}

// BuildDocumento genera <Documento ID="T{tipo}F{folio}"> con encabezado, detalle,
// descuentos/recargos globales, referencias y comisiones.
func (s *XMLBuilderService) BuildDocumento(doc *entity.Document) (*etree.Element, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: documento nil", domain.ErrValidation)
	}
	if len(doc.Details) == 0 {
		return nil, domain.ErrMissingDetailLine
	}
	voucher := doc.DocType().IsVoucher()

	root := etree.NewElement("Documento")
	root.CreateAttr("ID", doc.ReferenceID())

	// ---- Encabezado
	enc := root.CreateElement("Encabezado")
	s.writeIDDoc(enc, doc.Header.IDDoc)
	s.writeIssuer(enc, doc.Header.Issuer, voucher)
	s.writeReceptor(enc, doc.Header.Receptor)
	s.writeTotals(enc, doc.Header.Totals, voucher)

	// ---- Detalle
	for _, d := range doc.Details {
		s.writeDetail(root, d)
	}
	// ---- DscRcgGlobal
	for _, g := range doc.GlobalDiscountSurcharges {
		s.writeGlobalDiscountSurcharge(root, g)
	}
	// ---- Referencia
	for _, r := range doc.References {
		s.writeReference(root, r)
	}
	// ---- Comisiones
	for _, c := range doc.Commissions {
		s.writeCommission(root, c)
	}
	return root, nil
}

func (s *XMLBuilderService) writeIDDoc(parent *etree.Element, id entity.IDDoc) {
	el := parent.CreateElement("IdDoc")
	addText(el, "TipoDTE", strconv.Itoa(int(id.DocType())))
	addText(el, "Folio", strconv.FormatInt(id.Folio(), 10))
	addText(el, "FchEmis", id.DateEmitted.Format(sii.DateFormat))
	if id.ServiceIndex != 0 {
		addText(el, "IndServicio", strconv.Itoa(int(id.ServiceIndex)))
	}
	addDate(el, "PeriodoDesde", id.PeriodFrom)
	addDate(el, "PeriodoHasta", id.PeriodTo)
	addDate(el, "FchVenc", id.DueDate)
}

func (s *XMLBuilderService) writeIssuer(parent *etree.Element, iss entity.Issuer, voucher bool) {
	el := parent.CreateElement("Emisor")
	addText(el, "RUTEmisor", iss.RUT)
	if voucher {
		addText(el, "RznSocEmisor", iss.LegalName)
		addText(el, "GiroEmisor", strings.ToUpper(iss.Activity))
	} else {
		addText(el, "RznSoc", iss.LegalName)
		addText(el, "GiroEmis", strings.ToUpper(iss.Activity))
		for _, code := range iss.ActivityCodes {
			addText(el, "Acteco", strconv.Itoa(code))
		}
	}
	addOptional(el, "CdgSIISucur", iss.BranchCode)
	addOptional(el, "DirOrigen", iss.Address.Street)
	addOptional(el, "CmnaOrigen", iss.Address.Comuna)
	addOptional(el, "CiudadOrigen", iss.Address.City)
}

func (s *XMLBuilderService) writeReceptor(parent *etree.Element, r entity.Receptor) {
	el := parent.CreateElement("Receptor")
	addText(el, "RUTRecep", r.RUT)
	addOptional(el, "CdgIntRecep", r.InternalCode)
	addText(el, "RznSocRecep", r.LegalName)
	addOptional(el, "GiroRecep", r.Activity)
	addOptional(el, "DirRecep", r.Address.Street)
	addOptional(el, "CmnaRecep", r.Address.Comuna)
	addOptional(el, "CiudadRecep", r.Address.City)
}

func (s *XMLBuilderService) writeTotals(parent *etree.Element, t entity.Totals, voucher bool) {
	el := parent.CreateElement("Totales")
	net := t.NetAmount()
	addAmount(el, "MntNeto", net)
	addAmount(el, "MntExe", t.ExemptAmount)
	if net != 0 {
		if !voucher {
			addText(el, "TasaIVA", t.TaxRate.Round(2).String())
		}
		addText(el, "IVA", strconv.FormatInt(t.TaxAmount(), 10))
		if t.WithheldTax {
			ret := el.CreateElement("ImptoReten")
			addText(ret, "TipoImp", strconv.Itoa(sii.TaxCodeWithheldVAT))
			addText(ret, "TasaImp", t.TaxRate.Round(2).String())
			addText(ret, "MontoImp", strconv.FormatInt(t.TaxAmount(), 10))
		}
	}
	addText(el, "MntTotal", strconv.FormatInt(t.TotalAmount(), 10))
	if t.OutstandingBalance != 0 {
		addText(el, "SaldoAnterior", strconv.FormatInt(t.OutstandingBalance, 10))
		addText(el, "VlrPagar", strconv.FormatInt(t.AmountToBePaid(), 10))
	}
}

func (s *XMLBuilderService) writeDetail(parent *etree.Element, d entity.DetailLine) {
	el := parent.CreateElement("Detalle")
	addText(el, "NroLinDet", strconv.Itoa(d.LineNo))
	if d.Exemption != sii.ExemptionNone {
		addText(el, "IndExe", strconv.Itoa(int(d.Exemption)))
	}
	addText(el, "NmbItem", d.ItemName)
	addOptional(el, "DscItem", d.Description)
	addDecimal(el, "QtyItem", d.Quantity, entity.ItemDecimals)
	addOptional(el, "UnmdItem", d.Unit)
	addDecimal(el, "PrcItem", d.UnitPrice, entity.ItemDecimals)
	addDecimal(el, "DescuentoPct", d.DiscountPct, entity.PctDecimals)
	addAmount(el, "DescuentoMonto", d.Discount)
	addDecimal(el, "RecargoPct", d.SurchargePct, entity.PctDecimals)
	addAmount(el, "RecargoMonto", d.Surcharge)
	addText(el, "MontoItem", strconv.FormatInt(d.ItemAmount(), 10))
}

func (s *XMLBuilderService) writeGlobalDiscountSurcharge(parent *etree.Element, g entity.GlobalDiscountSurcharge) {
	el := parent.CreateElement("DscRcgGlobal")
	addText(el, "NroLinDR", strconv.Itoa(g.LineNo))
	addText(el, "TpoMov", string(g.Movement))
	addOptional(el, "GlosaDR", g.Description)
	addText(el, "TpoValor", string(g.ValueType))
	addText(el, "ValorDR", g.Value.Round(entity.PctDecimals).String())
	if g.Exempt {
		addText(el, "IndExeDR", "1")
	}
}

func (s *XMLBuilderService) writeReference(parent *etree.Element, r entity.Reference) {
	el := parent.CreateElement("Referencia")
	addText(el, "NroLinRef", strconv.Itoa(r.LineNo))
	if r.DocType != 0 {
		addText(el, "TpoDocRef", strconv.Itoa(int(r.DocType)))
	}
	addAmount(el, "FolioRef", r.Folio)
	if !r.Date.IsZero() {
		addText(el, "FchRef", r.Date.Format(sii.DateFormat))
	}
	if r.Code != 0 {
		addText(el, "CodRef", strconv.Itoa(int(r.Code)))
	}
	addOptional(el, "RazonRef", r.Reason)
}

func (s *XMLBuilderService) writeCommission(parent *etree.Element, c entity.Commission) {
	el := parent.CreateElement("Comisiones")
	addText(el, "NroLinCom", strconv.Itoa(c.LineNo))
	addText(el, "TipoMovim", c.Kind)
	addText(el, "Glosa", c.Description)
	addText(el, "ValComNeto", strconv.FormatInt(c.NetValue, 10))
	addText(el, "ValComExe", strconv.FormatInt(c.ExemptValue, 10))
	addText(el, "ValComIVA", strconv.FormatInt(c.TaxValue, 10))
}

// ── helpers ──

func addText(parent *etree.Element, tag, text string) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(text)
	return el
}

func addOptional(parent *etree.Element, tag, text string) {
	if text != "" {
		addText(parent, tag, text)
	}
}

func addAmount(parent *etree.Element, tag string, amount int64) {
	if amount != 0 {
		addText(parent, tag, strconv.FormatInt(amount, 10))
	}
}

// addDecimal escribe d con a lo más places decimales; la validación previa garantiza que no se pierde precisión.
func addDecimal(parent *etree.Element, tag string, d decimal.Decimal, places int32) {
	if !d.IsZero() {
		addText(parent, tag, d.Round(places).String())
	}
}

func addDate(parent *etree.Element, tag string, t *time.Time) {
	if t != nil && !t.IsZero() {
		addText(parent, tag, t.Format(sii.DateFormat))
	}
}
