// Package sii contiene catálogos y validaciones alineados a los formatos de
// Documentos Tributarios Electrónicos del Servicio de Impuestos Internos (Chile).
package sii

import "fmt"

// =============================================================================
// Tipos de documento (TipoDTE / TpoDocRef)
// =============================================================================

// DocumentType código de tipo de documento tributario.
type DocumentType int

const (
	DocTypePaperBill              DocumentType = 29 // Factura de inicio (papel)
	DocTypePaperBillLegacy        DocumentType = 30 // Factura (papel)
	DocTypePaperExemptBill        DocumentType = 32 // Factura de venta de bienes y servicios no afectos (papel)
	DocTypeBill                   DocumentType = 33 // Factura electrónica
	DocTypeExemptBill             DocumentType = 34 // Factura no afecta o exenta electrónica
	DocTypePaperVoucher           DocumentType = 35 // Boleta (papel)
	DocTypePaperExemptVoucher     DocumentType = 38 // Boleta exenta (papel)
	DocTypeVoucher                DocumentType = 39 // Boleta electrónica
	DocTypePaperSettlement        DocumentType = 40 // Liquidación factura (papel)
	DocTypeExemptVoucher          DocumentType = 41 // Boleta exenta electrónica
	DocTypeSettlement             DocumentType = 43 // Liquidación factura electrónica
	DocTypePaperPurchaseBill      DocumentType = 45 // Factura de compra (papel)
	DocTypePurchaseBill           DocumentType = 46 // Factura de compra electrónica
	DocTypePaymentVoucher         DocumentType = 48 // Comprobante de pago electrónico
	DocTypeDispatchGuide          DocumentType = 52 // Guía de despacho electrónica
	DocTypePaperDebitNote         DocumentType = 55 // Nota de débito (papel)
	DocTypeDebitNote              DocumentType = 56 // Nota de débito electrónica
	DocTypePaperCreditNote        DocumentType = 60 // Nota de crédito (papel)
	DocTypeCreditNote             DocumentType = 61 // Nota de crédito electrónica
)

var documentTypeNames = map[DocumentType]string{
	DocTypePaperBill:          "FACTURA DE INICIO",
	DocTypePaperBillLegacy:    "FACTURA",
	DocTypePaperExemptBill:    "FACTURA NO AFECTA O EXENTA",
	DocTypeBill:               "FACTURA ELECTRONICA",
	DocTypeExemptBill:         "FACTURA NO AFECTA O EXENTA ELECTRONICA",
	DocTypePaperVoucher:       "BOLETA",
	DocTypePaperExemptVoucher: "BOLETA EXENTA",
	DocTypeVoucher:            "BOLETA ELECTRONICA",
	DocTypePaperSettlement:    "LIQUIDACION FACTURA",
	DocTypeExemptVoucher:      "BOLETA EXENTA ELECTRONICA",
	DocTypeSettlement:         "LIQUIDACION FACTURA ELECTRONICA",
	DocTypePaperPurchaseBill:  "FACTURA DE COMPRA",
	DocTypePurchaseBill:       "FACTURA DE COMPRA ELECTRONICA",
	DocTypePaymentVoucher:     "COMPROBANTE DE PAGO ELECTRONICO",
	DocTypeDispatchGuide:      "GUIA DE DESPACHO ELECTRONICA",
	DocTypePaperDebitNote:     "NOTA DE DEBITO",
	DocTypeDebitNote:          "NOTA DE DEBITO ELECTRONICA",
	DocTypePaperCreditNote:    "NOTA DE CREDITO",
	DocTypeCreditNote:         "NOTA DE CREDITO ELECTRONICA",
}

// String devuelve el nombre legal del tipo de documento.
func (t DocumentType) String() string {
	if name, ok := documentTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TIPO %d", int(t))
}

// Valid indica si el código pertenece al catálogo.
func (t DocumentType) Valid() bool {
	_, ok := documentTypeNames[t]
	return ok
}

// Electronic indica si el tipo se emite como DTE (lleva TED y folio CAF).
func (t DocumentType) Electronic() bool {
	switch t {
	case DocTypeBill, DocTypeExemptBill, DocTypeVoucher, DocTypeExemptVoucher,
		DocTypeSettlement, DocTypePurchaseBill, DocTypePaymentVoucher,
		DocTypeDispatchGuide, DocTypeDebitNote, DocTypeCreditNote:
		return true
	}
	return false
}

// IsVoucher indica si el tipo es una boleta electrónica (afecta o exenta).
// Las boletas usan RznSocEmisor/GiroEmisor y no informan Acteco ni TasaIVA.
func (t DocumentType) IsVoucher() bool {
	return t == DocTypeVoucher || t == DocTypeExemptVoucher
}

// SetType devuelve el tipo de envío al que pertenece el documento.
func (t DocumentType) SetType() DocSetType {
	if t.IsVoucher() {
		return DocSetVoucher
	}
	return DocSetETD
}

// =============================================================================
// Tipo de envío (EnvioDTE / EnvioBOLETA)
// =============================================================================

// DocSetType familia del sobre de envío.
type DocSetType string

const (
	DocSetETD     DocSetType = "ETD"
	DocSetVoucher DocSetType = "VOUCHER"
)

// RootTag nombre del elemento raíz del sobre.
func (t DocSetType) RootTag() string {
	if t == DocSetVoucher {
		return "EnvioBOLETA"
	}
	return "EnvioDTE"
}

// SchemaFile XSD declarado en xsi:schemaLocation.
func (t DocSetType) SchemaFile() string {
	if t == DocSetVoucher {
		return "EnvioBOLETA_v11.xsd"
	}
	return "EnvioDTE_v10.xsd"
}

// =============================================================================
// Códigos de referencia (CodRef)
// =============================================================================

// ReferenceCode motivo de la referencia en notas de crédito/débito.
type ReferenceCode int

const (
	RefCodeNone           ReferenceCode = 0
	RefCodeNullify        ReferenceCode = 1 // Anula documento de referencia
	RefCodeCorrectText    ReferenceCode = 2 // Corrige texto del documento de referencia
	RefCodeCorrectAmounts ReferenceCode = 3 // Corrige montos
)

// Label glosa usada como nombre del ítem sintético en notas de corrección.
func (c ReferenceCode) Label() string {
	switch c {
	case RefCodeNullify:
		return "ANULA"
	case RefCodeCorrectText:
		return "CORRIGE TEXTO"
	case RefCodeCorrectAmounts:
		return "CORRIGE MONTO"
	}
	return ""
}

// Valid indica si el código está definido.
func (c ReferenceCode) Valid() bool {
	return c >= RefCodeNullify && c <= RefCodeCorrectAmounts
}

// =============================================================================
// Indicador de servicio (IndServicio)
// =============================================================================

// ServiceIndex indicador de servicio del IdDoc.
type ServiceIndex int

const (
	ServiceNone                ServiceIndex = 0
	ServiceHomeUtilities       ServiceIndex = 1 // Servicios periódicos domiciliarios
	ServiceOtherPeriodic       ServiceIndex = 2 // Otros servicios periódicos
	ServiceBills               ServiceIndex = 3 // Boletas de venta y servicios (por defecto)
	ServiceShowTickets         ServiceIndex = 4 // Espectáculos emitidos por cuenta de terceros
	ServiceHomeUtilitiesUnpaid ServiceIndex = 5 // Servicios periódicos domiciliarios no pagados
	ServiceOtherPeriodicUnpaid ServiceIndex = 6 // Otros servicios periódicos no pagados
)

// DefaultServiceIndex valor usado cuando el emisor no indica otro.
const DefaultServiceIndex = ServiceBills

// Valid indica si el indicador está en el rango 1..6.
func (s ServiceIndex) Valid() bool { return s >= ServiceHomeUtilities && s <= ServiceOtherPeriodicUnpaid }

// =============================================================================
// Indicador de exención por línea (IndExe)
// =============================================================================

// ExemptionIndex indicador de exención de un ítem; cero significa afecto.
type ExemptionIndex int

const (
	ExemptionNone           ExemptionIndex = 0
	ExemptionExempt         ExemptionIndex = 1 // No afecto o exento de IVA
	ExemptionNotBillable    ExemptionIndex = 2 // Producto o servicio no facturable
	ExemptionGuarantee      ExemptionIndex = 3 // Garantía de depósito por envases
	ExemptionNotSold        ExemptionIndex = 4 // Ítem no venta
	ExemptionNegative       ExemptionIndex = 5 // Ítem a rebajar
	ExemptionNotBillableNeg ExemptionIndex = 6 // No facturable negativo
)

// Valid indica si el indicador está en el rango 1..6.
func (e ExemptionIndex) Valid() bool { return e >= ExemptionExempt && e <= ExemptionNotBillableNeg }

// =============================================================================
// Descuentos y recargos globales (DscRcgGlobal)
// =============================================================================

// MovementType tipo de movimiento: descuento o recargo.
type MovementType string

const (
	MovementDiscount  MovementType = "D"
	MovementSurcharge MovementType = "R"
)

// ValueType tipo de valor del ajuste: porcentaje o monto.
type ValueType string

const (
	ValuePercentage ValueType = "%"
	ValueAmount     ValueType = "$"
)

// =============================================================================
// Unidades de medida (UnmdItem)
// =============================================================================

const (
	UnitTon        = "TON"
	UnitKilogram   = "KG"
	UnitUnit       = "UNID"
	UnitQuintal    = "QTAL"
	UnitCubicMetre = "M3"
	UnitMetre      = "MR"
	UnitHour       = "Hora"
)

// ValidMeasurementUnits unidades de medida aceptadas en el detalle.
var ValidMeasurementUnits = map[string]bool{
	UnitTon: true, UnitKilogram: true, UnitUnit: true, UnitQuintal: true,
	UnitCubicMetre: true, UnitMetre: true, UnitHour: true,
}

// =============================================================================
// Impuestos
// =============================================================================

// TaxCodeWithheldVAT código de IVA retenido total (ImptoReten/TipoImp).
const TaxCodeWithheldVAT = 15

// DefaultVATRate tasa general de IVA en porcentaje.
const DefaultVATRate = 19

// =============================================================================
// Formatos
// =============================================================================

const (
	DateFormat      = "2006-01-02"
	TimestampFormat = "2006-01-02T15:04:05"
	// NamespaceSiiDte namespace de documentos y sobres.
	NamespaceSiiDte = "http://www.sii.cl/SiiDte"
	NamespaceXSI    = "http://www.w3.org/2001/XMLSchema-instance"
	// NamespaceSiiSchema namespace de las respuestas de los servicios de autenticación.
	NamespaceSiiSchema = "http://www.sii.cl/XMLSchema"
)

// ReceptorRUT RUT del SII como receptor de los sobres (RutReceptor de la carátula).
const ReceptorRUT = "60803000-K"
