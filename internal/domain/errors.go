package domain

import (
	"errors"
	"fmt"
)

// Clases de error (sin dependencias externas). Cada error específico envuelve su clase:
// errors.Is(err, ErrFolio) es verdadero para ErrFolioExhaustion.
var (
	ErrValidation = errors.New("error de validación")
	ErrFolio      = errors.New("error de folio")
	ErrCrypto     = errors.New("error criptográfico")
	ErrProtocol   = errors.New("error de protocolo SII")
	ErrTransport  = errors.New("error de transporte")
)

// Validación.
var (
	ErrMissingDetailLine = fmt.Errorf("%w: el documento no tiene líneas de detalle", ErrValidation)
	ErrInvalidAmount     = fmt.Errorf("%w: monto inválido", ErrValidation)
	ErrInvalidPercentage = fmt.Errorf("%w: porcentaje fuera de (0, 100]", ErrValidation)
	ErrInvalidPrecision  = fmt.Errorf("%w: más decimales de los que admite el esquema", ErrValidation)
	ErrInvalidMovement   = fmt.Errorf("%w: tipo de movimiento o valor desconocido", ErrValidation)
	ErrDocumentSealed    = fmt.Errorf("%w: el documento ya fue firmado", ErrValidation)
	ErrInvalidReference  = fmt.Errorf("%w: referencia inválida", ErrValidation)
	ErrUnsupportedChar   = fmt.Errorf("%w: texto no representable en ISO-8859-1", ErrValidation)
	ErrMalformedDocument = fmt.Errorf("%w: XML de documento mal formado", ErrValidation)
)

// Folios.
var (
	ErrDocumentTypeMismatch = fmt.Errorf("%w: tipo de documento no coincide", ErrFolio)
	ErrDuplicateCertificate = fmt.Errorf("%w: CAF duplicado", ErrFolio)
	ErrOverlappingCAF       = fmt.Errorf("%w: rango de CAF superpuesto", ErrFolio)
	ErrFolioExhaustion      = fmt.Errorf("%w: folios agotados", ErrFolio)
	ErrInvalidFolio         = fmt.Errorf("%w: folio no emitido o ya devuelto", ErrFolio)
	ErrCertificateNotFound  = fmt.Errorf("%w: no hay CAF que cubra el folio", ErrFolio)
)

// Criptografía.
var (
	ErrKeyImport          = fmt.Errorf("%w: no se pudo importar la llave", ErrCrypto)
	ErrSignature          = fmt.Errorf("%w: firma fallida", ErrCrypto)
	ErrInvalidCAF         = fmt.Errorf("%w: CAF inválido", ErrCrypto)
	ErrCertificateExpired = fmt.Errorf("%w: certificado de firma fuera de vigencia", ErrCrypto)
)

// Protocolo y transporte.
var (
	ErrAuthentication     = fmt.Errorf("%w: autenticación rechazada", ErrProtocol)
	ErrSending            = fmt.Errorf("%w: envío rechazado", ErrProtocol)
	ErrMalformedResponse  = fmt.Errorf("%w: respuesta mal formada", ErrProtocol)
	ErrGatewayUnavailable = errors.New("servicio SII no disponible")
)

// Errores de persistencia.
var (
	ErrNotFound  = errors.New("recurso no encontrado")
	ErrDuplicate = errors.New("recurso duplicado")
	ErrConflict  = errors.New("conflicto con el estado actual")
)

// GatewayError error de una llamada al SII. Raw conserva el cuerpo devuelto por el
// servicio (diagnóstico) cuando existe.
type GatewayError struct {
	Op  string // seed, token, upload, status
	Raw []byte
	Err error
}

func (e *GatewayError) Error() string {
	if len(e.Raw) > 0 {
		return fmt.Sprintf("sii %s: %v (respuesta: %.200s)", e.Op, e.Err, e.Raw)
	}
	return fmt.Sprintf("sii %s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
