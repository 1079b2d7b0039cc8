// Puertos de firma: sobre XML-DSig (certificado del emisor) y timbre TED (llave del CAF).

package sii

// EnvelopeSigner firma un XML con el certificado del contribuyente.
type EnvelopeSigner interface {
	// Sign canonicaliza el elemento con atributo ID == referenceID, firma con
	// RSA-SHA1 y agrega <Signature> como último hijo de la raíz.
	// referenceID vacío firma el documento completo (transformación enveloped).
	Sign(xmlBytes []byte, referenceID string) ([]byte, error)
}

// StampSigner firma los datos del timbre electrónico con la llave privada del CAF.
// No produce un nodo XML-DSig: devuelve la firma en Base64 para el nodo FRMT.
type StampSigner interface {
	SignStamp(data []byte) (string, error)
	VerifyStamp(signatureB64 string, data []byte) bool
}
