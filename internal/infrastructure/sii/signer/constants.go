// Constantes XML-DSig usadas por el SII (RSA-SHA1).

package signer

const (
	NamespaceDS        = "http://www.w3.org/2000/09/xmldsig#"
	AlgC14N            = "http://www.w3.org/2001/10/xml-exc-c14n#"
	AlgRSASHA1         = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	AlgSHA1            = "http://www.w3.org/2000/09/xmldsig#sha1"
	TransformEnveloped = "http://www.w3.org/2000/09/xmldsig#enveloped-signature"
)

// StampAlgorithm valor del atributo algoritmo del nodo FRMT del timbre.
const StampAlgorithm = "SHA1withRSA"

// idAttr atributo que identifica el elemento referenciado (URI="#ID").
const idAttr = "ID"
