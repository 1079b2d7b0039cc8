// Firma XML-DSig (RSA-SHA1) exigida por el SII para DTE, EnvioDTE, ConsumoFolios y la semilla.
// El nodo <Signature> se agrega como último hijo de la raíz del documento.

package signer

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/charset"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// EnvelopeService firma documentos con el certificado digital del emisor.
type EnvelopeService struct {
	key  *rsa.PrivateKey
	cert *x509.Certificate
	now  func() time.Time
}

// NewEnvelopeService exige un certificado con llave privada RSA.
func NewEnvelopeService(cert tls.Certificate) (*EnvelopeService, error) {
	priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: el certificado debe incluir llave privada RSA", domain.ErrKeyImport)
	}
	x, err := leaf(cert)
	if err != nil {
		return nil, err
	}
	return &EnvelopeService{key: priv, cert: x, now: time.Now}, nil
}

// WithClock reemplaza el reloj usado para validar la vigencia (tests).
func (s *EnvelopeService) WithClock(now func() time.Time) *EnvelopeService {
	s.now = now
	return s
}

// Certificate certificado X.509 con que se firma.
func (s *EnvelopeService) Certificate() *x509.Certificate { return s.cert }

// Sign implementa pkg/sii.EnvelopeSigner. Respeta la codificación del documento de entrada:
// si declara ISO-8859-1 la salida también lo hace.
func (s *EnvelopeService) Sign(xmlBytes []byte, referenceID string) ([]byte, error) {
	if len(xmlBytes) == 0 {
		return nil, fmt.Errorf("%w: XML vacío", domain.ErrMalformedDocument)
	}
	doc, err := charset.ReadDocument(xmlBytes)
	if err != nil {
		return nil, err
	}
	if err := s.SignElement(doc, referenceID); err != nil {
		return nil, err
	}
	if charset.IsLatin1(doc) {
		return charset.WriteDocument(doc)
	}
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("serializar XML firmado: %w", err)
	}
	return out, nil
}

// SignElement firma en el árbol: referenceID vacío firma la raíz completa (enveloped).
func (s *EnvelopeService) SignElement(doc *etree.Document, referenceID string) error {
	if err := checkValidity(s.cert, s.now()); err != nil {
		return err
	}
	root := doc.Root()
	if root == nil {
		return fmt.Errorf("%w: documento sin raíz", domain.ErrMalformedDocument)
	}
	target := root
	if referenceID != "" {
		target = findByID(root, referenceID)
		if target == nil {
			return fmt.Errorf("%w: no existe elemento con ID %q", domain.ErrMalformedDocument, referenceID)
		}
	}

	// 1) Digest del elemento referenciado (antes de insertar la firma).
	canonical, err := Canonicalize(target)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignature, err)
	}

	// 2) Nodo Signature dentro del árbol para que SignedInfo herede su namespace.
	sig := s.buildSignature(referenceID, DigestSHA1(canonical))
	root.AddChild(sig)
	signedInfo := sig.SelectElement("SignedInfo")
	canonicalSI, err := Canonicalize(signedInfo)
	if err != nil {
		root.RemoveChild(sig)
		return fmt.Errorf("%w: %v", domain.ErrSignature, err)
	}

	// 3) SignatureValue
	value, err := SignSHA1(s.key, canonicalSI)
	if err != nil {
		root.RemoveChild(sig)
		return err
	}
	sig.SelectElement("SignatureValue").SetText(value)
	return nil
}

func (s *EnvelopeService) buildSignature(referenceID, digest string) *etree.Element {
	sig := etree.NewElement("Signature")
	sig.CreateAttr("xmlns", NamespaceDS)

	si := sig.CreateElement("SignedInfo")
	si.CreateElement("CanonicalizationMethod").CreateAttr("Algorithm", AlgC14N)
	si.CreateElement("SignatureMethod").CreateAttr("Algorithm", AlgRSASHA1)
	ref := si.CreateElement("Reference")
	transform := ref.CreateElement("Transforms").CreateElement("Transform")
	if referenceID == "" {
		ref.CreateAttr("URI", "")
		transform.CreateAttr("Algorithm", TransformEnveloped)
	} else {
		ref.CreateAttr("URI", "#"+referenceID)
		transform.CreateAttr("Algorithm", AlgC14N)
	}
	ref.CreateElement("DigestMethod").CreateAttr("Algorithm", AlgSHA1)
	ref.CreateElement("DigestValue").SetText(digest)

	sig.CreateElement("SignatureValue")

	keyInfo := sig.CreateElement("KeyInfo")
	rsaKey := keyInfo.CreateElement("KeyValue").CreateElement("RSAKeyValue")
	rsaKey.CreateElement("Modulus").SetText(base64.StdEncoding.EncodeToString(s.key.N.Bytes()))
	rsaKey.CreateElement("Exponent").SetText(base64.StdEncoding.EncodeToString(big.NewInt(int64(s.key.E)).Bytes()))
	keyInfo.CreateElement("X509Data").CreateElement("X509Certificate").
		SetText(base64.StdEncoding.EncodeToString(s.cert.Raw))
	return sig
}

// findByID busca (en profundidad) el elemento cuyo atributo ID coincide.
func findByID(el *etree.Element, id string) *etree.Element {
	if el.SelectAttrValue(idAttr, "") == id {
		return el
	}
	for _, ch := range el.ChildElements() {
		if found := findByID(ch, id); found != nil {
			return found
		}
	}
	return nil
}

var _ sii.EnvelopeSigner = (*EnvelopeService)(nil)
