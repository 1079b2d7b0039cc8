package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"math/big"
	"strings"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/charset"
)

// Verify verifica la firma que es hija directa de la raíz. pub nil usa la llave del KeyInfo.
// Un XML mal formado devuelve error; una firma que no corresponde devuelve false, nil.
func Verify(xmlBytes []byte, pub *rsa.PublicKey) (bool, error) {
	doc, err := charset.ReadDocument(xmlBytes)
	if err != nil {
		return false, err
	}
	sig := doc.Root().SelectElement("Signature")
	if sig == nil {
		return false, fmt.Errorf("%w: documento sin Signature", domain.ErrMalformedDocument)
	}
	return VerifySignature(sig, pub)
}

// VerifySignature verifica un nodo Signature dentro de su árbol.
func VerifySignature(sig *etree.Element, pub *rsa.PublicKey) (bool, error) {
	si := sig.SelectElement("SignedInfo")
	if si == nil {
		return false, fmt.Errorf("%w: Signature sin SignedInfo", domain.ErrMalformedDocument)
	}
	ref := si.SelectElement("Reference")
	valueEl := sig.SelectElement("SignatureValue")
	if ref == nil || valueEl == nil || ref.SelectElement("DigestValue") == nil {
		return false, fmt.Errorf("%w: Signature incompleta", domain.ErrMalformedDocument)
	}
	digestEl := ref.SelectElement("DigestValue")

	if pub == nil {
		k, err := keyFromKeyInfo(sig.SelectElement("KeyInfo"))
		if err != nil {
			return false, err
		}
		pub = k
	}

	canonical, err := referencedCanonical(sig, ref.SelectAttrValue("URI", ""))
	if err != nil {
		return false, err
	}
	if DigestSHA1(canonical) != strings.TrimSpace(digestEl.Text()) {
		return false, nil
	}

	canonicalSI, err := Canonicalize(si)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrSignature, err)
	}
	return VerifySHA1(pub, valueEl.Text(), canonicalSI), nil
}

// referencedCanonical forma canónica del elemento referenciado. URI vacía: el padre de la
// firma sin la propia firma (transformación enveloped).
func referencedCanonical(sig *etree.Element, uri string) ([]byte, error) {
	if uri == "" {
		parent := sig.Parent()
		if parent == nil {
			return nil, fmt.Errorf("%w: firma sin elemento padre", domain.ErrMalformedDocument)
		}
		c := parent.Copy()
		c.RemoveChildAt(sig.Index())
		return canonicalize(c, parent)
	}
	if !strings.HasPrefix(uri, "#") {
		return nil, fmt.Errorf("%w: URI de referencia %q no soportada", domain.ErrMalformedDocument, uri)
	}
	target := findByID(top(sig), strings.TrimPrefix(uri, "#"))
	if target == nil {
		return nil, fmt.Errorf("%w: no existe elemento %s", domain.ErrMalformedDocument, uri)
	}
	return Canonicalize(target)
}

// top elemento raíz del documento que contiene el.
func top(el *etree.Element) *etree.Element {
	for p := el.Parent(); p != nil && p.Tag != ""; p = p.Parent() {
		el = p
	}
	return el
}

func keyFromKeyInfo(keyInfo *etree.Element) (*rsa.PublicKey, error) {
	if keyInfo == nil {
		return nil, fmt.Errorf("%w: Signature sin KeyInfo", domain.ErrMalformedDocument)
	}
	if certEl := keyInfo.FindElement("X509Data/X509Certificate"); certEl != nil {
		raw, err := decodeB64(certEl.Text())
		if err != nil {
			return nil, fmt.Errorf("%w: X509Certificate: %v", domain.ErrMalformedDocument, err)
		}
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: X509Certificate: %v", domain.ErrKeyImport, err)
		}
		pub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: el certificado no es RSA", domain.ErrKeyImport)
		}
		return pub, nil
	}
	mod := keyInfo.FindElement("KeyValue/RSAKeyValue/Modulus")
	exp := keyInfo.FindElement("KeyValue/RSAKeyValue/Exponent")
	if mod == nil || exp == nil {
		return nil, fmt.Errorf("%w: KeyInfo sin llave", domain.ErrMalformedDocument)
	}
	n, err := decodeB64(mod.Text())
	if err != nil {
		return nil, fmt.Errorf("%w: Modulus: %v", domain.ErrMalformedDocument, err)
	}
	e, err := decodeB64(exp.Text())
	if err != nil {
		return nil, fmt.Errorf("%w: Exponent: %v", domain.ErrMalformedDocument, err)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(new(big.Int).SetBytes(e).Int64())}, nil
}
