package signer

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// CAFKeys par de llaves RSA de un CAF. Firma el nodo DD del timbre.
type CAFKeys struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// ParseCAFKeys importa RSASK (PKCS#1 o PKCS#8) y RSAPUBK (PKIX o PKCS#1) en PEM.
func ParseCAFKeys(privatePEM, publicPEM []byte) (*CAFKeys, error) {
	priv, err := parsePrivateKey(privatePEM)
	if err != nil {
		return nil, err
	}
	pub, err := parsePublicKey(publicPEM)
	if err != nil {
		return nil, err
	}
	return &CAFKeys{private: priv, public: pub}, nil
}

// NewCAFKeys envuelve un par ya importado.
func NewCAFKeys(priv *rsa.PrivateKey, pub *rsa.PublicKey) *CAFKeys {
	if pub == nil && priv != nil {
		pub = &priv.PublicKey
	}
	return &CAFKeys{private: priv, public: pub}
}

func (k *CAFKeys) SignStamp(data []byte) (string, error) {
	if k.private == nil {
		return "", fmt.Errorf("%w: CAF sin llave privada", domain.ErrSignature)
	}
	return SignSHA1(k.private, data)
}

func (k *CAFKeys) VerifyStamp(signatureB64 string, data []byte) bool {
	return VerifySHA1(k.public, signatureB64, data)
}

// PublicKey llave pública declarada en el CAF.
func (k *CAFKeys) PublicKey() *rsa.PublicKey { return k.public }

func parsePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(string(data))))
	if block == nil {
		return nil, fmt.Errorf("%w: RSASK no es PEM", domain.ErrKeyImport)
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: RSASK: %v", domain.ErrKeyImport, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: RSASK no es RSA", domain.ErrKeyImport)
	}
	return key, nil
}

func parsePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(strings.TrimSpace(string(data))))
	if block == nil {
		return nil, fmt.Errorf("%w: RSAPUBK no es PEM", domain.ErrKeyImport)
	}
	if parsed, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%w: RSAPUBK no es RSA", domain.ErrKeyImport)
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: RSAPUBK: %v", domain.ErrKeyImport, err)
	}
	return key, nil
}

var _ sii.StampSigner = (*CAFKeys)(nil)
