// Carga del certificado digital del emisor desde .p12 (PKCS#12) o par PEM.

package signer

import (
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"golang.org/x/crypto/pkcs12"
)

// LoadFromP12 carga certificado y llave privada desde un archivo .p12/.pfx.
// El password puede ser vacío si el archivo no está protegido.
func LoadFromP12(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("leer p12: %w", err)
	}
	return LoadP12(data, password)
}

// LoadP12 decodifica un PKCS#12 en memoria.
func LoadP12(data []byte, password string) (tls.Certificate, error) {
	priv, cert, err := pkcs12.Decode(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: decodificar p12: %v", domain.ErrKeyImport, err)
	}
	if _, ok := priv.(*rsa.PrivateKey); !ok {
		return tls.Certificate{}, fmt.Errorf("%w: la llave del p12 no es RSA", domain.ErrKeyImport)
	}
	// pkcs12.Decode devuelve un solo certificado; para el SII basta el certificado hoja.
	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  priv,
		Leaf:        cert,
	}, nil
}

// LoadFromPEM carga certificado y llave desde archivos PEM (por separado o combinados).
func LoadFromPEM(certPath, keyPath string) (tls.Certificate, error) {
	if keyPath == "" {
		keyPath = certPath
	}
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("%w: cargar PEM: %v", domain.ErrKeyImport, err)
	}
	return cert, nil
}

// Load elige el formato por extensión: .p12/.pfx o PEM.
func Load(path, password string) (tls.Certificate, error) {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".p12") || strings.HasSuffix(lower, ".pfx") {
		return LoadFromP12(path, password)
	}
	return LoadFromPEM(path, "")
}

// leaf devuelve el certificado X.509 hoja (parseándolo si tls no lo dejó en Leaf).
func leaf(cert tls.Certificate) (*x509.Certificate, error) {
	if cert.Leaf != nil {
		return cert.Leaf, nil
	}
	if len(cert.Certificate) == 0 {
		return nil, fmt.Errorf("%w: certificado vacío", domain.ErrKeyImport)
	}
	x, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return nil, fmt.Errorf("%w: parsear certificado: %v", domain.ErrKeyImport, err)
	}
	return x, nil
}

// CertificateInfo datos de vigencia del certificado (serial, sujeto y fechas).
func CertificateInfo(cert tls.Certificate) (entity.IssuerCertificate, error) {
	x, err := leaf(cert)
	if err != nil {
		return entity.IssuerCertificate{}, err
	}
	return entity.IssuerCertificate{
		Serial:    x.SerialNumber.String(),
		Subject:   x.Subject.String(),
		ValidFrom: x.NotBefore,
		ValidTo:   x.NotAfter,
		Status:    entity.IssuerCertInactive,
	}, nil
}

// checkValidity exige que now esté dentro de la vigencia del certificado.
func checkValidity(x *x509.Certificate, now time.Time) error {
	if now.Before(x.NotBefore) || now.After(x.NotAfter) {
		return fmt.Errorf("%w: vigente entre %s y %s", domain.ErrCertificateExpired,
			x.NotBefore.Format(time.DateOnly), x.NotAfter.Format(time.DateOnly))
	}
	return nil
}
