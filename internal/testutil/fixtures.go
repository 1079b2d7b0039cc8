// Package testutil fixtures criptográficas para tests: certificado autofirmado y archivos CAF.
package testutil

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/require"
	gopkcs12 "software.sslmate.com/src/go-pkcs12"
)

var (
	certOnce sync.Once
	certKey  *rsa.PrivateKey
	cert     tls.Certificate
	certErr  error

	cafOnce sync.Once
	cafKey  *rsa.PrivateKey
	cafErr  error
)

// Certificate certificado autofirmado (RSA 2048) vigente desde hace un día por un año.
func Certificate(t testing.TB) tls.Certificate {
	t.Helper()
	certOnce.Do(func() {
		certKey, certErr = rsa.GenerateKey(rand.Reader, 2048)
		if certErr != nil {
			return
		}
		tmpl := &x509.Certificate{
			SerialNumber: big.NewInt(20260101),
			Subject:      pkix.Name{CommonName: "EMPRESA DE PRUEBA SPA", SerialNumber: "76086428-5"},
			NotBefore:    time.Now().Add(-24 * time.Hour),
			NotAfter:     time.Now().AddDate(1, 0, 0),
			KeyUsage:     x509.KeyUsageDigitalSignature,
		}
		var der []byte
		der, certErr = x509.CreateCertificate(rand.Reader, tmpl, tmpl, &certKey.PublicKey, certKey)
		if certErr != nil {
			return
		}
		var leaf *x509.Certificate
		leaf, certErr = x509.ParseCertificate(der)
		cert = tls.Certificate{Certificate: [][]byte{der}, PrivateKey: certKey, Leaf: leaf}
	})
	require.NoError(t, certErr)
	return cert
}

// CertificatePEM certificado y llave en PEM (para probar la carga desde archivo).
func CertificatePEM(t testing.TB) (certPEM, keyPEM []byte) {
	t.Helper()
	c := Certificate(t)
	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Certificate[0]})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(certKey)})
	return certPEM, keyPEM
}

// CertificateP12 el certificado de Certificate empaquetado como .p12 (cifrado legacy 3DES/RC2,
// el que exportan los navegadores y emiten las entidades certificadoras).
func CertificateP12(t testing.TB, password string) []byte {
	t.Helper()
	c := Certificate(t)
	data, err := gopkcs12.Legacy.Encode(certKey, c.Leaf, nil, password)
	require.NoError(t, err)
	return data
}

// CAFKey llave RSA 1024 con la que se generan los CAF de prueba.
func CAFKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	cafOnce.Do(func() {
		cafKey, cafErr = rsa.GenerateKey(rand.Reader, 1024)
	})
	require.NoError(t, cafErr)
	return cafKey
}

// CAF archivo AUTORIZACION para el tipo y rango dados, emitido al RUT indicado.
func CAF(t testing.TB, docType int, from, to int64, issuerRUT string) []byte {
	t.Helper()
	key := CAFKey(t)

	doc := etree.NewDocument()
	auth := doc.CreateElement("AUTORIZACION")
	caf := auth.CreateElement("CAF")
	caf.CreateAttr("version", "1.0")
	da := caf.CreateElement("DA")
	da.CreateElement("RE").SetText(issuerRUT)
	da.CreateElement("RS").SetText("EMPRESA DE PRUEBA SPA")
	da.CreateElement("TD").SetText(strconv.Itoa(docType))
	rng := da.CreateElement("RNG")
	rng.CreateElement("D").SetText(strconv.FormatInt(from, 10))
	rng.CreateElement("H").SetText(strconv.FormatInt(to, 10))
	da.CreateElement("FA").SetText("2026-01-01")
	rsapk := da.CreateElement("RSAPK")
	rsapk.CreateElement("M").SetText(base64.StdEncoding.EncodeToString(key.N.Bytes()))
	rsapk.CreateElement("E").SetText(base64.StdEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()))
	da.CreateElement("IDK").SetText("100")

	// El SII firma DA con su propia llave; en pruebas basta una firma sintácticamente válida.
	daDoc := etree.NewDocument()
	daDoc.SetRoot(da.Copy())
	daBytes, err := daDoc.WriteToBytes()
	require.NoError(t, err)
	h := sha1.Sum(daBytes)
	frma, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, h[:])
	require.NoError(t, err)
	f := caf.CreateElement("FRMA")
	f.CreateAttr("algoritmo", "SHA1withRSA")
	f.SetText(base64.StdEncoding.EncodeToString(frma))

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	auth.CreateElement("RSASK").SetText(string(pem.EncodeToMemory(&pem.Block{
		Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key),
	})))
	auth.CreateElement("RSAPUBK").SetText(string(pem.EncodeToMemory(&pem.Block{
		Type: "PUBLIC KEY", Bytes: pubDER,
	})))

	out, err := doc.WriteToBytes()
	require.NoError(t, err)
	return out
}
