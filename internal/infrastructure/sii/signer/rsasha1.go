package signer

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/jhoicas/dte-sii/internal/domain"
)

// SignSHA1 firma RSA PKCS#1 v1.5 sobre SHA-1 y devuelve la firma en Base64.
func SignSHA1(key *rsa.PrivateKey, data []byte) (string, error) {
	h := sha1.Sum(data)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA1, h[:])
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSignature, err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifySHA1 verifica una firma Base64 producida por SignSHA1.
func VerifySHA1(pub *rsa.PublicKey, signatureB64 string, data []byte) bool {
	if pub == nil {
		return false
	}
	sig, err := decodeB64(signatureB64)
	if err != nil {
		return false
	}
	h := sha1.Sum(data)
	return rsa.VerifyPKCS1v15(pub, crypto.SHA1, h[:], sig) == nil
}

// DigestSHA1 digest SHA-1 en Base64 (DigestValue).
func DigestSHA1(data []byte) string {
	h := sha1.Sum(data)
	return base64.StdEncoding.EncodeToString(h[:])
}

// decodeB64 tolera saltos de línea y espacios (el SII envía Base64 partido en líneas).
func decodeB64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	return base64.StdEncoding.DecodeString(s)
}
