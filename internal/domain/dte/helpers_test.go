package dte_test

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/jhoicas/dte-sii/internal/domain/dte"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// hashKeys firma con un hash; suficiente para las reglas de folios, que no dependen de RSA.
type hashKeys struct{}

func (hashKeys) SignStamp(data []byte) (string, error) {
	h := sha256.Sum256(data)
	return base64.StdEncoding.EncodeToString(h[:]), nil
}

func (k hashKeys) VerifyStamp(sig string, data []byte) bool {
	want, _ := k.SignStamp(data)
	return want == sig
}

func newCert(t *testing.T, docType sii.DocumentType, from, to int64) *entity.FolioCertificate {
	t.Helper()
	cert, err := entity.NewFolioCertificate(entity.FolioCertificateParams{
		DocType:    docType,
		RangeFrom:  from,
		RangeTo:    to,
		IssuerRUT:  "76086428-5",
		CAFElement: []byte(fmt.Sprintf("<CAF><DA><TD>%d</TD><RNG><D>%d</D><H>%d</H></RNG></DA></CAF>", docType, from, to)),
		Keys:       hashKeys{},
	})
	require.NoError(t, err)
	return cert
}

func newAuthority(t *testing.T, docType sii.DocumentType, from, to int64) *dte.FolioAuthority {
	t.Helper()
	a := dte.NewFolioAuthority(docType)
	require.NoError(t, a.InsertCertificate(newCert(t, docType, from, to)))
	return a
}

func testIssuer() entity.Issuer {
	return entity.Issuer{
		RUT:           "76086428-5",
		LegalName:     "Servicios Sanitarios Ltda",
		Activity:      "captación y distribución de agua",
		ActivityCodes: []int{360000},
		Address:       entity.Address{Street: "Av. Principal 123", Comuna: "Santiago", City: "Santiago"},
	}
}

func testReceptor() entity.Receptor {
	return entity.Receptor{
		RUT:       "12345678-5",
		LegalName: "Juan Pérez",
		Activity:  "particular",
		Address:   entity.Address{Street: "Calle Uno 1", Comuna: "Ñuñoa", City: "Santiago"},
	}
}

func line(no int, name string, qty, price int64) entity.DetailLine {
	return entity.NewDetailLine(no, name, decimal.NewFromInt(qty), decimal.NewFromInt(price))
}
