// Timbre electrónico (TED): nodo DD firmado con la llave privada del CAF.

package sii

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/charset"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/signer"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// maxStampText largo máximo de RSR e IT1 dentro del DD.
const maxStampText = 40

// StampBuilder arma el TED de un documento.
type StampBuilder struct{}

func NewStampBuilder() *StampBuilder { return &StampBuilder{} }

// Build genera <TED version="1.0"><DD>…</DD><FRMT algoritmo="SHA1withRSA">…</FRMT></TED>.
// El CAF debe corresponder al tipo del documento y contener su folio.
func (b *StampBuilder) Build(doc *entity.Document, cert *entity.FolioCertificate, ts time.Time) (*etree.Element, error) {
	if len(doc.Details) == 0 {
		return nil, domain.ErrMissingDetailLine
	}
	if cert == nil {
		return nil, fmt.Errorf("%w: folio %d", domain.ErrCertificateNotFound, doc.Folio())
	}
	if cert.DocType() != doc.DocType() {
		return nil, fmt.Errorf("%w: CAF tipo %d, documento tipo %d", domain.ErrDocumentTypeMismatch, cert.DocType(), doc.DocType())
	}
	if !cert.Contains(doc.Folio()) {
		return nil, fmt.Errorf("%w: folio %d fuera de [%d, %d]", domain.ErrCertificateNotFound, doc.Folio(), cert.RangeFrom(), cert.RangeTo())
	}
	cafDoc, err := charset.ReadDocument(cert.CAFElement())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCAF, err)
	}

	h := doc.Header
	ted := etree.NewElement("TED")
	ted.CreateAttr("version", "1.0")
	dd := ted.CreateElement("DD")
	addText(dd, "RE", strings.ToUpper(h.Issuer.RUT))
	addText(dd, "TD", strconv.Itoa(int(doc.DocType())))
	addText(dd, "F", strconv.FormatInt(doc.Folio(), 10))
	addText(dd, "FE", h.IDDoc.DateEmitted.Format(sii.DateFormat))
	addText(dd, "RR", strings.ToUpper(h.Receptor.RUT))
	addText(dd, "RSR", truncate(h.Receptor.LegalName, maxStampText))
	addText(dd, "MNT", strconv.FormatInt(doc.TotalAmount(), 10))
	addText(dd, "IT1", truncate(doc.Details[0].ItemName, maxStampText))
	dd.AddChild(cafDoc.Root().Copy())
	addText(dd, "TSTED", ts.Format(sii.TimestampFormat))

	data, err := StampData(dd)
	if err != nil {
		return nil, err
	}
	sig, err := cert.SignStamp(data)
	if err != nil {
		return nil, fmt.Errorf("%w: timbre: %v", domain.ErrSignature, err)
	}
	frmt := addText(ted, "FRMT", sig)
	frmt.CreateAttr("algoritmo", signer.StampAlgorithm)
	return ted, nil
}

// StampData bytes firmados del DD: forma canónica sin namespaces heredados, en ISO-8859-1.
func StampData(dd *etree.Element) ([]byte, error) {
	c := dd.Copy()
	for _, e := range append([]*etree.Element{c}, c.FindElements(".//*")...) {
		e.Space = ""
		e.RemoveAttr("xmlns")
	}
	canonical, err := signer.Canonicalize(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignature, err)
	}
	return charset.EncodeLatin1(canonical)
}

// VerifyStamp verifica FRMT con la llave pública RSAPK incluida en el CAF del propio timbre.
func VerifyStamp(ted *etree.Element) (bool, error) {
	dd := ted.SelectElement("DD")
	frmt := ted.SelectElement("FRMT")
	if dd == nil || frmt == nil {
		return false, fmt.Errorf("%w: TED sin DD o FRMT", domain.ErrMalformedDocument)
	}
	pub, err := cafPublicKey(dd.FindElement("CAF/DA/RSAPK"))
	if err != nil {
		return false, err
	}
	data, err := StampData(dd)
	if err != nil {
		return false, err
	}
	return signer.VerifySHA1(pub, frmt.Text(), data), nil
}

// VerifyStampBytes verifica un TED serializado (Document.XMLStamp).
func VerifyStampBytes(stamp []byte) (bool, error) {
	doc, err := charset.ReadDocument(stamp)
	if err != nil {
		return false, err
	}
	return VerifyStamp(doc.Root())
}

func cafPublicKey(rsapk *etree.Element) (*rsa.PublicKey, error) {
	if rsapk == nil {
		return nil, fmt.Errorf("%w: TED sin CAF/DA/RSAPK", domain.ErrMalformedDocument)
	}
	m, errM := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(textAt(rsapk, "M")), ""))
	e, errE := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(textAt(rsapk, "E")), ""))
	if errM != nil || errE != nil || len(m) == 0 || len(e) == 0 {
		return nil, fmt.Errorf("%w: RSAPK inválida", domain.ErrKeyImport)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(m), E: int(new(big.Int).SetBytes(e).Int64())}, nil
}

// truncate corta a n caracteres (no bytes).
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
