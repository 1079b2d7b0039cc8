// Carga de archivos CAF (Código de Autorización de Folios) entregados por el SII.

package sii

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/charset"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/signer"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// LoadCAF parsea un archivo AUTORIZACION (CAF/DA, RSASK, RSAPUBK) y valida el par de llaves.
func LoadCAF(data []byte) (*entity.FolioCertificate, error) {
	doc, err := charset.ReadDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCAF, err)
	}
	doc.Unindent()
	root := doc.Root()
	caf := root.SelectElement("CAF")
	if caf == nil {
		return nil, fmt.Errorf("%w: falta el nodo CAF", domain.ErrInvalidCAF)
	}

	td, err := intAt(caf, "DA/TD")
	if err != nil {
		return nil, err
	}
	from, err := intAt(caf, "DA/RNG/D")
	if err != nil {
		return nil, err
	}
	to, err := intAt(caf, "DA/RNG/H")
	if err != nil {
		return nil, err
	}
	docType := sii.DocumentType(td)
	if !docType.Valid() {
		return nil, fmt.Errorf("%w: tipo de documento %d", domain.ErrInvalidCAF, td)
	}

	keys, err := signer.ParseCAFKeys([]byte(textAt(root, "RSASK")), []byte(textAt(root, "RSAPUBK")))
	if err != nil {
		return nil, err
	}
	if err := checkModulus(caf, keys); err != nil {
		return nil, err
	}

	cafDoc := etree.NewDocument()
	cafDoc.SetRoot(caf.Copy())
	cafBytes, err := cafDoc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: serializar CAF: %v", domain.ErrInvalidCAF, err)
	}

	return entity.NewFolioCertificate(entity.FolioCertificateParams{
		DocType:    docType,
		RangeFrom:  from,
		RangeTo:    to,
		IssuerRUT:  strings.ToUpper(textAt(caf, "DA/RE")),
		CAFElement: cafBytes,
		Raw:        data,
		Keys:       keys,
	})
}

// LoadCAFFile lee y parsea un archivo CAF.
func LoadCAFFile(path string) (*entity.FolioCertificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("leer CAF %s: %w", path, err)
	}
	cert, err := LoadCAF(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return cert, nil
}

// LoadCAFDir carga todos los *.xml del directorio ordenados por tipo y rango.
func LoadCAFDir(dir string) ([]*entity.FolioCertificate, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.xml"))
	if err != nil {
		return nil, err
	}
	certs := make([]*entity.FolioCertificate, 0, len(paths))
	for _, p := range paths {
		c, err := LoadCAFFile(p)
		if err != nil {
			return nil, err
		}
		certs = append(certs, c)
	}
	sort.Slice(certs, func(i, j int) bool {
		if certs[i].DocType() != certs[j].DocType() {
			return certs[i].DocType() < certs[j].DocType()
		}
		return certs[i].RangeFrom() < certs[j].RangeFrom()
	})
	return certs, nil
}

// checkModulus compara RSAPK/M del área firmada por el SII con la llave pública RSAPUBK.
func checkModulus(caf *etree.Element, keys *signer.CAFKeys) error {
	m := textAt(caf, "DA/RSAPK/M")
	if m == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(m), ""))
	if err != nil {
		return fmt.Errorf("%w: RSAPK/M: %v", domain.ErrInvalidCAF, err)
	}
	if !bytes.Equal(new(big.Int).SetBytes(raw).Bytes(), keys.PublicKey().N.Bytes()) {
		return fmt.Errorf("%w: RSAPUBK no corresponde a RSAPK", domain.ErrInvalidCAF)
	}
	return nil
}

func textAt(el *etree.Element, path string) string {
	if found := el.FindElement(path); found != nil {
		return strings.TrimSpace(found.Text())
	}
	return ""
}

func intAt(el *etree.Element, path string) (int64, error) {
	s := textAt(el, path)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", domain.ErrInvalidCAF, path, s)
	}
	return n, nil
}
